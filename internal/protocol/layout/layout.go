// Package layout is the schema-driven struct codec. Contract payload shapes
// are declared as data (ordered, typed fields) and one recursive encoder and
// decoder walks them.
package layout

import (
	"fmt"
	"strings"
)

// WireType tags the on-wire representation of a field.
type WireType string

const (
	Uint8   WireType = "uint8"
	Uint16  WireType = "uint16"
	Uint32  WireType = "uint32"
	Uint64  WireType = "uint64"
	Sint8   WireType = "sint8"
	Sint16  WireType = "sint16"
	Sint32  WireType = "sint32"
	Sint64  WireType = "sint64"
	Bool    WireType = "bool"
	ID      WireType = "id"
	Bytes   WireType = "bytes"
	Padding WireType = "padding"
	Struct  WireType = "struct"
	Array   WireType = "array"
)

var aliases = map[string]WireType{
	"string": ID,
	"int8":   Sint8,
	"int16":  Sint16,
	"int32":  Sint32,
	"int64":  Sint64,
	"u8":     Uint8,
	"u16":    Uint16,
	"u32":    Uint32,
	"u64":    Uint64,
	"i8":     Sint8,
	"i16":    Sint16,
	"i32":    Sint32,
	"i64":    Sint64,
}

// Normalize resolves aliases and case. Unknown tags are returned unchanged
// so validation can report them.
func (t WireType) Normalize() WireType {
	raw := strings.ToLower(strings.TrimSpace(string(t)))
	if alias, ok := aliases[raw]; ok {
		return alias
	}
	return WireType(raw)
}

// scalarWidth is the byte width of fixed scalar types.
func scalarWidth(t WireType) (int, bool) {
	switch t {
	case Uint8, Sint8, Bool:
		return 1, true
	case Uint16, Sint16:
		return 2, true
	case Uint32, Sint32:
		return 4, true
	case Uint64, Sint64:
		return 8, true
	case ID:
		return 32, true
	default:
		return 0, false
	}
}

// Field is one named, typed slot of a layout.
//
// Length is the capacity for arrays and the byte count for bytes and padding.
// Struct names the nested layout for struct fields and struct array elements.
type Field struct {
	Name   string   `toml:"name"`
	Type   WireType `toml:"type"`
	Length int      `toml:"length,omitempty"`
	Elem   WireType `toml:"elem,omitempty"`
	Struct string   `toml:"struct,omitempty"`
}

// Layout is an ordered field list. Field order is byte order.
type Layout struct {
	Name   string  `toml:"name"`
	Fields []Field `toml:"fields"`
}

// Record is a decoded struct value keyed by field name.
type Record map[string]any

// FieldError locates a codec failure. Err wraps one of the protocol error kinds.
type FieldError struct {
	Layout string
	Field  string
	Err    error
}

func (e *FieldError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("layout: layout=%s: %v", e.Layout, e.Err)
	}
	return fmt.Sprintf("layout: layout=%s field=%s: %v", e.Layout, e.Field, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

func fieldErr(layout, field string, err error) error {
	return &FieldError{Layout: layout, Field: field, Err: err}
}

func joinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}
