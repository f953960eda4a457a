package layout

import (
	"sort"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/qubicctl/internal/protocol"
)

var ErrLayoutExists = errors.New("layout: already registered")

// Registry holds immutable layouts by name. Nested references resolve lazily,
// so layouts may be registered in any order.
type Registry struct {
	mu      sync.RWMutex
	layouts map[string]Layout
}

func NewRegistry() *Registry {
	return &Registry{layouts: make(map[string]Layout)}
}

// Register validates the shape of l and stores a private copy.
func (r *Registry) Register(l Layout) error {
	name := strings.TrimSpace(l.Name)
	if name == "" {
		return fieldErr("", "", protocol.Validationf("layout name required"))
	}
	fields := make([]Field, len(l.Fields))
	seen := make(map[string]struct{}, len(l.Fields))
	for i, f := range l.Fields {
		f.Name = strings.TrimSpace(f.Name)
		f.Type = f.Type.Normalize()
		f.Elem = f.Elem.Normalize()
		f.Struct = strings.TrimSpace(f.Struct)
		if err := checkField(f); err != nil {
			return fieldErr(name, f.Name, err)
		}
		if f.Type != Padding {
			if _, dup := seen[f.Name]; dup {
				return fieldErr(name, f.Name, protocol.Validationf("duplicate field name"))
			}
			seen[f.Name] = struct{}{}
		}
		fields[i] = f
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.layouts[name]; ok {
		return errors.Wrapf(ErrLayoutExists, "%s", name)
	}
	r.layouts[name] = Layout{Name: name, Fields: fields}
	log.Debug().Str("layout", name).Int("fields", len(fields)).Msg("layout.Register")
	return nil
}

func checkField(f Field) error {
	if f.Name == "" && f.Type != Padding {
		return protocol.Validationf("field name required")
	}
	if _, ok := scalarWidth(f.Type); ok {
		return nil
	}
	switch f.Type {
	case Bytes, Padding:
		if f.Length <= 0 {
			return protocol.Validationf("%s field needs a positive length", f.Type)
		}
	case Struct:
		if f.Struct == "" {
			return protocol.Validationf("struct field needs a layout name")
		}
	case Array:
		if f.Length <= 0 {
			return protocol.Validationf("array field needs a positive capacity")
		}
		if f.Elem == "" && f.Struct != "" {
			return nil
		}
		if f.Elem == Struct {
			if f.Struct == "" {
				return protocol.Validationf("struct array needs an element layout name")
			}
			return nil
		}
		if _, ok := scalarWidth(f.Elem); !ok {
			return errors.Wrapf(protocol.ErrUnsupportedType, "array element type %q", f.Elem)
		}
	default:
		return errors.Wrapf(protocol.ErrUnsupportedType, "wire type %q", f.Type)
	}
	return nil
}

// MustRegister panics on error. For package-level built-in tables.
func (r *Registry) MustRegister(l Layout) {
	if err := r.Register(l); err != nil {
		panic(err)
	}
}

// Lookup returns a copy of the named layout.
func (r *Registry) Lookup(name string) (Layout, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.layouts[name]
	if !ok {
		return Layout{}, false
	}
	return Layout{Name: l.Name, Fields: append([]Field(nil), l.Fields...)}, true
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.layouts))
	for name := range r.layouts {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Size is the encoded byte length of the named layout. Every wire type is
// fixed width, so this is independent of the value.
func (r *Registry) Size(name string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sizeLocked(name, map[string]bool{})
}

// Validate resolves every nested reference and reports the first failure.
func (r *Registry) Validate() error {
	for _, name := range r.Names() {
		if _, err := r.Size(name); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) sizeLocked(name string, visiting map[string]bool) (int, error) {
	l, ok := r.layouts[name]
	if !ok {
		return 0, fieldErr(name, "", errors.Wrapf(protocol.ErrUnsupportedType, "unknown layout %q", name))
	}
	if visiting[name] {
		return 0, fieldErr(name, "", errors.Wrapf(protocol.ErrUnsupportedType, "layout %q references itself", name))
	}
	visiting[name] = true
	defer delete(visiting, name)

	total := 0
	for _, f := range l.Fields {
		n, err := r.fieldSizeLocked(f, visiting)
		if err != nil {
			var fe *FieldError
			if errors.As(err, &fe) {
				return 0, err
			}
			return 0, fieldErr(name, f.Name, err)
		}
		total += n
	}
	return total, nil
}

func (r *Registry) fieldSizeLocked(f Field, visiting map[string]bool) (int, error) {
	if w, ok := scalarWidth(f.Type); ok {
		return w, nil
	}
	switch f.Type {
	case Bytes, Padding:
		return f.Length, nil
	case Struct:
		return r.sizeLocked(f.Struct, visiting)
	case Array:
		elem, err := r.elemSizeLocked(f, visiting)
		if err != nil {
			return 0, err
		}
		return elem * f.Length, nil
	default:
		return 0, errors.Wrapf(protocol.ErrUnsupportedType, "wire type %q", f.Type)
	}
}

func (r *Registry) elemSizeLocked(f Field, visiting map[string]bool) (int, error) {
	if isStructElem(f) {
		return r.sizeLocked(f.Struct, visiting)
	}
	if w, ok := scalarWidth(f.Elem); ok {
		return w, nil
	}
	return 0, errors.Wrapf(protocol.ErrUnsupportedType, "array element type %q", f.Elem)
}

func isStructElem(f Field) bool {
	return f.Elem == Struct || (f.Elem == "" && f.Struct != "")
}
