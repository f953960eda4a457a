package layout

import (
	"encoding/hex"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/qubicctl/internal/protocol"
	"github.com/danmuck/qubicctl/internal/protocol/wire"
)

// Encode renders value with the named layout. The output is exactly
// Size(name) bytes; nothing is returned on error.
func (r *Registry) Encode(name string, value Record) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	size, err := r.sizeLocked(name, map[string]bool{})
	if err != nil {
		return nil, err
	}
	w := wire.NewWriter(size)
	if err := r.encodeStruct(w, name, "", value); err != nil {
		log.Debug().Str("layout", name).Err(err).Msg("layout.Encode failed")
		return nil, err
	}
	return w.Bytes(), nil
}

func (r *Registry) encodeStruct(w *wire.Writer, name, path string, value Record) error {
	l := r.layouts[name]
	for _, f := range l.Fields {
		if f.Type == Padding {
			w.Zero(f.Length)
			continue
		}
		fieldPath := joinPath(path, f.Name)
		v, ok := value[f.Name]
		if !ok || v == nil {
			return fieldErr(name, fieldPath, errors.Wrapf(protocol.ErrMissingField, "%s", f.Name))
		}
		if err := r.encodeField(w, f, fieldPath, v); err != nil {
			return wrapField(name, fieldPath, err)
		}
	}
	return nil
}

func (r *Registry) encodeField(w *wire.Writer, f Field, path string, v any) error {
	switch f.Type {
	case Bytes:
		blob, err := toBlob(v)
		if err != nil {
			return err
		}
		if len(blob) > f.Length {
			return errors.Wrapf(protocol.ErrCapacity, "%d bytes exceed length %d", len(blob), f.Length)
		}
		w.Write(blob)
		w.Zero(f.Length - len(blob))
		return nil
	case Struct:
		rec, err := toRecord(v)
		if err != nil {
			return err
		}
		return r.encodeStruct(w, f.Struct, path, rec)
	case Array:
		return r.encodeArray(w, f, path, v)
	default:
		return encodeScalar(w, f.Type, v)
	}
}

func (r *Registry) encodeArray(w *wire.Writer, f Field, path string, v any) error {
	items, err := toSlice(v)
	if err != nil {
		return err
	}
	if items.Len() > f.Length {
		return errors.Wrapf(protocol.ErrCapacity, "%d elements exceed capacity %d", items.Len(), f.Length)
	}
	elemSize, err := r.elemSizeLocked(f, map[string]bool{})
	if err != nil {
		return err
	}
	for i := 0; i < items.Len(); i++ {
		item := items.Index(i).Interface()
		itemPath := path + "[" + strconv.Itoa(i) + "]"
		if isStructElem(f) {
			rec, err := toRecord(item)
			if err != nil {
				return errors.Wrapf(err, "element %d", i)
			}
			if err := r.encodeStruct(w, f.Struct, itemPath, rec); err != nil {
				return err
			}
			continue
		}
		if err := encodeScalar(w, f.Elem, item); err != nil {
			return errors.Wrapf(err, "element %d", i)
		}
	}
	w.Zero((f.Length - items.Len()) * elemSize)
	return nil
}

func encodeScalar(w *wire.Writer, t WireType, v any) error {
	switch t {
	case Uint8, Uint16, Uint32, Uint64:
		width, _ := scalarWidth(t)
		n, err := toUint64(v, width*8)
		if err != nil {
			return err
		}
		switch t {
		case Uint8:
			w.Uint8(uint8(n))
		case Uint16:
			w.Uint16(uint16(n))
		case Uint32:
			w.Uint32(uint32(n))
		default:
			w.Uint64(n)
		}
	case Sint8, Sint16, Sint32, Sint64:
		width, _ := scalarWidth(t)
		n, err := toInt64(v, width*8)
		if err != nil {
			return err
		}
		switch t {
		case Sint8:
			w.Int8(int8(n))
		case Sint16:
			w.Int16(int16(n))
		case Sint32:
			w.Int32(int32(n))
		default:
			w.Int64(n)
		}
	case Bool:
		b, err := toBool(v)
		if err != nil {
			return err
		}
		w.Bool(b)
	case ID:
		key, err := toKey(v)
		if err != nil {
			return err
		}
		w.Write(key[:])
	default:
		return errors.Wrapf(protocol.ErrUnsupportedType, "wire type %q", t)
	}
	return nil
}

// Decode parses the named layout from the start of buf.
func (r *Registry) Decode(name string, buf []byte) (Record, error) {
	rec, _, err := r.DecodeAt(name, buf, 0)
	return rec, err
}

// DecodeAt parses the named layout at offset and returns the offset after it.
func (r *Registry) DecodeAt(name string, buf []byte, offset int) (Record, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	size, err := r.sizeLocked(name, map[string]bool{})
	if err != nil {
		return nil, offset, err
	}
	if offset < 0 || len(buf)-offset < size {
		return nil, offset, fieldErr(name, "", protocol.Truncatedf("layout needs %d bytes at offset %d, have %d", size, offset, len(buf)-offset))
	}
	rd := wire.NewReader(buf, offset)
	rec, err := r.decodeStruct(rd, name, "")
	if err != nil {
		return nil, offset, err
	}
	return rec, rd.Offset(), nil
}

func (r *Registry) decodeStruct(rd *wire.Reader, name, path string) (Record, error) {
	l := r.layouts[name]
	out := make(Record, len(l.Fields))
	for _, f := range l.Fields {
		if f.Type == Padding {
			if err := rd.Skip(f.Length); err != nil {
				return nil, fieldErr(name, path, err)
			}
			continue
		}
		fieldPath := joinPath(path, f.Name)
		v, err := r.decodeField(rd, f, fieldPath)
		if err != nil {
			return nil, wrapField(name, fieldPath, err)
		}
		out[f.Name] = v
	}
	return out, nil
}

func (r *Registry) decodeField(rd *wire.Reader, f Field, path string) (any, error) {
	switch f.Type {
	case Bytes:
		return rd.Copy(f.Length)
	case Struct:
		return r.decodeStruct(rd, f.Struct, path)
	case Array:
		items := make([]any, 0, f.Length)
		for i := 0; i < f.Length; i++ {
			var (
				item any
				err  error
			)
			if isStructElem(f) {
				item, err = r.decodeStruct(rd, f.Struct, path+"["+strconv.Itoa(i)+"]")
			} else {
				item, err = decodeScalar(rd, f.Elem)
			}
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		return items, nil
	default:
		return decodeScalar(rd, f.Type)
	}
}

func decodeScalar(rd *wire.Reader, t WireType) (any, error) {
	switch t {
	case Uint8:
		return rd.Uint8()
	case Uint16:
		return rd.Uint16()
	case Uint32:
		return rd.Uint32()
	case Uint64:
		return rd.Uint64()
	case Sint8:
		return rd.Int8()
	case Sint16:
		return rd.Int16()
	case Sint32:
		return rd.Int32()
	case Sint64:
		return rd.Int64()
	case Bool:
		return rd.Bool()
	case ID:
		key, err := rd.Key()
		if err != nil {
			return nil, err
		}
		return hex.EncodeToString(key[:]), nil
	default:
		return nil, errors.Wrapf(protocol.ErrUnsupportedType, "wire type %q", t)
	}
}

// wrapField attaches location to a bare error and passes FieldErrors through,
// so the innermost location wins.
func wrapField(layout, path string, err error) error {
	var fe *FieldError
	if errors.As(err, &fe) {
		return err
	}
	return fieldErr(layout, path, err)
}
