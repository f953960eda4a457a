package layout

import (
	"encoding/json"
	"math"
	"reflect"

	"github.com/danmuck/qubicctl/internal/protocol"
	"github.com/danmuck/qubicctl/internal/protocol/identity"
)

func toUint64(v any, bits int) (uint64, error) {
	var out uint64
	switch n := v.(type) {
	case uint8:
		out = uint64(n)
	case uint16:
		out = uint64(n)
	case uint32:
		out = uint64(n)
	case uint64:
		out = n
	case uint:
		out = uint64(n)
	case bool:
		if n {
			out = 1
		}
	case int, int8, int16, int32, int64, float64, json.Number:
		s, err := toInt64(v, 64)
		if err != nil {
			return 0, err
		}
		if s < 0 {
			return 0, protocol.Validationf("negative value %d for unsigned field", s)
		}
		out = uint64(s)
	default:
		return 0, protocol.Validationf("expected an integer, got %T", v)
	}
	if bits < 64 && out > (uint64(1)<<bits)-1 {
		return 0, protocol.Validationf("value %d overflows uint%d", out, bits)
	}
	return out, nil
}

func toInt64(v any, bits int) (int64, error) {
	var out int64
	switch n := v.(type) {
	case int:
		out = int64(n)
	case int8:
		out = int64(n)
	case int16:
		out = int64(n)
	case int32:
		out = int64(n)
	case int64:
		out = n
	case uint8:
		out = int64(n)
	case uint16:
		out = int64(n)
	case uint32:
		out = int64(n)
	case uint, uint64:
		u := reflect.ValueOf(n).Uint()
		if u > math.MaxInt64 {
			return 0, protocol.Validationf("value %d overflows int64", u)
		}
		out = int64(u)
	case float64:
		if n != math.Trunc(n) || n > math.MaxInt64 || n < math.MinInt64 {
			return 0, protocol.Validationf("value %v is not an integer", n)
		}
		out = int64(n)
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, protocol.Validationf("value %q is not an integer", n.String())
		}
		out = i
	default:
		return 0, protocol.Validationf("expected an integer, got %T", v)
	}
	if bits < 64 {
		lo, hi := int64(-1)<<(bits-1), int64(1)<<(bits-1)-1
		if out < lo || out > hi {
			return 0, protocol.Validationf("value %d overflows sint%d", out, bits)
		}
	}
	return out, nil
}

func toBool(v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	default:
		n, err := toUint64(v, 8)
		if err != nil {
			return false, protocol.Validationf("expected a bool, got %T", v)
		}
		return n != 0, nil
	}
}

func toKey(v any) ([identity.KeySize]byte, error) {
	var key [identity.KeySize]byte
	switch k := v.(type) {
	case string:
		return identity.ParseKey(k)
	case [identity.KeySize]byte:
		return k, nil
	case []byte:
		if len(k) != identity.KeySize {
			return key, protocol.Validationf("id field needs %d bytes, got %d", identity.KeySize, len(k))
		}
		copy(key[:], k)
		return key, nil
	default:
		return key, protocol.Validationf("expected key text or bytes, got %T", v)
	}
}

func toBlob(v any) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case string:
		return []byte(b), nil
	default:
		return nil, protocol.Validationf("expected bytes or text, got %T", v)
	}
}

func toRecord(v any) (Record, error) {
	switch r := v.(type) {
	case Record:
		return r, nil
	case map[string]any:
		return Record(r), nil
	default:
		return nil, protocol.Validationf("expected a record, got %T", v)
	}
}

func toSlice(v any) (reflect.Value, error) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return rv, nil
	default:
		return reflect.Value{}, protocol.Validationf("expected a list, got %T", v)
	}
}

// Get reads one decoded field as T. A missing field or a value of another
// type is ErrValidation, which happens when a loaded layout declares the
// field differently from what the caller reads.
func Get[T any](r Record, name string) (T, error) {
	var zero T
	v, ok := r[name]
	if !ok {
		return zero, protocol.Validationf("field %s is missing", name)
	}
	out, ok := v.(T)
	if !ok {
		return zero, protocol.Validationf("field %s holds %T, want %T", name, v, zero)
	}
	return out, nil
}
