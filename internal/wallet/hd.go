package wallet

import (
	"strconv"
	"strings"

	"github.com/danmuck/qubicctl/internal/protocol"
)

const (
	DefaultPath = "m/0"

	hardenedOffset = 0x80000000
	pathStride     = 0x1000
	maxPathIndex   = 1<<53 - 1
)

// ParsePath splits m/a'/b/... into segment values. A trailing ' or h marks a
// hardened segment.
func ParsePath(path string) ([]uint64, error) {
	parts := strings.Split(strings.TrimSpace(path), "/")
	if len(parts) == 0 || parts[0] != "m" {
		return nil, protocol.Formatf("derivation path %q must start with m", path)
	}
	out := make([]uint64, 0, len(parts)-1)
	for _, part := range parts[1:] {
		hardened := false
		if strings.HasSuffix(part, "'") || strings.HasSuffix(part, "h") {
			hardened = true
			part = part[:len(part)-1]
		}
		if part == "" || strings.TrimLeft(part, "0123456789") != "" {
			return nil, protocol.Formatf("invalid derivation path segment %q in %q", part, path)
		}
		v, err := strconv.ParseUint(part, 10, 64)
		if err != nil || v >= hardenedOffset {
			return nil, protocol.Validationf("derivation path segment %q out of range", part)
		}
		if hardened {
			v += hardenedOffset
		}
		out = append(out, v)
	}
	return out, nil
}

// PathIndex folds a derivation path into one account index.
func PathIndex(path string) (uint64, error) {
	segments, err := ParsePath(path)
	if err != nil {
		return 0, err
	}
	var index uint64
	for _, seg := range segments {
		if index > (maxPathIndex-seg)/pathStride {
			return 0, protocol.Validationf("derivation path %q overflows the account index", path)
		}
		index = index*pathStride + seg
	}
	return index, nil
}
