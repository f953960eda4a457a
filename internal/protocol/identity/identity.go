// Package identity converts between 32-byte public keys and their 60-letter
// checksummed text form.
package identity

import (
	"encoding/binary"
	"encoding/hex"
	"strings"

	"github.com/danmuck/qubicctl/internal/hashing"
	"github.com/danmuck/qubicctl/internal/protocol"
)

const (
	Length  = 60
	KeySize = 32

	groups          = 4
	groupLetters    = 14
	checksumLetters = 4
	checksumMask    = 0x3FFFF
)

// ToPublicKey decodes the 56 key letters of id. The checksum letters are not
// verified here; use Verify for that.
func ToPublicKey(id string) ([KeySize]byte, error) {
	var key [KeySize]byte
	if err := checkAlphabet(id, 'A'); err != nil {
		return key, err
	}
	for g := 0; g < groups; g++ {
		var v uint64
		for j := groupLetters - 1; j >= 0; j-- {
			v = v*26 + uint64(id[g*groupLetters+j]-'A')
		}
		binary.LittleEndian.PutUint64(key[g*8:], v)
	}
	return key, nil
}

// FromPublicKey renders key as an uppercase identity whose checksum is taken
// from hash(key).
func FromPublicKey(key [KeySize]byte, hash hashing.Hasher) string {
	return render(key, hash, 'A')
}

// FromPublicKeyLower is the lowercase rendering used for transaction ids.
func FromPublicKeyLower(key [KeySize]byte, hash hashing.Hasher) string {
	return render(key, hash, 'a')
}

func render(key [KeySize]byte, hash hashing.Hasher, base byte) string {
	out := make([]byte, Length)
	for g := 0; g < groups; g++ {
		v := binary.LittleEndian.Uint64(key[g*8:])
		for j := 0; j < groupLetters; j++ {
			out[g*groupLetters+j] = base + byte(v%26)
			v /= 26
		}
	}
	digest := hash(key[:])
	cs := (uint32(digest[2])<<16 | uint32(digest[1])<<8 | uint32(digest[0])) & checksumMask
	for j := 0; j < checksumLetters; j++ {
		out[groups*groupLetters+j] = base + byte(cs%26)
		cs /= 26
	}
	return string(out)
}

// Verify checks the alphabet and the trailing checksum of id.
func Verify(id string, hash hashing.Hasher) error {
	key, err := ToPublicKey(id)
	if err != nil {
		return err
	}
	if want := FromPublicKey(key, hash); want[groups*groupLetters:] != id[groups*groupLetters:] {
		return protocol.Formatf("identity checksum mismatch for %s", id)
	}
	return nil
}

// ParseKey accepts a 64-digit hex key or a 60-letter identity.
func ParseKey(value string) ([KeySize]byte, error) {
	var key [KeySize]byte
	trimmed := strings.TrimSpace(value)
	switch len(trimmed) {
	case KeySize * 2:
		raw, err := hex.DecodeString(trimmed)
		if err != nil {
			return key, protocol.Formatf("invalid hex key %q", value)
		}
		copy(key[:], raw)
		return key, nil
	case Length:
		return ToPublicKey(trimmed)
	default:
		return key, protocol.Formatf("expected 64 hex digits or a %d-letter identity, got %d characters", Length, len(trimmed))
	}
}

// NormalizeKeyText returns the canonical lowercase hex form of a hex key or identity.
func NormalizeKeyText(value string) (string, error) {
	key, err := ParseKey(value)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(key[:]), nil
}

func checkAlphabet(id string, base byte) error {
	if len(id) != Length {
		return protocol.Formatf("identity must be %d letters, got %d", Length, len(id))
	}
	for i := 0; i < len(id); i++ {
		if c := id[i]; c < base || c > base+25 {
			return protocol.Formatf("identity has invalid character %q at %d", c, i)
		}
	}
	return nil
}
