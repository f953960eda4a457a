package identity

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/danmuck/qubicctl/internal/hashing"
)

const DefaultCacheSize = 1024

// Encoder renders identities through an LRU of recently seen keys.
type Encoder struct {
	hash  hashing.Hasher
	cache *lru.Cache[[KeySize]byte, string]
}

func NewEncoder(hash hashing.Hasher, size int) (*Encoder, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[[KeySize]byte, string](size)
	if err != nil {
		return nil, err
	}
	return &Encoder{hash: hash, cache: cache}, nil
}

func (e *Encoder) Identity(key [KeySize]byte) string {
	if id, ok := e.cache.Get(key); ok {
		return id
	}
	id := FromPublicKey(key, e.hash)
	e.cache.Add(key, id)
	return id
}

// IdentityFromText renders a hex key or identity text in identity form.
func (e *Encoder) IdentityFromText(value string) (string, error) {
	key, err := ParseKey(value)
	if err != nil {
		return "", err
	}
	return e.Identity(key), nil
}
