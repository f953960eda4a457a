// Package hashing provides the network's canonical hash, KangarooTwelve.
package hashing

import "github.com/cloudflare/circl/xof/k12"

// Hasher produces a 32-byte digest. Codecs take it as a capability so tests
// can substitute a deterministic stand-in.
type Hasher func(data []byte) [32]byte

// K12 returns the 32-byte KangarooTwelve digest of data.
func K12(data []byte) [32]byte {
	var out [32]byte
	k12.Draft10Sum(out[:], data, nil)
	return out
}

// K12Len returns an n-byte KangarooTwelve output.
func K12Len(data []byte, n int) []byte {
	out := make([]byte, n)
	k12.Draft10Sum(out, data, nil)
	return out
}
