// Package wallet derives keys from 55-letter seeds and signs with them.
package wallet

import (
	"math/big"

	"github.com/danmuck/qubicctl/internal/hashing"
	"github.com/danmuck/qubicctl/internal/protocol"
)

const (
	SeedLength     = 55
	PrivateKeySize = 32
	seedBase       = 26
)

var seedSpace = new(big.Int).Exp(big.NewInt(seedBase), big.NewInt(SeedLength), nil)

// ValidateSeed reports a format error unless seed is 55 letters a-z.
func ValidateSeed(seed string) error {
	if len(seed) != SeedLength {
		return protocol.Formatf("seed must be %d lowercase letters, got %d characters", SeedLength, len(seed))
	}
	for i := 0; i < len(seed); i++ {
		if seed[i] < 'a' || seed[i] > 'z' {
			return protocol.Formatf("seed has invalid character %q at %d", seed[i], i)
		}
	}
	return nil
}

// seedDigits maps letters to 0..25, least significant digit first.
func seedDigits(seed string) ([]byte, error) {
	if err := ValidateSeed(seed); err != nil {
		return nil, err
	}
	out := make([]byte, SeedLength)
	for i := 0; i < SeedLength; i++ {
		out[i] = seed[i] - 'a'
	}
	return out, nil
}

// withAccountIndex adds index to the base-26 value of digits, wrapping at 26^55.
func withAccountIndex(digits []byte, index uint64) []byte {
	if index == 0 {
		return digits
	}
	base := big.NewInt(seedBase)
	value := new(big.Int)
	mult := big.NewInt(1)
	for _, d := range digits {
		term := new(big.Int).Mul(big.NewInt(int64(d)), mult)
		value.Add(value, term)
		mult.Mul(mult, base)
	}
	value.Add(value, new(big.Int).SetUint64(index))
	value.Mod(value, seedSpace)

	out := make([]byte, len(digits))
	rem := new(big.Int)
	for i := range out {
		value.DivMod(value, base, rem)
		out[i] = byte(rem.Int64())
	}
	return out
}

// DerivePrivateKey hashes the indexed seed digits into a 32-byte private key.
func DerivePrivateKey(seed string, accountIndex uint64) ([PrivateKeySize]byte, error) {
	var key [PrivateKeySize]byte
	digits, err := seedDigits(seed)
	if err != nil {
		return key, err
	}
	copy(key[:], hashing.K12Len(withAccountIndex(digits, accountIndex), PrivateKeySize))
	return key, nil
}
