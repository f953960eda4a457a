package tx

import (
	"bytes"

	"github.com/cockroachdb/errors"
	"github.com/danmuck/qubicctl/internal/hashing"
	"github.com/danmuck/qubicctl/internal/protocol"
	"github.com/danmuck/qubicctl/internal/protocol/identity"
)

// Signer signs transaction digests for one source key.
type Signer interface {
	PublicKey() [KeySize]byte
	SignDigest(digest [32]byte) ([SignatureSize]byte, error)
}

// Signed is a transaction with its signature attached and its wire form cached.
type Signed struct {
	Transaction
	Encoded []byte
	Digest  [32]byte
	ID      string
}

// Sign hashes the unsigned bytes of t and attaches the signer's signature.
func Sign(t Transaction, signer Signer, hash hashing.Hasher) (Signed, error) {
	pub := signer.PublicKey()
	if !bytes.Equal(pub[:], t.Source[:]) {
		return Signed{}, protocol.Validationf("signer key does not match transaction source")
	}
	unsigned, err := EncodeUnsigned(t)
	if err != nil {
		return Signed{}, err
	}
	sig, err := signer.SignDigest(hash(unsigned))
	if err != nil {
		return Signed{}, errors.Wrap(err, "sign transaction")
	}
	t.Signature = sig[:]
	return Seal(t, hash)
}

// Seal encodes an already signed transaction and derives its id.
func Seal(t Transaction, hash hashing.Hasher) (Signed, error) {
	if len(t.Input) == 0 {
		t.Input = nil
	}
	encoded, err := Encode(t)
	if err != nil {
		return Signed{}, err
	}
	digest := hash(encoded)
	return Signed{
		Transaction: t,
		Encoded:     encoded,
		Digest:      digest,
		ID:          identity.FromPublicKeyLower(digest, hash),
	}, nil
}
