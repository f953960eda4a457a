package wallet

import (
	"crypto/ed25519"

	"github.com/danmuck/qubicctl/internal/protocol/identity"
	"github.com/danmuck/qubicctl/internal/protocol/tx"
)

// Ed25519Curve treats the private key as an Ed25519 seed. Mainnet peers do
// not accept these signatures; it backs the mock service and local testing.
type Ed25519Curve struct{}

func (Ed25519Curve) PublicKey(private [PrivateKeySize]byte) ([identity.KeySize]byte, error) {
	var out [identity.KeySize]byte
	key := ed25519.NewKeyFromSeed(private[:])
	copy(out[:], key.Public().(ed25519.PublicKey))
	return out, nil
}

func (Ed25519Curve) Sign(private [PrivateKeySize]byte, _ [identity.KeySize]byte, digest [32]byte) ([tx.SignatureSize]byte, error) {
	var out [tx.SignatureSize]byte
	copy(out[:], ed25519.Sign(ed25519.NewKeyFromSeed(private[:]), digest[:]))
	return out, nil
}

// Verify checks a signature produced by Sign.
func (Ed25519Curve) Verify(public [identity.KeySize]byte, digest [32]byte, sig []byte) bool {
	return ed25519.Verify(ed25519.PublicKey(public[:]), digest[:], sig)
}
