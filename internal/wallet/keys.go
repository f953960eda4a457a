package wallet

import (
	"encoding/hex"

	"github.com/cockroachdb/errors"

	"github.com/danmuck/qubicctl/internal/hashing"
	"github.com/danmuck/qubicctl/internal/protocol/identity"
	"github.com/danmuck/qubicctl/internal/protocol/tx"
)

// Curve is the signature scheme capability. The network scheme is supplied
// by the caller.
type Curve interface {
	PublicKey(private [PrivateKeySize]byte) ([identity.KeySize]byte, error)
	Sign(private [PrivateKeySize]byte, public [identity.KeySize]byte, digest [32]byte) ([tx.SignatureSize]byte, error)
}

type KeyPair struct {
	Private  [PrivateKeySize]byte
	Public   [identity.KeySize]byte
	Identity string
}

func (k KeyPair) PrivateHex() string { return hex.EncodeToString(k.Private[:]) }
func (k KeyPair) PublicHex() string  { return hex.EncodeToString(k.Public[:]) }

// Derive returns the key pair for seed at accountIndex.
func Derive(seed string, accountIndex uint64, curve Curve) (KeyPair, error) {
	priv, err := DerivePrivateKey(seed, accountIndex)
	if err != nil {
		return KeyPair{}, err
	}
	pub, err := curve.PublicKey(priv)
	if err != nil {
		return KeyPair{}, errors.Wrap(err, "derive public key")
	}
	return KeyPair{
		Private:  priv,
		Public:   pub,
		Identity: identity.FromPublicKey(pub, hashing.K12),
	}, nil
}

func DeriveFromPath(seed, path string, curve Curve) (KeyPair, error) {
	index, err := PathIndex(path)
	if err != nil {
		return KeyPair{}, err
	}
	return Derive(seed, index, curve)
}

// Signer adapts a key pair to tx.Signer.
type Signer struct {
	keys  KeyPair
	curve Curve
}

func NewSigner(keys KeyPair, curve Curve) *Signer {
	return &Signer{keys: keys, curve: curve}
}

func (s *Signer) PublicKey() [identity.KeySize]byte { return s.keys.Public }

func (s *Signer) SignDigest(digest [32]byte) ([tx.SignatureSize]byte, error) {
	return s.curve.Sign(s.keys.Private, s.keys.Public, digest)
}

// Identity is the signer's uppercase identity.
func (s *Signer) Identity() string { return s.keys.Identity }
