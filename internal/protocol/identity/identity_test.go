package identity

import (
	"encoding/hex"
	"math/rand"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/danmuck/qubicctl/internal/hashing"
	"github.com/danmuck/qubicctl/internal/protocol"
	"github.com/danmuck/qubicctl/internal/testutil/testlog"
)

const (
	zeroIdentity     = "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAFXIB"
	sequenceKeyHex   = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"
	sequenceIdentity = "ICTNHRYOMCXHFAKVFBAYUMTQOJLAMOSOSERKAFGLRAOHFCLLNIHTXMXAWAPO"
)

func mustKey(t *testing.T, h string) [KeySize]byte {
	t.Helper()
	var k [KeySize]byte
	raw, err := hex.DecodeString(h)
	if err != nil || len(raw) != KeySize {
		t.Fatalf("bad fixture key %q: %v", h, err)
	}
	copy(k[:], raw)
	return k
}

func TestFromPublicKeyKnownVectors(t *testing.T) {
	testlog.Start(t)

	if got := FromPublicKey([KeySize]byte{}, hashing.K12); got != zeroIdentity {
		t.Fatalf("zero key identity mismatch: %s", got)
	}
	if got := FromPublicKey(mustKey(t, sequenceKeyHex), hashing.K12); got != sequenceIdentity {
		t.Fatalf("sequence key identity mismatch: %s", got)
	}
	if got := FromPublicKeyLower([KeySize]byte{}, hashing.K12); got != strings.ToLower(zeroIdentity) {
		t.Fatalf("lowercase rendering mismatch: %s", got)
	}
}

func TestIdentityBijection(t *testing.T) {
	testlog.Start(t)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 256; i++ {
		var key [KeySize]byte
		rng.Read(key[:])
		id := FromPublicKey(key, hashing.K12)
		back, err := ToPublicKey(id)
		if err != nil {
			t.Fatalf("decode %s: %v", id, err)
		}
		if back != key {
			t.Fatalf("bijection broken for %x", key)
		}
		if err := Verify(id, hashing.K12); err != nil {
			t.Fatalf("verify %s: %v", id, err)
		}
	}
}

func TestChecksumSensitivity(t *testing.T) {
	testlog.Start(t)

	for pos := Length - checksumLetters; pos < Length; pos++ {
		b := []byte(sequenceIdentity)
		b[pos] = 'A' + (b[pos]-'A'+1)%26
		err := Verify(string(b), hashing.K12)
		if !errors.Is(err, protocol.ErrFormat) {
			t.Fatalf("mutating checksum letter %d must fail verification, got %v", pos, err)
		}
	}
}

func TestToPublicKeyRejectsMalformed(t *testing.T) {
	testlog.Start(t)

	cases := []string{
		"",
		zeroIdentity[:59],
		zeroIdentity + "A",
		strings.ToLower(zeroIdentity),
		"AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAFXI1",
	}
	for _, id := range cases {
		if _, err := ToPublicKey(id); !errors.Is(err, protocol.ErrFormat) {
			t.Fatalf("expected ErrFormat for %q, got %v", id, err)
		}
	}
}

func TestNormalizeKeyText(t *testing.T) {
	testlog.Start(t)

	got, err := NormalizeKeyText(sequenceIdentity)
	if err != nil || got != sequenceKeyHex {
		t.Fatalf("identity normalize: %q %v", got, err)
	}
	got, err = NormalizeKeyText(strings.ToUpper(sequenceKeyHex))
	if err != nil || got != sequenceKeyHex {
		t.Fatalf("hex normalize: %q %v", got, err)
	}
	for _, bad := range []string{"abc", strings.Repeat("zz", 32), strings.Repeat("A", 59)} {
		if _, err := NormalizeKeyText(bad); !errors.Is(err, protocol.ErrFormat) {
			t.Fatalf("expected ErrFormat for %q, got %v", bad, err)
		}
	}
}

func TestEncoderCachesRenderings(t *testing.T) {
	testlog.Start(t)

	calls := 0
	counting := func(b []byte) [32]byte {
		calls++
		return hashing.K12(b)
	}
	enc, err := NewEncoder(counting, 4)
	if err != nil {
		t.Fatalf("new encoder: %v", err)
	}
	for i := 0; i < 3; i++ {
		if id := enc.Identity([KeySize]byte{}); id != zeroIdentity {
			t.Fatalf("unexpected identity: %s", id)
		}
	}
	if calls != 1 {
		t.Fatalf("expected one hash call, got %d", calls)
	}
	id, err := enc.IdentityFromText(sequenceKeyHex)
	if err != nil || id != sequenceIdentity {
		t.Fatalf("identity from text: %q %v", id, err)
	}
}
