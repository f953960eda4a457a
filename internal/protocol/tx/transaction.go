// Package tx encodes and decodes the canonical transaction layout:
// source key, destination key, amount, tick, input type, input size, input,
// signature. All integers are little-endian.
package tx

import (
	"github.com/danmuck/qubicctl/internal/protocol"
	"github.com/danmuck/qubicctl/internal/protocol/identity"
	"github.com/danmuck/qubicctl/internal/protocol/wire"
)

const (
	KeySize       = identity.KeySize
	HeaderSize    = KeySize*2 + 8 + 4 + 2 + 2
	SignatureSize = 64
	MinSize       = HeaderSize + SignatureSize
	MaxInputSize  = 0xFFFF
)

// Transaction is one transfer or contract invocation. Signature is nil until
// the transaction has been signed. An empty Input is held as nil: New, Seal
// and Decode all produce that form.
type Transaction struct {
	Source      [KeySize]byte
	Destination [KeySize]byte
	Amount      uint64
	Tick        uint32
	InputType   uint16
	InputSize   uint16
	Input       []byte
	Signature   []byte
}

// New builds an unsigned transaction from key text in hex or identity form.
func New(source, destination string, amount uint64, tick uint32, inputType uint16, input []byte) (Transaction, error) {
	src, err := identity.ParseKey(source)
	if err != nil {
		return Transaction{}, err
	}
	dst, err := identity.ParseKey(destination)
	if err != nil {
		return Transaction{}, err
	}
	if len(input) > MaxInputSize {
		return Transaction{}, protocol.Validationf("input of %d bytes exceeds %d", len(input), MaxInputSize)
	}
	return Transaction{
		Source:      src,
		Destination: dst,
		Amount:      amount,
		Tick:        tick,
		InputType:   inputType,
		InputSize:   uint16(len(input)),
		Input:       append([]byte(nil), input...),
	}, nil
}

// Size is the encoded length of t once signed.
func (t Transaction) Size() int {
	return HeaderSize + int(t.InputSize) + SignatureSize
}

func (t Transaction) validateBody() error {
	if int(t.InputSize) != len(t.Input) {
		return protocol.Validationf("input size %d does not match input length %d", t.InputSize, len(t.Input))
	}
	return nil
}

// Validate checks the invariants Encode relies on.
func (t Transaction) Validate() error {
	if err := t.validateBody(); err != nil {
		return err
	}
	if len(t.Signature) != SignatureSize {
		return protocol.Validationf("signature must be %d bytes, got %d", SignatureSize, len(t.Signature))
	}
	return nil
}

// Encode renders a signed transaction.
func Encode(t Transaction) ([]byte, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	w := wire.NewWriter(t.Size())
	writeBody(w, t)
	w.Write(t.Signature)
	return w.Bytes(), nil
}

// EncodeUnsigned renders the header and input, the bytes a signature covers.
func EncodeUnsigned(t Transaction) ([]byte, error) {
	if err := t.validateBody(); err != nil {
		return nil, err
	}
	w := wire.NewWriter(HeaderSize + len(t.Input))
	writeBody(w, t)
	return w.Bytes(), nil
}

func writeBody(w *wire.Writer, t Transaction) {
	w.Write(t.Source[:])
	w.Write(t.Destination[:])
	w.Uint64(t.Amount)
	w.Uint32(t.Tick)
	w.Uint16(t.InputType)
	w.Uint16(t.InputSize)
	w.Write(t.Input)
}

// Decode parses one transaction from the start of buf. Bytes after the
// declared length are ignored.
func Decode(buf []byte) (Transaction, error) {
	t, _, err := DecodeNext(buf, 0)
	return t, err
}

// DecodeNext parses the transaction at offset and returns the offset after it.
func DecodeNext(buf []byte, offset int) (Transaction, int, error) {
	if len(buf)-offset < MinSize {
		return Transaction{}, offset, protocol.Truncatedf("transaction needs at least %d bytes, got %d", MinSize, len(buf)-offset)
	}
	r := wire.NewReader(buf, offset)
	var t Transaction
	var err error
	if t.Source, err = r.Key(); err != nil {
		return Transaction{}, offset, err
	}
	if t.Destination, err = r.Key(); err != nil {
		return Transaction{}, offset, err
	}
	if t.Amount, err = r.Uint64(); err != nil {
		return Transaction{}, offset, err
	}
	if t.Tick, err = r.Uint32(); err != nil {
		return Transaction{}, offset, err
	}
	if t.InputType, err = r.Uint16(); err != nil {
		return Transaction{}, offset, err
	}
	if t.InputSize, err = r.Uint16(); err != nil {
		return Transaction{}, offset, err
	}
	if r.Remaining() < int(t.InputSize)+SignatureSize {
		return Transaction{}, offset, protocol.Truncatedf(
			"transaction declares %d bytes, buffer holds %d", t.Size(), len(buf)-offset)
	}
	if t.Input, err = r.Copy(int(t.InputSize)); err != nil {
		return Transaction{}, offset, err
	}
	if t.Signature, err = r.Copy(SignatureSize); err != nil {
		return Transaction{}, offset, err
	}
	return t, r.Offset(), nil
}
