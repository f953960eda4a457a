package wire

import (
	"bytes"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/danmuck/qubicctl/internal/protocol"
)

func TestWriterLittleEndianLayout(t *testing.T) {
	w := NewWriter(0)
	w.Uint8(1)
	w.Uint16(0x0203)
	w.Int32(-1)
	w.Bool(true)
	w.Zero(2)
	want := []byte{0x01, 0x03, 0x02, 0xFF, 0xFF, 0xFF, 0xFF, 0x01, 0x00, 0x00}
	if !bytes.Equal(w.Bytes(), want) {
		t.Fatalf("unexpected bytes: %x", w.Bytes())
	}
}

func TestReaderMirrorsWriter(t *testing.T) {
	w := NewWriter(32)
	w.Uint64(42)
	w.Int16(-7)
	w.Uint32(100)
	r := NewReader(w.Bytes(), 0)

	u64, err := r.Uint64()
	if err != nil || u64 != 42 {
		t.Fatalf("uint64: %d %v", u64, err)
	}
	i16, err := r.Int16()
	if err != nil || i16 != -7 {
		t.Fatalf("int16: %d %v", i16, err)
	}
	u32, err := r.Uint32()
	if err != nil || u32 != 100 {
		t.Fatalf("uint32: %d %v", u32, err)
	}
	if r.Remaining() != 0 || r.Offset() != 14 {
		t.Fatalf("cursor not at end: off=%d rem=%d", r.Offset(), r.Remaining())
	}
}

func TestReaderTruncationIsDeterministic(t *testing.T) {
	r := NewReader([]byte{1, 2, 3}, 0)
	if _, err := r.Uint32(); !errors.Is(err, protocol.ErrTruncated) {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
	if r.Offset() != 0 {
		t.Fatalf("failed read must not advance cursor: %d", r.Offset())
	}
	if _, err := NewReader([]byte{1}, 5).Uint8(); !errors.Is(err, protocol.ErrTruncated) {
		t.Fatalf("offset past end must truncate, got %v", err)
	}
}
