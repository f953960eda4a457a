package protocol

import (
	"bytes"
	"testing"

	"github.com/cockroachdb/errors"
)

func TestHeaderRoundTrip(t *testing.T) {
	in := Header{Size: 0x0A0B0C, Type: RequestContractFunction, Dejavu: 0xDEADBEEF}
	buf, err := EncodeHeader(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := []byte{0x0C, 0x0B, 0x0A, 42, 0xEF, 0xBE, 0xAD, 0xDE}
	if !bytes.Equal(buf, want) {
		t.Fatalf("unexpected bytes: %x", buf)
	}
	out, err := DecodeHeader(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out != in {
		t.Fatalf("round-trip mismatch: got=%+v want=%+v", out, in)
	}
}

func TestEncodeHeaderRejectsOversize(t *testing.T) {
	_, err := EncodeHeader(Header{Size: MaxPacketSize + 1})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestDecodeHeaderTruncated(t *testing.T) {
	_, err := DecodeHeader([]byte{1, 2, 3})
	if !errors.Is(err, ErrTruncated) {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
}

func TestNewHeaderCountsHeaderBytes(t *testing.T) {
	h, err := NewHeader(BroadcastTransaction, 147, 0)
	if err != nil {
		t.Fatalf("new header: %v", err)
	}
	if h.Size != 155 || h.PayloadLen() != 147 {
		t.Fatalf("unexpected sizing: %+v", h)
	}
	if _, err := NewHeader(BroadcastTransaction, MaxPacketSize, 0); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected oversize payload to fail, got %v", err)
	}
}

func TestNewDejavuIsNonZero(t *testing.T) {
	for i := 0; i < 64; i++ {
		if NewDejavu() == 0 {
			t.Fatalf("dejavu must be non-zero")
		}
	}
}

func TestCodecErrorClassification(t *testing.T) {
	if !IsCodecError(Formatf("bad %s", "id")) {
		t.Fatalf("format errors are codec errors")
	}
	if IsCodecError(errors.Wrap(ErrRemoteRejected, "ccf")) {
		t.Fatalf("remote rejection is not a codec error")
	}
	if MessageType(200).String() != "message_type_200" || TryAgain.String() != "try_again" {
		t.Fatalf("unexpected message type names")
	}
}
