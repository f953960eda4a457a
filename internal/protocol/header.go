package protocol

import (
	"encoding/binary"
	"math/rand"
)

// EncodeHeader renders h as 3-byte LE size, 1-byte type, 4-byte LE dejavu.
func EncodeHeader(h Header) ([]byte, error) {
	if h.Size > MaxPacketSize {
		return nil, Validationf("header size %d exceeds 24-bit limit", h.Size)
	}
	buf := make([]byte, HeaderSize)
	buf[0] = byte(h.Size)
	buf[1] = byte(h.Size >> 8)
	buf[2] = byte(h.Size >> 16)
	buf[3] = byte(h.Type)
	binary.LittleEndian.PutUint32(buf[4:8], h.Dejavu)
	return buf, nil
}

func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, Truncatedf("header needs %d bytes, got %d", HeaderSize, len(buf))
	}
	return Header{
		Size:   uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16,
		Type:   MessageType(buf[3]),
		Dejavu: binary.LittleEndian.Uint32(buf[4:8]),
	}, nil
}

// NewHeader sizes a header for payloadLen bytes of body.
func NewHeader(t MessageType, payloadLen int, dejavu uint32) (Header, error) {
	size := HeaderSize + payloadLen
	if payloadLen < 0 || size > MaxPacketSize {
		return Header{}, Validationf("payload of %d bytes does not fit a packet", payloadLen)
	}
	return Header{Size: uint32(size), Type: t, Dejavu: dejavu}, nil
}

// NewDejavu returns a random non-zero dejavu. Zero is reserved for broadcasts.
func NewDejavu() uint32 {
	for {
		if v := rand.Uint32(); v != 0 {
			return v
		}
	}
}
