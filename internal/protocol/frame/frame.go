package frame

import (
	"io"

	"github.com/cockroachdb/errors"
	"github.com/danmuck/qubicctl/internal/protocol"
)

var (
	ErrShortHeader     = errors.New("frame: short header")
	ErrSizeTooSmall    = errors.New("frame: size smaller than header")
	ErrPayloadTooLarge = errors.New("frame: payload too large")
)

// Frame is one complete packet: header plus payload.
type Frame struct {
	Header  protocol.Header
	Payload []byte
}

// Limits constrains frame decode/encode memory use.
type Limits struct {
	MaxPayloadBytes int
}

func DefaultLimits() Limits {
	return Limits{
		MaxPayloadBytes: protocol.MaxPacketSize - protocol.HeaderSize,
	}
}

func ReadFrame(r io.Reader, limits Limits) (Frame, error) {
	var fixed [protocol.HeaderSize]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, ErrShortHeader
		}
		return Frame{}, err
	}

	h, err := protocol.DecodeHeader(fixed[:])
	if err != nil {
		return Frame{}, err
	}
	if h.Size < protocol.HeaderSize {
		return Frame{}, errors.Wrapf(ErrSizeTooSmall, "size=%d type=%s", h.Size, h.Type)
	}
	payloadLen := h.PayloadLen()
	if payloadLen > limits.MaxPayloadBytes {
		return Frame{}, errors.Wrapf(ErrPayloadTooLarge, "payload=%d limit=%d", payloadLen, limits.MaxPayloadBytes)
	}

	payload := make([]byte, payloadLen)
	if payloadLen > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return Frame{}, protocol.Truncatedf("frame payload (%s): %v", h.Type, err)
		}
	}
	return Frame{Header: h, Payload: payload}, nil
}

// WriteFrame sizes the header from the payload and writes both in one call.
func WriteFrame(w io.Writer, f Frame, limits Limits) error {
	if len(f.Payload) > limits.MaxPayloadBytes {
		return errors.Wrapf(ErrPayloadTooLarge, "payload=%d limit=%d", len(f.Payload), limits.MaxPayloadBytes)
	}
	h, err := protocol.NewHeader(f.Header.Type, len(f.Payload), f.Header.Dejavu)
	if err != nil {
		return err
	}
	hb, err := protocol.EncodeHeader(h)
	if err != nil {
		return err
	}
	packet := make([]byte, 0, len(hb)+len(f.Payload))
	packet = append(packet, hb...)
	packet = append(packet, f.Payload...)
	_, err = w.Write(packet)
	return err
}
