package tx

import (
	"encoding/hex"

	"github.com/danmuck/qubicctl/internal/protocol/identity"
)

// Summary is the display form of a transaction.
type Summary struct {
	SourceID   string `json:"sourceId"`
	DestID     string `json:"destId"`
	Amount     uint64 `json:"amount"`
	TickNumber uint32 `json:"tickNumber"`
	InputType  uint16 `json:"inputType"`
	InputSize  uint16 `json:"inputSize"`
	Input      string `json:"input,omitempty"`
	Signature  string `json:"signature,omitempty"`
}

func Summarize(t Transaction, enc *identity.Encoder) Summary {
	return Summary{
		SourceID:   enc.Identity(t.Source),
		DestID:     enc.Identity(t.Destination),
		Amount:     t.Amount,
		TickNumber: t.Tick,
		InputType:  t.InputType,
		InputSize:  t.InputSize,
		Input:      hex.EncodeToString(t.Input),
		Signature:  hex.EncodeToString(t.Signature),
	}
}
