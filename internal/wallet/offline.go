package wallet

import (
	"encoding/hex"
	"encoding/json"
	"os"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/danmuck/qubicctl/internal/hashing"
	"github.com/danmuck/qubicctl/internal/protocol"
	"github.com/danmuck/qubicctl/internal/protocol/tx"
)

// UnsignedTransfer is the transaction body an offline bundle carries. Keys
// and input are hex; amount is a decimal string so it survives JSON readers
// without 64-bit integers.
type UnsignedTransfer struct {
	SourcePublicKey      string `json:"sourcePublicKey"`
	DestinationPublicKey string `json:"destinationPublicKey"`
	Amount               uint64 `json:"amount,string"`
	Tick                 uint32 `json:"tick"`
	InputType            uint16 `json:"inputType"`
	InputData            string `json:"inputData,omitempty"`
}

// OfflineBundle moves an unsigned transfer to the machine that holds the
// signing key.
type OfflineBundle struct {
	CreatedAt time.Time         `json:"createdAt"`
	Transfer  UnsignedTransfer  `json:"transfer"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func NewOfflineBundle(t tx.Transaction, createdAt time.Time, metadata map[string]string) OfflineBundle {
	return OfflineBundle{
		CreatedAt: createdAt.UTC(),
		Transfer: UnsignedTransfer{
			SourcePublicKey:      hex.EncodeToString(t.Source[:]),
			DestinationPublicKey: hex.EncodeToString(t.Destination[:]),
			Amount:               t.Amount,
			Tick:                 t.Tick,
			InputType:            t.InputType,
			InputData:            hex.EncodeToString(t.Input),
		},
		Metadata: metadata,
	}
}

// Transaction rebuilds the unsigned transaction.
func (u UnsignedTransfer) Transaction() (tx.Transaction, error) {
	input, err := hex.DecodeString(u.InputData)
	if err != nil {
		return tx.Transaction{}, protocol.Formatf("offline input data: %v", err)
	}
	return tx.New(u.SourcePublicKey, u.DestinationPublicKey, u.Amount, u.Tick, u.InputType, input)
}

// SignOfflineBundle signs the bundled transfer. keys must own the source key.
func SignOfflineBundle(b OfflineBundle, keys KeyPair, curve Curve, hash hashing.Hasher) (tx.Signed, error) {
	t, err := b.Transfer.Transaction()
	if err != nil {
		return tx.Signed{}, err
	}
	if t.Amount == 0 && t.InputType == 0 {
		return tx.Signed{}, protocol.Validationf("offline transfer amount must be greater than zero")
	}
	return tx.Sign(t, NewSigner(keys, curve), hash)
}

func SaveOfflineBundle(path string, b OfflineBundle) error {
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal offline bundle")
	}
	return errors.Wrapf(os.WriteFile(path, data, 0o644), "write offline bundle %s", path)
}

func LoadOfflineBundle(path string) (OfflineBundle, error) {
	var b OfflineBundle
	data, err := os.ReadFile(path)
	if err != nil {
		return b, errors.Wrapf(err, "read offline bundle %s", path)
	}
	if err := json.Unmarshal(data, &b); err != nil {
		return b, protocol.Formatf("offline bundle %s: %v", path, err)
	}
	return b, nil
}
