package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha512"
	"encoding/base64"
	"encoding/json"
	"os"

	"github.com/cockroachdb/errors"
	"golang.org/x/crypto/pbkdf2"

	"github.com/danmuck/qubicctl/internal/protocol"
)

const (
	DefaultIterations = 200_000
	saltSize          = 16
	nonceSize         = 12
	secretKeySize     = 32
)

var ErrDecrypt = errors.New("wallet: secret decryption failed")

// EncryptedSecret is the at-rest form of a seed or private key. Binary
// fields are base64; the GCM tag is stored apart from the ciphertext.
type EncryptedSecret struct {
	CipherText string `json:"cipherText"`
	IV         string `json:"iv"`
	Salt       string `json:"salt"`
	Tag        string `json:"tag"`
	Iterations int    `json:"iterations"`
}

func deriveSecretKey(password string, salt []byte, iterations int) []byte {
	return pbkdf2.Key([]byte(password), salt, iterations, secretKeySize, sha512.New)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCMWithNonceSize(block, nonceSize)
}

// EncryptSecret seals secret under password. iterations <= 0 selects the default.
func EncryptSecret(secret, password string, iterations int) (EncryptedSecret, error) {
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	salt := make([]byte, saltSize)
	iv := make([]byte, nonceSize)
	if _, err := rand.Read(salt); err != nil {
		return EncryptedSecret{}, errors.Wrap(err, "read salt")
	}
	if _, err := rand.Read(iv); err != nil {
		return EncryptedSecret{}, errors.Wrap(err, "read nonce")
	}
	key := deriveSecretKey(password, salt, iterations)
	defer zero(key)
	aead, err := newGCM(key)
	if err != nil {
		return EncryptedSecret{}, errors.Wrap(err, "init cipher")
	}
	sealed := aead.Seal(nil, iv, []byte(secret), nil)
	tagAt := len(sealed) - aead.Overhead()
	enc := base64.StdEncoding
	return EncryptedSecret{
		CipherText: enc.EncodeToString(sealed[:tagAt]),
		IV:         enc.EncodeToString(iv),
		Salt:       enc.EncodeToString(salt),
		Tag:        enc.EncodeToString(sealed[tagAt:]),
		Iterations: iterations,
	}, nil
}

func DecryptSecret(payload EncryptedSecret, password string) (string, error) {
	enc := base64.StdEncoding
	fields := map[string]string{"cipherText": payload.CipherText, "iv": payload.IV, "salt": payload.Salt, "tag": payload.Tag}
	raw := make(map[string][]byte, len(fields))
	for name, v := range fields {
		b, err := enc.DecodeString(v)
		if err != nil {
			return "", protocol.Formatf("secret field %s is not base64", name)
		}
		raw[name] = b
	}
	if payload.Iterations <= 0 {
		return "", protocol.Validationf("secret iterations must be positive, got %d", payload.Iterations)
	}
	if len(raw["iv"]) != nonceSize {
		return "", protocol.Validationf("secret iv must be %d bytes, got %d", nonceSize, len(raw["iv"]))
	}
	key := deriveSecretKey(password, raw["salt"], payload.Iterations)
	defer zero(key)
	aead, err := newGCM(key)
	if err != nil {
		return "", errors.Wrap(err, "init cipher")
	}
	sealed := append(raw["cipherText"], raw["tag"]...)
	plain, err := aead.Open(nil, raw["iv"], sealed, nil)
	if err != nil {
		return "", ErrDecrypt
	}
	defer zero(plain)
	return string(plain), nil
}

func SaveSecret(path string, payload EncryptedSecret) error {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal secret")
	}
	return errors.Wrapf(os.WriteFile(path, data, 0o600), "write secret %s", path)
}

func LoadSecret(path string) (EncryptedSecret, error) {
	var payload EncryptedSecret
	data, err := os.ReadFile(path)
	if err != nil {
		return payload, errors.Wrapf(err, "read secret %s", path)
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return payload, protocol.Formatf("secret file %s: %v", path, err)
	}
	return payload, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
