package credentials

import (
	"crypto/rand"
	"encoding/json"
	"fmt"

	"github.com/jrsteele09/go-lichess-client/internal/errors"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	sealVersion  = 1
	saltLength   = 16
	argonTime    = 1
	argonMemory  = 32 * 1024
	argonThreads = 2
)

// sealedRecord is the on-disk shape of an encrypted credential record.
type sealedRecord struct {
	Version int    `json:"v"`
	Salt    []byte `json:"salt"`
	Nonce   []byte `json:"nonce"`
	Data    []byte `json:"data"`
}

func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, argonTime, argonMemory, argonThreads, chacha20poly1305.KeySize)
}

// seal encrypts plaintext with XChaCha20-Poly1305 under a key derived from
// passphrase. The storage key is bound as additional data.
func seal(passphrase string, plaintext []byte) ([]byte, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	aead, err := chacha20poly1305.NewX(deriveKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return json.Marshal(sealedRecord{
		Version: sealVersion,
		Salt:    salt,
		Nonce:   nonce,
		Data:    aead.Seal(nil, nonce, plaintext, []byte(StorageKey)),
	})
}

func unseal(passphrase string, raw []byte) ([]byte, error) {
	var record sealedRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidCredentials, "decode sealed record: %v", err)
	}
	if record.Version != sealVersion {
		return nil, errors.Wrapf(errors.ErrWrongPassphrase, "record is not encrypted or has unknown version %d", record.Version)
	}

	aead, err := chacha20poly1305.NewX(deriveKey(passphrase, record.Salt))
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	if len(record.Nonce) != aead.NonceSize() {
		return nil, errors.Wrapf(errors.ErrInvalidCredentials, "bad nonce length %d", len(record.Nonce))
	}

	plaintext, err := aead.Open(nil, record.Nonce, record.Data, []byte(StorageKey))
	if err != nil {
		return nil, errors.Wrapf(errors.ErrWrongPassphrase, "decrypt")
	}
	return plaintext, nil
}

// isSealed reports whether raw is an encrypted record.
func isSealed(raw []byte) bool {
	var record sealedRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return false
	}
	return record.Version == sealVersion && len(record.Data) > 0
}
