// Package vault is the seam to the credential vault collaborator. The
// gateway only ever sees ciphertext blobs on ExchangeAccount rows; the
// local AES-GCM implementation covers development and tests.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// Blob is an encrypted credential payload.
type Blob struct {
	Ciphertext string `json:"ciphertext"`
	IV         string `json:"iv"`
}

// Vault encrypts and decrypts credential payloads.
type Vault interface {
	Encrypt(plaintext []byte) (Blob, error)
	Decrypt(blob Blob) ([]byte, error)
}

// AESVault is a local AES-256-GCM implementation of the vault contract.
type AESVault struct {
	aead cipher.AEAD
}

// NewAESVault takes a hex-encoded 32 byte key.
func NewAESVault(hexKey string) (*AESVault, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("vault key not hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("vault key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &AESVault{aead: aead}, nil
}

func (v *AESVault) Encrypt(plaintext []byte) (Blob, error) {
	iv := make([]byte, v.aead.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return Blob{}, err
	}
	sealed := v.aead.Seal(nil, iv, plaintext, nil)
	return Blob{
		Ciphertext: hex.EncodeToString(sealed),
		IV:         hex.EncodeToString(iv),
	}, nil
}

func (v *AESVault) Decrypt(blob Blob) ([]byte, error) {
	iv, err := hex.DecodeString(blob.IV)
	if err != nil {
		return nil, fmt.Errorf("vault blob iv: %w", err)
	}
	sealed, err := hex.DecodeString(blob.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("vault blob ciphertext: %w", err)
	}
	plaintext, err := v.aead.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("vault decrypt: %w", err)
	}
	return plaintext, nil
}
