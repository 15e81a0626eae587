// Package crypto provides authenticated encryption for government submission
// payloads. The production implementation is AES-256-GCM with the nonce
// prepended to the ciphertext; the key version travels with every payload so
// receipts remain verifiable across key rotations.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
)

// Encryptor seals a prepared submission payload. Implementations must be safe
// for concurrent use.
type Encryptor interface {
	Encrypt(plaintext []byte) (ciphertext []byte, err error)
	Algorithm() string
	KeyVersion() string
}

// AEADEncryptor is an AES-256-GCM Encryptor.
type AEADEncryptor struct {
	aead       cipher.AEAD
	keyVersion string
}

// NewAEADEncryptor creates an AEADEncryptor with the given 32-byte key.
func NewAEADEncryptor(key []byte, keyVersion string) (*AEADEncryptor, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("payload encryptor: key must be 32 bytes, got %d", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("payload encryptor: create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("payload encryptor: create GCM: %w", err)
	}

	return &AEADEncryptor{aead: aead, keyVersion: keyVersion}, nil
}

// Encrypt seals data and returns the nonce prepended to the ciphertext.
func (e *AEADEncryptor) Encrypt(data []byte) ([]byte, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("payload encrypt: generate nonce: %w", err)
	}

	// Seal appends the ciphertext to nonce, so the result is nonce + ciphertext.
	return e.aead.Seal(nonce, nonce, data, nil), nil
}

// Decrypt extracts the nonce from the front of data and opens the remainder.
// Used by integrity checks and tests; the government side holds the real key.
func (e *AEADEncryptor) Decrypt(data []byte) ([]byte, error) {
	nonceSize := e.aead.NonceSize()
	if len(data) < nonceSize {
		return nil, fmt.Errorf("payload decrypt: ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := e.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("payload decrypt: %w", err)
	}
	return plaintext, nil
}

func (e *AEADEncryptor) Algorithm() string  { return "AES-256-GCM" }
func (e *AEADEncryptor) KeyVersion() string { return e.keyVersion }

// Base64Encryptor is the development stand-in: it only base64-encodes the
// payload. Never used outside sandbox mode.
type Base64Encryptor struct{}

func (Base64Encryptor) Encrypt(data []byte) ([]byte, error) {
	out := make([]byte, base64.StdEncoding.EncodedLen(len(data)))
	base64.StdEncoding.Encode(out, data)
	return out, nil
}

func (Base64Encryptor) Algorithm() string  { return "base64" }
func (Base64Encryptor) KeyVersion() string { return "none" }
