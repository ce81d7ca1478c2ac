// Package vault encrypts third-party credentials at rest with AES-256-GCM.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// ErrDecryptFailed is returned when ciphertext cannot be decrypted: produced
// under a different key, truncated, or corrupted. Callers must treat it as
// "credentials unusable" rather than a retriable condition.
var ErrDecryptFailed = errors.New("vault: decryption failed")

// Vault performs symmetric encryption with a single process-lifetime key.
type Vault struct {
	key []byte
}

// New derives the cipher key from the configured secret by truncating or
// zero-padding it to 32 bytes. The derivation is deterministic so ciphertext
// written by earlier process instances stays readable.
func New(secret string) (*Vault, error) {
	if secret == "" {
		return nil, errors.New("vault: secret must not be empty")
	}
	key := make([]byte, 32)
	copy(key, secret)
	return &Vault{key: key}, nil
}

// Encrypt seals plaintext and returns hex(nonce || ciphertext). The nonce is
// random per call, so equal plaintexts produce distinct ciphertexts.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(v.key)
	if err != nil {
		return "", fmt.Errorf("vault: create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("vault: create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("vault: generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Any malformed or foreign ciphertext yields
// ErrDecryptFailed.
func (v *Vault) Decrypt(ciphertextHex string) (string, error) {
	raw, err := hex.DecodeString(ciphertextHex)
	if err != nil {
		return "", fmt.Errorf("%w: invalid hex", ErrDecryptFailed)
	}

	block, err := aes.NewCipher(v.key)
	if err != nil {
		return "", fmt.Errorf("vault: create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("vault: create GCM: %w", err)
	}

	if len(raw) < gcm.NonceSize() {
		return "", fmt.Errorf("%w: ciphertext too short", ErrDecryptFailed)
	}

	nonce, sealed := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrDecryptFailed
	}
	return string(plaintext), nil
}
