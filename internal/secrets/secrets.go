// Package secrets encrypts small credentials at rest. Per-user Telegram
// tokens are stored AES-256-GCM encrypted; the key is derived from the
// ENCRYPTION_KEY passphrase so rotating the passphrase invalidates every
// stored token instead of corrupting reads.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

var (
	// Fixed derivation parameters. Changing either orphans existing
	// ciphertexts, so treat them as part of the storage format.
	hkdfSalt = []byte("folio/secrets/v1")
	hkdfInfo = []byte("aes-256-gcm")
)

// Box encrypts and decrypts strings with a passphrase-derived key.
type Box struct {
	key []byte
}

// New derives a 256-bit key from the passphrase with HKDF-SHA256.
func New(passphrase string) (*Box, error) {
	key := make([]byte, 32)
	kdf := hkdf.New(sha256.New, []byte(passphrase), hkdfSalt, hkdfInfo)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}
	return &Box{key: key}, nil
}

// Encrypt seals plaintext and returns base64(nonce || ciphertext). An empty
// plaintext encodes to the empty string, which Decrypt maps back to empty.
func (b *Box) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	block, err := aes.NewCipher(b.key)
	if err != nil {
		return "", fmt.Errorf("failed to initialize cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to initialize cipher: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Any failure, including a ciphertext produced
// under a different passphrase or tampered bytes, yields the empty string:
// callers treat an unreadable token the same as an unset one.
func (b *Box) Decrypt(encoded string) string {
	if encoded == "" {
		return ""
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return ""
	}

	block, err := aes.NewCipher(b.key)
	if err != nil {
		return ""
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return ""
	}

	if len(raw) < gcm.NonceSize() {
		return ""
	}
	nonce, ciphertext := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return ""
	}
	return string(plaintext)
}
