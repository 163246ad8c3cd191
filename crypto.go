package storkit

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/scrypt"
)

// Encrypted blob layout: salt (16) || nonce (12) || AES-256-GCM ciphertext.
// The key is derived from the passphrase with scrypt using a fresh salt per
// encryption, so identical plaintexts never produce identical blobs.
const (
	saltSize  = 16
	nonceSize = 12

	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

// ContentHash returns the lowercase hex SHA-256 of data. Upload always
// hashes the original, unprocessed bytes so dedup and integrity checks are
// stable regardless of compression/encryption settings.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func deriveKey(passphrase string, salt []byte) ([]byte, error) {
	return scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, 32)
}

// Encrypt seals data with a key derived from passphrase.
func Encrypt(data []byte, passphrase string) ([]byte, error) {
	if passphrase == "" {
		return nil, &ValidationError{Field: "encryption_secret", Message: "cannot be empty"}
	}

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("encrypt: %w", err)
	}

	key, err := deriveKey(passphrase, salt)
	if err != nil {
		return nil, fmt.Errorf("encrypt: derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("encrypt: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, fmt.Errorf("encrypt: %w", err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("encrypt: %w", err)
	}

	out := make([]byte, 0, saltSize+nonceSize+len(data)+gcm.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	out = gcm.Seal(out, nonce, data, nil)
	return out, nil
}

// Decrypt reverses Encrypt. A failed authentication tag check - a corrupted
// or tampered blob - fails with ErrIntegrity, never a generic error.
func Decrypt(blob []byte, passphrase string) ([]byte, error) {
	if passphrase == "" {
		return nil, &ValidationError{Field: "encryption_secret", Message: "cannot be empty"}
	}
	if len(blob) < saltSize+nonceSize {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrIntegrity)
	}

	salt := blob[:saltSize]
	nonce := blob[saltSize : saltSize+nonceSize]
	ciphertext := blob[saltSize+nonceSize:]

	key, err := deriveKey(passphrase, salt)
	if err != nil {
		return nil, fmt.Errorf("decrypt: derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}

	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIntegrity, err)
	}
	return plain, nil
}
