package storkit

import (
	"bytes"
	"testing"
)

func TestContentHash(t *testing.T) {
	// SHA-256 of the empty input is a fixed, well-known value.
	const emptySHA256 = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got := ContentHash(nil); got != emptySHA256 {
		t.Fatalf("ContentHash(nil) = %q, want %q", got, emptySHA256)
	}
	if got := ContentHash([]byte("hello")); len(got) != 64 {
		t.Fatalf("hash length = %d, want 64 hex chars", len(got))
	}
	if ContentHash([]byte("a")) == ContentHash([]byte("b")) {
		t.Fatal("distinct inputs hashed identically")
	}
}

func TestEncryptRoundtrip(t *testing.T) {
	plaintext := []byte("the quick brown fox")

	blob, err := Encrypt(plaintext, "passphrase")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if bytes.Contains(blob, plaintext) {
		t.Fatal("ciphertext contains the plaintext")
	}

	restored, err := Decrypt(blob, "passphrase")
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(restored, plaintext) {
		t.Fatal("roundtrip mismatch")
	}
}

func TestEncryptFreshSaltPerCall(t *testing.T) {
	plaintext := []byte("same input")
	a, err := Encrypt(plaintext, "passphrase")
	if err != nil {
		t.Fatal(err)
	}
	b, err := Encrypt(plaintext, "passphrase")
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(a, b) {
		t.Fatal("identical plaintexts produced identical blobs; salt is not fresh")
	}
}

func TestDecryptTamperedBlob(t *testing.T) {
	blob, err := Encrypt([]byte("payload"), "passphrase")
	if err != nil {
		t.Fatal(err)
	}

	tampered := append([]byte(nil), blob...)
	tampered[len(tampered)-1] ^= 0xff

	if _, err := Decrypt(tampered, "passphrase"); !IsIntegrity(err) {
		t.Fatalf("Decrypt(tampered) = %v, want ErrIntegrity", err)
	}
}

func TestDecryptWrongPassphrase(t *testing.T) {
	blob, err := Encrypt([]byte("payload"), "right")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Decrypt(blob, "wrong"); !IsIntegrity(err) {
		t.Fatalf("Decrypt(wrong passphrase) = %v, want ErrIntegrity", err)
	}
}

func TestDecryptTruncatedBlob(t *testing.T) {
	if _, err := Decrypt([]byte("short"), "passphrase"); !IsIntegrity(err) {
		t.Fatalf("Decrypt(short) = %v, want ErrIntegrity", err)
	}
}

func TestEncryptRequiresPassphrase(t *testing.T) {
	if _, err := Encrypt([]byte("x"), ""); !IsValidation(err) {
		t.Fatalf("Encrypt with empty passphrase = %v, want ValidationError", err)
	}
	if _, err := Decrypt([]byte("x"), ""); !IsValidation(err) {
		t.Fatalf("Decrypt with empty passphrase = %v, want ValidationError", err)
	}
}
