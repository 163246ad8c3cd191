package storkit

import (
	"bytes"
	"testing"
)

func TestCompressRoundtrip(t *testing.T) {
	original := bytes.Repeat([]byte("filecove stores files. "), 200)

	compressed, err := Compress(original)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if len(compressed) >= len(original) {
		t.Fatalf("repetitive input did not shrink: %d -> %d", len(original), len(compressed))
	}

	restored, err := Decompress(compressed)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(restored, original) {
		t.Fatal("roundtrip mismatch")
	}
}

func TestCompressEmptyInput(t *testing.T) {
	compressed, err := Compress(nil)
	if err != nil {
		t.Fatalf("Compress(nil): %v", err)
	}
	restored, err := Decompress(compressed)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if len(restored) != 0 {
		t.Fatalf("restored %d bytes, want 0", len(restored))
	}
}

func TestDecompressRejectsPlainBytes(t *testing.T) {
	if _, err := Decompress([]byte("this is not gzip")); err == nil {
		t.Fatal("Decompress should fail on non-gzip input, not pass it through")
	}
}
