package storkit

import (
	"strings"
	"testing"
	"time"
)

func fixedClock(ms int64) func() time.Time {
	return func() time.Time { return time.UnixMilli(ms) }
}

func TestKeyBuilder_Deterministic(t *testing.T) {
	kb := NewKeyBuilderWith(fixedClock(1700000000123), func() string { return "abcd1234" })

	got := kb.BuildKey("", "photo.jpg")
	want := "1700000000123-abcd1234-photo.jpg"
	if got != want {
		t.Fatalf("BuildKey() = %q, want %q", got, want)
	}
}

func TestKeyBuilder_UserPrefix(t *testing.T) {
	kb := NewKeyBuilderWith(fixedClock(1700000000123), func() string { return "abcd1234" })

	got := kb.BuildKey("user-42", "photo.jpg")
	want := "user-42/1700000000123-abcd1234-photo.jpg"
	if got != want {
		t.Fatalf("BuildKey() = %q, want %q", got, want)
	}
}

func TestKeyBuilder_RandomTokenVaries(t *testing.T) {
	kb := NewKeyBuilder()
	a := kb.BuildKey("", "a.txt")
	b := kb.BuildKey("", "a.txt")
	if a == b {
		t.Fatalf("two keys for the same filename collided: %q", a)
	}
	if !strings.HasSuffix(a, "-a.txt") {
		t.Fatalf("key %q should end with the sanitized filename", a)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "report.pdf", "report.pdf"},
		{"forward slashes", "../../etc/passwd", ".._.._etc_passwd"},
		{"backslashes", `c:\temp\x.txt`, "c:_temp_x.txt"},
		{"control characters dropped", "a\x00b\nc.txt", "abc.txt"},
		{"unicode preserved", "résumé.pdf", "résumé.pdf"},
		{"empty becomes unnamed", "", "unnamed"},
		{"whitespace only becomes unnamed", "   ", "unnamed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeFilename(tt.in); got != tt.want {
				t.Fatalf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
