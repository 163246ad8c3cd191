package storkit

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// KeyBuilder generates globally collision-resistant storage keys of the form
// {unixMillis}-{token}-{sanitizedFilename}, optionally prefixed by the
// owning user id so a lexicographic listing partitions by owner.
//
// The clock and token source are injectable so key generation is
// deterministic under test.
type KeyBuilder struct {
	clock func() time.Time
	token func() string
}

// NewKeyBuilder returns a KeyBuilder using the wall clock and random UUID
// tokens.
func NewKeyBuilder() *KeyBuilder {
	return &KeyBuilder{
		clock: time.Now,
		token: defaultToken,
	}
}

// NewKeyBuilderWith returns a KeyBuilder with injected clock and token
// sources. Nil arguments fall back to the defaults.
func NewKeyBuilderWith(clock func() time.Time, token func() string) *KeyBuilder {
	kb := NewKeyBuilder()
	if clock != nil {
		kb.clock = clock
	}
	if token != nil {
		kb.token = token
	}
	return kb
}

func defaultToken() string {
	// First UUID segment: 8 hex chars of randomness is plenty alongside the
	// millisecond timestamp.
	return strings.SplitN(uuid.NewString(), "-", 2)[0]
}

// BuildKey generates a storage key for filename, prefixed by userID when
// non-empty. The filename must already be validated non-empty by the caller.
func (kb *KeyBuilder) BuildKey(userID, filename string) string {
	key := fmt.Sprintf("%d-%s-%s", kb.clock().UnixMilli(), kb.token(), SanitizeFilename(filename))
	if userID != "" {
		return SanitizeFilename(userID) + "/" + key
	}
	return key
}

// SanitizeFilename strips path separators and control characters from a
// client-supplied name so it is safe to embed in a storage key.
func SanitizeFilename(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r == '/' || r == '\\':
			b.WriteByte('_')
		case r < 0x20 || r == 0x7f:
			// drop control characters
		default:
			b.WriteRune(r)
		}
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		out = "unnamed"
	}
	return out
}
