package storkit

import (
	"errors"
	"fmt"
)

// Domain errors - use errors.Is for checking.
var (
	// ErrNotFound indicates the storage key does not resolve to an object.
	ErrNotFound = errors.New("storkit: object not found")

	// ErrUnsupported indicates the chosen provider does not implement an
	// optional capability (e.g. multipart upload).
	ErrUnsupported = errors.New("storkit: operation not supported by provider")

	// ErrIntegrity indicates a decryption authentication failure: the blob
	// is corrupted or tampered and must not be handed back as valid data.
	ErrIntegrity = errors.New("storkit: integrity check failed")

	// ErrTimeout indicates the operation exceeded its configured deadline.
	ErrTimeout = errors.New("storkit: operation timeout")

	// ErrNoProvider indicates routing without an explicit provider id when
	// no default provider is configured.
	ErrNoProvider = errors.New("storkit: no provider available")

	// ErrConflict indicates a conflicting object or session state.
	ErrConflict = errors.New("storkit: conflict")
)

// StorageError wraps a backend failure with operation context. The
// underlying error message is preserved via Unwrap.
type StorageError struct {
	Op       string // operation that failed
	Provider string // provider name (if known)
	Key      string // storage key (if applicable)
	Err      error  // underlying error
}

func (e *StorageError) Error() string {
	switch {
	case e.Provider != "" && e.Key != "":
		return fmt.Sprintf("storkit %s [%s] %q: %v", e.Op, e.Provider, e.Key, e.Err)
	case e.Key != "":
		return fmt.Sprintf("storkit %s %q: %v", e.Op, e.Key, e.Err)
	default:
		return fmt.Sprintf("storkit %s: %v", e.Op, e.Err)
	}
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// ValidationError reports a bad configuration or bad call arguments. It is
// raised synchronously, before any network call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %q: %s", e.Field, e.Message)
}

// IsNotFound checks if an error is or wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsUnsupported checks if an error is or wraps ErrUnsupported.
func IsUnsupported(err error) bool {
	return errors.Is(err, ErrUnsupported)
}

// IsTimeout checks if an error is or wraps ErrTimeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsIntegrity checks if an error is or wraps ErrIntegrity.
func IsIntegrity(err error) bool {
	return errors.Is(err, ErrIntegrity)
}

// IsValidation checks if an error is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
