package domain

import (
	"errors"
	"fmt"
)

// KeyPrefix is the default prefix for keys written to shared key-value stores.
const KeyPrefix = "tokenwatch:"

var (
	// ErrNotFound signals a missing resource (e.g. no persisted snapshot yet).
	ErrNotFound = errors.New("not found")
	// ErrPersistence signals a failed read or write of durable usage state.
	ErrPersistence = errors.New("persistence failure")
	// ErrRecipientUnreachable signals a recoverable delivery failure: the
	// recipient is unknown, unlinked or blocks the bot.
	ErrRecipientUnreachable = errors.New("recipient unreachable")
	// ErrUnsupportedFormat signals an export format other than json or csv.
	ErrUnsupportedFormat = errors.New("unsupported export format")
	// ErrForbidden signals a privileged command issued by a non-admin.
	ErrForbidden = errors.New("forbidden")
	// ErrProviderError signals a failed call to the upstream completion provider.
	ErrProviderError = errors.New("completion provider error")
)

// UnsupportedFormatError wraps ErrUnsupportedFormat with the rejected format.
type UnsupportedFormatError struct {
	Format string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("%s %q: supported formats are json and csv", ErrUnsupportedFormat.Error(), e.Format)
}

func (e *UnsupportedFormatError) Unwrap() error { return ErrUnsupportedFormat }

// NewUnsupportedFormat creates an unsupported format error.
func NewUnsupportedFormat(format string) error {
	return &UnsupportedFormatError{Format: format}
}
