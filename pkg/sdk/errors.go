package tokenwatch

import (
	"errors"

	"github.com/kailas-cloud/tokenwatch/internal/domain"
)

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrPersistence          = domain.ErrPersistence
	ErrRecipientUnreachable = domain.ErrRecipientUnreachable
	ErrUnsupportedFormat    = domain.ErrUnsupportedFormat
	ErrProviderError        = domain.ErrProviderError
)

// ErrChatNotConfigured is returned by Chat when WithChat was not set.
var ErrChatNotConfigured = errors.New("tokenwatch: chat provider not configured")
