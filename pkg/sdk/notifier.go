package tokenwatch

import (
	"context"
	"log/slog"

	"github.com/kailas-cloud/tokenwatch/internal/domain/alert"
)

// Notifier delivers one alert to one recipient. Return an error wrapping
// ErrRecipientUnreachable when the recipient cannot be reached and the next
// one should be tried; any other error is reported as unexpected and the
// next recipient is tried as well.
type Notifier interface {
	Notify(ctx context.Context, recipient string, a Alert) error
}

// notifierAdapter adapts the public Notifier to the internal sender contract.
type notifierAdapter struct {
	inner Notifier
}

func (n *notifierAdapter) Send(ctx context.Context, recipient string, a alert.Alert) error {
	return n.inner.Notify(ctx, recipient, fromDomainAlert(a))
}

// logNotifier is used when no delivery channel is configured.
type logNotifier struct {
	logger *slog.Logger
}

func (n *logNotifier) Send(_ context.Context, recipient string, a alert.Alert) error {
	if n.logger != nil {
		n.logger.Warn("token alert",
			"alert_id", a.ID(),
			"recipient", recipient,
			"message", a.Message(),
		)
	}
	return nil
}
