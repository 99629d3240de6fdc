package notify

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/kailas-cloud/tokenwatch/internal/domain"
	"github.com/kailas-cloud/tokenwatch/internal/domain/alert"
	"github.com/kailas-cloud/tokenwatch/internal/metrics"
)

// Notifier walks an ordered recipient list until one delivery succeeds.
type Notifier struct {
	sender Sender
	logger *zap.Logger
}

// New creates a notifier.
func New(sender Sender, logger *zap.Logger) *Notifier {
	return &Notifier{sender: sender, logger: logger}
}

// Classify maps a delivery error to an attempt result.
func Classify(err error) alert.Result {
	switch {
	case err == nil:
		return alert.ResultSuccess
	case errors.Is(err, domain.ErrRecipientUnreachable):
		return alert.ResultRecoverable
	default:
		return alert.ResultUnexpected
	}
}

// Notify tries recipients in order and stops at the first success.
// Failures never escape: an exhausted list is logged and reported in the Outcome.
func (n *Notifier) Notify(ctx context.Context, recipients []string, a alert.Alert) alert.Outcome {
	out := alert.Outcome{AlertID: a.ID()}

	for _, r := range recipients {
		err := n.sender.Send(ctx, r, a)
		res := Classify(err)
		out.Attempts = append(out.Attempts, alert.Attempt{Recipient: r, Result: res, Err: err})
		metrics.NotificationsTotal.WithLabelValues(res.String()).Inc()

		switch res {
		case alert.ResultSuccess:
			out.Delivered = true
			out.Recipient = r
			n.logger.Debug("Alert delivered",
				zap.String("alert_id", a.ID()),
				zap.String("kind", string(a.Kind())),
				zap.String("recipient", r),
			)
			return out
		case alert.ResultRecoverable:
			n.logger.Info("Recipient unreachable, trying next",
				zap.String("alert_id", a.ID()),
				zap.String("recipient", r),
				zap.Error(err),
			)
		default:
			n.logger.Error("Unexpected alert delivery failure",
				zap.String("alert_id", a.ID()),
				zap.String("recipient", r),
				zap.Error(err),
			)
		}
	}

	n.logger.Warn("Alert not delivered to any recipient",
		zap.String("alert_id", a.ID()),
		zap.String("kind", string(a.Kind())),
		zap.String("session", a.Session()),
		zap.Int("recipients", len(recipients)),
	)
	return out
}
