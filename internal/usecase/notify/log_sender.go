package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/kailas-cloud/tokenwatch/internal/domain/alert"
)

// LogSender writes alerts to the log. Used when no delivery gateway is configured.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender creates a log-only sender.
func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// Send always succeeds.
func (s *LogSender) Send(_ context.Context, recipient string, a alert.Alert) error {
	s.logger.Warn("Token alert",
		zap.String("alert_id", a.ID()),
		zap.String("kind", string(a.Kind())),
		zap.String("recipient", recipient),
		zap.String("session", a.Session()),
		zap.String("message", a.Message()),
	)
	return nil
}
