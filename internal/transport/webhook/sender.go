// Package webhook delivers alerts to a chat bot gateway over HTTP.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/tokenwatch/internal/domain"
	"github.com/kailas-cloud/tokenwatch/internal/domain/alert"
)

const maxErrorBody = 4 << 10

// Config holds the gateway settings.
type Config struct {
	URL     string
	Token   string        // optional bearer token for the gateway
	Timeout time.Duration // per attempt
	Logger  *zap.Logger
	Client  *http.Client // optional, mainly for tests
}

// Sender implements notify.Sender by POSTing one JSON document per attempt.
type Sender struct {
	url     string
	token   string
	timeout time.Duration
	client  *http.Client
	logger  *zap.Logger
}

// payload is the gateway request body.
type payload struct {
	AlertID   string `json:"alert_id"`
	Recipient string `json:"recipient"`
	Message   string `json:"message"`
	Kind      string `json:"kind"`
}

// NewSender creates a webhook sender.
func NewSender(cfg Config) (*Sender, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("webhook url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{
		url:     cfg.URL,
		token:   cfg.Token,
		timeout: cfg.Timeout,
		client:  client,
		logger:  logger,
	}, nil
}

// Send posts the alert for one recipient.
// 403, 404 and 410 mean the recipient is not linked or blocks the bot and wrap
// domain.ErrRecipientUnreachable. Every other failure is returned as is.
func (s *Sender) Send(ctx context.Context, recipient string, a alert.Alert) error {
	body, err := json.Marshal(payload{
		AlertID:   a.ID(),
		Recipient: recipient,
		Message:   a.Message(),
		Kind:      string(a.Kind()),
	})
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	s.logger.Debug("Webhook rejected alert",
		zap.String("recipient", recipient),
		zap.Int("status", resp.StatusCode),
		zap.ByteString("body", detail),
	)

	switch resp.StatusCode {
	case http.StatusForbidden, http.StatusNotFound, http.StatusGone:
		return fmt.Errorf("webhook %d for %s: %w", resp.StatusCode, recipient, domain.ErrRecipientUnreachable)
	default:
		return fmt.Errorf("webhook %d for %s: %s", resp.StatusCode, recipient, bytes.TrimSpace(detail))
	}
}
