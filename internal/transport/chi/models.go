package chi

import (
	"strconv"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// ErrorCode is the machine-readable error code of an ErrorResponse.
type ErrorCode string

// Error codes.
const (
	ErrorCodeBadRequest        ErrorCode = "bad_request"
	ErrorCodeUnauthorized      ErrorCode = "unauthorized"
	ErrorCodeForbidden         ErrorCode = "forbidden"
	ErrorCodeUnsupportedFormat ErrorCode = "unsupported_format"
	ErrorCodePersistence       ErrorCode = "persistence_failed"
	ErrorCodeInternalError     ErrorCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// EventRequest is a usage event reported by a producer.
type EventRequest struct {
	Scope            string  `json:"scope,omitempty"`
	ScopeID          string  `json:"scope_id,omitempty"`
	GroupID          string  `json:"group_id,omitempty"`
	UserID           string  `json:"user_id"`
	PromptTokens     TokenFigure `json:"prompt_tokens"`
	CompletionTokens TokenFigure `json:"completion_tokens"`
	TotalTokens      TokenFigure `json:"total_tokens"`
}

// TokenFigure is a token count reported by a producer. Anything other than a
// non-negative integer decodes as absent instead of failing the request.
type TokenFigure struct {
	n *uint64
}

// UnmarshalJSON never fails.
func (t *TokenFigure) UnmarshalJSON(data []byte) error {
	t.n = nil
	if n, err := strconv.ParseUint(string(data), 10, 64); err == nil {
		t.n = &n
	}
	return nil
}

// Value returns the figure, or nil when absent or malformed.
func (t TokenFigure) Value() *uint64 { return t.n }

// CompletionEventRequest carries a raw chat completion response.
type CompletionEventRequest struct {
	GroupID    string                        `json:"group_id,omitempty"`
	UserID     string                        `json:"user_id"`
	Completion openai.ChatCompletionResponse `json:"completion"`
}

// AlertItem is one raised alert.
type AlertItem struct {
	ID       string  `json:"id"`
	Kind     string  `json:"kind"`
	Message  string  `json:"message"`
	Observed uint64  `json:"observed"`
	Limit    uint64  `json:"limit"`
	Cost     float64 `json:"cost,omitempty"`
	// Delivered reports whether any recipient accepted the notification.
	Delivered bool   `json:"delivered"`
	Recipient string `json:"recipient,omitempty"`
}

// EventResponse describes the effect of one event.
type EventResponse struct {
	Recorded      bool        `json:"recorded"`
	SessionID     string      `json:"session_id,omitempty"`
	SessionTokens uint64      `json:"session_tokens,omitempty"`
	UserTokens    uint64      `json:"user_tokens,omitempty"`
	TotalTokens   uint64      `json:"total_tokens,omitempty"`
	Display       bool        `json:"display,omitempty"`
	Alerts        []AlertItem `json:"alerts,omitempty"`
}

// DisplayResponse is the display flag after a toggle.
type DisplayResponse struct {
	SessionID string `json:"session_id"`
	Display   bool   `json:"display"`
}

// SessionResponse holds the counters of one session.
type SessionResponse struct {
	SessionID    string   `json:"session_id"`
	Scope        string   `json:"scope,omitempty"`
	Tokens       uint64   `json:"tokens"`
	ScopedTokens uint64   `json:"scoped_tokens"`
	LastUsage    uint64   `json:"last_usage"`
	Display      bool     `json:"display"`
	Known        bool     `json:"known"`
	Cost         *float64 `json:"cost,omitempty"`
}

// ResetResponse describes a session reset.
type ResetResponse struct {
	SessionID     string `json:"session_id"`
	RemovedTokens uint64 `json:"removed_tokens"`
	TotalTokens   uint64 `json:"total_tokens"`
	Found         bool   `json:"found"`
}

// RankedSession is one row of the session listing.
type RankedSession struct {
	SessionID string `json:"session_id"`
	Tokens    uint64 `json:"tokens"`
}

// SessionListResponse is the ranked session listing.
type SessionListResponse struct {
	Sessions    []RankedSession `json:"sessions"`
	TotalTokens uint64          `json:"total_tokens"`
}

// SeriesPoint is one history entry.
type SeriesPoint struct {
	At     time.Time `json:"at"`
	Tokens uint64    `json:"tokens"`
}

// SeriesResponse is the token history.
type SeriesResponse struct {
	Points []SeriesPoint `json:"points"`
}

// SummaryResponse holds global totals.
type SummaryResponse struct {
	TotalTokens uint64   `json:"total_tokens"`
	Sessions    int      `json:"sessions"`
	Users       int      `json:"users"`
	Cost        *float64 `json:"cost,omitempty"`
}

// HealthResponse is the /health body.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
