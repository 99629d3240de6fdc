package alert

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind is the condition that raised an alert.
type Kind string

// Alert kinds, in evaluation order.
const (
	KindUserLimit Kind = "user_limit"
	KindAnomaly   Kind = "anomaly"
	KindOverflow  Kind = "overflow"
)

// Alert is one threshold crossing observed on a single event.
type Alert struct {
	id           string
	kind         Kind
	session      string
	user         string
	observed     uint64
	limit        uint64
	costPerToken float64
	at           time.Time
}

// New creates an alert with a fresh id.
func New(kind Kind, session, user string, observed, limit uint64, costPerToken float64, at time.Time) Alert {
	return Alert{
		id:           uuid.NewString(),
		kind:         kind,
		session:      session,
		user:         user,
		observed:     observed,
		limit:        limit,
		costPerToken: costPerToken,
		at:           at,
	}
}

// ID returns the alert id.
func (a Alert) ID() string { return a.id }

// Kind returns the raising condition.
func (a Alert) Kind() Kind { return a.kind }

// Session returns the session key.
func (a Alert) Session() string { return a.session }

// User returns the originating user.
func (a Alert) User() string { return a.user }

// Observed returns the value that met the limit.
func (a Alert) Observed() uint64 { return a.observed }

// Limit returns the configured limit.
func (a Alert) Limit() uint64 { return a.limit }

// At returns when the alert was raised.
func (a Alert) At() time.Time { return a.at }

// Cost returns observed * cost_per_token, or 0 when cost display is disabled.
func (a Alert) Cost() float64 {
	if a.costPerToken <= 0 {
		return 0
	}
	return float64(a.observed) * a.costPerToken
}

// Message renders the human readable notification text.
func (a Alert) Message() string {
	var msg string
	switch a.kind {
	case KindUserLimit:
		msg = fmt.Sprintf("User %s reached the token limit: %d/%d", a.user, a.observed, a.limit)
	case KindAnomaly:
		msg = fmt.Sprintf("Anomalous usage in %s by %s: %d tokens in one reply (threshold %d)",
			a.session, a.user, a.observed, a.limit)
	case KindOverflow:
		msg = fmt.Sprintf("Session %s reached the token ceiling: %d/%d. Reset it with DELETE /v1/sessions/%s",
			a.session, a.observed, a.limit, a.session)
	default:
		msg = fmt.Sprintf("Token alert %s for %s: %d/%d", a.kind, a.session, a.observed, a.limit)
	}
	if cost := a.Cost(); cost > 0 {
		msg += fmt.Sprintf(" (cost %.4f)", cost)
	}
	return msg
}
