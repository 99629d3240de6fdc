package tokenwatch

import (
	"time"

	"github.com/kailas-cloud/tokenwatch/internal/domain/alert"
	"github.com/kailas-cloud/tokenwatch/internal/domain/usage"
	"github.com/kailas-cloud/tokenwatch/internal/usecase/accounting"
	reportuc "github.com/kailas-cloud/tokenwatch/internal/usecase/report"
)

// Scope classifies a session.
type Scope string

// Scope constants.
const (
	ScopeGroup   Scope = "group"
	ScopePrivate Scope = "private"
)

// Event is one completed LLM call. Token fields are optional; prompt plus
// completion is used when both are set, otherwise the total.
type Event struct {
	Scope            Scope // optional explicit scope, needs ScopeID
	ScopeID          string
	GroupID          string
	UserID           string
	PromptTokens     *uint64
	CompletionTokens *uint64
	TotalTokens      *uint64
}

// Tokens returns a pointer to n for Event fields.
func Tokens(n uint64) *uint64 { return &n }

// Alert is a raised threshold crossing and its delivery outcome.
type Alert struct {
	ID        string
	Kind      string // user_limit, anomaly, overflow
	Session   string
	User      string
	Observed  uint64
	Limit     uint64
	Cost      float64
	At        time.Time
	Message   string
	Delivered bool
	Recipient string
}

// Result is the effect of one recorded event.
type Result struct {
	Recorded      bool
	Session       string
	Scope         Scope
	EventTokens   uint64
	SessionTokens uint64
	UserTokens    uint64
	TotalTokens   uint64
	Display       bool
	Alerts        []Alert
}

// SessionStats are the counters of one session.
type SessionStats struct {
	Session      string
	Scope        Scope
	Tokens       uint64
	ScopedTokens uint64
	LastUsage    uint64
	Display      bool
	Known        bool
	Cost         float64
}

// RankedSession is one row of the ranked listing.
type RankedSession struct {
	Session string
	Tokens  uint64
}

// Removal describes a session reset.
type Removal struct {
	Session string
	Removed uint64
	Total   uint64
	Found   bool
}

// Summary holds global totals.
type Summary struct {
	TotalTokens uint64
	Sessions    int
	Users       int
	Cost        float64
}

func toDomainEvent(e Event) usage.Event {
	return usage.Event{
		Scope:            usage.Scope(e.Scope),
		ScopeID:          e.ScopeID,
		GroupID:          e.GroupID,
		UserID:           e.UserID,
		PromptTokens:     e.PromptTokens,
		CompletionTokens: e.CompletionTokens,
		TotalTokens:      e.TotalTokens,
	}
}

func fromDomainAlert(a alert.Alert) Alert {
	return Alert{
		ID:       a.ID(),
		Kind:     string(a.Kind()),
		Session:  a.Session(),
		User:     a.User(),
		Observed: a.Observed(),
		Limit:    a.Limit(),
		Cost:     a.Cost(),
		At:       a.At(),
		Message:  a.Message(),
	}
}

func fromResult(r accounting.Result) Result {
	if !r.Recorded {
		return Result{}
	}
	out := Result{
		Recorded:      true,
		Session:       r.Counters.Session,
		Scope:         Scope(r.Counters.Scope),
		EventTokens:   r.Counters.EventTokens,
		SessionTokens: r.Counters.SessionTokens,
		UserTokens:    r.Counters.UserTokens,
		TotalTokens:   r.Counters.TotalTokens,
		Display:       r.Display,
	}
	for i, a := range r.Alerts {
		pub := fromDomainAlert(a)
		if i < len(r.Notifications) {
			pub.Delivered = r.Notifications[i].Delivered
			pub.Recipient = r.Notifications[i].Recipient
		}
		out.Alerts = append(out.Alerts, pub)
	}
	return out
}

func fromSessionReport(r reportuc.SessionReport) SessionStats {
	return SessionStats{
		Session:      r.Session,
		Scope:        Scope(r.Scope),
		Tokens:       r.Tokens,
		ScopedTokens: r.ScopedTokens,
		LastUsage:    r.LastUsage,
		Display:      r.Display,
		Known:        r.Known,
		Cost:         r.Cost,
	}
}
