package usage

import (
	"strings"
	"time"
)

// Scope is the session classification.
type Scope string

// Scope constants.
const (
	ScopeGroup   Scope = "group"
	ScopePrivate Scope = "private"
)

// Valid reports whether the scope is one of the known scopes.
func (s Scope) Valid() bool {
	return s == ScopeGroup || s == ScopePrivate
}

// SessionKey composes the per-conversation key: scope + "_" + id.
func SessionKey(scope Scope, id string) string {
	return string(scope) + "_" + id
}

// ScopeOf extracts the scope tag from a session key.
// Keys without a known scope prefix return an empty scope.
func ScopeOf(session string) Scope {
	tag, _, ok := strings.Cut(session, "_")
	if !ok {
		return ""
	}
	if s := Scope(tag); s.Valid() {
		return s
	}
	return ""
}

// Event is one completed resource-consuming operation reported by a producer.
// Token fields are pointers so an absent figure can be told apart from zero.
type Event struct {
	Scope            Scope
	ScopeID          string
	GroupID          string
	UserID           string
	PromptTokens     *uint64
	CompletionTokens *uint64
	TotalTokens      *uint64
}

// Tokens returns the usable token figure of the event.
// A zero part counts as absent. Prompt+completion wins when both parts are
// positive, then the total, then whichever single part is positive. ok is
// false when no figure exists or it is zero.
func (e Event) Tokens() (uint64, bool) {
	prompt, hasPrompt := positive(e.PromptTokens)
	completion, hasCompletion := positive(e.CompletionTokens)
	total, hasTotal := positive(e.TotalTokens)

	switch {
	case hasPrompt && hasCompletion:
		return prompt + completion, true
	case hasTotal:
		return total, true
	case hasPrompt:
		return prompt, true
	case hasCompletion:
		return completion, true
	default:
		return 0, false
	}
}

func positive(n *uint64) (uint64, bool) {
	if n == nil || *n == 0 {
		return 0, false
	}
	return *n, true
}

// Session derives the session key and scope of the event.
// Explicit scope wins, then the group identifier, then the sender identity.
func (e Event) Session() (string, Scope, bool) {
	switch {
	case e.Scope.Valid() && e.ScopeID != "":
		return SessionKey(e.Scope, e.ScopeID), e.Scope, true
	case e.GroupID != "":
		return SessionKey(ScopeGroup, e.GroupID), ScopeGroup, true
	case e.UserID != "":
		return SessionKey(ScopePrivate, e.UserID), ScopePrivate, true
	default:
		return "", "", false
	}
}

// Counters are the post-update values of one applied event.
type Counters struct {
	Session       string
	Scope         Scope
	User          string
	EventTokens   uint64
	SessionTokens uint64
	ScopedTokens  uint64
	UserTokens    uint64
	TotalTokens   uint64
	At            time.Time
}

// Removal describes the effect of resetting one session.
type Removal struct {
	Session string
	Removed uint64 // prior session value taken off the total
	Total   uint64 // global total after the reset
	Found   bool
}

// SessionStats are the counters of one session. Unknown sessions are zero-valued.
type SessionStats struct {
	Session      string
	Scope        Scope
	Tokens       uint64
	ScopedTokens uint64
	LastUsage    uint64
	Display      bool
	Known        bool
}

// Ranked is one row of the ranked session listing.
type Ranked struct {
	Session string `json:"session_id"`
	Tokens  uint64 `json:"tokens"`
}

// Ptr returns a pointer to n. Handy for building events.
func Ptr(n uint64) *uint64 { return &n }
