package usage

import (
	"slices"
	"sort"
)

// Snapshot is an immutable copy of the usage counters at one instant.
type Snapshot struct {
	total     uint64
	sessions  map[string]uint64
	scoped    map[string]uint64
	lastUsage map[string]uint64
	users     map[string]uint64
	display   map[string]bool
	order     []string
}

// Total returns the global token total.
func (s Snapshot) Total() uint64 { return s.total }

// SessionTokens returns the accumulated tokens of a session (0 if unknown).
func (s Snapshot) SessionTokens(session string) uint64 { return s.sessions[session] }

// ScopedTokens returns the per-scope counter entry of a session.
func (s Snapshot) ScopedTokens(session string) uint64 { return s.scoped[session] }

// LastUsage returns the tokens of the most recent event for a session.
func (s Snapshot) LastUsage(session string) uint64 { return s.lastUsage[session] }

// UserTokens returns lifetime tokens for a user.
func (s Snapshot) UserTokens(user string) uint64 { return s.users[user] }

// Display reports the per-session display preference.
func (s Snapshot) Display(session string) bool { return s.display[session] }

// Known reports whether the session has recorded counters.
func (s Snapshot) Known(session string) bool {
	_, ok := s.sessions[session]
	return ok
}

// Session returns the counters of one session.
func (s Snapshot) Session(session string) SessionStats {
	tokens, known := s.sessions[session]
	return SessionStats{
		Session:      session,
		Scope:        ScopeOf(session),
		Tokens:       tokens,
		ScopedTokens: s.scoped[session],
		LastUsage:    s.lastUsage[session],
		Display:      s.display[session],
		Known:        known,
	}
}

// Sessions returns session keys in first-seen order.
func (s Snapshot) Sessions() []string { return slices.Clone(s.order) }

// SessionCount returns the number of known sessions.
func (s Snapshot) SessionCount() int { return len(s.sessions) }

// UserCount returns the number of users with recorded usage.
func (s Snapshot) UserCount() int { return len(s.users) }

// Ranked returns sessions sorted by tokens descending; ties keep first-seen order.
func (s Snapshot) Ranked() []Ranked {
	out := make([]Ranked, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, Ranked{Session: k, Tokens: s.sessions[k]})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Tokens > out[j].Tokens
	})
	return out
}
