package usage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"slices"
	"sort"
	"strconv"
	"time"
)

// HistoryEntry is one appended usage observation.
// Persisted as a [unix_seconds, tokens] pair.
type HistoryEntry struct {
	At     time.Time
	Tokens uint64
}

// MarshalJSON encodes the entry as a two-element array.
func (h HistoryEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{h.At.Unix(), h.Tokens})
}

// UnmarshalJSON decodes a [timestamp, tokens] pair. Fractional timestamps are accepted;
// tokens must be a non-negative integer.
func (h *HistoryEntry) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var pair []json.Number
	if err := dec.Decode(&pair); err != nil {
		return fmt.Errorf("history entry: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("history entry: want 2 elements, got %d", len(pair))
	}
	ts, err := pair[0].Float64()
	if err != nil {
		return fmt.Errorf("history entry: timestamp: %w", err)
	}
	tokens, err := strconv.ParseUint(pair[1].String(), 10, 64)
	if err != nil {
		return fmt.Errorf("history entry: tokens %s: %w", pair[1], err)
	}
	sec, frac := math.Modf(ts)
	h.At = time.Unix(int64(sec), int64(frac*1e9)).UTC()
	h.Tokens = tokens
	return nil
}

// State is the persisted usage document.
type State struct {
	TokenCounts   map[string]uint64 `json:"token_counts"`
	TotalTokens   uint64            `json:"total_tokens"`
	SessionTokens map[string]uint64 `json:"session_tokens"`
	LastUsage     map[string]uint64 `json:"last_usage"`
	History       []HistoryEntry    `json:"token_history"`
	UserTokens    map[string]uint64 `json:"user_token_counts"`
	SessionOrder  []string          `json:"session_order"`
	Display       map[string]bool   `json:"display_sessions"`
}

// NewState returns an empty state with every map allocated.
func NewState() *State {
	return &State{
		TokenCounts:   make(map[string]uint64),
		SessionTokens: make(map[string]uint64),
		LastUsage:     make(map[string]uint64),
		History:       []HistoryEntry{},
		UserTokens:    make(map[string]uint64),
		SessionOrder:  []string{},
		Display:       make(map[string]bool),
	}
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	return &State{
		TokenCounts:   cloneMap(s.TokenCounts),
		TotalTokens:   s.TotalTokens,
		SessionTokens: cloneMap(s.SessionTokens),
		LastUsage:     cloneMap(s.LastUsage),
		History:       append([]HistoryEntry{}, s.History...),
		UserTokens:    cloneMap(s.UserTokens),
		SessionOrder:  append([]string{}, s.SessionOrder...),
		Display:       cloneMap(s.Display),
	}
}

// Normalize repairs a loaded document: allocates missing maps, aligns the
// scoped counters with the session records, recomputes the total and rebuilds
// the first-seen order. Returns true if anything had to change.
func (s *State) Normalize() bool {
	repaired := false
	if s.TokenCounts == nil {
		s.TokenCounts = make(map[string]uint64)
	}
	if s.SessionTokens == nil {
		s.SessionTokens = make(map[string]uint64)
	}
	if s.LastUsage == nil {
		s.LastUsage = make(map[string]uint64)
	}
	if s.History == nil {
		s.History = []HistoryEntry{}
	}
	if s.UserTokens == nil {
		s.UserTokens = make(map[string]uint64)
	}
	if s.Display == nil {
		s.Display = make(map[string]bool)
	}

	// Older documents may only carry token_counts.
	for k, v := range s.TokenCounts {
		if _, ok := s.SessionTokens[k]; !ok {
			s.SessionTokens[k] = v
			repaired = true
		}
	}
	var sum uint64
	for k, v := range s.SessionTokens {
		if s.TokenCounts[k] != v {
			s.TokenCounts[k] = v
			repaired = true
		}
		sum += v
	}
	for k := range s.TokenCounts {
		if _, ok := s.SessionTokens[k]; !ok {
			delete(s.TokenCounts, k)
			repaired = true
		}
	}
	for k := range s.LastUsage {
		if _, ok := s.SessionTokens[k]; !ok {
			delete(s.LastUsage, k)
			repaired = true
		}
	}
	if s.TotalTokens != sum {
		s.TotalTokens = sum
		repaired = true
	}

	order := make([]string, 0, len(s.SessionTokens))
	seen := make(map[string]struct{}, len(s.SessionTokens))
	for _, k := range s.SessionOrder {
		if _, ok := s.SessionTokens[k]; !ok {
			repaired = true
			continue
		}
		if _, dup := seen[k]; dup {
			repaired = true
			continue
		}
		seen[k] = struct{}{}
		order = append(order, k)
	}
	var missing []string
	for k := range s.SessionTokens {
		if _, ok := seen[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		order = append(order, missing...)
		repaired = true
	}
	s.SessionOrder = order
	return repaired
}

// Snapshot copies the counters (no history) into an immutable view.
func (s *State) Snapshot() Snapshot {
	return Snapshot{
		total:     s.TotalTokens,
		sessions:  cloneMap(s.SessionTokens),
		scoped:    cloneMap(s.TokenCounts),
		lastUsage: cloneMap(s.LastUsage),
		users:     cloneMap(s.UserTokens),
		display:   cloneMap(s.Display),
		order:     slices.Clone(s.SessionOrder),
	}
}

func cloneMap[V any](m map[string]V) map[string]V {
	out := make(map[string]V, len(m))
	maps.Copy(out, m)
	return out
}
