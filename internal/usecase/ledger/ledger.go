package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/tokenwatch/internal/domain"
	"github.com/kailas-cloud/tokenwatch/internal/domain/usage"
	"github.com/kailas-cloud/tokenwatch/internal/metrics"
)

// Ledger owns the usage counters and writes every mutation through to the store.
//
// State is guarded by mu. Persistence runs outside mu under saveMu, so readers
// never wait on a slow write. seq counts mutations; savedSeq is the last one
// known to be durable, which keeps an older copy from overwriting a newer one.
type Ledger struct {
	mu    sync.RWMutex
	state *usage.State
	seq   uint64

	saveMu   sync.Mutex
	savedSeq uint64

	store  Store
	logger *zap.Logger
}

// New creates an empty in-memory ledger.
func New(logger *zap.Logger) *Ledger {
	return &Ledger{
		state:  usage.NewState(),
		logger: logger,
	}
}

// WithStore attaches a persistence store. Call Load afterwards to restore state.
func (l *Ledger) WithStore(store Store) *Ledger {
	l.store = store
	return l
}

// Load restores the last snapshot. A missing snapshot leaves the ledger empty
// and returns nil. An unreadable one is logged, the ledger starts empty and the
// failure is returned wrapped in domain.ErrPersistence for callers that care.
func (l *Ledger) Load(ctx context.Context) error {
	if l.store == nil {
		return nil
	}

	state, err := l.store.Load(ctx)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		l.logger.Info("No usage snapshot found, starting empty")
		l.replace(usage.NewState())
		return nil
	case err != nil:
		metrics.PersistenceFailuresTotal.WithLabelValues("load").Inc()
		l.logger.Warn("Failed to load usage snapshot, starting empty", zap.Error(err))
		l.replace(usage.NewState())
		return fmt.Errorf("%w: load: %w", domain.ErrPersistence, err)
	}

	if state.Normalize() {
		l.logger.Warn("Usage snapshot was inconsistent and has been repaired",
			zap.Uint64("total_tokens", state.TotalTokens),
			zap.Int("sessions", len(state.SessionTokens)),
		)
	}
	l.replace(state)

	l.logger.Info("Usage snapshot loaded",
		zap.Uint64("total_tokens", state.TotalTokens),
		zap.Int("sessions", len(state.SessionTokens)),
		zap.Int("history", len(state.History)),
	)
	return nil
}

func (l *Ledger) replace(state *usage.State) {
	l.mu.Lock()
	l.state = state
	l.seq++
	seq := l.seq
	total := state.TotalTokens
	l.mu.Unlock()

	l.saveMu.Lock()
	l.savedSeq = seq
	l.saveMu.Unlock()

	metrics.GlobalTokens.Set(float64(total))
}

// Apply adds tokens to every counter scope of one event, appends a history
// entry and persists. Memory is updated even when the returned error is non-nil.
func (l *Ledger) Apply(
	ctx context.Context, session string, scope usage.Scope, user string, tokens uint64, at time.Time,
) (usage.Counters, error) {
	l.mu.Lock()
	s := l.state
	if _, known := s.SessionTokens[session]; !known {
		s.SessionOrder = append(s.SessionOrder, session)
	}
	s.SessionTokens[session] += tokens
	s.TokenCounts[session] += tokens
	s.LastUsage[session] = tokens
	if user != "" {
		s.UserTokens[user] += tokens
	}
	s.TotalTokens += tokens
	s.History = append(s.History, usage.HistoryEntry{At: at, Tokens: tokens})

	c := usage.Counters{
		Session:       session,
		Scope:         scope,
		User:          user,
		EventTokens:   tokens,
		SessionTokens: s.SessionTokens[session],
		ScopedTokens:  s.TokenCounts[session],
		UserTokens:    s.UserTokens[user],
		TotalTokens:   s.TotalTokens,
		At:            at,
	}
	l.seq++
	l.mu.Unlock()

	metrics.GlobalTokens.Set(float64(c.TotalTokens))
	return c, l.Save(ctx)
}

// Remove deletes every per-session counter of session and takes its prior
// value off the global total. Unknown sessions are a no-op without a save.
func (l *Ledger) Remove(ctx context.Context, session string) (usage.Removal, error) {
	l.mu.Lock()
	s := l.state
	prior, found := s.SessionTokens[session]
	if !found {
		r := usage.Removal{Session: session, Total: s.TotalTokens}
		l.mu.Unlock()
		return r, nil
	}

	delete(s.SessionTokens, session)
	delete(s.TokenCounts, session)
	delete(s.LastUsage, session)
	for i, k := range s.SessionOrder {
		if k == session {
			s.SessionOrder = append(s.SessionOrder[:i:i], s.SessionOrder[i+1:]...)
			break
		}
	}
	if s.TotalTokens < prior {
		l.logger.Warn("Global total below session value, clamping to zero",
			zap.String("session", session),
			zap.Uint64("session_tokens", prior),
			zap.Uint64("total_tokens", s.TotalTokens),
		)
		s.TotalTokens = 0
	} else {
		s.TotalTokens -= prior
	}
	r := usage.Removal{Session: session, Removed: prior, Total: s.TotalTokens, Found: true}
	l.seq++
	l.mu.Unlock()

	metrics.GlobalTokens.Set(float64(r.Total))
	return r, l.Save(ctx)
}

// ToggleDisplay flips the display preference and returns the new value.
func (l *Ledger) ToggleDisplay(ctx context.Context, session string) (bool, error) {
	l.mu.Lock()
	on := !l.state.Display[session]
	if on {
		l.state.Display[session] = true
	} else {
		delete(l.state.Display, session)
	}
	l.seq++
	l.mu.Unlock()

	return on, l.Save(ctx)
}

// Save writes the current state to the store. Concurrent callers are
// serialized; a call finding its mutation already persisted returns at once.
func (l *Ledger) Save(ctx context.Context) error {
	if l.store == nil {
		return nil
	}

	l.saveMu.Lock()
	defer l.saveMu.Unlock()

	l.mu.RLock()
	if l.seq <= l.savedSeq {
		l.mu.RUnlock()
		return nil
	}
	state := l.state.Clone()
	seq := l.seq
	l.mu.RUnlock()

	if err := l.store.Save(ctx, state); err != nil {
		metrics.PersistenceFailuresTotal.WithLabelValues("save").Inc()
		l.logger.Warn("Failed to persist usage snapshot",
			zap.Uint64("seq", seq),
			zap.Error(err),
		)
		return fmt.Errorf("%w: save: %w", domain.ErrPersistence, err)
	}
	l.savedSeq = seq
	return nil
}

// Snapshot returns an immutable copy of the counters (no history).
func (l *Ledger) Snapshot() usage.Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.Snapshot()
}

// History returns a copy of the history log.
func (l *Ledger) History() []usage.HistoryEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]usage.HistoryEntry(nil), l.state.History...)
}

// Durable reports whether every mutation so far has reached the store.
func (l *Ledger) Durable() bool {
	if l.store == nil {
		return true
	}
	l.saveMu.Lock()
	saved := l.savedSeq
	l.saveMu.Unlock()

	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.seq <= saved
}

// Display reports the display preference of one session.
func (l *Ledger) Display(session string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.Display[session]
}
