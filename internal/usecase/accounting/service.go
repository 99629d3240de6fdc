package accounting

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/tokenwatch/internal/domain/alert"
	"github.com/kailas-cloud/tokenwatch/internal/domain/usage"
	"github.com/kailas-cloud/tokenwatch/internal/metrics"
)

// Result is what one recorded event produced.
type Result struct {
	Recorded      bool
	Counters      usage.Counters
	Display       bool
	Alerts        []alert.Alert
	Notifications []alert.Outcome
}

// Engine turns usage events into ledger mutations and dispatches the alerts they raise.
type Engine struct {
	ledger     Ledger
	evaluator  Evaluator
	notifier   Notifier
	recipients []string
	logger     *zap.Logger
	now        func() time.Time
}

// New creates an engine. recipients are tried in order for every alert.
func New(l Ledger, e Evaluator, n Notifier, recipients []string, logger *zap.Logger) *Engine {
	return &Engine{
		ledger:     l,
		evaluator:  e,
		notifier:   n,
		recipients: slices.Clone(recipients),
		logger:     logger,
		now:        time.Now,
	}
}

// WithClock overrides the event timestamp source (tests).
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Record applies one event. It never fails from the producer's point of view:
// malformed events are ignored and internal failures are logged here.
func (e *Engine) Record(ctx context.Context, ev usage.Event) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Panic while recording usage",
				zap.String("panic", fmt.Sprint(r)),
				zap.Stack("stack"),
			)
		}
	}()

	tokens, ok := ev.Tokens()
	if !ok {
		metrics.EventsTotal.WithLabelValues(metrics.EventIgnored).Inc()
		e.logger.Debug("Ignoring usage event without token figure", zap.String("user", ev.UserID))
		return Result{}
	}
	session, scope, ok := ev.Session()
	if !ok {
		metrics.EventsTotal.WithLabelValues(metrics.EventIgnored).Inc()
		e.logger.Debug("Ignoring usage event without session identity", zap.Uint64("tokens", tokens))
		return Result{}
	}

	counters, err := e.ledger.Apply(ctx, session, scope, ev.UserID, tokens, e.now().UTC())
	if err != nil {
		e.logger.Error("Usage recorded in memory but not persisted",
			zap.String("session", session),
			zap.Uint64("tokens", tokens),
			zap.Error(err),
		)
	}
	metrics.EventsTotal.WithLabelValues(metrics.EventRecorded).Inc()
	metrics.TokensTotal.WithLabelValues(string(scope)).Add(float64(tokens))

	res = Result{
		Recorded: true,
		Counters: counters,
		Display:  e.ledger.Display(session),
		Alerts:   e.evaluator.Evaluate(counters),
	}

	for _, a := range res.Alerts {
		metrics.AlertsTotal.WithLabelValues(string(a.Kind())).Inc()
		e.logger.Warn("Token threshold crossed",
			zap.String("alert_id", a.ID()),
			zap.String("kind", string(a.Kind())),
			zap.String("session", a.Session()),
			zap.String("user", a.User()),
			zap.Uint64("observed", a.Observed()),
			zap.Uint64("limit", a.Limit()),
		)
		res.Notifications = append(res.Notifications, e.notifier.Notify(ctx, e.recipients, a))
	}
	return res
}

// Session returns the counters of one session.
func (e *Engine) Session(key string) usage.SessionStats {
	return e.ledger.Snapshot().Session(key)
}

// Reset removes a session's counters. The error is non-nil only when the
// reset was applied in memory but could not be persisted.
func (e *Engine) Reset(ctx context.Context, key string) (usage.Removal, error) {
	r, err := e.ledger.Remove(ctx, key)
	if err != nil {
		e.logger.Error("Session reset not persisted",
			zap.String("session", key),
			zap.Uint64("removed_tokens", r.Removed),
			zap.Error(err),
		)
		return r, err
	}
	if r.Found {
		e.logger.Info("Session reset",
			zap.String("session", key),
			zap.Uint64("removed_tokens", r.Removed),
			zap.Uint64("total_tokens", r.Total),
		)
	}
	return r, nil
}

// ToggleDisplay flips the per-session display preference.
func (e *Engine) ToggleDisplay(ctx context.Context, key string) (bool, error) {
	on, err := e.ledger.ToggleDisplay(ctx, key)
	if err != nil {
		e.logger.Error("Display preference not persisted", zap.String("session", key), zap.Error(err))
		return on, err
	}
	return on, nil
}
