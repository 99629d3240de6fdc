package accounting

import (
	"context"
	"time"

	"github.com/kailas-cloud/tokenwatch/internal/domain/alert"
	"github.com/kailas-cloud/tokenwatch/internal/domain/usage"
)

// Ledger is the usage state the engine mutates.
type Ledger interface {
	Apply(ctx context.Context, session string, scope usage.Scope, user string, tokens uint64, at time.Time) (usage.Counters, error)
	Remove(ctx context.Context, session string) (usage.Removal, error)
	ToggleDisplay(ctx context.Context, session string) (bool, error)
	Display(session string) bool
	Snapshot() usage.Snapshot
}

// Evaluator decides which alerts a set of post-update counters raises.
type Evaluator interface {
	Evaluate(c usage.Counters) []alert.Alert
}

// Notifier delivers one alert to an ordered recipient list.
type Notifier interface {
	Notify(ctx context.Context, recipients []string, a alert.Alert) alert.Outcome
}
