package report

import "github.com/kailas-cloud/tokenwatch/internal/domain/usage"

// Ledger is the read side of the usage state.
type Ledger interface {
	Snapshot() usage.Snapshot
	History() []usage.HistoryEntry
}
