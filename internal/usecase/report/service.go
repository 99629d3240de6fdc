package report

import (
	"bytes"
	"io"
	"iter"
	"time"

	"github.com/kailas-cloud/tokenwatch/internal/domain/usage"
)

// SessionReport is one session's counters plus its cost.
type SessionReport struct {
	usage.SessionStats
	Cost float64
}

// Summary holds the global totals.
type Summary struct {
	TotalTokens uint64
	Sessions    int
	Users       int
	Cost        float64
}

// Service is the read-only reporting side. It copies state under the ledger's
// lock and formats outside it.
type Service struct {
	ledger       Ledger
	costPerToken float64
}

// New creates a Service. costPerToken <= 0 disables cost figures.
func New(l Ledger, costPerToken float64) *Service {
	return &Service{ledger: l, costPerToken: costPerToken}
}

// Snapshot returns an immutable copy of the counters.
func (s *Service) Snapshot() usage.Snapshot {
	return s.ledger.Snapshot()
}

// RankedListing returns sessions by tokens descending, ties in first-seen order.
func (s *Service) RankedListing() []usage.Ranked {
	return s.ledger.Snapshot().Ranked()
}

// Export writes the session counters in the requested format.
func (s *Service) Export(w io.Writer, format string) error {
	f, err := ParseFormat(format)
	if err != nil {
		return err
	}
	rows := s.RankedListing()
	if f == FormatCSV {
		return writeCSV(w, rows)
	}
	return writeJSON(w, rows)
}

// ExportBytes is Export into memory.
func (s *Service) ExportBytes(format string) ([]byte, error) {
	var buf bytes.Buffer
	if err := s.Export(&buf, format); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Series returns the history log as (timestamp, tokens) pairs. The log is
// copied once, so the sequence can be ranged over any number of times.
func (s *Service) Series() iter.Seq2[time.Time, uint64] {
	history := s.ledger.History()
	return func(yield func(time.Time, uint64) bool) {
		for _, h := range history {
			if !yield(h.At, h.Tokens) {
				return
			}
		}
	}
}

// Session returns the counters of one session. Unknown sessions are zero-valued.
func (s *Service) Session(key string) SessionReport {
	st := s.ledger.Snapshot().Session(key)
	return SessionReport{SessionStats: st, Cost: s.cost(st.Tokens)}
}

// Summary returns global totals.
func (s *Service) Summary() Summary {
	snap := s.ledger.Snapshot()
	return Summary{
		TotalTokens: snap.Total(),
		Sessions:    snap.SessionCount(),
		Users:       snap.UserCount(),
		Cost:        s.cost(snap.Total()),
	}
}

// CostEnabled reports whether cost figures are computed.
func (s *Service) CostEnabled() bool { return s.costPerToken > 0 }

func (s *Service) cost(tokens uint64) float64 {
	if s.costPerToken <= 0 {
		return 0
	}
	return float64(tokens) * s.costPerToken
}
