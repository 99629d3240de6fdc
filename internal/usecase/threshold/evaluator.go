// Package threshold decides which alerts one applied usage event raises.
package threshold

import (
	"maps"

	"github.com/kailas-cloud/tokenwatch/internal/domain/alert"
	"github.com/kailas-cloud/tokenwatch/internal/domain/usage"
)

// Limits is the load-time quota configuration. A zero value disables its check.
type Limits struct {
	MaxTokens        map[usage.Scope]uint64
	UserLimits       map[string]uint64
	AnomalyThreshold uint64
	CostPerToken     float64
}

// Evaluator is a pure function of post-update counters and Limits.
type Evaluator struct {
	limits Limits
}

// New creates an evaluator. Limits are copied and never change afterwards.
func New(limits Limits) *Evaluator {
	return &Evaluator{limits: Limits{
		MaxTokens:        maps.Clone(limits.MaxTokens),
		UserLimits:       maps.Clone(limits.UserLimits),
		AnomalyThreshold: limits.AnomalyThreshold,
		CostPerToken:     limits.CostPerToken,
	}}
}

// Evaluate returns alerts in fixed order: user limit, anomaly, overflow.
// Each condition fires at most once per event and re-fires on every qualifying event.
func (e *Evaluator) Evaluate(c usage.Counters) []alert.Alert {
	var out []alert.Alert

	if limit := e.limits.UserLimits[c.User]; c.User != "" && limit > 0 && c.UserTokens >= limit {
		out = append(out, e.raise(alert.KindUserLimit, c, c.UserTokens, limit))
	}
	if t := e.limits.AnomalyThreshold; t > 0 && c.EventTokens >= t {
		out = append(out, e.raise(alert.KindAnomaly, c, c.EventTokens, t))
	}
	if limit := e.MaxTokens(c.Scope); limit > 0 && c.ScopedTokens >= limit {
		out = append(out, e.raise(alert.KindOverflow, c, c.ScopedTokens, limit))
	}
	return out
}

// MaxTokens returns the ceiling configured for a scope (0 when none).
func (e *Evaluator) MaxTokens(scope usage.Scope) uint64 {
	return e.limits.MaxTokens[scope]
}

func (e *Evaluator) raise(kind alert.Kind, c usage.Counters, observed, limit uint64) alert.Alert {
	return alert.New(kind, c.Session, c.User, observed, limit, e.limits.CostPerToken, c.At)
}
