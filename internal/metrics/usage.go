package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every metric exported by the service.
const Namespace = "tokenwatch"

// Event results for EventsTotal.
const (
	EventRecorded = "recorded"
	EventIgnored  = "ignored"
)

// Usage accounting Prometheus metrics.
var (
	TokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "tokens_total",
			Help:      "Total tokens accounted",
		},
		[]string{"scope"},
	)

	EventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "events_total",
			Help:      "Usage events received",
		},
		[]string{"result"}, // "recorded" / "ignored"
	)

	AlertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "alerts_total",
			Help:      "Threshold alerts raised",
		},
		[]string{"kind"},
	)

	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "notifications_total",
			Help:      "Delivery attempts by classified result",
		},
		[]string{"result"},
	)

	PersistenceFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "persistence_failures_total",
			Help:      "Failed snapshot loads and saves",
		},
		[]string{"op"}, // "load" / "save"
	)

	GlobalTokens = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "global_tokens",
			Help:      "Current global token total",
		},
	)
)

var registerUsage sync.Once

// RegisterUsageMetrics registers usage accounting metrics. Safe to call more than once.
func RegisterUsageMetrics() {
	registerUsage.Do(func() {
		prometheus.MustRegister(TokensTotal)
		prometheus.MustRegister(EventsTotal)
		prometheus.MustRegister(AlertsTotal)
		prometheus.MustRegister(NotificationsTotal)
		prometheus.MustRegister(PersistenceFailuresTotal)
		prometheus.MustRegister(GlobalTokens)
	})
}
