package exitengine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus instruments
type Metrics struct {
	CyclesTotal     prometheus.Counter
	CycleDuration   prometheus.Histogram
	ActionsTotal    *prometheus.CounterVec
	VenueErrors     *prometheus.CounterVec
	RuleEvalErrors  prometheus.Counter
	ActiveRules     prometheus.Gauge
	SkippedTrailing prometheus.Counter
}

// NewMetrics registers the engine metrics on the given registerer
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		CyclesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "guardian",
			Name:      "cycles_total",
			Help:      "Completed evaluation cycles",
		}),
		CycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "guardian",
			Name:      "cycle_duration_seconds",
			Help:      "Evaluation cycle duration",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		ActionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "guardian",
			Name:      "actions_total",
			Help:      "Committed actions by type",
		}, []string{"action"}),
		VenueErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "guardian",
			Name:      "venue_errors_total",
			Help:      "Venue call failures by classified reason",
		}, []string{"reason"}),
		RuleEvalErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "guardian",
			Name:      "rule_eval_errors_total",
			Help:      "Per-rule evaluation errors (isolated, cycle continues)",
		}),
		ActiveRules: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "guardian",
			Name:      "active_rules",
			Help:      "Rules currently under protection",
		}),
		SkippedTrailing: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "guardian",
			Name:      "trailing_skipped_total",
			Help:      "Trailing evaluations skipped for missing ATR history",
		}),
	}
}
