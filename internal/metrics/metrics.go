package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "proxycrawl"

var (
	navigationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "navigations_total",
		Help:      "Browser navigations by session mode, action and outcome.",
	}, []string{"mode", "action", "outcome"})

	comparisonsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "comparisons_total",
		Help:      "Page size comparisons by result (pass, regression, skipped).",
	}, []string{"result"})

	seedsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "seeds_total",
		Help:      "Seeds processed by final status.",
	}, []string{"status"})

	pageDeviation = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "page_deviation_percent",
		Help:      "Height deviation between proxied and direct renderings.",
		Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 200},
	})

	stepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "step_duration_seconds",
		Help:      "Pipeline step wall time by step and outcome.",
		Buckets:   []float64{0.1, 1, 5, 30, 60, 300, 900, 3600},
	}, []string{"step", "outcome"})
)

// Navigation outcomes.
const (
	OutcomeCompleted = "completed"
	OutcomeTimeout   = "timeout"
	OutcomeError     = "error"
)

// RecordNavigation counts one visit, click or back navigation.
func RecordNavigation(mode, action, outcome string) {
	navigationsTotal.WithLabelValues(mode, action, outcome).Inc()
}

// RecordComparison counts a page size comparison. The deviation is only
// observed for comparisons that were actually made.
func RecordComparison(result string, deviation float64, compared bool) {
	comparisonsTotal.WithLabelValues(result).Inc()
	if compared {
		pageDeviation.Observe(deviation)
	}
}

// RecordSeed counts a finished seed.
func RecordSeed(status string) {
	seedsTotal.WithLabelValues(status).Inc()
}

// RecordStep observes how long a pipeline step ran. outcome is one of the
// navigation outcomes.
func RecordStep(step, outcome string, elapsed time.Duration) {
	stepDuration.WithLabelValues(step, outcome).Observe(elapsed.Seconds())
}
