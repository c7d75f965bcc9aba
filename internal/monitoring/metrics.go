package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Slice outcomes recorded by RecordSlice.
const (
	OutcomeDecomposed   = "decomposed"
	OutcomeInsufficient = "insufficient_statistics"
	OutcomeFailed       = "failed"
)

var (
	slicesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "groomers_slices_total",
		Help: "Slices processed by observable and outcome",
	}, []string{"observable", "outcome"})

	sourcesMissingTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "groomers_sources_missing_total",
		Help: "Configurations skipped because a source histogram was missing",
	}, []string{"observable"})

	unitDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "groomers_unit_duration_seconds",
		Help:    "Time to process one configuration across all of its slices",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"observable"})
)

// RecordSlice counts one slice outcome.
func RecordSlice(observable, outcome string) {
	slicesTotal.WithLabelValues(observable, outcome).Inc()
}

// RecordMissingSource counts one configuration skipped for a missing input.
func RecordMissingSource(observable string) {
	sourcesMissingTotal.WithLabelValues(observable).Inc()
}

// ObserveUnit records how long one configuration took.
func ObserveUnit(observable string, d time.Duration) {
	unitDuration.WithLabelValues(observable).Observe(d.Seconds())
}
