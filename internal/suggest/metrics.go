package suggest

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts fetch outcomes per source. A nil *Metrics records nothing.
type Metrics struct {
	total   *prometheus.CounterVec
	seconds *prometheus.HistogramVec
}

// NewMetrics creates the suggestion collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		total: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "answerflow_suggestions_total",
				Help: "Suggestion fetches by the source that produced the outcome.",
			},
			[]string{"source"},
		),
		seconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "answerflow_suggestion_seconds",
				Help:    "Time from fetch start to outcome.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"source"},
		),
	}
	reg.MustRegister(m.total, m.seconds)
	return m
}

func (m *Metrics) observe(source Source, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.total.WithLabelValues(string(source)).Inc()
	m.seconds.WithLabelValues(string(source)).Observe(elapsed.Seconds())
}
