package devserver

import "github.com/prometheus/client_golang/prometheus"

type metrics struct {
	cacheLookups *prometheus.CounterVec
	rateLimited  prometheus.Counter
	answers      *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "answerflow_devserver_cache_lookups_total",
			Help: "Library answer cache lookups by result.",
		}, []string{"result"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "answerflow_devserver_rate_limited_total",
			Help: "Ask requests rejected by the per-user rate limit.",
		}),
		answers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "answerflow_devserver_answers_total",
			Help: "Answers served by endpoint.",
		}, []string{"endpoint"}),
	}
	reg.MustRegister(m.cacheLookups, m.rateLimited, m.answers)
	return m
}
