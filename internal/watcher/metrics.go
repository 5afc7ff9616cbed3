package watcher

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts watch sessions. A nil *Metrics is valid and records nothing.
type Metrics struct {
	sessions *prometheus.CounterVec
	polls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics registers the watcher collectors on reg. A nil reg leaves them
// unregistered, which tests use.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chainkit",
			Subsystem: "watcher",
			Name:      "sessions_total",
			Help:      "Watch sessions by kind and outcome.",
		}, []string{"kind", "outcome"}),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chainkit",
			Subsystem: "watcher",
			Name:      "polls_total",
			Help:      "Poll fetches issued by kind.",
		}, []string{"kind"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "chainkit",
			Subsystem: "watcher",
			Name:      "session_duration_seconds",
			Help:      "Wall clock duration of watch sessions.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}, []string{"kind", "outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.sessions, m.polls, m.duration)
	}
	return m
}

func (m *Metrics) poll(kind string) {
	if m == nil {
		return
	}
	m.polls.WithLabelValues(kind).Inc()
}

func (m *Metrics) observe(kind string, outcome Outcome, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues(kind, outcome.String()).Inc()
	m.duration.WithLabelValues(kind, outcome.String()).Observe(elapsed.Seconds())
}
