package adapter

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts factory and adapter method outcomes. A nil *Metrics is a
// no-op.
type Metrics struct {
	created       *prometheus.CounterVec
	createFailed  *prometheus.CounterVec
	methodFailure *prometheus.CounterVec
}

// NewMetrics registers the adapter collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		created: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chainkit",
			Subsystem: "adapter",
			Name:      "created_total",
			Help:      "Adapters successfully created by the factory",
		}, []string{"module", "adapter"}),
		createFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chainkit",
			Subsystem: "adapter",
			Name:      "create_failures_total",
			Help:      "Factory create calls that failed, by error kind",
		}, []string{"module", "adapter", "kind"}),
		methodFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chainkit",
			Subsystem: "adapter",
			Name:      "method_failures_total",
			Help:      "Adapter method calls that failed",
		}, []string{"module", "adapter", "method"}),
	}
	if reg != nil {
		reg.MustRegister(m.created, m.createFailed, m.methodFailure)
	}
	return m
}

func (m *Metrics) createOK(kind ModuleKind, name string) {
	if m == nil {
		return
	}
	m.created.WithLabelValues(string(kind), name).Inc()
}

func (m *Metrics) createError(kind ModuleKind, name string, errKind ErrorKind) {
	if m == nil {
		return
	}
	m.createFailed.WithLabelValues(string(kind), name, errKind.String()).Inc()
}

func (m *Metrics) methodFailed(kind ModuleKind, name, method string) {
	if m == nil {
		return
	}
	m.methodFailure.WithLabelValues(string(kind), name, method).Inc()
}
