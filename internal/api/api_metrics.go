package api

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/linnemanlabs/ksiwatch/internal/deadline"
)

// Metrics holds Prometheus metrics for the API handlers.
type Metrics struct {
	DeadlinesTotal *prometheus.CounterVec
}

// NewMetrics registers and returns API metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		DeadlinesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ksiwatch_deadline_computations_total",
			Help: "Deadlines computed through the API by tier.",
		}, []string{"tier"}),
	}
	reg.MustRegister(m.DeadlinesTotal)
	return m
}

// Hooks returns API Hooks that update the corresponding metrics.
func (m *Metrics) Hooks() Hooks {
	return Hooks{
		OnDeadline: func(tier deadline.Tier) {
			m.DeadlinesTotal.WithLabelValues(string(tier)).Inc()
		},
	}
}
