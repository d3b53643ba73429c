package inbox

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/linnemanlabs/ksiwatch/internal/deadline"
)

// Metrics holds Prometheus metrics for the inbox scanner.
type Metrics struct {
	ScansTotal   *prometheus.CounterVec
	NoticesTotal *prometheus.CounterVec
}

// NewMetrics registers and returns inbox metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ScansTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ksiwatch_inbox_scans_total",
			Help: "Inbox messages scanned by outcome.",
		}, []string{"outcome"}),
		NoticesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ksiwatch_inbox_notices_total",
			Help: "Deadline notices sent by tier.",
		}, []string{"tier"}),
	}
	reg.MustRegister(m.ScansTotal, m.NoticesTotal)
	return m
}

// Hooks returns scanner Hooks that update the corresponding metrics.
func (m *Metrics) Hooks() Hooks {
	return Hooks{
		OnScan: func(outcome string, tier deadline.Tier) {
			m.ScansTotal.WithLabelValues(outcome).Inc()
			if outcome == OutcomeNotified {
				m.NoticesTotal.WithLabelValues(string(tier)).Inc()
			}
		},
	}
}
