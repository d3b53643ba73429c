package evidence

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the evidence subsystem.
type Metrics struct {
	MergesTotal     *prometheus.CounterVec
	MergeDuration   *prometheus.HistogramVec
	MergeConflicts  *prometheus.CounterVec
	SummaryWarnings *prometheus.CounterVec
	ProducerRuns    *prometheus.CounterVec
	ProducerTime    *prometheus.HistogramVec
}

// NewMetrics registers and returns evidence metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		MergesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ksiwatch_evidence_merges_total",
			Help: "Total evidence merges by category and outcome.",
		}, []string{"category", "outcome"}),
		MergeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ksiwatch_evidence_merge_duration_seconds",
			Help:    "Duration of evidence merge transactions including retries.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms .. ~2s
		}, []string{"category"}),
		MergeConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ksiwatch_evidence_merge_conflicts_total",
			Help: "Version conflicts hit by merge transactions.",
		}, []string{"category"}),
		SummaryWarnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ksiwatch_evidence_summary_warnings_total",
			Help: "Components skipped while summarizing a category.",
		}, []string{"category"}),
		ProducerRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ksiwatch_producer_runs_total",
			Help: "Evidence producer runs by producer and outcome.",
		}, []string{"producer", "outcome"}),
		ProducerTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ksiwatch_producer_duration_seconds",
			Help:    "Time spent gathering evidence per producer run.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms .. ~25s
		}, []string{"producer"}),
	}

	reg.MustRegister(
		m.MergesTotal,
		m.MergeDuration,
		m.MergeConflicts,
		m.SummaryWarnings,
		m.ProducerRuns,
		m.ProducerTime,
	)

	return m
}

// Hooks returns aggregator Hooks that update the corresponding metrics.
func (m *Metrics) Hooks() Hooks {
	return Hooks{
		OnMerge: func(category, outcome string, duration float64) {
			m.MergesTotal.WithLabelValues(category, outcome).Inc()
			m.MergeDuration.WithLabelValues(category).Observe(duration)
		},
		OnConflict: func(category string) {
			m.MergeConflicts.WithLabelValues(category).Inc()
		},
		OnSummary: func(category string, warnings int) {
			m.SummaryWarnings.WithLabelValues(category).Add(float64(warnings))
		},
	}
}

// RunHooks returns Runner hooks that update producer metrics.
func (m *Metrics) RunHooks() RunHooks {
	return RunHooks{
		OnProduce: func(producer string, duration float64, err error) {
			outcome := "success"
			if err != nil {
				outcome = "error"
			}
			m.ProducerRuns.WithLabelValues(producer, outcome).Inc()
			m.ProducerTime.WithLabelValues(producer).Observe(duration)
		},
	}
}
