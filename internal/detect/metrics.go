package detect

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the detection subsystem.
type Metrics struct {
	DispatchesTotal  *prometheus.CounterVec
	FindingsTotal    *prometheus.CounterVec
	DispatchDuration *prometheus.HistogramVec
}

// NewMetrics registers and returns detection metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		DispatchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_dispatches_total",
			Help: "Total analyzer dispatches by analyzer and outcome.",
		}, []string{"analyzer", "outcome"}),
		FindingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_findings_total",
			Help: "Total persisted findings by analyzer.",
		}, []string{"analyzer"}),
		DispatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sentinel_dispatch_duration_seconds",
			Help:    "Duration of analyzer dispatches in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 8), // 0.5s .. ~64s
		}, []string{"analyzer"}),
	}

	reg.MustRegister(
		m.DispatchesTotal,
		m.FindingsTotal,
		m.DispatchDuration,
	)
	return m
}
