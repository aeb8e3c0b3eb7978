package transactor

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the engine's Prometheus collectors.
type Metrics struct {
	Transactions  prometheus.Counter
	Facts         *prometheus.CounterVec
	Recipients    prometheus.Counter
	ApplyDuration prometheus.Histogram
	Queries       prometheus.Gauge
	Errors        *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg when reg is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Transactions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "factdb",
			Subsystem: "engine",
			Name:      "transactions_total",
		}),
		Facts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "factdb",
			Subsystem: "engine",
			Name:      "facts_total",
		}, []string{"op"}),
		Recipients: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "factdb",
			Subsystem: "engine",
			Name:      "broadcast_recipients_total",
		}),
		ApplyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "factdb",
			Subsystem: "engine",
			Name:      "apply_duration_seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		Queries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "factdb",
			Subsystem: "engine",
			Name:      "subscribed_queries",
		}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "factdb",
			Subsystem: "engine",
			Name:      "errors_total",
		}, []string{"op"}),
	}
	if reg != nil {
		reg.MustRegister(m.Transactions, m.Facts, m.Recipients, m.ApplyDuration, m.Queries, m.Errors)
	}
	return m
}
