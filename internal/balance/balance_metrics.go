package balance

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// BalanceOpsTotal counts balance operations by type.
	BalanceOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trunggian",
			Name:      "balance_operations_total",
			Help:      "Total balance operations by type.",
		},
		[]string{"type"},
	)

	// BalanceOpDuration observes operation latency by type.
	BalanceOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "trunggian",
			Name:      "balance_operation_duration_seconds",
			Help:      "Balance operation duration in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		},
		[]string{"type"},
	)
)

func init() {
	prometheus.MustRegister(
		BalanceOpsTotal,
		BalanceOpDuration,
	)
}

// observeOp increments the operation counter and returns a function to observe duration.
func observeOp(opType string) func() {
	BalanceOpsTotal.WithLabelValues(opType).Inc()
	start := time.Now()
	return func() {
		BalanceOpDuration.WithLabelValues(opType).Observe(time.Since(start).Seconds())
	}
}
