package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// StoreOpDuration measures lease and dedup store operations by backend and operation.
	StoreOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tradegate_store_op_duration_seconds",
			Help:    "Store operation duration in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5},
		},
		[]string{"backend", "operation"},
	)

	// StoreOpsTotal counts store operations by backend, operation and status.
	StoreOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradegate_store_ops_total",
			Help: "Total number of store operations",
		},
		[]string{"backend", "operation", "status"},
	)
)

// registerStoreMetrics registers all store metrics.
func registerStoreMetrics() error {
	return registerAll(StoreOpDuration, StoreOpsTotal)
}
