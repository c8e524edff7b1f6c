package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// HAStateTransitions counts local mode transitions by from/to mode and rule.
	HAStateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradegate_ha_state_transitions_total",
			Help: "Total number of local mode transitions",
		},
		[]string{"from_mode", "to_mode", "reason"},
	)

	// HAIsActive indicates whether this host is currently active (1) or passive (0).
	HAIsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tradegate_ha_is_active",
			Help: "Whether this host is currently active (1=active, 0=passive)",
		},
	)

	// HAFencingToken is the fencing token of this host's last successful write.
	HAFencingToken = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tradegate_ha_fencing_token",
			Help: "Fencing token of the last successful lease write by this host",
		},
	)

	// HAHeartbeatDuration measures one heartbeat tick (read, decide, write).
	HAHeartbeatDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tradegate_ha_heartbeat_duration_seconds",
			Help:    "Heartbeat tick duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 5},
		},
	)

	// HAHeartbeatErrors counts heartbeat ticks that failed on the store.
	HAHeartbeatErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradegate_ha_heartbeat_errors_total",
			Help: "Total number of heartbeat store errors",
		},
		[]string{"operation"},
	)

	// HALeaseRejections counts conditional lease writes refused by the store.
	HALeaseRejections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tradegate_ha_lease_rejections_total",
			Help: "Total number of lease writes rejected by the store",
		},
	)

	// HALastHeartbeat tracks the timestamp of the last successful lease write.
	HALastHeartbeat = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tradegate_ha_last_heartbeat_timestamp_seconds",
			Help: "Unix timestamp of the last successful lease write",
		},
	)

	// HAHookCalls counts transition hook calls by hook and result.
	HAHookCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradegate_ha_hook_calls_total",
			Help: "Total number of transition hook calls",
		},
		[]string{"hook", "result"},
	)
)

// registerHAMetrics registers all HA-related metrics.
func registerHAMetrics() error {
	return registerAll(
		HAStateTransitions,
		HAIsActive,
		HAFencingToken,
		HAHeartbeatDuration,
		HAHeartbeatErrors,
		HALeaseRejections,
		HALastHeartbeat,
		HAHookCalls,
	)
}
