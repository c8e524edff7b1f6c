package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// SignalDecisions counts gate decisions; reason is "accepted" for accepted signals.
	SignalDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradegate_signal_decisions_total",
			Help: "Total number of signal gate decisions by reason",
		},
		[]string{"reason"},
	)

	// SignalDuplicates counts signals answered from the idempotency store.
	SignalDuplicates = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tradegate_signal_duplicates_total",
			Help: "Total number of duplicate signals",
		},
	)

	// SignalAuthFailures counts signals rejected by signature verification.
	SignalAuthFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tradegate_signal_auth_failures_total",
			Help: "Total number of signals with an invalid signature",
		},
	)

	// LastSignalAccepted is the unix time of the last accepted signal.
	LastSignalAccepted = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tradegate_last_signal_accepted_timestamp_seconds",
			Help: "Unix timestamp of the last accepted signal",
		},
	)

	// PolicyFlagChanges counts calendar flag transitions.
	PolicyFlagChanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradegate_policy_flag_changes_total",
			Help: "Total number of calendar policy flag transitions",
		},
		[]string{"flag", "state"},
	)
)

// registerGateMetrics registers signal gate metrics.
func registerGateMetrics() error {
	return registerAll(
		SignalDecisions,
		SignalDuplicates,
		SignalAuthFailures,
		LastSignalAccepted,
		PolicyFlagChanges,
	)
}
