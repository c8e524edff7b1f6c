package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// CommandsTotal counts owner commands by command name and result.
	CommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradegate_commands_total",
			Help: "Total number of owner commands",
		},
		[]string{"command", "result"},
	)

	// RateLimitBlocks counts requests refused by a rate limiter.
	RateLimitBlocks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradegate_ratelimit_blocks_total",
			Help: "Total number of rate limit blocks",
		},
		[]string{"limit_type"},
	)

	// RateLimitWindows tracks the number of live per-sender windows.
	RateLimitWindows = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tradegate_ratelimit_windows",
			Help: "Number of per-sender rate limit windows currently held",
		},
	)
)

// registerCommandMetrics registers command and rate limit metrics.
func registerCommandMetrics() error {
	return registerAll(CommandsTotal, RateLimitBlocks, RateLimitWindows)
}
