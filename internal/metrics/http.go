package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// HTTPRequestsTotal counts requests by method, route template and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradegate_http_requests_total",
			Help: "Total number of HTTP requests by route",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDuration covers the whole middleware chain. Signal intake
	// sits at the low end; owner commands that call hooks reach seconds.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tradegate_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds by route",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .5, 1, 5, 15},
		},
		[]string{"method", "route"},
	)

	// HTTPRequestsInFlight tracks currently processing requests.
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tradegate_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// HTTPErrorsTotal counts error bodies by route and error code, so a
	// burst of auth_failed on /api/v1/signals stands out from 5xx noise.
	HTTPErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradegate_http_errors_total",
			Help: "Total number of API error responses by route and code",
		},
		[]string{"route", "code"},
	)

	// SignalBodyBytes is the size of signal bodies read by the signature guard.
	SignalBodyBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tradegate_signal_body_bytes",
			Help:    "Size of inbound signal bodies in bytes",
			Buckets: prometheus.ExponentialBuckets(64, 2, 11), // 64B .. 64KiB
		},
	)
)

func registerHTTPMetrics() error {
	return registerAll(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		HTTPRequestsInFlight,
		HTTPErrorsTotal,
		SignalBodyBytes,
	)
}
