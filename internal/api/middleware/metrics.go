package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"tradegate.io/server/internal/metrics"
)

// scrapePath is served by promhttp and is not counted.
const scrapePath = "/metrics"

// MetricsMiddleware records request count, latency and in-flight requests
// labelled by route template. Register it before the request logger so the
// measured latency covers the whole chain.
//
// Returns:
//   - Gin middleware handler function
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == scrapePath {
			c.Next()
			return
		}

		metrics.HTTPRequestsInFlight.Inc()
		start := time.Now()
		defer func() {
			metrics.HTTPRequestsInFlight.Dec()
			route := routeLabel(c)
			metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
		}()

		c.Next()
	}
}

// routeLabel is the matched route template, or "unmatched" so scans of
// random paths cannot grow label cardinality.
func routeLabel(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return "unmatched"
}
