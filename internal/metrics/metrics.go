// Package metrics provides Prometheus metrics for the tradegate server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the global Prometheus registry for all metrics.
	Registry = prometheus.NewRegistry()

	// initialized tracks whether metrics have been initialized.
	initialized = false
)

// Init initializes the metrics registry with all collectors.
// This should be called once during application startup.
func Init() error {
	if initialized {
		return nil
	}

	if err := Registry.Register(collectors.NewGoCollector()); err != nil {
		return err
	}
	if err := Registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return err
	}

	groups := []func() error{
		registerHTTPMetrics,
		registerHAMetrics,
		registerStoreMetrics,
		registerGateMetrics,
		registerCommandMetrics,
	}
	for _, register := range groups {
		if err := register(); err != nil {
			return err
		}
	}

	initialized = true
	return nil
}

func registerAll(collectorList ...prometheus.Collector) error {
	for _, c := range collectorList {
		if err := Registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}
