/*
Package metrics provides Prometheus metrics for the share driver.

# Overview

A Collector owns a private Prometheus registry and records three families
of measurements:

	┌─────────────┐
	│  Collector  │
	└──────┬──────┘
	       │
	   ┌───┴──────────────┬────────────────────┐
	   │                  │                    │
	┌──▼─────────┐  ┌─────▼──────────┐  ┌──────▼─────────┐
	│  Executor  │  │ Driver ops     │  │ Network / SSH  │
	│ executions │  │ operations     │  │ calls, pool    │
	│ retries    │  │ durations      │  │ connections    │
	└────────────┘  └────────────────┘  └────────────────┘

Every recording method is safe on a nil or disabled Collector, so
components take an optional *Collector and never check for it.

# Serving

	collector, err := metrics.NewCollector(metrics.ConfigFrom(cfg), logger)
	if err != nil {
		return err
	}
	if err := collector.Start(ctx); err != nil {
		return err
	}
	defer collector.Stop(context.Background())

Handler returns the promhttp handler for embedding in another mux.

# Metric names

With the default "sharedriver" namespace:

	sharedriver_executions_total{status}
	sharedriver_execution_duration_seconds
	sharedriver_execution_retries_total
	sharedriver_execution_retries_exhausted_total
	sharedriver_driver_operations_total{operation,status}
	sharedriver_driver_operation_duration_seconds{operation}
	sharedriver_network_calls_total{call,status}
	sharedriver_ssh_pool_connections{host}
	sharedriver_errors_total{operation,category}

Error categories come from pkg/errors; errors outside that taxonomy are
counted as "other".
*/
package metrics
