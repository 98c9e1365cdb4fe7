/*
Package monitoring provides performance monitoring and metrics collection.

# Overview

This package implements Prometheus-based metrics collection for the core
service, tracking HTTP requests, span export outcomes and the export circuit
breaker. Collectors register on an injected prometheus.Registerer so tests
can build as many Metrics values as they need.

# Features

- HTTP request metrics by method and route template (latency, throughput, size)
- In-flight request gauge
- Exported, dropped and received span counters
- Breaker state gauge and transition counter
- Uptime computed at scrape time
- JSON snapshot for the health endpoint

# Usage

	reg := monitoring.NewRegistry()
	metrics := monitoring.NewMetrics(reg)

	// Add middleware to Gin router
	router.Use(monitoring.Middleware(metrics))

	// Feed export outcomes and breaker changes
	tracing.NewGuardedExporter(exp, breaker, metrics, logger)
	resilience.Settings{OnStateChange: metrics.BreakerStateChanged}

# Metrics Endpoint

Expose metrics via the standard Prometheus endpoint:

	router.GET("/metrics", gin.WrapH(monitoring.Handler(reg)))
*/
package monitoring
