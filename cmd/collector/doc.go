// Package main runs the development OTLP trace collector.
//
// Point the core service at it with OTEL_HOST/OTEL_PORT (or -otel-host and
// -otel-port) and every exported span is logged here, one line per span.
//
// Usage:
//
//	./collector -addr :4317 -metrics-addr :9464
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
