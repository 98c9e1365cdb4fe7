// Package main is the entry point for the core service.
//
// The service answers a small HTTP API and observes every request:
// X-Process-Time timing, a logfmt access log correlated by trace id, and a
// server span per request exported to the configured collector.
//
// Configuration:
//   - Environment variables (12-factor)
//   - CLI flags (override env vars)
//   - Defaults matching a containerized deployment
//
// Usage:
//
//	# Production mode, spans to the collector at otel-collector:4317
//	./server -port 8000
//
//	# Local run, spans printed to stdout
//	./server -env LOCAL -exporter stdout -log-level debug
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
