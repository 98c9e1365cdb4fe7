// Package http provides the HTTP handlers of the core service.
//
// Endpoints:
//   - {API_V1_STR}/: greeting
//   - /tracing: trace check, answers inside a child span of the request span
//   - /health: liveness plus a metrics snapshot
//   - /metrics: Prometheus exposition
//
// Example Usage:
//
//	handlers := http.NewHandlers(logger, metrics, http.ServiceInfo{Name: "Delta T API"})
//	handlers.Register(router, "/api/v1", monitoring.Handler(registry))
package http
