// Package middleware provides the HTTP middleware chain of the core service.
//
// Chain order, outermost first:
//   - Recovery: turns a panic into a 500 (gin.Recovery)
//   - RequestID: accepts or mints X-Request-ID and stores it in the context
//   - Tracing: server span per request (tracing.HTTPMiddleware)
//   - AccessLog: one trace-correlated line per request, also on panic
//   - Metrics: Prometheus request metrics (monitoring.Middleware)
//   - Timing: X-Process-Time response header
//   - CORS: Cross-origin resource sharing with configurable origins
//   - RateLimit: Per-IP token bucket rate limiting
//
// AccessLog must sit inside Tracing so the span is active when the line is
// written. Timing sits innermost of the observers so its figure covers the
// handler only.
//
// Rate Limiting:
//   - Per-IP tracking with idle client cleanup
//   - Token bucket algorithm
//   - Configurable RPS and burst capacity
//   - Global rate limiting option
//
// Example Usage:
//
//	chain := middleware.NewChain().
//		Append("recovery", gin.Recovery()).
//		Append("request_id", middleware.RequestID()).
//		Append("timing", middleware.Timing())
//	chain.Install(router)
package middleware
