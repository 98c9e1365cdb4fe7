// Package server assembles the core service from its configuration.
//
// Server Lifecycle:
//  1. Load configuration from environment/flags
//  2. Build the logger and route OpenTelemetry diagnostics into it
//  3. Create the metrics registry and the exporter circuit breaker
//  4. Build the tracer provider for the configured exporter
//  5. Install the middleware chain and the routes
//  6. Serve HTTP
//  7. On shutdown stop HTTP first, then flush and stop the tracer provider
//
// Middleware order, outermost first:
//
//	recovery → request_id → tracing → access_log → metrics → timing → [cors, rate_limit] → handler
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	srv, err := server.NewServer(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	go srv.Run()
//	defer srv.Close(ctx)
package server
