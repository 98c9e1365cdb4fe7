// Package config provides 12-factor configuration management for the core service.
//
// Configuration is loaded from environment variables with sensible defaults.
// CLI flags in cmd/server can override environment variables.
//
// Configuration Sections:
//   - Project: project name, environment flag (LOCAL vs. anything else), API prefix
//   - Server: HTTP bind address and graceful shutdown timeout
//   - Logging: level, line format, logger name, access log level
//   - Tracing: collector address, exporter backend, batching
//   - Breaker: exporter circuit breaker thresholds
//   - CORS, RateLimit: optional HTTP middleware
//
// Example Usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(cfg.Server.Addr(), cfg.Tracing.Endpoint())
//
// Environment Variables:
//   - PROJECT_NAME, ENVIRONMENT, API_V1_STR
//   - HOST, PORT, SHUTDOWN_TIMEOUT
//   - LOGLEVEL, LOG_FORMAT, LOG_NAME, LOG_OUTPUT, ACCESS_LOG_LEVEL
//   - OTEL_SERVICE_NAME, OTEL_HOST, OTEL_PORT, OTEL_EXPORTER, OTEL_PROPAGATE
//   - OTEL_BATCH_TIMEOUT, OTEL_BATCH_SIZE, OTEL_QUEUE_SIZE, OTEL_EXPORT_TIMEOUT
//   - EXPORT_BREAKER_FAILURES, EXPORT_BREAKER_TIMEOUT
//   - CORS_ENABLED, CORS_ORIGINS, RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
package config
