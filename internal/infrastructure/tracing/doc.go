/*
Package tracing provides distributed tracing on top of the OpenTelemetry SDK.

# Overview

Every HTTP request runs inside a server span created by HTTPMiddleware. The
span lives in the request's context.Context, which makes it the active span
for everything downstream: the access log, application logs, and any child
spans handlers start. Spans are batched and exported to a configurable
backend; export problems are isolated behind a circuit breaker and never
affect request handling.

# Features

- W3C trace context propagation via HTTP headers and gRPC metadata
- Span names from the gin route template, "<unmatched>" otherwise
- Pluggable exporters: OTLP gRPC, OTLP HTTP, Zipkin, stdout, none
- Batching with timer and size thresholds; synchronous mode for tests
- Circuit-broken export with drop accounting
- SDK diagnostics routed to zap

# Usage

	tp, err := tracing.Provider().
		WithServiceName("deltat_core").
		WithExporter(ctx, tracing.ExporterOTLP, "otel-collector:4317").
		WithBreaker(breaker, metrics, logger).
		Build()
	if err != nil {
		return err
	}
	defer tp.Shutdown(ctx)

	router.Use(tracing.HTTPMiddleware(tracing.WithTracerProvider(tp)))

	// In a handler
	ctx, span := tracing.StartSpan(c.Request.Context(), "load")
	defer span.End()
	traceID := tracing.TraceID(ctx)

# Trace Format

Incoming requests may carry a parent in the standard header:

	traceparent: 00-<32 hex trace id>-<16 hex span id>-<flags>

Responses carry the trace id in X-Trace-ID.
*/
package tracing
