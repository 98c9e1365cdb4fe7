package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/deltat/coreservice/internal/infrastructure/tracing"

// CurrentSpan returns the span active in ctx. The bool is false when ctx
// carries no valid span.
func CurrentSpan(ctx context.Context) (trace.Span, bool) {
	span := trace.SpanFromContext(ctx)
	return span, span.SpanContext().IsValid()
}

// WithActiveSpan runs fn with span as the active span. ctx itself is left
// untouched, so whatever span it held is current again once fn returns,
// errors or panics.
func WithActiveSpan(ctx context.Context, span trace.Span, fn func(context.Context) error) error {
	return fn(trace.ContextWithSpan(ctx, span))
}

// TraceID returns the active trace id as 32 lowercase hex digits, or "" when
// no span is active.
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

// SpanID returns the active span id as 16 lowercase hex digits, or "".
func SpanID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasSpanID() {
		return ""
	}
	return sc.SpanID().String()
}

// StartSpan starts a child of the span active in ctx using that span's
// provider, or a root span from the global provider when there is none.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	tp := otel.GetTracerProvider()
	if parent, ok := CurrentSpan(ctx); ok {
		tp = parent.TracerProvider()
	}
	return tp.Tracer(instrumentationName).Start(ctx, name, opts...)
}
