package tracing

import (
	"context"
	"errors"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/deltat/coreservice/internal/infrastructure/resilience"
)

// Drop reasons reported to an ExportObserver.
const (
	DropBreakerOpen = "breaker_open"
	DropExportError = "export_error"
)

// ExportObserver receives export outcomes, typically to feed metrics.
type ExportObserver interface {
	SpansExported(n int)
	SpansDropped(n int, reason string)
}

// GuardedExporter sends batches through a circuit breaker. While the breaker
// is open batches are dropped without touching the network and the drop is
// not reported as an error, so an unreachable collector costs nothing on the
// export path.
type GuardedExporter struct {
	next     sdktrace.SpanExporter
	breaker  *resilience.Breaker
	observer ExportObserver
	logger   *zap.Logger
}

var _ sdktrace.SpanExporter = (*GuardedExporter)(nil)

// NewGuardedExporter wraps next. observer and logger may be nil.
func NewGuardedExporter(next sdktrace.SpanExporter, breaker *resilience.Breaker, observer ExportObserver, logger *zap.Logger) *GuardedExporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GuardedExporter{
		next:     next,
		breaker:  breaker,
		observer: observer,
		logger:   logger,
	}
}

// ExportSpans implements sdktrace.SpanExporter.
func (e *GuardedExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	if len(spans) == 0 {
		return nil
	}

	err := e.breaker.Call(ctx, func(ctx context.Context) error {
		return e.next.ExportSpans(ctx, spans)
	})

	switch {
	case err == nil:
		if e.observer != nil {
			e.observer.SpansExported(len(spans))
		}
		return nil
	case errors.Is(err, resilience.ErrCircuitOpen), errors.Is(err, resilience.ErrTooManyRequests):
		if e.observer != nil {
			e.observer.SpansDropped(len(spans), DropBreakerOpen)
		}
		e.logger.Debug("dropping span batch",
			zap.String("breaker", e.breaker.Name()),
			zap.Int("spans", len(spans)))
		return nil
	default:
		if e.observer != nil {
			e.observer.SpansDropped(len(spans), DropExportError)
		}
		return err
	}
}

// Shutdown implements sdktrace.SpanExporter.
func (e *GuardedExporter) Shutdown(ctx context.Context) error {
	return e.next.Shutdown(ctx)
}
