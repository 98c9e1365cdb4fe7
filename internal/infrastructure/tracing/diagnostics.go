package tracing

import (
	"github.com/go-logr/zapr"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

// InstallDiagnostics routes the OpenTelemetry SDK's internal logging and
// error reporting into logger. Export failures land here at warn level; they
// never reach the request path.
func InstallDiagnostics(logger *zap.Logger) {
	otel.SetLogger(zapr.NewLogger(logger.Named("otel")))
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		logger.Warn("telemetry error", zap.Error(err))
	}))
}
