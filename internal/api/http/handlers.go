package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/deltat/coreservice/internal/infrastructure/logging"
	"github.com/deltat/coreservice/internal/infrastructure/monitoring"
	"github.com/deltat/coreservice/internal/infrastructure/tracing"
)

// Response bodies of the public endpoints.
const (
	HelloMessage   = "Hello World!"
	TracingMessage = "Trace On"
)

// ServiceInfo describes the running service in health responses.
type ServiceInfo struct {
	Name        string
	Environment string
	Version     string
}

// Handlers contains all HTTP handlers
type Handlers struct {
	logger  *logging.Logger
	metrics *monitoring.Metrics
	info    ServiceInfo
}

// NewHandlers creates a new handler set. metrics may be nil.
func NewHandlers(logger *logging.Logger, metrics *monitoring.Metrics, info ServiceInfo) *Handlers {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handlers{
		logger:  logger,
		metrics: metrics,
		info:    info,
	}
}

// Register mounts the handlers on r. The greeting lives under apiPrefix; the
// trace check, health and metrics routes are unprefixed. A nil metricsHandler
// leaves /metrics unregistered.
func (h *Handlers) Register(r gin.IRoutes, apiPrefix string, metricsHandler http.Handler) {
	r.GET(strings.TrimSuffix(apiPrefix, "/")+"/", h.Hello)
	r.GET("/tracing", h.Tracing)
	r.GET("/health", h.Health)
	if metricsHandler != nil {
		r.GET("/metrics", gin.WrapH(metricsHandler))
	}
}

// Hello handles the API root
func (h *Handlers) Hello(c *gin.Context) {
	c.JSON(http.StatusOK, HelloMessage)
}

// Tracing answers from a child span of the request span so the trace
// pipeline can be checked end to end.
func (h *Handlers) Tracing(c *gin.Context) {
	ctx, span := tracing.StartSpan(c.Request.Context(), "tracing.check",
		trace.WithAttributes(attribute.String("check.response", TracingMessage)),
	)
	defer span.End()

	h.logger.WithContext(ctx).Debug("trace check",
		zap.String("span_id", tracing.SpanID(ctx)),
	)
	span.AddEvent("check answered")

	c.JSON(http.StatusOK, TracingMessage)
}

// Health handles detailed health check
func (h *Handlers) Health(c *gin.Context) {
	body := gin.H{
		"status":      "healthy",
		"service":     h.info.Name,
		"environment": h.info.Environment,
	}
	if h.info.Version != "" {
		body["version"] = h.info.Version
	}
	if h.metrics != nil {
		body["metrics"] = h.metrics.Snapshot()
	}
	c.JSON(http.StatusOK, body)
}
