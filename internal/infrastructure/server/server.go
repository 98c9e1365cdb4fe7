package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	apihttp "github.com/deltat/coreservice/internal/api/http"
	"github.com/deltat/coreservice/internal/api/middleware"
	"github.com/deltat/coreservice/internal/infrastructure/config"
	"github.com/deltat/coreservice/internal/infrastructure/logging"
	"github.com/deltat/coreservice/internal/infrastructure/monitoring"
	"github.com/deltat/coreservice/internal/infrastructure/resilience"
	"github.com/deltat/coreservice/internal/infrastructure/tracing"
)

// ExportBreakerName labels the span exporter's circuit breaker in logs and metrics.
const ExportBreakerName = "span-exporter"

// Version is reported by the health endpoint. Set at build time with -ldflags.
var Version = "dev"

// Server wraps the HTTP server and dependencies
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	tp         *sdktrace.TracerProvider
	breaker    *resilience.Breaker
	chain      *middleware.Chain
	logger     *logging.Logger
	config     *config.Config
	metrics    *monitoring.Metrics
	registry   *prometheus.Registry
}

type options struct {
	logger    *logging.Logger
	registry  *prometheus.Registry
	exporter  sdktrace.SpanExporter
	processor sdktrace.SpanProcessor
	sync      bool
}

// Option customizes NewServer.
type Option func(*options)

// WithLogger uses logger instead of one built from the logging configuration.
func WithLogger(logger *logging.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithRegistry registers the metrics on reg instead of a fresh registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// WithSpanExporter exports to exp instead of the configured backend.
func WithSpanExporter(exp sdktrace.SpanExporter) Option {
	return func(o *options) { o.exporter = exp }
}

// WithSpanProcessor adds sp to the tracer provider, next to the exporter.
func WithSpanProcessor(sp sdktrace.SpanProcessor) Option {
	return func(o *options) { o.processor = sp }
}

// WithSynchronousExport exports each span as it ends. Tests only.
func WithSynchronousExport() Option {
	return func(o *options) { o.sync = true }
}

// NewServer creates a new server instance
func NewServer(ctx context.Context, cfg *config.Config, opts ...Option) (*Server, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	logger := o.logger
	if logger == nil {
		var err error
		logger, err = newLogger(cfg)
		if err != nil {
			return nil, err
		}
	}
	accessLevel, err := logging.ParseLevel(cfg.Logging.AccessLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid ACCESS_LOG_LEVEL: %w", err)
	}

	logger.Info("Initializing core service",
		zap.String("project", cfg.Project.Name),
		zap.String("environment", cfg.Project.Environment),
		zap.String("addr", cfg.Server.Addr()),
		zap.String("exporter", cfg.Tracing.Exporter),
	)

	// Metrics first, the breaker and the exporter report into them
	reg := o.registry
	if reg == nil {
		reg = monitoring.NewRegistry()
	}
	metrics := monitoring.NewMetrics(reg)

	breaker := resilience.New(ExportBreakerName, resilience.Settings{
		FailureThreshold: cfg.Breaker.MaxFailures,
		OpenTimeout:      cfg.Breaker.Timeout,
		OnStateChange: func(name string, from, to resilience.State) {
			metrics.BreakerStateChanged(name, from, to)
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		},
	})

	tracing.InstallDiagnostics(logger.Logger)
	tp, err := newTracerProvider(ctx, cfg, o, breaker, metrics, logger)
	if err != nil {
		return nil, err
	}
	tracing.Install(tp)
	logger.Info("Distributed tracing initialized", zap.String("service", cfg.Tracing.ServiceName))

	if !cfg.IsLocal() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	// Redirects and 405s are answered from inside the chain so they are
	// timed, traced and logged like any other response.
	router.RedirectTrailingSlash = false
	router.RedirectFixedPath = false
	router.HandleMethodNotAllowed = true

	chain := newChain(cfg, logger, accessLevel, tp, metrics)
	chain.Install(router)
	router.NoRoute(middleware.SlashRedirect(router.Routes))

	handlers := apihttp.NewHandlers(logger, metrics, apihttp.ServiceInfo{
		Name:        cfg.Project.Name,
		Environment: cfg.Project.Environment,
		Version:     Version,
	})
	handlers.Register(router, cfg.Project.APIV1Prefix, monitoring.Handler(reg))

	logger.Info("Server initialized successfully", zap.Strings("middleware", chain.Names()))

	return &Server{
		router: router,
		httpServer: &http.Server{
			Addr:              cfg.Server.Addr(),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		tp:       tp,
		breaker:  breaker,
		chain:    chain,
		logger:   logger,
		config:   cfg,
		metrics:  metrics,
		registry: reg,
	}, nil
}

func newLogger(cfg *config.Config) (*logging.Logger, error) {
	logCfg := logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.IsLocal(),
		Format:      cfg.Logging.Format,
		Name:        cfg.Logging.Name,
		OutputPaths: []string{cfg.Logging.Output},
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger, nil
}

func newTracerProvider(
	ctx context.Context,
	cfg *config.Config,
	o *options,
	breaker *resilience.Breaker,
	metrics *monitoring.Metrics,
	logger *logging.Logger,
) (*sdktrace.TracerProvider, error) {
	builder := tracing.Provider().
		WithServiceName(cfg.Tracing.ServiceName).
		WithAttributes(
			semconv.ServiceNamespace(cfg.Project.Name),
			semconv.DeploymentEnvironment(cfg.Project.Environment),
		).
		WithBatching(cfg.Tracing.BatchTimeout, cfg.Tracing.BatchSize, cfg.Tracing.QueueSize, cfg.Tracing.ExportTimeout).
		WithBreaker(breaker, metrics, logger.Logger)

	if o.exporter != nil {
		builder.WithSpanExporter(o.exporter)
	} else {
		kind, err := tracing.ParseExporterKind(cfg.Tracing.Exporter)
		if err != nil {
			return nil, fmt.Errorf("invalid OTEL_EXPORTER: %w", err)
		}
		endpoint := cfg.Tracing.Endpoint()
		if kind == tracing.ExporterZipkin {
			endpoint = cfg.Tracing.ZipkinURL
		}
		builder.WithExporter(ctx, kind, endpoint)
	}
	if o.processor != nil {
		builder.WithSpanProcessor(o.processor)
	}
	if o.sync {
		builder.Synchronous()
	}

	tp, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build tracer provider: %w", err)
	}
	return tp, nil
}

// newChain assembles the middleware in execution order, outermost first.
func newChain(
	cfg *config.Config,
	logger *logging.Logger,
	accessLevel zapcore.Level,
	tp *sdktrace.TracerProvider,
	metrics *monitoring.Metrics,
) *middleware.Chain {
	chain := middleware.NewChain().
		Append("recovery", recovery(logger)).
		Append("request_id", middleware.RequestID()).
		Append("tracing", tracing.HTTPMiddleware(
			tracing.WithTracerProvider(tp),
			tracing.WithPropagation(cfg.Tracing.Propagate),
		)).
		Append("access_log", middleware.AccessLog(logger, accessLevel)).
		Append("metrics", monitoring.Middleware(metrics)).
		Append("timing", middleware.Timing())

	if cfg.CORS.Enabled {
		corsCfg := middleware.DefaultCORSConfig()
		if len(cfg.CORS.Origins) > 0 {
			corsCfg.AllowOrigins = cfg.CORS.Origins
		}
		chain.Append("cors", middleware.CORS(corsCfg))
	}
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		chain.Append("rate_limit", middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: float64(cfg.RateLimit.RequestsPerSecond),
			Burst:             cfg.RateLimit.Burst,
		}))
	}
	return chain
}

// recovery turns a panic into a bare 500 and logs it with the request's
// trace id. It replaces gin's writer-based recovery output.
func recovery(logger *logging.Logger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, recovered any) {
		logger.WithContext(c.Request.Context()).Error("Panic recovered",
			zap.String("path", c.Request.URL.Path),
			zap.Any("panic", recovered),
			zap.StackSkip("stack", 2),
		)
		c.AbortWithStatus(http.StatusInternalServerError)
	})
}

// Router returns the HTTP handler with the full middleware chain installed.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Metrics returns the server's metrics.
func (s *Server) Metrics() *monitoring.Metrics {
	return s.metrics
}

// MiddlewareNames returns the installed middleware, outermost first.
func (s *Server) MiddlewareNames() []string {
	return s.chain.Names()
}

// Breaker returns the span exporter's circuit breaker.
func (s *Server) Breaker() *resilience.Breaker {
	return s.breaker
}

// Run starts the HTTP server. It returns nil after Close.
func (s *Server) Run() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Serve accepts connections on l. It returns nil after Close.
func (s *Server) Serve(l net.Listener) error {
	s.logger.Info("Starting HTTP server", zap.String("addr", l.Addr().String()))
	if err := s.httpServer.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Close gracefully shuts down the server. In-flight requests finish first so
// their spans are queued before the tracer provider flushes.
func (s *Server) Close(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	var err error
	if herr := s.httpServer.Shutdown(ctx); herr != nil {
		s.logger.Error("Failed to stop HTTP server", zap.Error(herr))
		err = multierr.Append(err, fmt.Errorf("failed to stop http server: %w", herr))
	}
	if terr := s.tp.Shutdown(ctx); terr != nil {
		s.logger.Error("Failed to flush spans", zap.Error(terr))
		err = multierr.Append(err, fmt.Errorf("failed to shut down tracer provider: %w", terr))
	}

	// Sync logger before exit
	_ = s.logger.Sync()

	return err
}
