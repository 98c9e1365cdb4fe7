package tracing

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/deltat/coreservice/internal/infrastructure/resilience"
)

// ErrUnknownExporter is returned for an exporter name outside the supported set.
var ErrUnknownExporter = errors.New("unknown span exporter")

// ExporterKind names a span export backend.
type ExporterKind string

const (
	ExporterOTLP     ExporterKind = "otlp"
	ExporterOTLPHTTP ExporterKind = "otlphttp"
	ExporterZipkin   ExporterKind = "zipkin"
	ExporterStdout   ExporterKind = "stdout"
	ExporterNone     ExporterKind = "none"
)

// ParseExporterKind maps a configuration value to an ExporterKind.
func ParseExporterKind(s string) (ExporterKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "otlp", "otlpgrpc", "grpc":
		return ExporterOTLP, nil
	case "otlphttp", "http":
		return ExporterOTLPHTTP, nil
	case "zipkin":
		return ExporterZipkin, nil
	case "stdout", "console":
		return ExporterStdout, nil
	case "none", "off":
		return ExporterNone, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownExporter, s)
	}
}

// Provider returns a new *ProviderBuilder instance.
func Provider() *ProviderBuilder {
	return &ProviderBuilder{}
}

// ProviderBuilder assembles an SDK TracerProvider. Exporter constructors
// record their errors and Build reports all of them at once.
type ProviderBuilder struct {
	exporters []sdktrace.SpanExporter
	errs      []error
	tpOpts    []sdktrace.TracerProviderOption
	batchOpts []sdktrace.BatchSpanProcessorOption
	attrs     []attribute.KeyValue
	sync      bool

	breaker  *resilience.Breaker
	observer ExportObserver
	logger   *zap.Logger
}

// WithExporter registers the exporter for kind. endpoint is host:port for the
// OTLP kinds and a full URL for zipkin; stdout and none ignore it.
func (b *ProviderBuilder) WithExporter(ctx context.Context, kind ExporterKind, endpoint string) *ProviderBuilder {
	switch kind {
	case ExporterOTLP:
		return b.WithInsecureOTLPExporter(ctx, endpoint)
	case ExporterOTLPHTTP:
		return b.WithInsecureOTLPHTTPExporter(ctx, endpoint)
	case ExporterZipkin:
		return b.WithZipkinExporter(endpoint)
	case ExporterStdout:
		return b.WithStdoutExporter()
	case ExporterNone:
		return b
	default:
		b.errs = append(b.errs, fmt.Errorf("%w: %q", ErrUnknownExporter, kind))
		return b
	}
}

// WithInsecureOTLPExporter exports over OTLP/gRPC without TLS to addr.
func (b *ProviderBuilder) WithInsecureOTLPExporter(ctx context.Context, addr string, opts ...otlptracegrpc.Option) *ProviderBuilder {
	if addr == "" {
		addr = "localhost:4317"
	}
	opts = append([]otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(addr),
		otlptracegrpc.WithInsecure(),
	}, opts...)
	exp, err := otlptracegrpc.New(ctx, opts...)
	return b.add(exp, err, ExporterOTLP)
}

// WithInsecureOTLPHTTPExporter exports over OTLP/HTTP protobuf without TLS to addr.
func (b *ProviderBuilder) WithInsecureOTLPHTTPExporter(ctx context.Context, addr string, opts ...otlptracehttp.Option) *ProviderBuilder {
	if addr == "" {
		addr = "localhost:4318"
	}
	opts = append([]otlptracehttp.Option{
		otlptracehttp.WithEndpoint(addr),
		otlptracehttp.WithInsecure(),
	}, opts...)
	exp, err := otlptracehttp.New(ctx, opts...)
	return b.add(exp, err, ExporterOTLPHTTP)
}

// WithZipkinExporter exports Zipkin v2 JSON to the collector URL.
func (b *ProviderBuilder) WithZipkinExporter(url string, opts ...zipkin.Option) *ProviderBuilder {
	if url == "" {
		url = "http://localhost:9411/api/v2/spans"
	}
	exp, err := zipkin.New(url, opts...)
	return b.add(exp, err, ExporterZipkin)
}

// WithStdoutExporter writes pretty JSON spans to os.Stdout, or to the writer
// given with stdouttrace.WithWriter.
func (b *ProviderBuilder) WithStdoutExporter(opts ...stdouttrace.Option) *ProviderBuilder {
	opts = append([]stdouttrace.Option{stdouttrace.WithPrettyPrint()}, opts...)
	exp, err := stdouttrace.New(opts...)
	return b.add(exp, err, ExporterStdout)
}

// WithSpanExporter registers an already constructed exporter.
func (b *ProviderBuilder) WithSpanExporter(exp sdktrace.SpanExporter) *ProviderBuilder {
	b.exporters = append(b.exporters, exp)
	return b
}

func (b *ProviderBuilder) add(exp sdktrace.SpanExporter, err error, kind ExporterKind) *ProviderBuilder {
	if err != nil {
		b.errs = append(b.errs, fmt.Errorf("failed to create %s exporter: %w", kind, err))
		return b
	}
	b.exporters = append(b.exporters, exp)
	return b
}

// WithSpanProcessor registers a processor next to the exporters, for example
// tracetest.NewSpanRecorder() in tests.
func (b *ProviderBuilder) WithSpanProcessor(sp sdktrace.SpanProcessor) *ProviderBuilder {
	b.tpOpts = append(b.tpOpts, sdktrace.WithSpanProcessor(sp))
	return b
}

// WithOptions passes raw TracerProvider options through.
func (b *ProviderBuilder) WithOptions(opts ...sdktrace.TracerProviderOption) *ProviderBuilder {
	b.tpOpts = append(b.tpOpts, opts...)
	return b
}

// WithAttributes adds resource attributes. They override the defaults.
func (b *ProviderBuilder) WithAttributes(attrs ...attribute.KeyValue) *ProviderBuilder {
	b.attrs = append(b.attrs, attrs...)
	return b
}

// WithServiceName sets the service.name resource attribute.
func (b *ProviderBuilder) WithServiceName(name string) *ProviderBuilder {
	return b.WithAttributes(semconv.ServiceName(name))
}

// WithBatching configures the batch span processor thresholds. Zero values
// keep the SDK defaults.
func (b *ProviderBuilder) WithBatching(timeout time.Duration, batchSize, queueSize int, exportTimeout time.Duration) *ProviderBuilder {
	if timeout > 0 {
		b.batchOpts = append(b.batchOpts, sdktrace.WithBatchTimeout(timeout))
	}
	if batchSize > 0 {
		b.batchOpts = append(b.batchOpts, sdktrace.WithMaxExportBatchSize(batchSize))
	}
	if queueSize > 0 {
		b.batchOpts = append(b.batchOpts, sdktrace.WithMaxQueueSize(queueSize))
	}
	if exportTimeout > 0 {
		b.batchOpts = append(b.batchOpts, sdktrace.WithExportTimeout(exportTimeout))
	}
	return b
}

// WithBreaker routes every export through breaker. observer and logger may be nil.
func (b *ProviderBuilder) WithBreaker(breaker *resilience.Breaker, observer ExportObserver, logger *zap.Logger) *ProviderBuilder {
	b.breaker = breaker
	b.observer = observer
	b.logger = logger
	return b
}

// Synchronous exports each span as it ends instead of batching.
// DO NOT use in production.
func (b *ProviderBuilder) Synchronous() *ProviderBuilder {
	b.sync = true
	return b
}

// DeterministicIDs seeds trace and span id generation. Useful for unit tests.
// DO NOT use in production.
func (b *ProviderBuilder) DeterministicIDs(seed int64) *ProviderBuilder {
	return b.WithOptions(sdktrace.WithIDGenerator(deterministicWithSeed(seed)))
}

// Build builds the SDK TracerProvider. With no exporter registered spans are
// still recorded, so trace ids exist for log correlation, but go nowhere.
func (b *ProviderBuilder) Build() (*sdktrace.TracerProvider, error) {
	if err := multierr.Combine(b.errs...); err != nil {
		return nil, err
	}

	attrs := append([]attribute.KeyValue{semconv.ServiceName("coreservice")}, b.attrs...)
	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(resource.NewWithAttributes(semconv.SchemaURL, attrs...)),
	}

	for _, exp := range b.exporters {
		if b.breaker != nil {
			exp = NewGuardedExporter(exp, b.breaker, b.observer, b.logger)
		}
		if b.sync {
			tpOpts = append(tpOpts, sdktrace.WithSyncer(exp))
			continue
		}
		tpOpts = append(tpOpts, sdktrace.WithBatcher(exp, b.batchOpts...))
	}

	tpOpts = append(tpOpts, b.tpOpts...)
	return sdktrace.NewTracerProvider(tpOpts...), nil
}

// Install registers tp and the W3C trace context propagator globally.
func Install(tp trace.TracerProvider) {
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
}

type deterministicIDGenerator struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func (g *deterministicIDGenerator) NewSpanID(context.Context, trace.TraceID) trace.SpanID {
	g.mu.Lock()
	defer g.mu.Unlock()
	sid := trace.SpanID{}
	_, _ = g.rnd.Read(sid[:])
	return sid
}

func (g *deterministicIDGenerator) NewIDs(context.Context) (trace.TraceID, trace.SpanID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	tid := trace.TraceID{}
	_, _ = g.rnd.Read(tid[:])
	sid := trace.SpanID{}
	_, _ = g.rnd.Read(sid[:])
	return tid, sid
}

func deterministicWithSeed(seed int64) sdktrace.IDGenerator {
	//nolint:gosec // reproducible ids, not secrets
	return &deterministicIDGenerator{rnd: rand.New(rand.NewSource(seed))}
}
