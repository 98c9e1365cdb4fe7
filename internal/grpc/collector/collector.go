package collector

import (
	"context"
	"net"
	"sync"

	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	_ "google.golang.org/grpc/encoding/gzip"

	"github.com/deltat/coreservice/internal/infrastructure/tracing"
)

// DefaultCapacity is how many recent spans a Collector keeps.
const DefaultCapacity = 1024

// SpanCounter receives per-service span counts, typically to feed metrics.
type SpanCounter interface {
	RecordSpansReceived(service string, n int)
}

type options struct {
	counter    SpanCounter
	capacity   int
	tracerOpts []tracing.Option
	serverOpts []grpc.ServerOption
}

// Option configures a Collector.
type Option func(*options)

// WithMetrics reports received spans to counter.
func WithMetrics(counter SpanCounter) Option {
	return func(o *options) { o.counter = counter }
}

// WithCapacity sets how many recent spans are kept. Zero keeps none.
func WithCapacity(n int) Option {
	return func(o *options) { o.capacity = n }
}

// WithTracing passes options to the server's own tracing interceptor.
func WithTracing(opts ...tracing.Option) Option {
	return func(o *options) { o.tracerOpts = append(o.tracerOpts, opts...) }
}

// WithServerOptions appends raw gRPC server options.
func WithServerOptions(opts ...grpc.ServerOption) Option {
	return func(o *options) { o.serverOpts = append(o.serverOpts, opts...) }
}

// Collector is an OTLP TraceService receiver.
type Collector struct {
	coltracepb.UnimplementedTraceServiceServer

	logger  *zap.Logger
	counter SpanCounter
	server  *grpc.Server

	mu       sync.RWMutex
	recent   []Span
	capacity int
	total    int
}

// New creates a Collector and registers it on a new gRPC server.
func New(logger *zap.Logger, opts ...Option) *Collector {
	o := &options{capacity: DefaultCapacity}
	for _, opt := range opts {
		opt(o)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Collector{
		logger:   logger,
		counter:  o.counter,
		capacity: o.capacity,
	}

	serverOpts := append([]grpc.ServerOption{
		grpc.ChainUnaryInterceptor(tracing.GRPCUnaryInterceptor(o.tracerOpts...)),
	}, o.serverOpts...)
	c.server = grpc.NewServer(serverOpts...)
	coltracepb.RegisterTraceServiceServer(c.server, c)

	return c
}

// Export implements coltracepb.TraceServiceServer.
func (c *Collector) Export(ctx context.Context, req *coltracepb.ExportTraceServiceRequest) (*coltracepb.ExportTraceServiceResponse, error) {
	for _, rs := range req.GetResourceSpans() {
		service := serviceName(rs)

		var received []Span
		for _, ss := range rs.GetScopeSpans() {
			for _, s := range ss.GetSpans() {
				span := fromProto(s, service)
				c.logger.Info("Span received",
					zap.String("service", span.Service),
					zap.String("name", span.Name),
					zap.String("kind", span.Kind),
					zap.String("trace_id", span.TraceID),
					zap.String("span_id", span.SpanID),
					zap.String("parent_span_id", span.ParentSpanID),
					zap.Duration("duration", span.Duration()),
					zap.String("status", span.Status),
				)
				received = append(received, span)
			}
		}

		if len(received) == 0 {
			continue
		}
		c.store(received)
		if c.counter != nil {
			c.counter.RecordSpansReceived(service, len(received))
		}
	}

	return &coltracepb.ExportTraceServiceResponse{}, nil
}

func (c *Collector) store(spans []Span) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.total += len(spans)
	if c.capacity <= 0 {
		return
	}
	c.recent = append(c.recent, spans...)
	if over := len(c.recent) - c.capacity; over > 0 {
		c.recent = append(c.recent[:0], c.recent[over:]...)
	}
}

// Spans returns the most recent spans, oldest first.
func (c *Collector) Spans() []Span {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Span(nil), c.recent...)
}

// Total returns how many spans were received since start.
func (c *Collector) Total() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.total
}

// Serve accepts OTLP connections on l until Stop.
func (c *Collector) Serve(l net.Listener) error {
	c.logger.Info("OTLP collector listening", zap.String("addr", l.Addr().String()))
	return c.server.Serve(l)
}

// Stop waits for in-flight exports, then stops the server.
func (c *Collector) Stop() {
	c.server.GracefulStop()
}
