package tracing

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// HeaderTraceID carries the trace id back to the client.
const HeaderTraceID = "X-Trace-ID"

// UnmatchedRoute names spans for requests no route matched. Raw paths are
// not used so span names stay low-cardinality.
const UnmatchedRoute = "<unmatched>"

type options struct {
	tp          trace.TracerProvider
	propagators propagation.TextMapPropagator
	propagate   bool
}

// Option configures HTTPMiddleware and GRPCUnaryInterceptor.
type Option func(*options)

// WithTracerProvider uses tp instead of the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tp = tp }
}

// WithPropagators uses p instead of the global propagator.
func WithPropagators(p propagation.TextMapPropagator) Option {
	return func(o *options) { o.propagators = p }
}

// WithPropagation toggles extraction of a remote parent from incoming
// headers. Disabled, every request starts a new trace.
func WithPropagation(enabled bool) Option {
	return func(o *options) { o.propagate = enabled }
}

func newOptions(opts []Option) *options {
	o := &options{propagate: true}
	for _, opt := range opts {
		opt(o)
	}
	if o.tp == nil {
		o.tp = otel.GetTracerProvider()
	}
	if o.propagators == nil {
		o.propagators = otel.GetTextMapPropagator()
	}
	return o
}

// HTTPMiddleware creates Gin middleware that wraps each request in a server
// span named after the matched route template. The span is active in the
// request context for the rest of the chain and is ended exactly once, also
// when a later handler panics.
func HTTPMiddleware(opts ...Option) gin.HandlerFunc {
	o := newOptions(opts)
	tracer := o.tp.Tracer(instrumentationName)

	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if o.propagate {
			ctx = o.propagators.Extract(ctx, propagation.HeaderCarrier(c.Request.Header))
		}

		route := c.FullPath()
		name := route
		if name == "" {
			name = UnmatchedRoute
		}

		attrs := []attribute.KeyValue{
			semconv.HTTPRequestMethodKey.String(c.Request.Method),
			semconv.URLPath(c.Request.URL.Path),
			semconv.ServerAddress(c.Request.Host),
		}
		if route != "" {
			attrs = append(attrs, semconv.HTTPRoute(route))
		}
		if ua := c.Request.UserAgent(); ua != "" {
			attrs = append(attrs, semconv.UserAgentOriginal(ua))
		}

		ctx, span := tracer.Start(ctx, name,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attrs...),
		)
		c.Request = c.Request.WithContext(ctx)

		if sc := span.SpanContext(); sc.HasTraceID() {
			c.Header(HeaderTraceID, sc.TraceID().String())
		}

		defer func() {
			if r := recover(); r != nil {
				span.SetAttributes(semconv.HTTPResponseStatusCode(http.StatusInternalServerError))
				span.RecordError(fmt.Errorf("panic: %v", r), trace.WithStackTrace(true))
				span.SetStatus(codes.Error, fmt.Sprint(r))
				span.End()
				panic(r)
			}

			status := c.Writer.Status()
			span.SetAttributes(semconv.HTTPResponseStatusCode(status))
			if len(c.Errors) > 0 {
				span.RecordError(c.Errors.Last())
				span.SetStatus(codes.Error, c.Errors.String())
			} else if status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(status))
			}
			span.End()
		}()

		c.Next()
	}
}

// GRPCUnaryInterceptor creates a gRPC unary interceptor that wraps each call
// in a server span, continuing a trace carried in the incoming metadata.
func GRPCUnaryInterceptor(opts ...Option) grpc.UnaryServerInterceptor {
	o := newOptions(opts)
	tracer := o.tp.Tracer(instrumentationName)

	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		if md, ok := metadata.FromIncomingContext(ctx); ok && o.propagate {
			ctx = o.propagators.Extract(ctx, metadataCarrier(md))
		}

		ctx, span := tracer.Start(ctx, info.FullMethod,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				semconv.RPCSystemGRPC,
				semconv.RPCMethod(info.FullMethod),
			),
		)
		defer span.End()

		resp, err := handler(ctx, req)

		code := status.Code(err)
		span.SetAttributes(semconv.RPCGRPCStatusCodeKey.Int(int(code)))
		if code != grpccodes.OK {
			span.RecordError(err)
			span.SetStatus(codes.Error, code.String())
		}

		return resp, err
	}
}

// metadataCarrier adapts gRPC metadata to propagation.TextMapCarrier.
type metadataCarrier metadata.MD

func (m metadataCarrier) Get(key string) string {
	vals := metadata.MD(m).Get(key)
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}

func (m metadataCarrier) Set(key, value string) {
	metadata.MD(m).Set(key, value)
}

func (m metadataCarrier) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
