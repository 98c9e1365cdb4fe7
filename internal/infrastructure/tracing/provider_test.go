package tracing

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

func TestParseExporterKind(t *testing.T) {
	tests := []struct {
		in      string
		want    ExporterKind
		wantErr bool
	}{
		{"", ExporterOTLP, false},
		{"otlp", ExporterOTLP, false},
		{"OTLPGRPC", ExporterOTLP, false},
		{"otlphttp", ExporterOTLPHTTP, false},
		{"zipkin", ExporterZipkin, false},
		{"console", ExporterStdout, false},
		{"stdout", ExporterStdout, false},
		{"none", ExporterNone, false},
		{"jaeger", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseExporterKind(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownExporter)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildRejectsUnknownExporter(t *testing.T) {
	_, err := Provider().WithExporter(context.Background(), ExporterKind("carrier-pigeon"), "").Build()
	assert.ErrorIs(t, err, ErrUnknownExporter)
}

func TestBuildEveryExporterKind(t *testing.T) {
	kinds := []struct {
		kind     ExporterKind
		endpoint string
	}{
		{ExporterOTLP, "127.0.0.1:4317"},
		{ExporterOTLPHTTP, "127.0.0.1:4318"},
		{ExporterZipkin, "http://127.0.0.1:9411/api/v2/spans"},
		{ExporterStdout, ""},
		{ExporterNone, ""},
	}

	for _, k := range kinds {
		t.Run(string(k.kind), func(t *testing.T) {
			tp, err := Provider().WithExporter(context.Background(), k.kind, k.endpoint).Build()
			require.NoError(t, err)

			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = tp.Shutdown(ctx)
		})
	}
}

func TestSynchronousStdoutExport(t *testing.T) {
	var buf bytes.Buffer
	tp, err := Provider().
		WithServiceName("deltat_core").
		WithStdoutExporter(stdouttrace.WithWriter(&buf)).
		Synchronous().
		Build()
	require.NoError(t, err)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	_, span := tp.Tracer("test").Start(context.Background(), "/api/v1/")
	span.End()

	assert.Contains(t, buf.String(), `"Name": "/api/v1/"`)
	assert.Contains(t, buf.String(), "deltat_core")
}

func TestResourceAttributes(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp, err := Provider().
		WithServiceName("deltat_core").
		WithAttributes(semconv.DeploymentEnvironment("LOCAL")).
		WithSpanProcessor(recorder).
		Build()
	require.NoError(t, err)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	_, span := tp.Tracer("test").Start(context.Background(), "op")
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	res := ended[0].Resource()
	name, ok := res.Set().Value(semconv.ServiceNameKey)
	require.True(t, ok)
	assert.Equal(t, "deltat_core", name.AsString())
	env, ok := res.Set().Value(semconv.DeploymentEnvironmentKey)
	require.True(t, ok)
	assert.Equal(t, "LOCAL", env.AsString())
}

func TestDeterministicIDs(t *testing.T) {
	traceIDFor := func(seed int64) string {
		tp, err := Provider().DeterministicIDs(seed).Build()
		require.NoError(t, err)
		defer func() { _ = tp.Shutdown(context.Background()) }()
		_, span := tp.Tracer("test").Start(context.Background(), "op")
		defer span.End()
		return span.SpanContext().TraceID().String()
	}

	assert.Equal(t, traceIDFor(1234), traceIDFor(1234))
	assert.NotEqual(t, traceIDFor(1234), traceIDFor(4321))
}

func TestProviderWithoutExporterStillIssuesTraceIDs(t *testing.T) {
	tp, err := Provider().WithExporter(context.Background(), ExporterNone, "").Build()
	require.NoError(t, err)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()
	assert.Regexp(t, hex32, TraceID(ctx))
}
