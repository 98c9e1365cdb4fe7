package server

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/deltat/coreservice/internal/api/middleware"
	"github.com/deltat/coreservice/internal/infrastructure/config"
	"github.com/deltat/coreservice/internal/infrastructure/logging"
	"github.com/deltat/coreservice/internal/infrastructure/resilience"
	"github.com/deltat/coreservice/internal/infrastructure/tracing"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Split(strings.TrimSpace(b.buf.String()), "\n")
}

type captureExporter struct {
	mu       sync.Mutex
	err      error
	spans    []sdktrace.ReadOnlySpan
	shutdown bool
}

func (e *captureExporter) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.spans = append(e.spans, spans...)
	return nil
}

func (e *captureExporter) Shutdown(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.shutdown = true
	return nil
}

func (e *captureExporter) Spans() []sdktrace.ReadOnlySpan {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]sdktrace.ReadOnlySpan(nil), e.spans...)
}

type testServer struct {
	*Server
	logs     *syncBuffer
	recorder *tracetest.SpanRecorder
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Tracing.Exporter = "none"
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config, opts ...Option) *testServer {
	t.Helper()

	logs := &syncBuffer{}
	encCfg := logging.LogfmtEncoderConfig()
	encCfg.TimeKey = zapcore.OmitKey
	core := zapcore.NewCore(logging.NewLogfmtEncoder(encCfg), zapcore.AddSync(logs), zapcore.DebugLevel)
	logger := logging.FromZap(zap.New(core).Named("deltat_core"))

	recorder := tracetest.NewSpanRecorder()
	opts = append([]Option{
		WithLogger(logger),
		WithRegistry(prometheus.NewRegistry()),
		WithSpanProcessor(recorder),
	}, opts...)

	srv, err := NewServer(context.Background(), cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close(context.Background()) })

	return &testServer{Server: srv, logs: logs, recorder: recorder}
}

func (s *testServer) get(path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func (s *testServer) accessLines() []string {
	var lines []string
	for _, line := range s.logs.Lines() {
		if strings.Contains(line, " method=") {
			lines = append(lines, line)
		}
	}
	return lines
}

var accessLine = regexp.MustCompile(
	`^service=deltat_core level=ERROR method=GET path="([^"]+)" status=(\d+) request_id=(\S+) duration=\S+ trace_id=([0-9a-f]{32})$`)

func TestHelloThroughFullChain(t *testing.T) {
	s := newTestServer(t, testConfig())

	w := s.get("/api/v1/")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `"Hello World!"`, w.Body.String())

	elapsed, err := decimal.NewFromString(w.Header().Get(middleware.HeaderProcessTime))
	require.NoError(t, err)
	assert.False(t, elapsed.IsNegative())
	assert.NotEmpty(t, w.Header().Get(middleware.HeaderRequestID))

	spans := s.recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "/api/v1/", spans[0].Name())
	traceID := spans[0].SpanContext().TraceID().String()
	assert.Equal(t, traceID, w.Header().Get(tracing.HeaderTraceID))

	lines := s.accessLines()
	require.Len(t, lines, 1)
	m := accessLine.FindStringSubmatch(lines[0])
	require.NotNil(t, m, "unexpected access line: %q", lines[0])
	assert.Equal(t, "/api/v1/", m[1])
	assert.Equal(t, "200", m[2])
	assert.Equal(t, w.Header().Get(middleware.HeaderRequestID), m[3])
	assert.Equal(t, traceID, m[4])
}

func TestTracingRoute(t *testing.T) {
	s := newTestServer(t, testConfig())

	w := s.get("/tracing")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `"Trace On"`, w.Body.String())
	assert.Len(t, s.recorder.Ended(), 2)
}

func TestTrailingSlashRedirectRunsChain(t *testing.T) {
	tests := []struct {
		name         string
		path         string
		wantLocation string
	}{
		{name: "api prefix without slash", path: "/api/v1", wantLocation: "/api/v1/"},
		{name: "tracing with extra slash", path: "/tracing/", wantLocation: "/tracing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, testConfig())

			w := s.get(tt.path)

			require.Equal(t, http.StatusMovedPermanently, w.Code)
			assert.Equal(t, tt.wantLocation, w.Header().Get("Location"))

			_, err := decimal.NewFromString(w.Header().Get(middleware.HeaderProcessTime))
			require.NoError(t, err)
			assert.NotEmpty(t, w.Header().Get(middleware.HeaderRequestID))

			spans := s.recorder.Ended()
			require.Len(t, spans, 1)
			assert.Equal(t, tracing.UnmatchedRoute, spans[0].Name())
			traceID := spans[0].SpanContext().TraceID().String()
			assert.Equal(t, traceID, w.Header().Get(tracing.HeaderTraceID))

			lines := s.accessLines()
			require.Len(t, lines, 1)
			m := accessLine.FindStringSubmatch(lines[0])
			require.NotNil(t, m, "unexpected access line: %q", lines[0])
			assert.Equal(t, tt.path, m[1])
			assert.Equal(t, "301", m[2])
			assert.Equal(t, traceID, m[4])
		})
	}
}

func TestUnknownPathRunsChain(t *testing.T) {
	s := newTestServer(t, testConfig())

	w := s.get("/nowhere")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, w.Header().Get("Location"))
	assert.NotEmpty(t, w.Header().Get(middleware.HeaderProcessTime))
	require.Len(t, s.recorder.Ended(), 1)

	lines := s.accessLines()
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `path="/nowhere" status=404`)
}

func TestWrongMethodIsNotAllowed(t *testing.T) {
	s := newTestServer(t, testConfig())

	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/", strings.NewReader(`{}`)))

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, http.MethodGet, w.Header().Get("Allow"))
	_, err := decimal.NewFromString(w.Header().Get(middleware.HeaderProcessTime))
	require.NoError(t, err)

	spans := s.recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, tracing.UnmatchedRoute, spans[0].Name())

	lines := s.accessLines()
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `method=POST path="/api/v1/" status=405`)
}

func TestMiddlewareOrder(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   []string
	}{
		{
			name:   "defaults",
			mutate: func(*config.Config) {},
			want:   []string{"recovery", "request_id", "tracing", "access_log", "metrics", "timing", "cors"},
		},
		{
			name: "cors off, rate limit on",
			mutate: func(c *config.Config) {
				c.CORS.Enabled = false
				c.RateLimit.Enabled = true
			},
			want: []string{"recovery", "request_id", "tracing", "access_log", "metrics", "timing", "rate_limit"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(cfg)
			s := newTestServer(t, cfg)
			assert.Equal(t, tt.want, s.MiddlewareNames())
		})
	}
}

func TestPanicIsRecoveredAndObserved(t *testing.T) {
	s := newTestServer(t, testConfig())
	s.Router().GET("/boom", func(c *gin.Context) {
		panic("kaboom")
	})

	w := s.get("/boom")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Empty(t, w.Header().Get(middleware.HeaderProcessTime))

	spans := s.recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)

	lines := s.accessLines()
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `path="/boom" status=500`)
	assert.Contains(t, lines[0], "panic=true")

	var recovered string
	for _, line := range s.logs.Lines() {
		if strings.Contains(line, "Panic recovered") {
			recovered = line
		}
	}
	require.NotEmpty(t, recovered)
	assert.Contains(t, recovered, "panic=kaboom")
	assert.True(t, strings.HasSuffix(recovered, "trace_id="+spans[0].SpanContext().TraceID().String()))
}

func TestHealthAndMetricsRoutes(t *testing.T) {
	s := newTestServer(t, testConfig())

	s.get("/api/v1/")
	health := s.get("/health")
	metrics := s.get("/metrics")

	assert.Equal(t, http.StatusOK, health.Code)
	assert.Contains(t, health.Body.String(), `"status":"healthy"`)
	assert.Contains(t, health.Body.String(), `"service":"Delta T API"`)

	assert.Equal(t, http.StatusOK, metrics.Code)
	assert.Contains(t, metrics.Body.String(), `coreservice_http_requests_total{method="GET",route="/api/v1/",status="200"} 1`)
}

func TestConcurrentRequestsKeepOwnTraceIDs(t *testing.T) {
	s := newTestServer(t, testConfig())

	const n = 16
	headers := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			headers[i] = s.get("/api/v1/").Header().Get(tracing.HeaderTraceID)
		}(i)
	}
	wg.Wait()

	spanIDs := make(map[string]bool)
	for _, span := range s.recorder.Ended() {
		spanIDs[span.SpanContext().TraceID().String()] = true
	}
	require.Len(t, spanIDs, n)

	logged := make(map[string]bool)
	for _, line := range s.accessLines() {
		m := accessLine.FindStringSubmatch(line)
		require.NotNil(t, m, line)
		logged[m[4]] = true
	}
	for _, h := range headers {
		assert.True(t, spanIDs[h], "header trace id %s has no span", h)
		assert.True(t, logged[h], "header trace id %s has no access line", h)
	}
}

func TestNewServerErrors(t *testing.T) {
	cfg := testConfig()
	cfg.Tracing.Exporter = "jaeger"
	_, err := NewServer(context.Background(), cfg, WithLogger(logging.NewNop()), WithRegistry(prometheus.NewRegistry()))
	assert.ErrorIs(t, err, tracing.ErrUnknownExporter)

	cfg = testConfig()
	cfg.Logging.AccessLevel = "shout"
	_, err = NewServer(context.Background(), cfg, WithLogger(logging.NewNop()), WithRegistry(prometheus.NewRegistry()))
	assert.Error(t, err)

	cfg = testConfig()
	cfg.Logging.Format = "xml"
	_, err = NewServer(context.Background(), cfg, WithRegistry(prometheus.NewRegistry()))
	assert.Error(t, err)
}

func TestExporterFailuresOpenBreaker(t *testing.T) {
	cfg := testConfig()
	cfg.Breaker.MaxFailures = 2
	cfg.Breaker.Timeout = time.Hour
	exporter := &captureExporter{err: errors.New("collector unreachable")}

	s := newTestServer(t, cfg, WithSpanExporter(exporter), WithSynchronousExport())

	for i := 0; i < 3; i++ {
		w := s.get("/api/v1/")
		require.Equal(t, http.StatusOK, w.Code)
	}

	assert.Equal(t, resilience.StateOpen, s.Breaker().State())
	m := s.Metrics()
	assert.Equal(t, 2.0, testutil.ToFloat64(m.BreakerState.WithLabelValues(ExportBreakerName)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.DroppedSpans.WithLabelValues(tracing.DropExportError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DroppedSpans.WithLabelValues(tracing.DropBreakerOpen)))
}

func TestServeAndCloseFlushesSpans(t *testing.T) {
	exporter := &captureExporter{}
	s := newTestServer(t, testConfig(), WithSpanExporter(exporter))

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	served := make(chan error, 1)
	go func() { served <- s.Serve(l) }()

	resp, err := http.Get("http://" + l.Addr().String() + "/api/v1/")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Close(ctx))
	require.NoError(t, <-served)

	spans := exporter.Spans()
	require.Len(t, spans, 1)
	assert.Equal(t, "/api/v1/", spans[0].Name())
	assert.True(t, exporter.shutdown)
	assert.Equal(t, int64(1), s.Metrics().Snapshot().SpansExported)
}
