package logging

import (
	"bytes"
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/deltat/coreservice/internal/shared/id"
)

// newBufferLogger builds a logfmt logger writing into buf. Time is omitted
// unless keepTime is set so lines can be compared exactly.
func newBufferLogger(buf *bytes.Buffer, keepTime bool) *Logger {
	cfg := LogfmtEncoderConfig()
	if !keepTime {
		cfg.TimeKey = zapcore.OmitKey
	}
	core := zapcore.NewCore(NewLogfmtEncoder(cfg), zapcore.AddSync(buf), zapcore.DebugLevel)
	return FromZap(zap.New(core).Named("deltat_core"))
}

func TestLogfmtLineWithoutSpan(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(&buf, false)

	logger.WithContext(context.Background()).Error(`method=GET path="/api/v1/" status=200`)

	assert.Equal(t,
		"service=deltat_core level=ERROR method=GET path=\"/api/v1/\" status=200 trace_id=\n",
		buf.String())
}

func TestLogfmtLineWithActiveSpan(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(&buf, true)

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	ctx, span := tp.Tracer("test").Start(context.Background(), "/api/v1/")
	defer span.End()

	logger.WithContext(ctx).Warn("hello")

	pattern := regexp.MustCompile(
		`^time="\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{3}[^"]*" service=deltat_core level=WARN hello trace_id=([0-9a-f]{32})\n$`)
	m := pattern.FindStringSubmatch(buf.String())
	require.NotNil(t, m, "line did not match: %q", buf.String())
	assert.Equal(t, span.SpanContext().TraceID().String(), m[1])
}

func TestLogfmtFieldsAndRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(&buf, false)

	ctx := id.NewContext(context.Background(), id.RequestID("req_abc"))
	logger.WithContext(ctx).Info("served",
		zap.String("agent", "curl/8.0 (x86)"),
		zap.Int("bytes", 12),
		zap.Duration("duration", 1500*time.Millisecond),
		zap.Bool("cached", false),
		zap.String("empty", ""),
		zap.Error(errors.New("boom")),
	)

	assert.Equal(t,
		`service=deltat_core level=INFO served request_id=req_abc agent="curl/8.0 (x86)" bytes=12 duration=1.5 cached=false empty= error=boom trace_id=`+"\n",
		buf.String())
}

func TestLogfmtEntryTraceIDOverridesContext(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(&buf, false)

	logger.WithContext(context.Background()).Info("x", zap.String(TraceIDKey, "0af7651916cd43dd8448eb211c80319c"))

	assert.True(t, strings.HasSuffix(buf.String(), " trace_id=0af7651916cd43dd8448eb211c80319c\n"), buf.String())
	assert.Equal(t, 1, strings.Count(buf.String(), "trace_id="))
}

func TestLogfmtNamespaceAndObjects(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(&buf, false)

	logger.Info("nested",
		zap.Namespace("http"),
		zap.String("method", "POST"),
		zap.Strings("tags", []string{"a", "b"}),
	)

	assert.Equal(t,
		`service=deltat_core level=INFO nested http.method=POST http.tags="[\"a\",\"b\"]" trace_id=`+"\n",
		buf.String())
}

func TestLogfmtWithFieldsDoNotLeakBetweenChildren(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(&buf, false)

	a := logger.With(zap.String("child", "a"))
	b := logger.With(zap.String("child", "b"))
	a.Info("one")
	b.Info("two")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "child=a")
	assert.NotContains(t, lines[0], "child=b")
	assert.Contains(t, lines[1], "child=b")
}

func TestConcurrentContextsKeepTheirOwnTraceIDs(t *testing.T) {
	var (
		buf bytes.Buffer
		mu  sync.Mutex
	)
	cfg := LogfmtEncoderConfig()
	cfg.TimeKey = zapcore.OmitKey
	core := zapcore.NewCore(NewLogfmtEncoder(cfg), zapcore.AddSync(lockedWriter{&mu, &buf}), zapcore.InfoLevel)
	logger := FromZap(zap.New(core))

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()

	const n = 20
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ctx, span := tp.Tracer("test").Start(context.Background(), "req")
			defer span.End()
			ids[i] = span.SpanContext().TraceID().String()
			logger.WithContext(ctx).Info("msg=" + ids[i])
		}(i)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, n)
	for _, line := range lines {
		fields := strings.Fields(line)
		require.Equal(t, "service=", fields[0])
		msg := strings.TrimPrefix(fields[2], "msg=")
		assert.Equal(t, "trace_id="+msg, fields[len(fields)-1])
	}
}

func TestLogfmtMessageStaysOnOneLine(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(&buf, false)

	logger.Info("first line\nsecond line\r\nthird status=200")

	assert.Equal(t,
		`service=deltat_core level=INFO first line\nsecond line\r\nthird status=200 trace_id=`+"\n",
		buf.String())
	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
}

func TestLogfmtUnnamedLoggerKeepsServiceKey(t *testing.T) {
	var buf bytes.Buffer
	cfg := LogfmtEncoderConfig()
	cfg.TimeKey = zapcore.OmitKey
	core := zapcore.NewCore(NewLogfmtEncoder(cfg), zapcore.AddSync(&buf), zapcore.InfoLevel)

	FromZap(zap.New(core)).Info("unnamed")

	assert.Equal(t, "service= level=INFO unnamed trace_id=\n", buf.String())
}

type lockedWriter struct {
	mu  *sync.Mutex
	buf *bytes.Buffer
}

func (w lockedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"debug", zapcore.DebugLevel, false},
		{"info", zapcore.InfoLevel, false},
		{"warning", zapcore.WarnLevel, false},
		{"WARNING", zapcore.WarnLevel, false},
		{"warn", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"critical", zapcore.ErrorLevel, false},
		{"trace", zapcore.DebugLevel, false},
		{"loud", zapcore.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew(t *testing.T) {
	for _, format := range []string{FormatLogfmt, FormatJSON, FormatConsole} {
		t.Run(format, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Format = format
			logger, err := New(cfg)
			require.NoError(t, err)
			assert.NotNil(t, logger)
		})
	}

	_, err := New(Config{Level: "info", Format: "xml"})
	assert.Error(t, err)

	_, err = New(Config{Level: "shout"})
	assert.Error(t, err)
}

func TestNewDefaultAndDevelopment(t *testing.T) {
	assert.NotNil(t, NewDefault())
	assert.NotNil(t, NewDevelopment())
	assert.NotNil(t, NewNop())
}
