package logging

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

// Supported encodings.
const (
	FormatLogfmt  = "logfmt"
	FormatJSON    = "json"
	FormatConsole = "console"
)

const iso8601Layout = "2006-01-02T15:04:05.000Z0700"

var bufferPool = buffer.NewPool()

// lineBreaks escapes CR and LF in messages so an entry stays on one line.
var lineBreaks = strings.NewReplacer("\n", `\n`, "\r", `\r`)

func init() {
	if err := zap.RegisterEncoder(FormatLogfmt, func(cfg zapcore.EncoderConfig) (zapcore.Encoder, error) {
		return NewLogfmtEncoder(cfg), nil
	}); err != nil {
		panic(err)
	}
}

// LogfmtEncoderConfig returns the key layout of the logfmt line.
func LogfmtEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "service",
		CallerKey:      zapcore.OmitKey,
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

// logfmtEncoder writes one line per entry:
//
//	time="<ISO8601>" service=<name> level=<LEVEL> <message> k=v ... trace_id=<id>
//
// The message is written verbatim, apart from escaped line breaks, so callers
// may pre-format key=value pairs into it. service= is written even when the
// logger is unnamed. trace_id is always last and always present, empty when unset.
// Time, level and duration formatting is fixed; only the keys are taken from
// the EncoderConfig, and a key set to zapcore.OmitKey drops that element.
type logfmtEncoder struct {
	cfg       *zapcore.EncoderConfig
	buf       *buffer.Buffer
	namespace string
	traceID   string
}

// NewLogfmtEncoder creates the logfmt encoder registered under "logfmt".
func NewLogfmtEncoder(cfg zapcore.EncoderConfig) zapcore.Encoder {
	return &logfmtEncoder{cfg: &cfg, buf: bufferPool.Get()}
}

func (enc *logfmtEncoder) Clone() zapcore.Encoder {
	return enc.clone()
}

func (enc *logfmtEncoder) clone() *logfmtEncoder {
	clone := &logfmtEncoder{
		cfg:       enc.cfg,
		buf:       bufferPool.Get(),
		namespace: enc.namespace,
		traceID:   enc.traceID,
	}
	_, _ = clone.buf.Write(enc.buf.Bytes())
	return clone
}

func (enc *logfmtEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	final := enc.clone()
	defer final.buf.Free()
	for _, f := range fields {
		f.AddTo(final)
	}

	line := bufferPool.Get()
	if enc.cfg.TimeKey != zapcore.OmitKey && enc.cfg.TimeKey != "" {
		line.AppendString(enc.cfg.TimeKey)
		line.AppendString(`="`)
		line.AppendTime(ent.Time, iso8601Layout)
		line.AppendByte('"')
	}
	if enc.cfg.NameKey != zapcore.OmitKey && enc.cfg.NameKey != "" {
		appendSeparator(line)
		line.AppendString(enc.cfg.NameKey)
		line.AppendByte('=')
		appendValue(line, ent.LoggerName)
	}
	if enc.cfg.LevelKey != zapcore.OmitKey && enc.cfg.LevelKey != "" {
		appendSeparator(line)
		line.AppendString(enc.cfg.LevelKey)
		line.AppendByte('=')
		line.AppendString(ent.Level.CapitalString())
	}
	if ent.Message != "" {
		appendSeparator(line)
		line.AppendString(lineBreaks.Replace(ent.Message))
	}
	if final.buf.Len() > 0 {
		appendSeparator(line)
		_, _ = line.Write(final.buf.Bytes())
	}
	if ent.Caller.Defined && enc.cfg.CallerKey != zapcore.OmitKey && enc.cfg.CallerKey != "" {
		appendSeparator(line)
		line.AppendString(enc.cfg.CallerKey)
		line.AppendByte('=')
		appendValue(line, ent.Caller.TrimmedPath())
	}
	if ent.Stack != "" && enc.cfg.StacktraceKey != zapcore.OmitKey && enc.cfg.StacktraceKey != "" {
		appendSeparator(line)
		line.AppendString(enc.cfg.StacktraceKey)
		line.AppendByte('=')
		line.AppendString(strconv.Quote(ent.Stack))
	}

	appendSeparator(line)
	line.AppendString(TraceIDKey)
	line.AppendByte('=')
	appendValue(line, final.traceID)

	if enc.cfg.LineEnding != "" {
		line.AppendString(enc.cfg.LineEnding)
	} else {
		line.AppendString(zapcore.DefaultLineEnding)
	}
	return line, nil
}

func (enc *logfmtEncoder) addKey(key string) {
	appendSeparator(enc.buf)
	if enc.namespace != "" {
		enc.buf.AppendString(enc.namespace)
		enc.buf.AppendByte('.')
	}
	enc.buf.AppendString(key)
	enc.buf.AppendByte('=')
}

func (enc *logfmtEncoder) AddString(key, val string) {
	if key == TraceIDKey && enc.namespace == "" {
		enc.traceID = val
		return
	}
	enc.addKey(key)
	appendValue(enc.buf, val)
}

func (enc *logfmtEncoder) AddByteString(key string, val []byte) {
	enc.AddString(key, string(val))
}

func (enc *logfmtEncoder) AddBinary(key string, val []byte) {
	enc.addKey(key)
	enc.buf.AppendString(base64.StdEncoding.EncodeToString(val))
}

func (enc *logfmtEncoder) AddBool(key string, val bool) {
	enc.addKey(key)
	enc.buf.AppendBool(val)
}

func (enc *logfmtEncoder) AddComplex128(key string, val complex128) {
	enc.addKey(key)
	enc.buf.AppendString(strconv.FormatComplex(val, 'f', -1, 128))
}

func (enc *logfmtEncoder) AddComplex64(key string, val complex64) {
	enc.addKey(key)
	enc.buf.AppendString(strconv.FormatComplex(complex128(val), 'f', -1, 64))
}

func (enc *logfmtEncoder) AddDuration(key string, val time.Duration) {
	enc.AddFloat64(key, val.Seconds())
}

func (enc *logfmtEncoder) AddFloat64(key string, val float64) {
	enc.addKey(key)
	appendFloat(enc.buf, val, 64)
}

func (enc *logfmtEncoder) AddFloat32(key string, val float32) {
	enc.addKey(key)
	appendFloat(enc.buf, float64(val), 32)
}

func (enc *logfmtEncoder) AddInt(key string, val int)     { enc.AddInt64(key, int64(val)) }
func (enc *logfmtEncoder) AddInt32(key string, val int32) { enc.AddInt64(key, int64(val)) }
func (enc *logfmtEncoder) AddInt16(key string, val int16) { enc.AddInt64(key, int64(val)) }
func (enc *logfmtEncoder) AddInt8(key string, val int8)   { enc.AddInt64(key, int64(val)) }

func (enc *logfmtEncoder) AddInt64(key string, val int64) {
	enc.addKey(key)
	enc.buf.AppendInt(val)
}

func (enc *logfmtEncoder) AddUint(key string, val uint)       { enc.AddUint64(key, uint64(val)) }
func (enc *logfmtEncoder) AddUint32(key string, val uint32)   { enc.AddUint64(key, uint64(val)) }
func (enc *logfmtEncoder) AddUint16(key string, val uint16)   { enc.AddUint64(key, uint64(val)) }
func (enc *logfmtEncoder) AddUint8(key string, val uint8)     { enc.AddUint64(key, uint64(val)) }
func (enc *logfmtEncoder) AddUintptr(key string, val uintptr) { enc.AddUint64(key, uint64(val)) }

func (enc *logfmtEncoder) AddUint64(key string, val uint64) {
	enc.addKey(key)
	enc.buf.AppendUint(val)
}

func (enc *logfmtEncoder) AddTime(key string, val time.Time) {
	enc.addKey(key)
	enc.buf.AppendByte('"')
	enc.buf.AppendTime(val, iso8601Layout)
	enc.buf.AppendByte('"')
}

// AddArray and AddObject render nested values as quoted JSON.
func (enc *logfmtEncoder) AddArray(key string, arr zapcore.ArrayMarshaler) error {
	m := zapcore.NewMapObjectEncoder()
	if err := m.AddArray(key, arr); err != nil {
		return err
	}
	return enc.addJSON(key, m.Fields[key])
}

func (enc *logfmtEncoder) AddObject(key string, obj zapcore.ObjectMarshaler) error {
	m := zapcore.NewMapObjectEncoder()
	if err := obj.MarshalLogObject(m); err != nil {
		return err
	}
	return enc.addJSON(key, m.Fields)
}

func (enc *logfmtEncoder) AddReflected(key string, val interface{}) error {
	if s, ok := val.(fmt.Stringer); ok {
		enc.AddString(key, s.String())
		return nil
	}
	return enc.addJSON(key, val)
}

func (enc *logfmtEncoder) addJSON(key string, val interface{}) error {
	raw, err := json.Marshal(val)
	if err != nil {
		return err
	}
	enc.addKey(key)
	appendValue(enc.buf, string(raw))
	return nil
}

func (enc *logfmtEncoder) OpenNamespace(key string) {
	if enc.namespace == "" {
		enc.namespace = key
		return
	}
	enc.namespace = enc.namespace + "." + key
}

func appendSeparator(buf *buffer.Buffer) {
	if buf.Len() > 0 {
		buf.AppendByte(' ')
	}
}

func appendFloat(buf *buffer.Buffer, val float64, bitSize int) {
	switch {
	case math.IsNaN(val):
		buf.AppendString("NaN")
	case math.IsInf(val, 1):
		buf.AppendString("+Inf")
	case math.IsInf(val, -1):
		buf.AppendString("-Inf")
	default:
		buf.AppendFloat(val, bitSize)
	}
}

// appendValue writes s bare when it is a single logfmt token and quoted otherwise.
func appendValue(buf *buffer.Buffer, s string) {
	if needsQuoting(s) {
		buf.AppendString(strconv.Quote(s))
		return
	}
	buf.AppendString(s)
}

func needsQuoting(s string) bool {
	if !utf8.ValidString(s) {
		return true
	}
	return strings.IndexFunc(s, func(r rune) bool {
		return r <= ' ' || r == '=' || r == '"' || r == 0x7f
	}) >= 0
}
