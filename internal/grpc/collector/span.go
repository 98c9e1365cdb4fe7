package collector

import (
	"encoding/hex"
	"strconv"
	"time"

	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"
)

// UnknownService names spans whose resource carries no service.name.
const UnknownService = "unknown_service"

// Span is the received form of an OTLP span.
type Span struct {
	TraceID      string
	SpanID       string
	ParentSpanID string
	Service      string
	Name         string
	Kind         string
	Start        time.Time
	End          time.Time
	Status       string
	Attributes   map[string]string
}

// Duration returns End minus Start.
func (s Span) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

func serviceName(rs *tracepb.ResourceSpans) string {
	if name := resourceAttr(rs.GetResource(), "service.name"); name != "" {
		return name
	}
	return UnknownService
}

func resourceAttr(res *resourcepb.Resource, key string) string {
	for _, kv := range res.GetAttributes() {
		if kv.GetKey() == key {
			return anyValueString(kv.GetValue())
		}
	}
	return ""
}

func fromProto(span *tracepb.Span, service string) Span {
	attrs := make(map[string]string, len(span.GetAttributes()))
	for _, kv := range span.GetAttributes() {
		attrs[kv.GetKey()] = anyValueString(kv.GetValue())
	}
	return Span{
		TraceID:      hex.EncodeToString(span.GetTraceId()),
		SpanID:       hex.EncodeToString(span.GetSpanId()),
		ParentSpanID: hex.EncodeToString(span.GetParentSpanId()),
		Service:      service,
		Name:         span.GetName(),
		Kind:         span.GetKind().String(),
		Start:        time.Unix(0, int64(span.GetStartTimeUnixNano())),
		End:          time.Unix(0, int64(span.GetEndTimeUnixNano())),
		Status:       span.GetStatus().GetCode().String(),
		Attributes:   attrs,
	}
}

func anyValueString(v *commonpb.AnyValue) string {
	switch val := v.GetValue().(type) {
	case *commonpb.AnyValue_StringValue:
		return val.StringValue
	case *commonpb.AnyValue_IntValue:
		return strconv.FormatInt(val.IntValue, 10)
	case *commonpb.AnyValue_DoubleValue:
		return strconv.FormatFloat(val.DoubleValue, 'g', -1, 64)
	case *commonpb.AnyValue_BoolValue:
		return strconv.FormatBool(val.BoolValue)
	case *commonpb.AnyValue_BytesValue:
		return hex.EncodeToString(val.BytesValue)
	default:
		return ""
	}
}
