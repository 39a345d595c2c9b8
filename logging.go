package spanz

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggingHandler returns an export Handler that writes each span to logger
// at info level.
func LoggingHandler(logger *zap.Logger) Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return HandlerFunc(func(spans []SpanData) {
		for i := range spans {
			logger.Info("span", zap.Object("span", spanMarshaler{&spans[i]}))
		}
	})
}

type spanMarshaler struct {
	s *SpanData
}

func (m spanMarshaler) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	s := m.s
	enc.AddString("name", s.Name)
	enc.AddString("trace_id", s.SpanContext.TraceID.String())
	enc.AddString("span_id", s.SpanContext.SpanID.String())
	if s.ParentSpanID.IsValid() {
		enc.AddString("parent_span_id", s.ParentSpanID.String())
	}
	enc.AddString("kind", s.Kind.String())
	enc.AddTime("start", s.StartTime)
	enc.AddDuration("latency", s.Latency())
	if s.Status != nil {
		enc.AddString("status", s.Status.Code.String())
		if s.Status.Message != "" {
			enc.AddString("status_message", s.Status.Message)
		}
	}
	if len(s.Attributes) > 0 {
		if err := enc.AddObject("attributes", attributeMarshaler(s.Attributes)); err != nil {
			return err
		}
	}
	if n := len(s.Annotations); n > 0 {
		enc.AddInt("annotations", n)
	}
	if n := len(s.MessageEvents); n > 0 {
		enc.AddInt("message_events", n)
	}
	if n := len(s.Links); n > 0 {
		enc.AddInt("links", n)
	}
	dropped := s.DroppedAttributes + s.DroppedAnnotations + s.DroppedMessageEvents + s.DroppedLinks
	if dropped > 0 {
		enc.AddInt("dropped", dropped)
	}
	return nil
}

type attributeMarshaler map[string]AttributeValue

func (m attributeMarshaler) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	for k, v := range m {
		switch v.Type() {
		case AttributeTypeString:
			enc.AddString(k, v.AsString())
		case AttributeTypeBool:
			enc.AddBool(k, v.AsBool())
		case AttributeTypeInt64:
			enc.AddInt64(k, v.AsInt64())
		case AttributeTypeFloat64:
			enc.AddFloat64(k, v.AsFloat64())
		}
	}
	return nil
}
