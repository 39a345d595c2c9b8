// Package zipkin converts exported spans to the Zipkin model and sends them
// through a zipkin-go reporter.
package zipkin

import (
	"encoding/binary"
	"strconv"

	"github.com/openzipkin/zipkin-go/model"
	"github.com/openzipkin/zipkin-go/reporter"
	"google.golang.org/grpc/codes"

	"github.com/zoobzio/spanz"
)

// Tag keys added for status.
const (
	StatusCodeTag    = "spanz.status_code"
	StatusMessageTag = "spanz.status_description"
	ErrorTag         = "error"
)

// Exporter is a spanz export Handler that forwards spans to a Zipkin
// reporter. The reporter owns transport and batching.
type Exporter struct {
	reporter      reporter.Reporter
	localEndpoint *model.Endpoint
}

// NewExporter creates an exporter. localEndpoint identifies this service and
// may be nil.
func NewExporter(r reporter.Reporter, localEndpoint *model.Endpoint) *Exporter {
	return &Exporter{reporter: r, localEndpoint: localEndpoint}
}

// Export implements spanz.Handler.
func (e *Exporter) Export(spans []spanz.SpanData) {
	for i := range spans {
		e.reporter.Send(e.SpanModel(&spans[i]))
	}
}

// Close closes the underlying reporter.
func (e *Exporter) Close() error {
	return e.reporter.Close()
}

// SpanModel converts one span.
func (e *Exporter) SpanModel(s *spanz.SpanData) model.SpanModel {
	sampled := s.SpanContext.IsSampled()
	m := model.SpanModel{
		SpanContext: model.SpanContext{
			TraceID: convertTraceID(s.SpanContext.TraceID),
			ID:      convertSpanID(s.SpanContext.SpanID),
			Sampled: &sampled,
		},
		Name:          s.Name,
		Kind:          convertKind(s.Kind),
		Timestamp:     s.StartTime,
		Duration:      s.Latency(),
		LocalEndpoint: e.localEndpoint,
		Annotations:   convertAnnotations(s),
		Tags:          convertTags(s),
	}
	if s.ParentSpanID.IsValid() {
		parent := convertSpanID(s.ParentSpanID)
		m.ParentID = &parent
	}
	// A server span continuing a remote client span shares its id in Zipkin.
	if s.Kind == spanz.SpanKindServer && s.HasRemoteParent != nil && *s.HasRemoteParent {
		m.Shared = true
	}
	return m
}

func convertTraceID(t spanz.TraceID) model.TraceID {
	return model.TraceID{
		High: binary.BigEndian.Uint64(t[:8]),
		Low:  binary.BigEndian.Uint64(t[8:]),
	}
}

func convertSpanID(s spanz.SpanID) model.ID {
	return model.ID(binary.BigEndian.Uint64(s[:]))
}

func convertKind(k spanz.SpanKind) model.Kind {
	switch k {
	case spanz.SpanKindClient:
		return model.Client
	case spanz.SpanKindServer:
		return model.Server
	default:
		return model.Undetermined
	}
}

func convertAnnotations(s *spanz.SpanData) []model.Annotation {
	var out []model.Annotation
	for _, a := range s.Annotations {
		out = append(out, model.Annotation{Timestamp: a.Time, Value: a.Event.Description})
	}
	for _, me := range s.MessageEvents {
		out = append(out, model.Annotation{Timestamp: me.Time, Value: messageEventValue(me.Event.Type)})
	}
	return out
}

func messageEventValue(t spanz.MessageEventType) string {
	switch t {
	case spanz.MessageEventTypeSent:
		return "SENT"
	case spanz.MessageEventTypeReceived:
		return "RECEIVED"
	default:
		return "<?>"
	}
}

func convertTags(s *spanz.SpanData) map[string]string {
	tags := make(map[string]string, len(s.Attributes)+2)
	for k, v := range s.Attributes {
		tags[k] = v.String()
	}
	if s.Status != nil && s.Status.Code != codes.OK {
		tags[StatusCodeTag] = strconv.Itoa(int(s.Status.Code))
		tags[ErrorTag] = s.Status.Code.String()
		if s.Status.Message != "" {
			tags[StatusMessageTag] = s.Status.Message
		}
	}
	if len(tags) == 0 {
		return nil
	}
	return tags
}
