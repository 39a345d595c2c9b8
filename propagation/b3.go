package propagation

import (
	"strings"

	"github.com/zoobzio/spanz"
)

// TextFormat injects and extracts span contexts through string headers.
type TextFormat interface {
	// Fields lists every header the format reads or writes.
	Fields() []string
	Inject(sc spanz.SpanContext, carrier Setter)
	Extract(carrier Getter) (spanz.SpanContext, error)
}

// B3 header names.
const (
	B3TraceIDHeader      = "X-B3-TraceId"
	B3SpanIDHeader       = "X-B3-SpanId"
	B3ParentSpanIDHeader = "X-B3-ParentSpanId"
	B3SampledHeader      = "X-B3-Sampled"
	B3FlagsHeader        = "X-B3-Flags"
	B3SingleHeader       = "b3"
)

const (
	b3Format       = "b3"
	b3SingleFormat = "b3 single"
	// upperTraceID pads 64-bit B3 trace ids to 128 bits.
	upperTraceID = "0000000000000000"
)

// B3Format is the Zipkin B3 multi-header format.
type B3Format struct{}

var b3Fields = []string{B3TraceIDHeader, B3SpanIDHeader, B3ParentSpanIDHeader, B3SampledHeader, B3FlagsHeader}

// Fields implements TextFormat.
func (B3Format) Fields() []string {
	return append([]string(nil), b3Fields...)
}

// Inject writes the trace and span ids, and X-B3-Sampled only for sampled
// contexts.
func (B3Format) Inject(sc spanz.SpanContext, carrier Setter) {
	carrier.Set(B3TraceIDHeader, sc.TraceID.String())
	carrier.Set(B3SpanIDHeader, sc.SpanID.String())
	if sc.IsSampled() {
		carrier.Set(B3SampledHeader, "1")
	}
}

// Extract reads a b3 single header when present, otherwise the multi
// headers. X-B3-ParentSpanId is not required.
func (B3Format) Extract(carrier Getter) (spanz.SpanContext, error) {
	if header, ok := carrier.Get(B3SingleHeader); ok {
		return parseB3Single(header)
	}

	traceHex, ok := carrier.Get(B3TraceIDHeader)
	if !ok {
		return spanz.SpanContext{}, missing(b3Format, ErrMissingTraceID)
	}
	traceID, err := parseB3TraceID(b3Format, traceHex)
	if err != nil {
		return spanz.SpanContext{}, err
	}
	spanHex, ok := carrier.Get(B3SpanIDHeader)
	if !ok {
		return spanz.SpanContext{}, missing(b3Format, ErrMissingSpanID)
	}
	spanID, err := parseSpanIDHex(b3Format, spanHex)
	if err != nil {
		return spanz.SpanContext{}, err
	}

	var opts spanz.TraceOptions
	sampled, _ := carrier.Get(B3SampledHeader)
	flags, _ := carrier.Get(B3FlagsHeader)
	if sampled == "1" || flags == "1" {
		opts = opts.WithSampled(true)
	}
	return spanz.SpanContext{TraceID: traceID, SpanID: spanID, TraceOptions: opts}, nil
}

// B3SingleFormat is the Zipkin B3 single-header format:
// traceId-spanId[-state[-parentSpanId]].
type B3SingleFormat struct{}

// Fields implements TextFormat.
func (B3SingleFormat) Fields() []string {
	return []string{B3SingleHeader}
}

// Inject writes traceId-spanId-state from the span context ids; the parent
// span id is never written. The tracestate b3 entry is not consulted, so the
// mirror written by Extract only flows inbound.
func (B3SingleFormat) Inject(sc spanz.SpanContext, carrier Setter) {
	state := "0"
	if sc.IsSampled() {
		state = "1"
	}
	carrier.Set(B3SingleHeader, sc.TraceID.String()+"-"+sc.SpanID.String()+"-"+state)
}

// Extract parses the b3 header. The raw header is kept in the tracestate
// under key b3.
func (B3SingleFormat) Extract(carrier Getter) (spanz.SpanContext, error) {
	header, ok := carrier.Get(B3SingleHeader)
	if !ok {
		return spanz.SpanContext{}, missing(b3SingleFormat, ErrMissingHeader)
	}
	return parseB3Single(header)
}

func parseB3Single(header string) (spanz.SpanContext, error) {
	parts := strings.Split(header, "-")
	if len(parts) < 2 || len(parts) > 4 {
		return spanz.SpanContext{}, malformed(b3SingleFormat, "want 2 to 4 hyphen separated segments", nil)
	}
	traceID, err := parseB3TraceID(b3SingleFormat, parts[0])
	if err != nil {
		return spanz.SpanContext{}, err
	}
	spanID, err := parseSpanIDHex(b3SingleFormat, parts[1])
	if err != nil {
		return spanz.SpanContext{}, err
	}

	var opts spanz.TraceOptions
	if len(parts) > 2 {
		switch parts[2] {
		case "1", "d":
			opts = opts.WithSampled(true)
		case "0":
		default:
			return spanz.SpanContext{}, malformed(b3SingleFormat, "sampling state must be 0, 1 or d", nil)
		}
	}
	if len(parts) > 3 {
		if _, err := parseSpanIDHex(b3SingleFormat, parts[3]); err != nil {
			return spanz.SpanContext{}, err
		}
	}
	return spanz.SpanContext{
		TraceID:      traceID,
		SpanID:       spanID,
		TraceOptions: opts,
		Tracestate:   spanz.Tracestate{{Key: B3SingleHeader, Value: header}},
	}, nil
}

// parseB3TraceID accepts 16 or 32 lowercase hex characters.
func parseB3TraceID(format, s string) (spanz.TraceID, error) {
	if len(s) == 16 {
		s = upperTraceID + s
	}
	id, err := spanz.TraceIDFromHex(s)
	if err != nil {
		return spanz.TraceID{}, malformed(format, "invalid trace id", err)
	}
	if !id.IsValid() {
		return spanz.TraceID{}, malformed(format, "trace id is all zeros", nil)
	}
	return id, nil
}

func parseSpanIDHex(format, s string) (spanz.SpanID, error) {
	id, err := spanz.SpanIDFromHex(s)
	if err != nil {
		return spanz.SpanID{}, malformed(format, "invalid span id", err)
	}
	if !id.IsValid() {
		return spanz.SpanID{}, malformed(format, "span id is all zeros", nil)
	}
	return id, nil
}
