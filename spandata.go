package spanz

import (
	"time"

	"google.golang.org/grpc/codes"
)

// SpanKind describes the relationship of a span to its remote peers.
type SpanKind int

// Span kinds.
const (
	SpanKindUnspecified SpanKind = iota
	SpanKindServer
	SpanKindClient
	SpanKindInternal
)

// String returns the lowercase kind name.
func (k SpanKind) String() string {
	switch k {
	case SpanKindServer:
		return "server"
	case SpanKindClient:
		return "client"
	case SpanKindInternal:
		return "internal"
	default:
		return "unspecified"
	}
}

// Status is the outcome of a span expressed as a canonical gRPC code.
type Status struct {
	Message string
	Code    codes.Code
}

// StatusOK is the status of a span that never had one set.
var StatusOK = Status{Code: codes.OK}

// IsOK reports whether the code is codes.OK.
func (s Status) IsOK() bool {
	return s.Code == codes.OK
}

// String formats the status as "Code" or "Code: message".
func (s Status) String() string {
	if s.Message == "" {
		return s.Code.String()
	}
	return s.Code.String() + ": " + s.Message
}

// Annotation is a timestamped text note with attributes.
type Annotation struct {
	Attributes  map[string]AttributeValue
	Description string
}

// MessageEventType tells whether a message was sent or received.
type MessageEventType int

// Message event types.
const (
	MessageEventTypeUnspecified MessageEventType = iota
	MessageEventTypeSent
	MessageEventTypeReceived
)

// String returns the lowercase type name.
func (t MessageEventType) String() string {
	switch t {
	case MessageEventTypeSent:
		return "sent"
	case MessageEventTypeReceived:
		return "received"
	default:
		return "unspecified"
	}
}

// MessageEvent records one message passing through the span.
type MessageEvent struct {
	Type             MessageEventType
	ID               uint64
	UncompressedSize int64
	CompressedSize   int64
}

// LinkType describes how a linked span relates to this one.
type LinkType int

// Link types.
const (
	LinkTypeUnspecified LinkType = iota
	LinkTypeChild
	LinkTypeParent
)

// String returns the lowercase type name.
func (t LinkType) String() string {
	switch t {
	case LinkTypeChild:
		return "child"
	case LinkTypeParent:
		return "parent"
	default:
		return "unspecified"
	}
}

// Link references another span, possibly in another trace.
//
//nolint:govet // Field order mirrors SpanContext
type Link struct {
	Attributes        map[string]AttributeValue
	TraceID           TraceID
	SpanID            SpanID
	Type              LinkType
	DroppedAttributes int
}

// TimedEvent pairs an event with the time it was recorded.
type TimedEvent[T any] struct {
	Time  time.Time
	Event T
}

// SpanData is an immutable snapshot of a span.
// EndTime is zero and Status is nil while the span is running.
//
//nolint:govet // Field order groups related data over memory layout
type SpanData struct {
	SpanContext     SpanContext
	ParentSpanID    SpanID
	HasRemoteParent *bool
	Name            string
	Kind            SpanKind
	StartTime       time.Time
	EndTime         time.Time
	Status          *Status

	Attributes           map[string]AttributeValue
	DroppedAttributes    int
	Annotations          []TimedEvent[Annotation]
	DroppedAnnotations   int
	MessageEvents        []TimedEvent[MessageEvent]
	DroppedMessageEvents int
	Links                []Link
	DroppedLinks         int

	ChildCount int
	Ended      bool
}

// Latency returns EndTime - StartTime, or zero for a running span.
func (d *SpanData) Latency() time.Duration {
	if !d.Ended {
		return 0
	}
	return d.EndTime.Sub(d.StartTime)
}

// IsRoot reports whether the span has no parent.
func (d *SpanData) IsRoot() bool {
	return !d.ParentSpanID.IsValid()
}
