package spanz

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zoobzio/clockz"
	"go.uber.org/zap"
)

// spanKeyType is a private type for context keys to avoid collisions.
type spanKeyType struct{}

var spanKey spanKeyType

// startEndHandler receives span lifecycle events. Implementations must stay
// cheap because they run on the instrumented goroutine.
type startEndHandler interface {
	onStart(span *Span)
	onEnd(span *Span)
}

// EndOptions customizes End.
type EndOptions struct {
	// Status, when non-nil, replaces any status set earlier.
	Status *Status
	// SampleToLocalSpanStore registers the span name with the sampled span
	// store so this and later spans with the name are retained.
	SampleToLocalSpanStore bool
}

// leakState is allocated apart from the Span so a cleanup can observe it
// after the Span is unreachable.
type leakState struct {
	logger *zap.Logger
	name   string
	ended  atomic.Bool
}

// Span records one unit of work. Safe for concurrent use by multiple
// goroutines; every mutator is a logged no-op once the span has ended.
//
//nolint:govet // Immutable fields first, guarded state after mu
type Span struct {
	spanContext     SpanContext
	parentSpanID    SpanID
	hasRemoteParent *bool
	name            string
	kind            SpanKind
	params          TraceParams
	clock           clockz.Clock
	logger          *zap.Logger
	handler         startEndHandler
	startTime       time.Time
	recording       bool
	leak            *leakState

	mu                     sync.Mutex // Guards everything below.
	attributes             *attributesWithCapacity
	annotations            *evictingQueue[TimedEvent[Annotation]]
	messageEvents          *evictingQueue[TimedEvent[MessageEvent]]
	links                  *evictingQueue[Link]
	childCount             int
	status                 *Status
	endTime                time.Time
	ended                  bool
	sampleToLocalSpanStore bool
}

// spanConfig carries everything startSpan needs.
//
//nolint:govet // Mirrors Span field order
type spanConfig struct {
	spanContext     SpanContext
	parentSpanID    SpanID
	hasRemoteParent *bool
	name            string
	kind            SpanKind
	params          TraceParams
	clock           clockz.Clock
	logger          *zap.Logger
	handler         startEndHandler
	recording       bool
}

// startSpan creates the span and, once it is fully built, reports the start.
func startSpan(cfg spanConfig) *Span {
	if cfg.clock == nil {
		cfg.clock = clockz.RealClock
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}
	s := &Span{
		spanContext:     cfg.spanContext,
		parentSpanID:    cfg.parentSpanID,
		hasRemoteParent: cfg.hasRemoteParent,
		name:            cfg.name,
		kind:            cfg.kind,
		params:          cfg.params.withDefaults(),
		clock:           cfg.clock,
		logger:          cfg.logger,
		handler:         cfg.handler,
		recording:       cfg.recording,
		startTime:       cfg.clock.Now(),
	}
	if !s.recording {
		return s
	}
	if s.params.DetectLeaks {
		s.leak = &leakState{logger: s.logger, name: s.name}
		runtime.AddCleanup(s, func(l *leakState) {
			if !l.ended.Load() {
				l.logger.Warn("span reclaimed without being ended", zap.String("span", l.name))
			}
		}, s.leak)
	}
	if s.handler != nil {
		s.handler.onStart(s)
	}
	return s
}

// Context returns the immutable identity of the span.
func (s *Span) Context() SpanContext {
	return s.spanContext
}

// Name returns the span name.
func (s *Span) Name() string {
	return s.name
}

// Kind returns the span kind.
func (s *Span) Kind() SpanKind {
	return s.kind
}

// ParentSpanID returns the parent span id, zero for root spans.
func (s *Span) ParentSpanID() SpanID {
	return s.parentSpanID
}

// IsRecording reports whether mutators record anything.
func (s *Span) IsRecording() bool {
	return s.recording
}

// TraceID returns the trace ID of this span.
func (s *Span) TraceID() TraceID {
	return s.spanContext.TraceID
}

// SpanID returns the span ID of this span.
func (s *Span) SpanID() SpanID {
	return s.spanContext.SpanID
}

// PutAttribute records key=value, evicting the least recently touched key
// when the span is at capacity.
func (s *Span) PutAttribute(key string, value AttributeValue) {
	if !s.recording {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		s.logEnded("PutAttribute")
		return
	}
	s.initAttributes().put(key, value)
}

// PutAttributes records every entry of attrs.
func (s *Span) PutAttributes(attrs map[string]AttributeValue) {
	if !s.recording {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		s.logEnded("PutAttributes")
		return
	}
	s.initAttributes().putAll(attrs)
}

// SetTag records a string attribute.
func (s *Span) SetTag(key, value string) {
	s.PutAttribute(key, StringAttribute(value))
}

// AddAnnotation records a timestamped description.
func (s *Span) AddAnnotation(description string, attrs map[string]AttributeValue) {
	if !s.recording {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		s.logEnded("AddAnnotation")
		return
	}
	if s.annotations == nil {
		s.annotations = newEvictingQueue[TimedEvent[Annotation]](s.params.MaxAnnotations)
	}
	s.annotations.add(TimedEvent[Annotation]{
		Time:  s.clock.Now(),
		Event: Annotation{Description: description, Attributes: copyAttributes(attrs)},
	})
}

// AddMessageEvent records a sent or received message.
func (s *Span) AddMessageEvent(event MessageEvent) {
	if !s.recording {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		s.logEnded("AddMessageEvent")
		return
	}
	if s.messageEvents == nil {
		s.messageEvents = newEvictingQueue[TimedEvent[MessageEvent]](s.params.MaxMessageEvents)
	}
	s.messageEvents.add(TimedEvent[MessageEvent]{Time: s.clock.Now(), Event: event})
}

// AddLink records a reference to another span. The link's attributes are
// bounded by TraceParams.MaxAttributesPerLink.
func (s *Span) AddLink(link Link) {
	if !s.recording {
		return
	}
	attrs, dropped := boundedAttributes(link.Attributes, s.params.MaxAttributesPerLink)
	link.Attributes = attrs
	link.DroppedAttributes += dropped

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		s.logEnded("AddLink")
		return
	}
	if s.links == nil {
		s.links = newEvictingQueue[Link](s.params.MaxLinks)
	}
	s.links.add(link)
}

// SetStatus replaces the span status.
func (s *Span) SetStatus(status Status) {
	if !s.recording {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		s.logEnded("SetStatus")
		return
	}
	s.status = &status
}

// Status returns the current status, StatusOK if none was set.
func (s *Span) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusWithDefault()
}

// End completes the span. Safe to call multiple times - subsequent calls are no-ops.
func (s *Span) End() {
	s.EndWithOptions(EndOptions{})
}

// EndWithOptions completes the span with the given options.
func (s *Span) EndWithOptions(opts EndOptions) {
	s.mu.Lock()
	if s.ended {
		s.logEnded("End")
		s.mu.Unlock()
		return
	}
	if opts.Status != nil {
		status := *opts.Status
		s.status = &status
	}
	s.sampleToLocalSpanStore = opts.SampleToLocalSpanStore
	s.endTime = s.clock.Now()
	s.ended = true
	s.mu.Unlock()

	if s.leak != nil {
		s.leak.ended.Store(true)
	}
	// Never call out while holding the lock.
	if s.recording && s.handler != nil {
		s.handler.onEnd(s)
	}
}

// Ended reports whether End has been called.
func (s *Span) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

// Latency returns end-start for ended spans and now-start otherwise.
func (s *Span) Latency() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return s.endTime.Sub(s.startTime)
	}
	return s.clock.Now().Sub(s.startTime)
}

// endTimeOrNow mirrors Latency for the end timestamp.
func (s *Span) endTimeOrNow() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return s.endTime
	}
	return s.clock.Now()
}

func (s *Span) shouldSampleToLocalSpanStore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended && s.sampleToLocalSpanStore
}

// addChild counts a local child span.
func (s *Span) addChild() {
	if !s.recording {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		s.logEnded("addChild")
		return
	}
	s.childCount++
}

// ToSpanData returns a consistent snapshot of the span.
func (s *Span) ToSpanData() SpanData {
	s.mu.Lock()
	defer s.mu.Unlock()

	data := SpanData{
		SpanContext:     s.spanContext,
		ParentSpanID:    s.parentSpanID,
		HasRemoteParent: s.hasRemoteParent,
		Name:            s.name,
		Kind:            s.kind,
		StartTime:       s.startTime,
		ChildCount:      s.childCount,
		Ended:           s.ended,
	}
	if s.attributes != nil {
		data.Attributes = s.attributes.snapshot()
		data.DroppedAttributes = s.attributes.dropped()
	}
	if s.annotations != nil {
		data.Annotations = s.annotations.items()
		data.DroppedAnnotations = s.annotations.dropped()
	}
	if s.messageEvents != nil {
		data.MessageEvents = s.messageEvents.items()
		data.DroppedMessageEvents = s.messageEvents.dropped()
	}
	if s.links != nil {
		data.Links = s.links.items()
		data.DroppedLinks = s.links.dropped()
	}
	if s.ended {
		status := s.statusWithDefault()
		data.Status = &status
		data.EndTime = s.endTime
	}
	return data
}

func (s *Span) initAttributes() *attributesWithCapacity {
	if s.attributes == nil {
		s.attributes = newAttributesWithCapacity(s.params.MaxAttributes)
	}
	return s.attributes
}

func (s *Span) statusWithDefault() Status {
	if s.status == nil {
		return StatusOK
	}
	return *s.status
}

func (s *Span) logEnded(op string) {
	s.logger.Debug("call on an ended span ignored",
		zap.String("op", op),
		zap.String("span", s.name),
	)
}

func copyAttributes(attrs map[string]AttributeValue) map[string]AttributeValue {
	if len(attrs) == 0 {
		return nil
	}
	out := make(map[string]AttributeValue, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}

// NewContext returns a copy of parent carrying span.
func NewContext(parent context.Context, span *Span) context.Context {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithValue(parent, spanKey, span)
}

// FromContext extracts the current span from a context.
// Returns nil if no span is present.
func FromContext(ctx context.Context) *Span {
	if ctx == nil {
		return nil
	}
	span, _ := ctx.Value(spanKey).(*Span)
	return span
}
