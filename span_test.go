package spanz

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/zoobzio/clockz"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/grpc/codes"
)

var testEpoch = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

// newTestSpan starts a recording span outside any tracer.
func newTestSpan(name string, params TraceParams, clock clockz.Clock) *Span {
	return startSpan(spanConfig{
		spanContext: SpanContext{TraceID: TraceID{1}, SpanID: SpanID{2}, TraceOptions: Sampled},
		name:        name,
		params:      params,
		clock:       clock,
		recording:   true,
	})
}

func TestSpanStartState(t *testing.T) {
	clock := clockz.NewFakeClockAt(testEpoch)
	span := newTestSpan("test-operation", TraceParams{}, clock)

	if span.Name() != "test-operation" {
		t.Errorf("Expected name 'test-operation', got %s", span.Name())
	}
	if !span.IsRecording() {
		t.Error("Expected span to be recording")
	}
	if span.Ended() {
		t.Error("Expected span to be running")
	}

	data := span.ToSpanData()
	if !data.StartTime.Equal(testEpoch) {
		t.Errorf("Expected start time %v, got %v", testEpoch, data.StartTime)
	}
	if data.Status != nil {
		t.Errorf("Expected nil status while running, got %v", data.Status)
	}
	if !data.EndTime.IsZero() {
		t.Errorf("Expected zero end time while running, got %v", data.EndTime)
	}
	if !data.IsRoot() {
		t.Error("Expected span without parent to be root")
	}
}

func TestSpanAttributeEvictionBound(t *testing.T) {
	span := newTestSpan("test", TraceParams{MaxAttributes: 4}, nil)

	for i := 0; i < 10; i++ {
		span.PutAttribute(fmt.Sprintf("key-%d", i), Int64Attribute(int64(i)))
	}

	data := span.ToSpanData()
	if len(data.Attributes) != 4 {
		t.Errorf("Expected 4 attributes, got %d", len(data.Attributes))
	}
	if data.DroppedAttributes != 6 {
		t.Errorf("Expected 6 dropped attributes, got %d", data.DroppedAttributes)
	}
	for i := 6; i < 10; i++ {
		key := fmt.Sprintf("key-%d", i)
		if _, ok := data.Attributes[key]; !ok {
			t.Errorf("Expected newest key %s to be retained", key)
		}
	}
}

func TestSpanAttributeRepeatedKeysDropNothing(t *testing.T) {
	span := newTestSpan("test", TraceParams{MaxAttributes: 3}, nil)

	// 12 writes over 3 distinct keys.
	for i := 0; i < 12; i++ {
		span.PutAttribute(fmt.Sprintf("key-%d", i%3), Int64Attribute(int64(i)))
	}

	data := span.ToSpanData()
	if len(data.Attributes) != 3 {
		t.Errorf("Expected 3 attributes, got %d", len(data.Attributes))
	}
	if data.DroppedAttributes != 0 {
		t.Errorf("Expected 0 dropped attributes, got %d", data.DroppedAttributes)
	}
	if got := data.Attributes["key-2"].AsInt64(); got != 11 {
		t.Errorf("Expected latest value 11 for key-2, got %d", got)
	}
}

func TestSpanAttributeLRUTouch(t *testing.T) {
	span := newTestSpan("test", TraceParams{MaxAttributes: 2}, nil)

	span.SetTag("a", "1")
	span.SetTag("b", "2")
	span.SetTag("c", "3") // Evicts a.

	data := span.ToSpanData()
	if _, ok := data.Attributes["a"]; ok {
		t.Error("Expected a to be evicted")
	}

	span.SetTag("b", "2") // Touch b.
	span.SetTag("d", "4") // Evicts c, not b.

	data = span.ToSpanData()
	if _, ok := data.Attributes["c"]; ok {
		t.Error("Expected c to be evicted after b was touched")
	}
	for _, key := range []string{"b", "d"} {
		if _, ok := data.Attributes[key]; !ok {
			t.Errorf("Expected %s to be retained", key)
		}
	}
	if data.DroppedAttributes != 2 {
		t.Errorf("Expected 2 dropped attributes, got %d", data.DroppedAttributes)
	}
}

func TestSpanPutAttributes(t *testing.T) {
	span := newTestSpan("test", TraceParams{}, nil)
	span.PutAttributes(map[string]AttributeValue{
		"str":   StringAttribute("v"),
		"bool":  BoolAttribute(true),
		"int":   Int64Attribute(7),
		"float": Float64Attribute(1.5),
	})

	data := span.ToSpanData()
	if len(data.Attributes) != 4 {
		t.Fatalf("Expected 4 attributes, got %d", len(data.Attributes))
	}
	if data.Attributes["str"].AsString() != "v" {
		t.Errorf("Expected str=v, got %v", data.Attributes["str"])
	}
	if !data.Attributes["bool"].AsBool() {
		t.Error("Expected bool=true")
	}
	if data.Attributes["int"].AsInt64() != 7 {
		t.Errorf("Expected int=7, got %v", data.Attributes["int"])
	}
	if data.Attributes["float"].AsFloat64() != 1.5 {
		t.Errorf("Expected float=1.5, got %v", data.Attributes["float"])
	}
}

func TestSpanAnnotationFIFO(t *testing.T) {
	span := newTestSpan("test", TraceParams{MaxAnnotations: 3}, nil)

	for i := 1; i <= 5; i++ {
		span.AddAnnotation(fmt.Sprintf("e%d", i), nil)
	}

	data := span.ToSpanData()
	if len(data.Annotations) != 3 {
		t.Fatalf("Expected 3 annotations, got %d", len(data.Annotations))
	}
	for i, want := range []string{"e3", "e4", "e5"} {
		if got := data.Annotations[i].Event.Description; got != want {
			t.Errorf("Expected annotation %d to be %s, got %s", i, want, got)
		}
	}
	if data.DroppedAnnotations != 2 {
		t.Errorf("Expected 2 dropped annotations, got %d", data.DroppedAnnotations)
	}
}

func TestSpanMessageEventsAndLinksFIFO(t *testing.T) {
	span := newTestSpan("test", TraceParams{MaxMessageEvents: 2, MaxLinks: 2}, nil)

	for i := 1; i <= 4; i++ {
		span.AddMessageEvent(MessageEvent{Type: MessageEventTypeSent, ID: uint64(i)})
		span.AddLink(Link{TraceID: TraceID{byte(i)}, SpanID: SpanID{byte(i)}, Type: LinkTypeParent})
	}

	data := span.ToSpanData()
	if len(data.MessageEvents) != 2 || data.MessageEvents[0].Event.ID != 3 || data.MessageEvents[1].Event.ID != 4 {
		t.Errorf("Expected message events 3,4, got %+v", data.MessageEvents)
	}
	if data.DroppedMessageEvents != 2 {
		t.Errorf("Expected 2 dropped message events, got %d", data.DroppedMessageEvents)
	}
	if len(data.Links) != 2 || data.Links[0].TraceID[0] != 3 || data.Links[1].TraceID[0] != 4 {
		t.Errorf("Expected links 3,4, got %+v", data.Links)
	}
	if data.DroppedLinks != 2 {
		t.Errorf("Expected 2 dropped links, got %d", data.DroppedLinks)
	}
}

func TestSpanLinkAttributesBounded(t *testing.T) {
	span := newTestSpan("test", TraceParams{MaxAttributesPerLink: 2}, nil)

	attrs := map[string]AttributeValue{}
	for i := 0; i < 5; i++ {
		attrs[fmt.Sprintf("k%d", i)] = Int64Attribute(int64(i))
	}
	span.AddLink(Link{TraceID: TraceID{1}, SpanID: SpanID{1}, Attributes: attrs})

	link := span.ToSpanData().Links[0]
	if len(link.Attributes) != 2 {
		t.Errorf("Expected 2 link attributes, got %d", len(link.Attributes))
	}
	if link.DroppedAttributes != 3 {
		t.Errorf("Expected 3 dropped link attributes, got %d", link.DroppedAttributes)
	}
	if len(attrs) != 5 {
		t.Error("Expected caller's attribute map to be left untouched")
	}
}

func TestSpanPostEndImmutability(t *testing.T) {
	clock := clockz.NewFakeClockAt(testEpoch)
	span := newTestSpan("test", TraceParams{}, clock)
	span.SetTag("before", "end")
	span.AddAnnotation("before end", nil)

	clock.Advance(5 * time.Millisecond)
	span.End()
	snapshot := span.ToSpanData()

	clock.Advance(time.Second)
	span.SetTag("after", "end")
	span.PutAttributes(map[string]AttributeValue{"x": BoolAttribute(true)})
	span.AddAnnotation("after end", nil)
	span.AddMessageEvent(MessageEvent{Type: MessageEventTypeReceived})
	span.AddLink(Link{TraceID: TraceID{9}, SpanID: SpanID{9}})
	span.SetStatus(Status{Code: codes.Internal})
	span.EndWithOptions(EndOptions{Status: &Status{Code: codes.Aborted}})

	if after := span.ToSpanData(); !reflect.DeepEqual(snapshot, after) {
		t.Errorf("Expected snapshot to be unchanged after End\nbefore: %+v\nafter:  %+v", snapshot, after)
	}
	if span.Latency() != 5*time.Millisecond {
		t.Errorf("Expected latency 5ms, got %v", span.Latency())
	}
}

func TestSpanEndTwiceLogged(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	span := startSpan(spanConfig{
		spanContext: SpanContext{TraceID: TraceID{1}, SpanID: SpanID{1}},
		name:        "test",
		logger:      zap.New(core),
		recording:   true,
	})

	span.End()
	span.End()
	span.SetTag("late", "tag")

	entries := logs.FilterMessage("call on an ended span ignored").All()
	if len(entries) != 2 {
		t.Fatalf("Expected 2 debug entries, got %d", len(entries))
	}
	if op := entries[0].ContextMap()["op"]; op != "End" {
		t.Errorf("Expected op End, got %v", op)
	}
	if op := entries[1].ContextMap()["op"]; op != "PutAttribute" {
		t.Errorf("Expected op PutAttribute, got %v", op)
	}
}

func TestSpanStatus(t *testing.T) {
	span := newTestSpan("test", TraceParams{}, nil)

	if !span.Status().IsOK() {
		t.Errorf("Expected default status OK, got %v", span.Status())
	}

	span.SetStatus(Status{Code: codes.NotFound, Message: "missing"})
	if span.Status().Code != codes.NotFound {
		t.Errorf("Expected NotFound, got %v", span.Status())
	}

	// Status passed at End wins.
	span.EndWithOptions(EndOptions{Status: &Status{Code: codes.Unavailable}})
	data := span.ToSpanData()
	if data.Status == nil || data.Status.Code != codes.Unavailable {
		t.Errorf("Expected Unavailable, got %v", data.Status)
	}
}

func TestSpanLatency(t *testing.T) {
	clock := clockz.NewFakeClockAt(testEpoch)
	span := newTestSpan("test", TraceParams{}, clock)

	clock.Advance(30 * time.Millisecond)
	if span.Latency() != 30*time.Millisecond {
		t.Errorf("Expected running latency 30ms, got %v", span.Latency())
	}

	span.End()
	clock.Advance(time.Hour)
	if span.Latency() != 30*time.Millisecond {
		t.Errorf("Expected frozen latency 30ms, got %v", span.Latency())
	}
	data := span.ToSpanData()
	if data.Latency() != 30*time.Millisecond {
		t.Errorf("Expected snapshot latency 30ms, got %v", data.Latency())
	}
}

func TestNonRecordingSpanIgnoresMutations(t *testing.T) {
	handler := &recordingHandler{}
	span := startSpan(spanConfig{
		spanContext: SpanContext{TraceID: TraceID{1}, SpanID: SpanID{1}},
		name:        "test",
		handler:     handler,
	})

	span.SetTag("key", "value")
	span.AddAnnotation("note", nil)
	span.SetStatus(Status{Code: codes.Internal})
	span.End()

	data := span.ToSpanData()
	if len(data.Attributes) != 0 || len(data.Annotations) != 0 {
		t.Errorf("Expected nothing recorded, got %+v", data)
	}
	if handler.starts != 0 || handler.ends != 0 {
		t.Errorf("Expected no lifecycle events, got %d starts and %d ends", handler.starts, handler.ends)
	}
}

func TestSpanConcurrentMutation(t *testing.T) {
	span := newTestSpan("test", TraceParams{MaxAttributes: 16, MaxAnnotations: 16}, nil)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				span.SetTag(fmt.Sprintf("g%d-%d", g, i), "v")
				span.AddAnnotation("tick", nil)
				_ = span.ToSpanData()
			}
		}(g)
	}
	wg.Wait()
	span.End()

	data := span.ToSpanData()
	if len(data.Attributes) != 16 {
		t.Errorf("Expected 16 attributes, got %d", len(data.Attributes))
	}
	if data.DroppedAttributes != 800-16 {
		t.Errorf("Expected %d dropped attributes, got %d", 800-16, data.DroppedAttributes)
	}
	if len(data.Annotations)+data.DroppedAnnotations != 800 {
		t.Errorf("Expected 800 annotations recorded, got %d", len(data.Annotations)+data.DroppedAnnotations)
	}
}

func TestSpanEndCallsHandlerOnce(t *testing.T) {
	handler := &recordingHandler{}
	span := startSpan(spanConfig{
		spanContext: SpanContext{TraceID: TraceID{1}, SpanID: SpanID{1}},
		name:        "test",
		handler:     handler,
		recording:   true,
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			span.End()
		}()
	}
	wg.Wait()

	if handler.starts != 1 {
		t.Errorf("Expected 1 start, got %d", handler.starts)
	}
	if handler.ends != 1 {
		t.Errorf("Expected 1 end, got %d", handler.ends)
	}
}

func TestContextRoundTrip(t *testing.T) {
	if FromContext(context.Background()) != nil {
		t.Error("Expected no span in empty context")
	}
	//nolint:staticcheck // Nil context handling is part of the API.
	if FromContext(nil) != nil {
		t.Error("Expected no span in nil context")
	}

	span := newTestSpan("test", TraceParams{}, nil)
	ctx := NewContext(context.Background(), span)
	if FromContext(ctx) != span {
		t.Error("Expected span from context")
	}
}

type recordingHandler struct {
	mu     sync.Mutex
	starts int
	ends   int
}

func (h *recordingHandler) onStart(*Span) {
	h.mu.Lock()
	h.starts++
	h.mu.Unlock()
}

func (h *recordingHandler) onEnd(*Span) {
	h.mu.Lock()
	h.ends++
	h.mu.Unlock()
}
