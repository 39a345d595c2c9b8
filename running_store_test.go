package spanz

import (
	"sync"
	"testing"
)

func TestRunningSpanStoreDisabledByDefault(t *testing.T) {
	store := NewRunningSpanStore()
	span := newTestSpan("op", TraceParams{}, nil)

	store.OnStart(span)
	if store.Enabled() {
		t.Error("Expected store to start disabled")
	}
	if got := store.GetRunningSpans(RunningFilter{SpanName: "op"}); len(got) != 0 {
		t.Errorf("Expected no running spans, got %d", len(got))
	}
	if len(store.GetSummary().PerSpanName) != 0 {
		t.Error("Expected empty summary")
	}
}

func TestRunningSpanStoreStartEnd(t *testing.T) {
	store := NewRunningSpanStore()
	store.SetEnabled(true)

	a1 := newTestSpan("a", TraceParams{}, nil)
	a2 := newTestSpan("a", TraceParams{}, nil)
	b1 := newTestSpan("b", TraceParams{}, nil)
	for _, s := range []*Span{a1, a2, b1} {
		store.OnStart(s)
	}

	summary := store.GetSummary()
	if summary.PerSpanName["a"].NumRunningSpans != 2 {
		t.Errorf("Expected 2 running a spans, got %d", summary.PerSpanName["a"].NumRunningSpans)
	}
	if summary.PerSpanName["b"].NumRunningSpans != 1 {
		t.Errorf("Expected 1 running b span, got %d", summary.PerSpanName["b"].NumRunningSpans)
	}

	got := store.GetRunningSpans(RunningFilter{SpanName: "a"})
	if len(got) != 2 {
		t.Fatalf("Expected 2 spans, got %d", len(got))
	}
	for _, d := range got {
		if d.Ended {
			t.Error("Expected running snapshot")
		}
	}

	b1.End()
	store.OnEnd(b1)
	if _, ok := store.GetSummary().PerSpanName["b"]; ok {
		t.Error("Expected b to be removed from the summary once no span is running")
	}
}

func TestRunningSpanStoreMaxSpansToReturn(t *testing.T) {
	store := NewRunningSpanStore()
	store.SetEnabled(true)
	for i := 0; i < 5; i++ {
		store.OnStart(newTestSpan("op", TraceParams{}, nil))
	}

	if got := store.GetRunningSpans(RunningFilter{SpanName: "op", MaxSpansToReturn: 3}); len(got) != 3 {
		t.Errorf("Expected 3 spans, got %d", len(got))
	}
	if got := store.GetRunningSpans(RunningFilter{SpanName: "op"}); len(got) != 5 {
		t.Errorf("Expected all 5 spans with no limit, got %d", len(got))
	}
}

func TestRunningSpanStoreDisableClears(t *testing.T) {
	store := NewRunningSpanStore()
	store.SetEnabled(true)
	store.OnStart(newTestSpan("op", TraceParams{}, nil))

	store.SetEnabled(false)
	store.SetEnabled(true)
	if got := store.GetRunningSpans(RunningFilter{SpanName: "op"}); len(got) != 0 {
		t.Errorf("Expected index cleared by disable, got %d spans", len(got))
	}
}

func TestRunningSpanStoreIgnoresUnknownAndEnded(t *testing.T) {
	store := NewRunningSpanStore()
	store.SetEnabled(true)

	span := newTestSpan("op", TraceParams{}, nil)
	store.OnEnd(span) // Unknown span.

	span.End()
	store.OnStart(span) // Already ended.
	if got := store.GetRunningSpans(RunningFilter{SpanName: "op"}); len(got) != 0 {
		t.Errorf("Expected ended span to be skipped, got %d", len(got))
	}
}

func TestRunningSpanStoreConcurrentReads(t *testing.T) {
	store := NewRunningSpanStore()
	store.SetEnabled(true)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			s := newTestSpan("op", TraceParams{}, nil)
			store.OnStart(s)
			s.End()
			store.OnEnd(s)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_ = store.GetRunningSpans(RunningFilter{SpanName: "op"})
			_ = store.GetSummary()
		}
	}()
	wg.Wait()

	if n := store.GetSummary().PerSpanName["op"].NumRunningSpans; n != 0 {
		t.Errorf("Expected no running spans, got %d", n)
	}
}
