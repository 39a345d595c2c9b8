package integration

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zoobzio/spanz"
)

// TestExporterSaturation verifies a stalled handler never blocks span End.
// 1000 spans are ended while the only handler is stuck.
func TestExporterSaturation(t *testing.T) {
	cfg := spanz.DefaultConfig()
	cfg.ExportBufferSize = 10
	cfg.ExportMaxBuffered = 100
	cfg.ExportScheduleDelay = time.Hour
	tracer, err := spanz.New(spanz.WithConfig(cfg), spanz.WithTraceParams(spanz.TraceParams{Sampler: spanz.AlwaysSample()}))
	if err != nil {
		t.Fatalf("Failed to create tracer: %v", err)
	}

	release := make(chan struct{})
	var exported atomic.Int64
	_ = tracer.Exporter().RegisterHandler("stuck", spanz.HandlerFunc(func(spans []spanz.SpanData) {
		<-release
		exported.Add(int64(len(spans)))
	}))

	const spansToGenerate = 1000
	start := time.Now()
	for i := 0; i < spansToGenerate; i++ {
		_, span := tracer.StartSpan(context.Background(), "burst-span")
		span.PutAttribute("index", spanz.Int64Attribute(int64(i)))
		span.End()
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Span generation took too long: %v (indicates blocking behavior)", elapsed)
	}

	// Every end has reached the exporter while the handler is still stuck.
	tracer.Queue().(*spanz.AsyncQueue).Flush()
	close(release)
	tracer.Close()

	queueDropped := tracer.Queue().(*spanz.AsyncQueue).Dropped()
	exportDropped := tracer.Exporter().Dropped()
	t.Logf("Generated: %d, Exported: %d, Export dropped: %d, Queue dropped: %d",
		spansToGenerate, exported.Load(), exportDropped, queueDropped)

	if exported.Load() == 0 {
		t.Error("No spans exported")
	}
	if exportDropped == 0 {
		t.Error("Expected drops while the handler was stalled")
	}
	// Every span is accounted for exactly once.
	if total := exported.Load() + exportDropped + int64(queueDropped); total != spansToGenerate {
		t.Errorf("Expected %d spans accounted for, got %d", spansToGenerate, total)
	}
}

// TestSlowHandlerIsolation verifies a slow handler delays but does not lose
// spans when the buffer is large enough.
func TestSlowHandlerIsolation(t *testing.T) {
	cfg := spanz.DefaultConfig()
	cfg.ExportBufferSize = 8
	cfg.ExportMaxBuffered = 4096
	tracer, err := spanz.New(spanz.WithConfig(cfg), spanz.WithTraceParams(spanz.TraceParams{Sampler: spanz.AlwaysSample()}))
	if err != nil {
		t.Fatalf("Failed to create tracer: %v", err)
	}

	fast := NewMockCollector(t, 10000)
	var slowCount atomic.Int64
	_ = tracer.Exporter().RegisterHandler("fast", fast)
	_ = tracer.Exporter().RegisterHandler("slow", spanz.HandlerFunc(func(spans []spanz.SpanData) {
		time.Sleep(time.Millisecond)
		slowCount.Add(int64(len(spans)))
	}))

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				_, span := tracer.StartSpan(context.Background(), "op")
				span.End()
			}
		}()
	}
	wg.Wait()
	tracer.Close()

	if n := len(fast.GetAll()); n != 1000 {
		t.Errorf("Expected fast handler to receive 1000 spans, got %d", n)
	}
	if slowCount.Load() != 1000 {
		t.Errorf("Expected slow handler to receive 1000 spans, got %d", slowCount.Load())
	}
}

// TestCollectorCapacity verifies the in-memory collector caps its buffer.
func TestCollectorCapacity(t *testing.T) {
	tracer, _ := NewSyncTracer(t)
	small := spanz.NewCollector(10)
	_ = tracer.Exporter().RegisterHandler("small", small)

	for i := 0; i < 25; i++ {
		_, span := tracer.StartSpan(context.Background(), "op")
		span.End()
	}

	if small.Count() != 10 {
		t.Errorf("Expected 10 buffered spans, got %d", small.Count())
	}
	if small.DroppedCount() != 15 {
		t.Errorf("Expected 15 dropped, got %d", small.DroppedCount())
	}
}
