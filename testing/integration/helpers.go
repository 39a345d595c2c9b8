package integration

import (
	"sync"
	"testing"
	"time"

	"github.com/zoobzio/spanz"
)

// MockCollector wraps a real collector with test utilities.
// Every span it receives is kept so assertions can run repeatedly.
//
//nolint:govet // Field alignment optimized for test helper readability
type MockCollector struct {
	exported []spanz.SpanData
	*spanz.Collector
	t  *testing.T
	mu sync.Mutex
}

// NewMockCollector creates a collector for testing.
func NewMockCollector(t *testing.T, bufferSize int) *MockCollector {
	return &MockCollector{
		Collector: spanz.NewCollector(bufferSize),
		t:         t,
	}
}

// GetAll returns all exported spans without clearing.
func (m *MockCollector) GetAll() []spanz.SpanData {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.exported = append(m.exported, m.Drain()...)
	all := make([]spanz.SpanData, len(m.exported))
	copy(all, m.exported)
	return all
}

// WaitForSpans waits for expected number of spans with timeout.
func (m *MockCollector) WaitForSpans(expected int, timeout time.Duration) []spanz.SpanData {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		if spans := m.GetAll(); len(spans) >= expected {
			return spans
		}
		<-ticker.C
	}

	spans := m.GetAll()
	m.t.Errorf("Timeout waiting for spans: expected %d, got %d", expected, len(spans))
	return spans
}

// AssertSpanCount verifies exact span count.
func (m *MockCollector) AssertSpanCount(expected int) {
	m.t.Helper()
	if spans := m.GetAll(); len(spans) != expected {
		m.t.Errorf("Expected %d spans, got %d", expected, len(spans))
	}
}

// AssertSpanNamed returns the first span with the given name.
func (m *MockCollector) AssertSpanNamed(name string) *spanz.SpanData {
	m.t.Helper()
	spans := m.GetAll()
	for i := range spans {
		if spans[i].Name == name {
			return &spans[i]
		}
	}
	m.t.Errorf("Span named '%s' not found", name)
	return nil
}

// AssertParentChild verifies parent-child relationship.
func (m *MockCollector) AssertParentChild(parentName, childName string) {
	m.t.Helper()
	parent := m.AssertSpanNamed(parentName)
	child := m.AssertSpanNamed(childName)
	if parent == nil || child == nil {
		return
	}
	if child.ParentSpanID != parent.SpanContext.SpanID {
		m.t.Errorf("Span '%s' parent is %s, expected '%s' (%s)",
			childName, child.ParentSpanID, parentName, parent.SpanContext.SpanID)
	}
	if child.SpanContext.TraceID != parent.SpanContext.TraceID {
		m.t.Errorf("Span '%s' is in trace %s, expected %s",
			childName, child.SpanContext.TraceID, parent.SpanContext.TraceID)
	}
}

// SpanTree groups spans by parent span id.
type SpanTree map[spanz.SpanID][]spanz.SpanData

// BuildSpanTree indexes spans by parent. Roots are under the zero id.
func BuildSpanTree(spans []spanz.SpanData) SpanTree {
	tree := make(SpanTree)
	for _, s := range spans {
		tree[s.ParentSpanID] = append(tree[s.ParentSpanID], s)
	}
	return tree
}

// Depth returns the number of levels below id.
func (tree SpanTree) Depth(id spanz.SpanID) int {
	depth := 0
	for _, child := range tree[id] {
		if d := 1 + tree.Depth(child.SpanContext.SpanID); d > depth {
			depth = d
		}
	}
	return depth
}

// NewSyncTracer returns a tracer that samples everything and exports on the
// caller's goroutine, plus a collector registered on it.
func NewSyncTracer(t *testing.T, opts ...spanz.Option) (*spanz.Tracer, *MockCollector) {
	t.Helper()
	cfg := spanz.DefaultConfig()
	cfg.QueueMode = spanz.QueueModeSync
	cfg.ExportSync = true
	cfg.SampleInterval = 0

	base := []spanz.Option{
		spanz.WithConfig(cfg),
		spanz.WithTraceParams(spanz.TraceParams{Sampler: spanz.AlwaysSample()}),
	}
	tracer, err := spanz.New(append(base, opts...)...)
	if err != nil {
		t.Fatalf("Failed to create tracer: %v", err)
	}
	t.Cleanup(tracer.Close)

	collector := NewMockCollector(t, 10000)
	if err := tracer.Exporter().RegisterHandler("mock", collector); err != nil {
		t.Fatalf("Failed to register collector: %v", err)
	}
	return tracer, collector
}
