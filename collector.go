package spanz

import (
	"sync"
	"sync/atomic"
)

// Collector is an in-memory export Handler that buffers exported spans until
// they are drained. Useful for tests and for in-process consumers.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field alignment optimized for readability over memory efficiency
type Collector struct {
	spans        []SpanData
	droppedCount atomic.Int64
	capacity     int
	mu           sync.Mutex
}

// NewCollector creates a collector holding at most capacity spans.
// Spans exported while it is full are dropped and counted.
func NewCollector(capacity int) *Collector {
	if capacity <= 0 {
		capacity = DefaultMaxBufferedSpans
	}
	return &Collector{
		spans:    make([]SpanData, 0, 8), // Start with small capacity.
		capacity: capacity,
	}
}

// Export implements Handler.
func (c *Collector) Export(spans []SpanData) {
	c.mu.Lock()
	defer c.mu.Unlock()

	room := c.capacity - len(c.spans)
	if room < 0 {
		room = 0
	}
	if len(spans) > room {
		c.droppedCount.Add(int64(len(spans) - room))
		spans = spans[:room]
	}
	c.spans = append(c.spans, spans...)
}

// Drain returns all buffered spans and clears the buffer.
func (c *Collector) Drain() []SpanData {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.spans) == 0 {
		return nil
	}
	out := c.spans

	// Only shrink if buffer is very oversized to avoid allocation churn.
	newCap := cap(out)
	if newCap > 256 && len(out) < newCap/8 {
		newCap /= 4
	}
	if newCap < 8 {
		newCap = 8
	}
	c.spans = make([]SpanData, 0, newCap)
	return out
}

// Count returns the number of buffered spans.
func (c *Collector) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.spans)
}

// DroppedCount returns the number of spans dropped because the collector was full.
func (c *Collector) DroppedCount() int64 {
	return c.droppedCount.Load()
}

// Reset clears buffered spans and the drop counter.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.spans = make([]SpanData, 0, 8)
	c.droppedCount.Store(0)
}
