package spanz

import (
	"sync"
	"sync/atomic"
	"testing"

	"go.uber.org/goleak"
)

func TestIDPoolBasicOperation(t *testing.T) {
	defer goleak.VerifyNone(t)

	pool := NewIDPool(10, func() string { return "test-id" })
	defer pool.Close()

	if id := pool.Get(); id != "test-id" {
		t.Errorf("Expected 'test-id', got %s", id)
	}
}

func TestIDPoolFallsBackToFactory(t *testing.T) {
	defer goleak.VerifyNone(t)

	var calls atomic.Int64
	pool := NewIDPool(1, func() int64 { return calls.Add(1) })
	defer pool.Close()

	for i := 0; i < 5; i++ {
		pool.Get()
	}
	// One id in the buffer at most, the rest generated on demand.
	if calls.Load() < 5 {
		t.Errorf("Expected factory called at least 5 times, got %d", calls.Load())
	}
}

func TestIDPoolConcurrentAccess(t *testing.T) {
	defer goleak.VerifyNone(t)

	pool := NewIDPool(50, randomSpanID)
	defer pool.Close()

	var mu sync.Mutex
	seen := make(map[SpanID]struct{})
	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				id := pool.Get()
				if !id.IsValid() {
					t.Error("Expected valid span id")
				}
				mu.Lock()
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != 1000 {
		t.Errorf("Expected 1000 unique ids, got %d", len(seen))
	}
}

func TestIDPoolCloseStopsRefill(t *testing.T) {
	defer goleak.VerifyNone(t)

	pool := NewIDPool(10, randomTraceID)
	pool.Close()
	pool.Close() // Idempotent.

	if id := pool.Get(); !id.IsValid() {
		t.Error("Expected Get to keep working after Close")
	}
}

func TestRandomIDsAreValid(t *testing.T) {
	for i := 0; i < 100; i++ {
		if !randomTraceID().IsValid() {
			t.Fatal("Expected valid trace id")
		}
		if !randomSpanID().IsValid() {
			t.Fatal("Expected valid span id")
		}
	}
}
