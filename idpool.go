package spanz

import (
	"crypto/rand"
	"sync"
)

// IDPool keeps a buffer of pre-generated IDs to amortize crypto/rand overhead.
type IDPool[T any] struct {
	factory func() T
	ids     chan T
	stopCh  chan struct{}
	done    chan struct{}
	mu      sync.Mutex
	closed  bool
}

// NewIDPool creates a pool holding up to capacity IDs and starts its refill
// goroutine.
func NewIDPool[T any](capacity int, factory func() T) *IDPool[T] {
	if capacity <= 0 {
		capacity = 1
	}
	pool := &IDPool[T]{
		ids:     make(chan T, capacity),
		factory: factory,
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	go pool.refill()
	return pool
}

// Get retrieves an ID from the pool or generates one if the pool is empty.
func (p *IDPool[T]) Get() T {
	select {
	case id := <-p.ids:
		return id
	default:
		// Pool empty, generate directly (fallback for burst load).
		return p.factory()
	}
}

func (p *IDPool[T]) refill() {
	defer close(p.done)
	for {
		select {
		case p.ids <- p.factory():
		case <-p.stopCh:
			return
		}
	}
}

// Close stops the refill goroutine. Get keeps working afterwards.
func (p *IDPool[T]) Close() {
	p.mu.Lock()
	if !p.closed {
		close(p.stopCh)
		p.closed = true
	}
	p.mu.Unlock()
	<-p.done
}

// randomTraceID returns a random, valid trace id.
func randomTraceID() TraceID {
	var id TraceID
	for !id.IsValid() {
		fillRandom(id[:])
	}
	return id
}

// randomSpanID returns a random, valid span id.
func randomSpanID() SpanID {
	var id SpanID
	for !id.IsValid() {
		fillRandom(id[:])
	}
	return id
}

// fillRandom never fails: crypto/rand.Read aborts the process instead of
// returning an error.
func fillRandom(b []byte) {
	_, _ = rand.Read(b)
}
