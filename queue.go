package spanz

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// DefaultQueueCapacity is the async queue capacity used when none is configured.
const DefaultQueueCapacity = 8192

// Entry is one unit of deferred work.
type Entry interface {
	// Process runs the work on the queue's worker.
	Process()
	// Rejected runs instead of Process when the entry is dropped.
	Rejected()
}

// EntryFunc adapts a plain function to an Entry with no rejection hook.
type EntryFunc func()

// Process calls f.
func (f EntryFunc) Process() { f() }

// Rejected does nothing.
func (EntryFunc) Rejected() {}

// EventQueue decouples span start/end from bookkeeping. Entries are
// processed one at a time in enqueue order.
type EventQueue interface {
	Enqueue(entry Entry)
	Shutdown()
}

// SyncQueue processes each entry on the caller's goroutine. Entries from
// different goroutines may run concurrently; the stores guard themselves.
type SyncQueue struct {
	logger *zap.Logger
	closed atomic.Bool
}

// NewSyncQueue creates a queue that runs entries immediately.
func NewSyncQueue(logger *zap.Logger) *SyncQueue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncQueue{logger: logger}
}

// Enqueue runs entry before returning.
func (q *SyncQueue) Enqueue(entry Entry) {
	if entry == nil {
		return
	}
	if q.closed.Load() {
		entry.Rejected()
		return
	}
	safeProcess(q.logger, entry)
}

// Shutdown makes later Enqueue calls reject their entries.
func (q *SyncQueue) Shutdown() {
	q.closed.Store(true)
}

// AsyncQueue hands entries to a single worker goroutine through a bounded
// buffer. When the buffer is full the oldest pending entry is dropped so
// Enqueue never blocks.
//
//nolint:govet // Field order optimized for functionality over memory
type AsyncQueue struct {
	entries      chan Entry
	stop         chan struct{}
	done         chan struct{}
	logger       *zap.Logger
	dropped      atomic.Uint64
	processed    atomic.Uint64
	closed       atomic.Bool
	closedLogged atomic.Bool
	stopOnce     sync.Once
	// sendMu orders sends before shutdown: Enqueue holds it shared while
	// sending, Shutdown holds it exclusively while marking the queue closed.
	sendMu       sync.RWMutex
}

// NewAsyncQueue starts a queue with room for capacity pending entries.
func NewAsyncQueue(capacity int, logger *zap.Logger) *AsyncQueue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	q := &AsyncQueue{
		entries: make(chan Entry, capacity),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		logger:  logger,
	}
	go q.run()
	return q
}

func (q *AsyncQueue) run() {
	defer close(q.done)
	for {
		select {
		case entry := <-q.entries:
			q.process(entry)
		case <-q.stop:
			// Drain remaining entries before shutdown.
			for {
				select {
				case entry := <-q.entries:
					q.process(entry)
				default:
					return
				}
			}
		}
	}
}

func (q *AsyncQueue) process(entry Entry) {
	safeProcess(q.logger, entry)
	q.processed.Add(1)
}

// Enqueue adds entry, evicting the oldest pending entry if the buffer is full.
func (q *AsyncQueue) Enqueue(entry Entry) {
	if entry == nil {
		return
	}
	q.sendMu.RLock()
	defer q.sendMu.RUnlock()
	if q.closed.Load() {
		if !q.closedLogged.Swap(true) {
			q.logger.Info("enqueue after event queue shutdown ignored")
		}
		entry.Rejected()
		return
	}
	for {
		select {
		case q.entries <- entry:
			return
		default:
		}
		// Full: make room by discarding the oldest pending entry.
		select {
		case oldest := <-q.entries:
			q.reject(oldest)
		default:
		}
	}
}

func (q *AsyncQueue) reject(entry Entry) {
	n := q.dropped.Add(1)
	// Log on powers of two to keep overload from flooding the log.
	if n&(n-1) == 0 {
		q.logger.Warn("event queue full, dropped oldest entry",
			zap.Uint64("dropped_total", n),
			zap.Int("capacity", cap(q.entries)),
		)
	}
	entry.Rejected()
}

// Flush blocks until every entry enqueued before the call was processed or
// dropped.
func (q *AsyncQueue) Flush() {
	if q.closed.Load() {
		<-q.done
		return
	}
	b := make(barrier)
	q.Enqueue(b)
	<-b
}

// Dropped returns the number of entries dropped because the queue was full.
func (q *AsyncQueue) Dropped() uint64 {
	return q.dropped.Load()
}

// Processed returns the number of entries the worker has run.
func (q *AsyncQueue) Processed() uint64 {
	return q.processed.Load()
}

// Pending returns the number of entries waiting for the worker.
func (q *AsyncQueue) Pending() int {
	return len(q.entries)
}

// Shutdown drains pending entries and stops the worker.
func (q *AsyncQueue) Shutdown() {
	q.stopOnce.Do(func() {
		q.sendMu.Lock()
		q.closed.Store(true)
		q.sendMu.Unlock()
		close(q.stop)
	})
	<-q.done
}

// barrier is closed when the worker reaches it or when it is dropped.
type barrier chan struct{}

func (b barrier) Process()  { close(b) }
func (b barrier) Rejected() { close(b) }

func safeProcess(logger *zap.Logger, entry Entry) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("event queue entry panicked", zap.Any("panic", r))
		}
	}()
	entry.Process()
}
