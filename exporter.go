package spanz

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zoobzio/clockz"
	"go.uber.org/zap"
)

// Exporter defaults.
const (
	DefaultExportBufferSize    = 32
	DefaultMaxBufferedSpans    = 2048
	DefaultExportScheduleDelay = 2 * time.Second
)

var (
	// ErrHandlerExists is returned when a handler name is already registered.
	ErrHandlerExists = errors.New("export handler already registered")
	// ErrInvalidHandler is returned for an empty name or nil handler.
	ErrInvalidHandler = errors.New("export handler name and handler are required")
)

// Handler receives batches of finished, trace-sampled spans.
// Implementations must not retain or modify the slice.
type Handler interface {
	Export(spans []SpanData)
}

// HandlerFunc adapts a function to a Handler.
type HandlerFunc func(spans []SpanData)

// Export calls f.
func (f HandlerFunc) Export(spans []SpanData) { f(spans) }

// ExporterOptions configures a SpanExporter.
type ExporterOptions struct {
	Clock  clockz.Clock
	Logger *zap.Logger
	// BufferSize wakes the worker early once this many spans are buffered.
	BufferSize int
	// MaxBufferedSpans bounds the buffer; spans beyond it are dropped.
	MaxBufferedSpans int
	// ScheduleDelay is the longest a buffered span waits for export.
	ScheduleDelay time.Duration
	// SyncMode exports on the caller's goroutine, for deterministic tests.
	SyncMode bool
}

// SpanExporter batches ended spans and hands them to registered handlers.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field alignment optimized for readability over memory efficiency
type SpanExporter struct {
	handlers      map[string]Handler
	spans         []*Span
	wake          chan struct{}
	flushCh       chan chan struct{}
	stopCh        chan struct{}
	done          chan struct{}
	clock         clockz.Clock
	logger        *zap.Logger
	bufferSize    int
	maxBuffered   int
	scheduleDelay time.Duration
	syncMode      bool
	dropped       atomic.Int64
	exported      atomic.Uint64
	closed        atomic.Bool
	closeOnce     sync.Once
	handlersLock  sync.RWMutex
	mu            sync.Mutex
}

// NewSpanExporter creates an exporter and, unless in sync mode, starts its worker.
func NewSpanExporter(opts ExporterOptions) *SpanExporter {
	if opts.Clock == nil {
		opts.Clock = clockz.RealClock
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultExportBufferSize
	}
	if opts.MaxBufferedSpans <= 0 {
		opts.MaxBufferedSpans = DefaultMaxBufferedSpans
	}
	if opts.MaxBufferedSpans < opts.BufferSize {
		opts.MaxBufferedSpans = opts.BufferSize
	}
	if opts.ScheduleDelay <= 0 {
		opts.ScheduleDelay = DefaultExportScheduleDelay
	}
	e := &SpanExporter{
		handlers:      make(map[string]Handler),
		spans:         make([]*Span, 0, 8), // Start with small capacity.
		wake:          make(chan struct{}, 1),
		flushCh:       make(chan chan struct{}),
		stopCh:        make(chan struct{}),
		done:          make(chan struct{}),
		clock:         opts.Clock,
		logger:        opts.Logger,
		bufferSize:    opts.BufferSize,
		maxBuffered:   opts.MaxBufferedSpans,
		scheduleDelay: opts.ScheduleDelay,
		syncMode:      opts.SyncMode,
	}
	if e.syncMode {
		close(e.done)
	} else {
		go e.run()
	}
	return e
}

// RegisterHandler adds a handler under a unique name.
func (e *SpanExporter) RegisterHandler(name string, handler Handler) error {
	if name == "" || handler == nil {
		return ErrInvalidHandler
	}
	e.handlersLock.Lock()
	defer e.handlersLock.Unlock()
	if _, ok := e.handlers[name]; ok {
		return ErrHandlerExists
	}
	e.handlers[name] = handler
	return nil
}

// UnregisterHandler removes the handler registered under name, if any.
func (e *SpanExporter) UnregisterHandler(name string) {
	e.handlersLock.Lock()
	defer e.handlersLock.Unlock()
	delete(e.handlers, name)
}

// HandlerNames returns the registered handler names, sorted.
func (e *SpanExporter) HandlerNames() []string {
	e.handlersLock.RLock()
	defer e.handlersLock.RUnlock()
	names := make([]string, 0, len(e.handlers))
	for name := range e.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AddSpan queues an ended span for export. If the buffer is full the span is
// dropped and the drop counter is incremented.
func (e *SpanExporter) AddSpan(span *Span) {
	if span == nil {
		return
	}
	if e.closed.Load() {
		e.dropped.Add(1)
		return
	}
	if e.syncMode {
		e.export([]*Span{span})
		return
	}

	e.mu.Lock()
	if len(e.spans) >= e.maxBuffered {
		e.mu.Unlock()
		e.dropped.Add(1)
		return
	}
	e.spans = append(e.spans, span)
	full := len(e.spans) >= e.bufferSize
	e.mu.Unlock()

	if full {
		select {
		case e.wake <- struct{}{}:
		default:
		}
	}
}

// run exports whenever the buffer fills, the schedule delay passes, or a
// flush is requested.
func (e *SpanExporter) run() {
	defer close(e.done)
	tick := e.clock.After(e.scheduleDelay)
	for {
		select {
		case <-e.wake:
			e.export(e.takeBatch())
		case <-tick:
			e.export(e.takeBatch())
			tick = e.clock.After(e.scheduleDelay)
		case reply := <-e.flushCh:
			e.export(e.takeBatch())
			close(reply)
		case <-e.stopCh:
			// Export what is left before shutdown.
			e.export(e.takeBatch())
			return
		}
	}
}

// takeBatch swaps out the buffer so producers are never blocked by handlers.
func (e *SpanExporter) takeBatch() []*Span {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.spans) == 0 {
		return nil
	}
	batch := e.spans

	// Only shrink if buffer is very oversized to avoid allocation churn.
	newCap := cap(batch)
	if newCap > 256 && len(batch) < newCap/8 {
		newCap /= 4
	}
	if newCap < 8 {
		newCap = 8
	}
	e.spans = make([]*Span, 0, newCap)
	return batch
}

func (e *SpanExporter) export(batch []*Span) {
	if len(batch) == 0 {
		return
	}
	data := make([]SpanData, len(batch))
	for i, span := range batch {
		data[i] = span.ToSpanData()
	}

	e.handlersLock.RLock()
	handlers := make(map[string]Handler, len(e.handlers))
	for name, h := range e.handlers {
		handlers[name] = h
	}
	e.handlersLock.RUnlock()

	for name, h := range handlers {
		e.safeExport(name, h, data)
	}
	e.exported.Add(uint64(len(data)))
}

// safeExport keeps one failing handler from affecting the others.
func (e *SpanExporter) safeExport(name string, h Handler, data []SpanData) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("export handler panicked",
				zap.String("handler", name),
				zap.Any("panic", r),
			)
		}
	}()
	h.Export(data)
}

// Flush exports everything buffered so far and waits for the handlers.
func (e *SpanExporter) Flush() {
	if e.syncMode || e.closed.Load() {
		return
	}
	reply := make(chan struct{})
	select {
	case e.flushCh <- reply:
		<-reply
	case <-e.done:
	}
}

// Count returns the number of buffered spans.
func (e *SpanExporter) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.spans)
}

// Dropped returns the number of spans dropped because the buffer was full
// or the exporter was closed.
func (e *SpanExporter) Dropped() int64 {
	return e.dropped.Load()
}

// Exported returns the number of spans handed to handlers.
func (e *SpanExporter) Exported() uint64 {
	return e.exported.Load()
}

// Close exports buffered spans and stops the worker.
func (e *SpanExporter) Close() {
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		close(e.stopCh)
	})
	<-e.done
}
