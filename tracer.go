package spanz

import (
	"context"
	"runtime"
	"sync"

	"github.com/zoobzio/clockz"
	"go.uber.org/zap"
)

// Option configures a Tracer.
type Option func(*tracerOptions)

//nolint:govet // Field order optimized for functionality over memory
type tracerOptions struct {
	config *Config
	params *TraceParams
	clock  clockz.Clock
	logger *zap.Logger
	queue  EventQueue
}

// WithClock sets the clock used for span timing and export scheduling.
// Enables clock injection for deterministic testing.
func WithClock(clock clockz.Clock) Option {
	return func(o *tracerOptions) { o.clock = clock }
}

// WithLogger sets the logger used by every component.
func WithLogger(logger *zap.Logger) Option {
	return func(o *tracerOptions) { o.logger = logger }
}

// WithConfig replaces DefaultConfig.
func WithConfig(cfg *Config) Option {
	return func(o *tracerOptions) { o.config = cfg }
}

// WithTraceParams overrides the limits and sampler derived from the config.
func WithTraceParams(params TraceParams) Option {
	return func(o *tracerOptions) { o.params = &params }
}

// WithEventQueue overrides the queue selected by Config.QueueMode. The tracer
// shuts the queue down on Close.
func WithEventQueue(queue EventQueue) Option {
	return func(o *tracerOptions) { o.queue = queue }
}

// StartOption customizes a single span.
type StartOption func(*startOptions)

type startOptions struct {
	sampler      Sampler
	parentLinks  []*Span
	kind         SpanKind
	recordEvents bool
}

// WithSpanKind sets the span kind.
func WithSpanKind(kind SpanKind) StartOption {
	return func(o *startOptions) { o.kind = kind }
}

// WithSampler overrides the tracer's default sampler for this span.
func WithSampler(sampler Sampler) StartOption {
	return func(o *startOptions) { o.sampler = sampler }
}

// WithRecordEvents records the span locally even if it is not sampled.
func WithRecordEvents() StartOption {
	return func(o *startOptions) { o.recordEvents = true }
}

// WithParentLinks links the new span to additional parents. Each parent gets
// a child link back to the new span.
func WithParentLinks(parents ...*Span) StartOption {
	return func(o *startOptions) { o.parentLinks = append(o.parentLinks, parents...) }
}

// Tracer creates spans and routes their start and end events through the
// event queue to the span stores and the exporter.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field order optimized for functionality over memory
type Tracer struct {
	params    TraceParams
	config    Config
	clock     clockz.Clock
	logger    *zap.Logger
	queue     EventQueue
	running   *RunningSpanStore
	sampled   *SampledSpanStore
	exporter  *SpanExporter
	traceIDs  *IDPool[TraceID]
	spanIDs   *IDPool[SpanID]
	closeOnce sync.Once
}

// New creates a tracer. Without options it uses DefaultConfig, the real
// clock and a no-op logger.
func New(opts ...Option) (*Tracer, error) {
	o := tracerOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.config == nil {
		o.config = DefaultConfig()
	}
	if err := o.config.Validate(); err != nil {
		return nil, err
	}
	if o.clock == nil {
		o.clock = clockz.RealClock
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	params := o.config.TraceParams()
	if o.params != nil {
		params = *o.params
	}
	if o.queue == nil {
		if o.config.QueueMode == QueueModeSync {
			o.queue = NewSyncQueue(o.logger)
		} else {
			o.queue = NewAsyncQueue(o.config.QueueCapacity, o.logger)
		}
	}

	// Pool size based on number of CPUs for optimal contention balance.
	poolSize := runtime.NumCPU() * 100

	t := &Tracer{
		params:  params.withDefaults(),
		config:  *o.config,
		clock:   o.clock,
		logger:  o.logger,
		queue:   o.queue,
		running: NewRunningSpanStore(),
		sampled: NewSampledSpanStore(o.config.SampleInterval, o.logger),
		exporter: NewSpanExporter(ExporterOptions{
			Clock:            o.clock,
			Logger:           o.logger,
			BufferSize:       o.config.ExportBufferSize,
			MaxBufferedSpans: o.config.ExportMaxBuffered,
			ScheduleDelay:    o.config.ExportScheduleDelay,
			SyncMode:         o.config.ExportSync,
		}),
		traceIDs: NewIDPool(poolSize, randomTraceID),
		spanIDs:  NewIDPool(poolSize, randomSpanID),
	}
	t.running.SetEnabled(o.config.RunningStoreEnabled)
	return t, nil
}

// StartSpan starts a span whose parent is the span in ctx, if any, and
// returns a context carrying the new span.
func (t *Tracer) StartSpan(ctx context.Context, name string, opts ...StartOption) (context.Context, *Span) {
	// Handle nil context by creating a new one.
	if ctx == nil {
		ctx = context.Background()
	}
	parent := FromContext(ctx)
	var parentContext SpanContext
	if parent != nil {
		parentContext = parent.Context()
	}
	span := t.start(name, parent, parentContext, false, opts)
	return NewContext(ctx, span), span
}

// StartSpanWithRemoteParent starts a child of a span context received from
// another process. An invalid parent starts a new root.
func (t *Tracer) StartSpanWithRemoteParent(ctx context.Context, name string, parent SpanContext, opts ...StartOption) (context.Context, *Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	span := t.start(name, nil, parent, true, opts)
	return NewContext(ctx, span), span
}

func (t *Tracer) start(name string, localParent *Span, parent SpanContext, remote bool, opts []StartOption) *Span {
	var o startOptions
	for _, opt := range opts {
		opt(&o)
	}

	cfg := spanConfig{
		name:    name,
		kind:    o.kind,
		params:  t.params,
		clock:   t.clock,
		logger:  t.logger,
		handler: t,
	}
	if parent.IsValid() {
		// New child span.
		cfg.spanContext.TraceID = parent.TraceID
		cfg.spanContext.TraceOptions = parent.TraceOptions
		cfg.spanContext.Tracestate = parent.Tracestate
		cfg.parentSpanID = parent.SpanID
		cfg.hasRemoteParent = &remote
	} else {
		// New root span.
		cfg.spanContext.TraceID = t.traceIDs.Get()
		localParent = nil
		remote = false
	}
	cfg.spanContext.SpanID = t.spanIDs.Get()

	sampler := o.sampler
	if sampler == nil {
		sampler = t.params.Sampler
	}
	if sampler.ShouldSample(SamplingParameters{
		ParentContext:   parent,
		HasRemoteParent: remote,
		TraceID:         cfg.spanContext.TraceID,
		SpanID:          cfg.spanContext.SpanID,
		Name:            name,
		ParentLinks:     o.parentLinks,
	}) {
		cfg.spanContext.TraceOptions = cfg.spanContext.TraceOptions.WithSampled(true)
	}
	cfg.recording = cfg.spanContext.IsSampled() || o.recordEvents

	if localParent != nil {
		localParent.addChild()
	}
	span := startSpan(cfg)
	t.linkSpans(span, o.parentLinks)
	return span
}

func (*Tracer) linkSpans(span *Span, parents []*Span) {
	if len(parents) == 0 {
		return
	}
	child := Link{TraceID: span.TraceID(), SpanID: span.SpanID(), Type: LinkTypeChild}
	for _, parent := range parents {
		if parent == nil {
			continue
		}
		parent.AddLink(child)
		span.AddLink(Link{TraceID: parent.TraceID(), SpanID: parent.SpanID(), Type: LinkTypeParent})
	}
}

// onStart indexes the span as running. Nothing is queued while the running
// store is disabled.
func (t *Tracer) onStart(span *Span) {
	if !t.running.Enabled() {
		return
	}
	t.queue.Enqueue(EntryFunc(func() {
		t.running.OnStart(span)
	}))
}

// onEnd queues export, running-store removal and sampling, in that order.
func (t *Tracer) onEnd(span *Span) {
	t.queue.Enqueue(endEntry{tracer: t, span: span})
}

type endEntry struct {
	tracer *Tracer
	span   *Span
}

func (e endEntry) Process() {
	if e.span.Context().IsSampled() {
		e.tracer.exporter.AddSpan(e.span)
	}
	e.tracer.running.OnEnd(e.span)
	e.tracer.sampled.ConsiderForSampling(e.span)
}

// Rejected still unindexes the span so a dropped end cannot leave it running.
func (e endEntry) Rejected() {
	e.tracer.running.OnEnd(e.span)
}

// RunningSpanStore returns the running span store.
func (t *Tracer) RunningSpanStore() *RunningSpanStore {
	return t.running
}

// SampledSpanStore returns the sampled span store.
func (t *Tracer) SampledSpanStore() *SampledSpanStore {
	return t.sampled
}

// Exporter returns the span exporter.
func (t *Tracer) Exporter() *SpanExporter {
	return t.exporter
}

// Queue returns the event queue.
func (t *Tracer) Queue() EventQueue {
	return t.queue
}

// TraceParams returns the limits and default sampler applied to new spans.
func (t *Tracer) TraceParams() TraceParams {
	return t.params
}

// Config returns the configuration the tracer was built from.
func (t *Tracer) Config() Config {
	return t.config
}

// Logger returns the tracer's logger.
func (t *Tracer) Logger() *zap.Logger {
	return t.logger
}

// Close drains the event queue, exports buffered spans and stops every
// background goroutine. Spans ended afterwards are not exported.
func (t *Tracer) Close() {
	t.closeOnce.Do(func() {
		t.queue.Shutdown()
		t.exporter.Close()
		t.traceIDs.Close()
		t.spanIDs.Close()
	})
}
