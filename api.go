// Package spanz provides an in-process distributed tracing core.
//
// spanz records spans under fixed memory bounds, keeps running spans and a
// per-name sample of finished spans available for introspection, and hands
// trace-sampled spans to registered export handlers. Wire formats live in
// the propagation subpackage.
//
// Core Components:
//   - Tracer: Creates spans and routes their lifecycle events.
//   - Span: Records one unit of work with bounded attributes and events.
//   - EventQueue: Decouples span start/end from store and export work.
//   - RunningSpanStore: Indexes spans that have not ended.
//   - SampledSpanStore: Keeps latency and error samples per span name.
//   - SpanExporter: Batches sampled spans for export handlers.
//
// Basic Usage:
//
//	tracer, err := spanz.New()
//	if err != nil {
//		return err
//	}
//	defer tracer.Close()
//
//	// Start a new span.
//	ctx, span := tracer.StartSpan(ctx, "operation-name")
//	defer span.End()
//
//	// Add metadata.
//	span.SetTag("user.id", "123")
//
//	// Pass context to child operations.
//	childCtx, childSpan := tracer.StartSpan(ctx, "child-operation")
//	defer childSpan.End()
//
// Thread Safety:
//
// Tracer, Span, the stores and the exporter are safe for concurrent use by
// multiple goroutines. A span ignores every mutation after End.
//
// Context Propagation:
//
// Spans are linked via context.Context. Child spans inherit their parent's
// trace id and trace options and record the parent's span id.
//
// Memory Management:
//
// Each span keeps at most TraceParams.MaxAttributes attributes (least
// recently touched evicted first) and fixed-size rings of annotations,
// message events and links. The async event queue drops its oldest entry
// when full; the exporter drops new spans when its buffer is full. Every
// drop is counted.
//
// Resource Cleanup:
//
// Call tracer.Close() to drain the queue, flush the exporter and shut down
// all background goroutines.
package spanz
