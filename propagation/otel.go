package propagation

import (
	"context"

	otelprop "go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/zoobzio/spanz"
)

// ToOTel converts sc to an OpenTelemetry span context. Tracestate entries
// that are not valid W3C list members are skipped.
func ToOTel(sc spanz.SpanContext, remote bool) trace.SpanContext {
	var state trace.TraceState
	// Insert prepends, so walk backwards to keep the order.
	for i := len(sc.Tracestate) - 1; i >= 0; i-- {
		e := sc.Tracestate[i]
		if next, err := state.Insert(e.Key, e.Value); err == nil {
			state = next
		}
	}
	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID(sc.TraceID),
		SpanID:     trace.SpanID(sc.SpanID),
		TraceFlags: trace.TraceFlags(sc.TraceOptions),
		TraceState: state,
		Remote:     remote,
	})
}

// FromOTel converts an OpenTelemetry span context.
func FromOTel(sc trace.SpanContext) spanz.SpanContext {
	out := spanz.SpanContext{
		TraceID:      spanz.TraceID(sc.TraceID()),
		SpanID:       spanz.SpanID(sc.SpanID()),
		TraceOptions: spanz.TraceOptions(sc.TraceFlags()),
	}
	sc.TraceState().Walk(func(key, value string) bool {
		out.Tracestate = append(out.Tracestate, spanz.TracestateEntry{Key: key, Value: value})
		return true
	})
	return out
}

// TextMapPropagator exposes a TextFormat as an OpenTelemetry propagator so
// spanz formats can be installed with otel.SetTextMapPropagator.
type TextMapPropagator struct {
	Format TextFormat
}

var _ otelprop.TextMapPropagator = TextMapPropagator{}

// Inject writes the span context held by ctx, if valid.
func (p TextMapPropagator) Inject(ctx context.Context, carrier otelprop.TextMapCarrier) {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return
	}
	p.Format.Inject(FromOTel(sc), TextMapCarrier{carrier})
}

// Extract returns ctx with the remote span context found in carrier. Parse
// failures leave ctx unchanged.
func (p TextMapPropagator) Extract(ctx context.Context, carrier otelprop.TextMapCarrier) context.Context {
	sc, err := p.Format.Extract(TextMapCarrier{carrier})
	if err != nil {
		return ctx
	}
	return trace.ContextWithRemoteSpanContext(ctx, ToOTel(sc, true))
}

// Fields implements otel propagation.TextMapPropagator.
func (p TextMapPropagator) Fields() []string {
	return p.Format.Fields()
}
