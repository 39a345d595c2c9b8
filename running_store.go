package spanz

import (
	"sync"
)

// RunningFilter selects running spans by name. MaxSpansToReturn of zero
// means no limit.
type RunningFilter struct {
	SpanName         string
	MaxSpansToReturn int
}

// RunningPerNameSummary holds the number of running spans for one name.
type RunningPerNameSummary struct {
	NumRunningSpans int
}

// RunningSummary maps span names to their running-span counts.
type RunningSummary struct {
	PerSpanName map[string]RunningPerNameSummary
}

// RunningSpanStore indexes spans that have started but not ended.
// Mutations arrive through the event queue; reads may come from any goroutine.
type RunningSpanStore struct {
	spans   map[string]map[*Span]struct{}
	mu      sync.Mutex
	enabled bool
}

// NewRunningSpanStore creates a disabled store.
func NewRunningSpanStore() *RunningSpanStore {
	return &RunningSpanStore{}
}

// SetEnabled turns indexing on or off. Disabling discards the index.
func (r *RunningSpanStore) SetEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if enabled == r.enabled {
		return
	}
	r.enabled = enabled
	if enabled {
		r.spans = make(map[string]map[*Span]struct{})
	} else {
		r.spans = nil
	}
}

// Enabled reports whether spans are being indexed.
func (r *RunningSpanStore) Enabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enabled
}

// OnStart adds span to the index. A span that already ended is skipped: its
// end may have been handled before this start was processed.
func (r *RunningSpanStore) OnStart(span *Span) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.enabled || span.Ended() {
		return
	}
	set, ok := r.spans[span.Name()]
	if !ok {
		set = make(map[*Span]struct{})
		r.spans[span.Name()] = set
	}
	set[span] = struct{}{}
}

// OnEnd removes span from the index. Unknown spans are ignored, which covers
// spans whose start entry was dropped.
func (r *RunningSpanStore) OnEnd(span *Span) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.enabled {
		return
	}
	set, ok := r.spans[span.Name()]
	if !ok {
		return
	}
	delete(set, span)
	// Empty sets are removed so the index is sized by live names only.
	if len(set) == 0 {
		delete(r.spans, span.Name())
	}
}

// GetRunningSpans returns live snapshots of running spans named filter.SpanName.
func (r *RunningSpanStore) GetRunningSpans(filter RunningFilter) []SpanData {
	r.mu.Lock()
	set := r.spans[filter.SpanName]
	limit := filter.MaxSpansToReturn
	if limit <= 0 || limit > len(set) {
		limit = len(set)
	}
	spans := make([]*Span, 0, limit)
	for span := range set {
		if len(spans) == limit {
			break
		}
		spans = append(spans, span)
	}
	r.mu.Unlock()

	// Snapshots take each span's own lock, so do it outside ours.
	out := make([]SpanData, 0, len(spans))
	for _, span := range spans {
		out = append(out, span.ToSpanData())
	}
	return out
}

// GetSummary returns running-span counts per name.
func (r *RunningSpanStore) GetSummary() RunningSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	summary := RunningSummary{PerSpanName: make(map[string]RunningPerNameSummary, len(r.spans))}
	for name, set := range r.spans {
		summary.PerSpanName[name] = RunningPerNameSummary{NumRunningSpans: len(set)}
	}
	return summary
}
