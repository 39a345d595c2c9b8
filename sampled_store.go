package spanz

import (
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
)

const (
	// SamplesPerLatencyBucket is the ring size for each latency bucket.
	SamplesPerLatencyBucket = 10
	// SamplesPerErrorBucket is the ring size for each error code.
	SamplesPerErrorBucket = 5
	// DefaultSampleInterval is the minimum spacing between samples kept in
	// one ring.
	DefaultSampleInterval = time.Second

	numErrorBuckets = int(codes.Unauthenticated) // every canonical code but OK
)

// LatencyBucket is a half-open latency range [Lower, Upper).
type LatencyBucket struct {
	Lower time.Duration
	Upper time.Duration
}

// Contains reports whether Lower <= latency < Upper.
func (b LatencyBucket) Contains(latency time.Duration) bool {
	return latency >= b.Lower && latency < b.Upper
}

// String formats the range, e.g. "[10µs,100µs)".
func (b LatencyBucket) String() string {
	if b.Upper == time.Duration(math.MaxInt64) {
		return "[" + b.Lower.String() + ",inf)"
	}
	return "[" + b.Lower.String() + "," + b.Upper.String() + ")"
}

// LatencyBuckets are the fixed boundaries used to bucket successful spans.
var LatencyBuckets = [...]LatencyBucket{
	{0, 10 * time.Microsecond},
	{10 * time.Microsecond, 100 * time.Microsecond},
	{100 * time.Microsecond, time.Millisecond},
	{time.Millisecond, 10 * time.Millisecond},
	{10 * time.Millisecond, 100 * time.Millisecond},
	{100 * time.Millisecond, time.Second},
	{time.Second, 10 * time.Second},
	{10 * time.Second, 100 * time.Second},
	{100 * time.Second, time.Duration(math.MaxInt64)},
}

// NumLatencyBuckets is len(LatencyBuckets).
const NumLatencyBuckets = len(LatencyBuckets)

// LatencyBucketIndex returns the bucket holding latency, or -1 for negative
// latencies.
func LatencyBucketIndex(latency time.Duration) int {
	for i, b := range LatencyBuckets {
		if b.Contains(latency) {
			return i
		}
	}
	return -1
}

// LatencyFilter selects successful samples with Lower <= latency < Upper.
// Upper <= 0 means no upper bound; MaxSpansToReturn of zero means no limit.
type LatencyFilter struct {
	SpanName         string
	LatencyLower     time.Duration
	LatencyUpper     time.Duration
	MaxSpansToReturn int
}

// ErrorFilter selects failed samples. A nil Code matches every non-OK code.
type ErrorFilter struct {
	Code             *codes.Code
	SpanName         string
	MaxSpansToReturn int
}

// SampledPerNameSummary counts retained samples for one span name.
type SampledPerNameSummary struct {
	ErrorCounts   map[codes.Code]int
	LatencyCounts [NumLatencyBuckets]int
}

// SampledSummary maps registered span names to their sample counts.
type SampledSummary struct {
	PerSpanName map[string]SampledPerNameSummary
}

// sampleBucket keeps separate rings for trace-sampled and unsampled spans.
type sampleBucket struct {
	sampled        *evictingQueue[*Span]
	notSampled     *evictingQueue[*Span]
	lastSampled    time.Time
	lastNotSampled time.Time
}

func newSampleBucket(size int) *sampleBucket {
	return &sampleBucket{
		sampled:    newEvictingQueue[*Span](size),
		notSampled: newEvictingQueue[*Span](size),
	}
}

func (b *sampleBucket) consider(span *Span, end time.Time, interval time.Duration) {
	if span.Context().IsSampled() {
		if interval <= 0 || end.Sub(b.lastSampled) > interval {
			b.sampled.add(span)
			b.lastSampled = end
		}
		return
	}
	if interval <= 0 || end.Sub(b.lastNotSampled) > interval {
		b.notSampled.add(span)
		b.lastNotSampled = end
	}
}

func (b *sampleBucket) collect(limit int, out []*Span, keep func(*Span) bool) []*Span {
	for _, q := range []*evictingQueue[*Span]{b.sampled, b.notSampled} {
		q.each(func(span *Span) bool {
			if len(out) >= limit {
				return false
			}
			if keep == nil || keep(span) {
				out = append(out, span)
			}
			return true
		})
	}
	return out
}

func (b *sampleBucket) count() int {
	return b.sampled.len() + b.notSampled.len()
}

type perNameSamples struct {
	latency [NumLatencyBuckets]*sampleBucket
	errors  [numErrorBuckets]*sampleBucket
}

func newPerNameSamples() *perNameSamples {
	p := &perNameSamples{}
	for i := range p.latency {
		p.latency[i] = newSampleBucket(SamplesPerLatencyBucket)
	}
	for i := range p.errors {
		p.errors[i] = newSampleBucket(SamplesPerErrorBucket)
	}
	return p
}

// errorBucket returns nil for OK and for codes outside the canonical set.
func (p *perNameSamples) errorBucket(code codes.Code) *sampleBucket {
	if code == codes.OK || int(code) > numErrorBuckets {
		return nil
	}
	return p.errors[int(code)-1]
}

func (p *perNameSamples) summary() SampledPerNameSummary {
	s := SampledPerNameSummary{ErrorCounts: make(map[codes.Code]int, numErrorBuckets)}
	for i, b := range p.latency {
		s.LatencyCounts[i] = b.count()
	}
	for i, b := range p.errors {
		s.ErrorCounts[codes.Code(i+1)] = b.count()
	}
	return s
}

// SampledSpanStore retains a bounded sample of ended spans per registered
// name, bucketed by latency for OK spans and by code for failed ones.
type SampledSpanStore struct {
	samples  map[string]*perNameSamples
	logger   *zap.Logger
	interval time.Duration
	mu       sync.Mutex
}

// NewSampledSpanStore creates an empty store. interval is the minimum end
// time spacing between samples accepted into one ring; zero disables it.
func NewSampledSpanStore(interval time.Duration, logger *zap.Logger) *SampledSpanStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SampledSpanStore{
		samples:  make(map[string]*perNameSamples),
		logger:   logger,
		interval: interval,
	}
}

// RegisterSpanNamesForCollection makes names eligible for sampling.
// Registering a name twice has no further effect.
func (s *SampledSpanStore) RegisterSpanNamesForCollection(names []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range names {
		if _, ok := s.samples[name]; !ok {
			s.samples[name] = newPerNameSamples()
		}
	}
}

// UnregisterSpanNamesForCollection drops names and their retained samples.
func (s *SampledSpanStore) UnregisterSpanNamesForCollection(names []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range names {
		delete(s.samples, name)
	}
}

// RegisteredSpanNamesForCollection returns the registered names, sorted.
func (s *SampledSpanStore) RegisteredSpanNamesForCollection() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.samples))
	for name := range s.samples {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ConsiderForSampling files an ended span into its bucket if its name is
// registered. Running spans are ignored.
func (s *SampledSpanStore) ConsiderForSampling(span *Span) {
	if !span.Ended() {
		s.logger.Debug("running span offered for sampling ignored", zap.String("span", span.Name()))
		return
	}
	status := span.Status()
	latency := span.Latency()
	end := span.endTimeOrNow()

	s.mu.Lock()
	defer s.mu.Unlock()
	samples, ok := s.samples[span.Name()]
	if !ok {
		if !span.shouldSampleToLocalSpanStore() {
			return
		}
		samples = newPerNameSamples()
		s.samples[span.Name()] = samples
	}

	var bucket *sampleBucket
	if status.IsOK() {
		if i := LatencyBucketIndex(latency); i >= 0 {
			bucket = samples.latency[i]
		}
	} else {
		bucket = samples.errorBucket(status.Code)
	}
	if bucket == nil {
		return
	}
	bucket.consider(span, end, s.interval)
}

// GetLatencySampledSpans returns retained OK samples matching filter.
func (s *SampledSpanStore) GetLatencySampledSpans(filter LatencyFilter) []SpanData {
	lower, upper := filter.LatencyLower, filter.LatencyUpper
	if upper <= 0 {
		upper = time.Duration(math.MaxInt64)
	}
	limit := filter.MaxSpansToReturn
	if limit <= 0 {
		limit = math.MaxInt
	}

	var spans []*Span
	s.mu.Lock()
	if samples, ok := s.samples[filter.SpanName]; ok {
		keep := func(span *Span) bool {
			latency := span.Latency()
			return latency >= lower && latency < upper
		}
		for i, b := range LatencyBuckets {
			if upper >= b.Lower && lower < b.Upper {
				spans = samples.latency[i].collect(limit, spans, keep)
			}
		}
	}
	s.mu.Unlock()
	return toSpanData(spans)
}

// GetErrorSampledSpans returns retained failed samples matching filter.
func (s *SampledSpanStore) GetErrorSampledSpans(filter ErrorFilter) []SpanData {
	limit := filter.MaxSpansToReturn
	if limit <= 0 {
		limit = math.MaxInt
	}

	var spans []*Span
	s.mu.Lock()
	if samples, ok := s.samples[filter.SpanName]; ok {
		if filter.Code == nil {
			for _, b := range samples.errors {
				spans = b.collect(limit, spans, nil)
			}
		} else if b := samples.errorBucket(*filter.Code); b != nil {
			spans = b.collect(limit, spans, nil)
		}
	}
	s.mu.Unlock()
	return toSpanData(spans)
}

// GetSummary returns per-bucket sample counts for every registered name.
func (s *SampledSpanStore) GetSummary() SampledSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	summary := SampledSummary{PerSpanName: make(map[string]SampledPerNameSummary, len(s.samples))}
	for name, samples := range s.samples {
		summary.PerSpanName[name] = samples.summary()
	}
	return summary
}

// toSpanData converts outside the store lock; retained spans are ended and
// therefore frozen.
func toSpanData(spans []*Span) []SpanData {
	out := make([]SpanData, 0, len(spans))
	for _, span := range spans {
		out = append(out, span.ToSpanData())
	}
	return out
}
