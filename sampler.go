package spanz

import (
	"encoding/binary"
	"fmt"
	"math"
)

// SamplingParameters is the input to a sampling decision.
//
//nolint:govet // Field order follows the start path
type SamplingParameters struct {
	ParentContext   SpanContext
	HasRemoteParent bool
	TraceID         TraceID
	SpanID          SpanID
	Name            string
	ParentLinks     []*Span
}

// Sampler decides whether a new span is sampled for export.
type Sampler interface {
	ShouldSample(p SamplingParameters) bool
	Description() string
}

type constSampler struct {
	decision bool
}

func (s constSampler) ShouldSample(SamplingParameters) bool { return s.decision }

func (s constSampler) Description() string {
	if s.decision {
		return "AlwaysSampleSampler"
	}
	return "NeverSampleSampler"
}

// AlwaysSample samples every span.
func AlwaysSample() Sampler { return constSampler{decision: true} }

// NeverSample samples no span unless the caller forces it.
func NeverSample() Sampler { return constSampler{decision: false} }

type probabilitySampler struct {
	probability float64
	upperBound  uint64
}

// ProbabilitySampler samples a fraction p of new traces. Spans whose parent,
// or any parent link, is sampled are always sampled so traces stay whole.
// p is clamped to [0, 1].
func ProbabilitySampler(p float64) Sampler {
	switch {
	case p <= 0 || math.IsNaN(p):
		p = 0
	case p > 1:
		p = 1
	}
	var bound uint64
	if p == 1 {
		bound = math.MaxUint64
	} else {
		bound = uint64(p * float64(uint64(1)<<63))
	}
	return probabilitySampler{probability: p, upperBound: bound}
}

func (s probabilitySampler) ShouldSample(p SamplingParameters) bool {
	if p.ParentContext.IsSampled() {
		return true
	}
	for _, link := range p.ParentLinks {
		if link != nil && link.Context().IsSampled() {
			return true
		}
	}
	if s.probability == 1 {
		return true
	}
	// Top 63 bits of the trace id, so the bound fits without overflow.
	v := binary.BigEndian.Uint64(p.TraceID[:8]) >> 1
	return v < s.upperBound
}

func (s probabilitySampler) Description() string {
	return fmt.Sprintf("ProbabilitySampler{%.6f}", s.probability)
}
