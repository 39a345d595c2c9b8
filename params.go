package spanz

// Defaults applied when a TraceParams field is left at zero.
const (
	DefaultMaxAttributes        = 32
	DefaultMaxAnnotations       = 32
	DefaultMaxMessageEvents     = 128
	DefaultMaxLinks             = 128
	DefaultMaxAttributesPerLink = 32
	DefaultSamplingProbability  = 1e-4
)

// TraceParams bounds the state recorded by each span. A span captures the
// tracer's params at creation; later changes do not affect running spans.
type TraceParams struct {
	Sampler              Sampler
	MaxAttributes        int
	MaxAnnotations       int
	MaxMessageEvents     int
	MaxLinks             int
	MaxAttributesPerLink int
	// DetectLeaks logs a warning for spans reclaimed without End.
	DetectLeaks bool
}

// DefaultTraceParams returns the stock limits with a 1e-4 probability sampler.
func DefaultTraceParams() TraceParams {
	return TraceParams{
		Sampler:              ProbabilitySampler(DefaultSamplingProbability),
		MaxAttributes:        DefaultMaxAttributes,
		MaxAnnotations:       DefaultMaxAnnotations,
		MaxMessageEvents:     DefaultMaxMessageEvents,
		MaxLinks:             DefaultMaxLinks,
		MaxAttributesPerLink: DefaultMaxAttributesPerLink,
	}
}

// withDefaults fills zero or negative fields.
func (p TraceParams) withDefaults() TraceParams {
	d := DefaultTraceParams()
	if p.Sampler == nil {
		p.Sampler = d.Sampler
	}
	if p.MaxAttributes <= 0 {
		p.MaxAttributes = d.MaxAttributes
	}
	if p.MaxAnnotations <= 0 {
		p.MaxAnnotations = d.MaxAnnotations
	}
	if p.MaxMessageEvents <= 0 {
		p.MaxMessageEvents = d.MaxMessageEvents
	}
	if p.MaxLinks <= 0 {
		p.MaxLinks = d.MaxLinks
	}
	if p.MaxAttributesPerLink <= 0 {
		p.MaxAttributesPerLink = d.MaxAttributesPerLink
	}
	return p
}
