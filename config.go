package spanz

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is prepended to every environment variable read by LoadConfig.
const EnvPrefix = "SPANZ"

// Queue modes.
const (
	QueueModeSync  = "sync"
	QueueModeAsync = "async"
)

// ErrInvalidConfig is wrapped by every Config.Validate failure.
var ErrInvalidConfig = errors.New("invalid spanz config")

// Config holds tracer configuration. Every field is read from
// SPANZ_<TAG> by LoadConfig.
//
//nolint:govet // Grouped by component
type Config struct {
	// Per-span recording limits.
	MaxAttributes        int  `envconfig:"MAX_ATTRIBUTES" default:"32"`
	MaxAnnotations       int  `envconfig:"MAX_ANNOTATIONS" default:"32"`
	MaxMessageEvents     int  `envconfig:"MAX_MESSAGE_EVENTS" default:"128"`
	MaxLinks             int  `envconfig:"MAX_LINKS" default:"128"`
	MaxAttributesPerLink int  `envconfig:"MAX_ATTRIBUTES_PER_LINK" default:"32"`
	DetectLeaks          bool `envconfig:"DETECT_LEAKS" default:"false"`

	// Default sampler.
	SamplingProbability float64 `envconfig:"SAMPLING_PROBABILITY" default:"0.0001"`

	// Event queue.
	QueueMode     string `envconfig:"QUEUE_MODE" default:"async"`
	QueueCapacity int    `envconfig:"QUEUE_CAPACITY" default:"8192"`

	// Span exporter.
	ExportBufferSize    int           `envconfig:"EXPORT_BUFFER_SIZE" default:"32"`
	ExportMaxBuffered   int           `envconfig:"EXPORT_MAX_BUFFERED_SPANS" default:"2048"`
	ExportScheduleDelay time.Duration `envconfig:"EXPORT_SCHEDULE_DELAY" default:"2s"`
	ExportSync          bool          `envconfig:"EXPORT_SYNC" default:"false"`

	// Span stores.
	RunningStoreEnabled bool          `envconfig:"RUNNING_STORE_ENABLED" default:"false"`
	SampleInterval      time.Duration `envconfig:"SAMPLE_INTERVAL" default:"1s"`
}

// LoadConfig loads configuration from SPANZ_* environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() *Config {
	return &Config{
		MaxAttributes:        DefaultMaxAttributes,
		MaxAnnotations:       DefaultMaxAnnotations,
		MaxMessageEvents:     DefaultMaxMessageEvents,
		MaxLinks:             DefaultMaxLinks,
		MaxAttributesPerLink: DefaultMaxAttributesPerLink,
		SamplingProbability:  DefaultSamplingProbability,
		QueueMode:            QueueModeAsync,
		QueueCapacity:        DefaultQueueCapacity,
		ExportBufferSize:     DefaultExportBufferSize,
		ExportMaxBuffered:    DefaultMaxBufferedSpans,
		ExportScheduleDelay:  DefaultExportScheduleDelay,
		SampleInterval:       DefaultSampleInterval,
	}
}

// Validate reports the first out-of-range field.
func (c *Config) Validate() error {
	switch {
	case c.MaxAttributes <= 0:
		return fmt.Errorf("%w: max attributes must be > 0", ErrInvalidConfig)
	case c.MaxAnnotations <= 0:
		return fmt.Errorf("%w: max annotations must be > 0", ErrInvalidConfig)
	case c.MaxMessageEvents <= 0:
		return fmt.Errorf("%w: max message events must be > 0", ErrInvalidConfig)
	case c.MaxLinks <= 0:
		return fmt.Errorf("%w: max links must be > 0", ErrInvalidConfig)
	case c.MaxAttributesPerLink <= 0:
		return fmt.Errorf("%w: max attributes per link must be > 0", ErrInvalidConfig)
	case c.SamplingProbability < 0 || c.SamplingProbability > 1:
		return fmt.Errorf("%w: sampling probability %v outside [0, 1]", ErrInvalidConfig, c.SamplingProbability)
	case c.QueueMode != QueueModeSync && c.QueueMode != QueueModeAsync:
		return fmt.Errorf("%w: unknown queue mode %q", ErrInvalidConfig, c.QueueMode)
	case c.QueueCapacity <= 0:
		return fmt.Errorf("%w: queue capacity must be > 0", ErrInvalidConfig)
	case c.ExportBufferSize <= 0:
		return fmt.Errorf("%w: export buffer size must be > 0", ErrInvalidConfig)
	case c.ExportMaxBuffered < c.ExportBufferSize:
		return fmt.Errorf("%w: max buffered spans must be >= export buffer size", ErrInvalidConfig)
	case c.ExportScheduleDelay <= 0:
		return fmt.Errorf("%w: export schedule delay must be > 0", ErrInvalidConfig)
	case c.SampleInterval < 0:
		return fmt.Errorf("%w: sample interval must be >= 0", ErrInvalidConfig)
	}
	return nil
}

// TraceParams converts the limits and sampling fields.
func (c *Config) TraceParams() TraceParams {
	return TraceParams{
		Sampler:              ProbabilitySampler(c.SamplingProbability),
		MaxAttributes:        c.MaxAttributes,
		MaxAnnotations:       c.MaxAnnotations,
		MaxMessageEvents:     c.MaxMessageEvents,
		MaxLinks:             c.MaxLinks,
		MaxAttributesPerLink: c.MaxAttributesPerLink,
		DetectLeaks:          c.DetectLeaks,
	}
}
