package reliability

import (
	"testing"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Reliability levels.
const (
	LevelBasic  = "basic"
	LevelStress = "stress"
)

// ReliabilityConfig holds configuration for reliability testing, read from
// SPANZ_RELIABILITY_* environment variables.
type ReliabilityConfig struct {
	Level         string        `envconfig:"LEVEL"`
	Duration      time.Duration `envconfig:"DURATION" default:"30s"`
	MaxGoroutines int           `envconfig:"MAX_GOROUTINES" default:"100"`
	// FailureThreshold is the tolerated share of lost spans (0.0-1.0).
	FailureThreshold float64 `envconfig:"FAILURE_THRESHOLD" default:"0.05"`
}

// getReliabilityConfig reads the config or fails the test.
func getReliabilityConfig(t *testing.T) ReliabilityConfig {
	t.Helper()
	var cfg ReliabilityConfig
	if err := envconfig.Process("SPANZ_RELIABILITY", &cfg); err != nil {
		t.Fatalf("Invalid reliability config: %v", err)
	}
	return cfg
}
