package config

import (
	"time"

	starctx "github.com/leapstack-labs/finmodel/internal/starlark"
)

// Default execution limits. These are the only place limits are chosen;
// the engine itself has no implicit defaults.
const (
	DefaultTimeout        = 5 * time.Second
	DefaultMaxSteps       = 50_000_000
	DefaultMaxConcurrent  = 8
	DefaultMaxOutputBytes = 1 << 20
	DefaultMaxElements    = starctx.DefaultMaxElements
)

// DefaultEngineConfig returns an EngineConfig with the shipped limits.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Timeout:        DefaultTimeout,
		MaxSteps:       DefaultMaxSteps,
		MaxConcurrent:  DefaultMaxConcurrent,
		MaxOutputBytes: DefaultMaxOutputBytes,
		MaxElements:    DefaultMaxElements,
	}
}

// ApplyDefaults fills zero-valued limits with the shipped defaults.
func ApplyDefaults(c *EngineConfig) {
	if c == nil {
		return
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxSteps == 0 {
		c.MaxSteps = DefaultMaxSteps
	}
	if c.MaxConcurrent == 0 {
		c.MaxConcurrent = DefaultMaxConcurrent
	}
	if c.MaxOutputBytes == 0 {
		c.MaxOutputBytes = DefaultMaxOutputBytes
	}
	if c.MaxElements == 0 {
		c.MaxElements = DefaultMaxElements
	}
}
