// Package config provides the execution configuration shared by every
// entry point. It is decoupled from CLI concerns: the CLI loader fills
// these types from files, environment and flags.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/leapstack-labs/finmodel/internal/engine"
	starctx "github.com/leapstack-labs/finmodel/internal/starlark"
	"github.com/leapstack-labs/finmodel/pkg/core"
)

// EngineConfig holds execution limits.
type EngineConfig struct {
	Timeout        time.Duration `koanf:"timeout"`
	MaxSteps       uint64        `koanf:"max_steps"`
	MaxConcurrent  int64         `koanf:"max_concurrent"`
	MaxOutputBytes int           `koanf:"max_output_bytes"`
	MaxElements    int           `koanf:"max_elements"`
}

// Validate checks that every limit is positive.
func (c EngineConfig) Validate() error {
	switch {
	case c.Timeout <= 0:
		return fmt.Errorf("%w: engine.timeout must be positive", core.ErrConfiguration)
	case c.MaxSteps == 0:
		return fmt.Errorf("%w: engine.max_steps must be positive", core.ErrConfiguration)
	case c.MaxConcurrent <= 0:
		return fmt.Errorf("%w: engine.max_concurrent must be positive", core.ErrConfiguration)
	case c.MaxOutputBytes <= 0:
		return fmt.Errorf("%w: engine.max_output_bytes must be positive", core.ErrConfiguration)
	case c.MaxElements <= 0:
		return fmt.Errorf("%w: engine.max_elements must be positive", core.ErrConfiguration)
	}
	return nil
}

// CapabilitiesConfig narrows the capability allowlist. Empty lists mean
// the full built-in set.
type CapabilitiesConfig struct {
	Modules  []string `koanf:"modules"`
	Builtins []string `koanf:"builtins"`
}

// RegistryOptions converts the capability config to registry options.
func (c CapabilitiesConfig) RegistryOptions(maxElements int) starctx.RegistryOptions {
	return starctx.RegistryOptions{
		Modules:     append([]string(nil), c.Modules...),
		Builtins:    append([]string(nil), c.Builtins...),
		MaxElements: maxElements,
	}
}

// NewEngine builds the capability registry and execution engine.
func NewEngine(ec EngineConfig, caps CapabilitiesConfig, logger *slog.Logger) (*engine.Engine, error) {
	if err := ec.Validate(); err != nil {
		return nil, err
	}
	reg, err := starctx.NewRegistry(caps.RegistryOptions(ec.MaxElements))
	if err != nil {
		return nil, err
	}
	return engine.New(engine.Config{
		Registry:       reg,
		Timeout:        ec.Timeout,
		MaxSteps:       ec.MaxSteps,
		MaxConcurrent:  ec.MaxConcurrent,
		MaxOutputBytes: ec.MaxOutputBytes,
		Logger:         logger,
	})
}
