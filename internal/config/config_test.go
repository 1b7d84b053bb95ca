package config

import (
	"testing"
	"time"

	"github.com/leapstack-labs/finmodel/internal/testutil"
	"github.com/leapstack-labs/finmodel/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDefaults(t *testing.T) {
	c := EngineConfig{MaxSteps: 10}
	ApplyDefaults(&c)

	assert.Equal(t, DefaultTimeout, c.Timeout)
	assert.Equal(t, uint64(10), c.MaxSteps, "set values are kept")
	assert.Equal(t, int64(DefaultMaxConcurrent), c.MaxConcurrent)
	assert.Equal(t, DefaultMaxOutputBytes, c.MaxOutputBytes)
	assert.Equal(t, DefaultMaxElements, c.MaxElements)

	ApplyDefaults(nil)
}

func TestEngineConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*EngineConfig)
		substr string
	}{
		{name: "timeout", mutate: func(c *EngineConfig) { c.Timeout = -time.Second }, substr: "engine.timeout"},
		{name: "steps", mutate: func(c *EngineConfig) { c.MaxSteps = 0 }, substr: "engine.max_steps"},
		{name: "concurrency", mutate: func(c *EngineConfig) { c.MaxConcurrent = 0 }, substr: "engine.max_concurrent"},
		{name: "output", mutate: func(c *EngineConfig) { c.MaxOutputBytes = 0 }, substr: "engine.max_output_bytes"},
		{name: "elements", mutate: func(c *EngineConfig) { c.MaxElements = -1 }, substr: "engine.max_elements"},
	}

	require.NoError(t, DefaultEngineConfig().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultEngineConfig()
			tt.mutate(&c)
			err := c.Validate()
			require.ErrorIs(t, err, core.ErrConfiguration)
			assert.Contains(t, err.Error(), tt.substr)
		})
	}
}

func TestNewEngine(t *testing.T) {
	logger := testutil.NewTestLogger(t)

	e, err := NewEngine(DefaultEngineConfig(), CapabilitiesConfig{Modules: []string{"math"}}, logger)
	require.NoError(t, err)
	assert.Equal(t, []string{"math"}, e.Registry().ModuleNames())

	_, err = NewEngine(DefaultEngineConfig(), CapabilitiesConfig{Modules: []string{"os"}}, logger)
	assert.ErrorIs(t, err, core.ErrConfiguration)

	_, err = NewEngine(EngineConfig{}, CapabilitiesConfig{}, logger)
	assert.ErrorIs(t, err, core.ErrConfiguration)
}
