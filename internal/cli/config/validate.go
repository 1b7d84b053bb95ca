package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/leapstack-labs/finmodel/pkg/core"
)

// OutputFormats lists the accepted values of the output key.
var OutputFormats = []string{"auto", "text", "markdown", "json"}

// LogFormats lists the accepted values of the log_format key.
var LogFormats = []string{"text", "json"}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.User) == "" {
		return fmt.Errorf("%w: user is required", core.ErrConfiguration)
	}
	if c.StatePath == "" {
		return fmt.Errorf("%w: state_path is required", core.ErrConfiguration)
	}
	if !slices.Contains(OutputFormats, c.OutputFormat) {
		return fmt.Errorf("%w: output must be one of %s, got %q",
			core.ErrConfiguration, strings.Join(OutputFormats, ", "), c.OutputFormat)
	}
	if !slices.Contains(LogFormats, c.LogFormat) {
		return fmt.Errorf("%w: log_format must be one of %s, got %q",
			core.ErrConfiguration, strings.Join(LogFormats, ", "), c.LogFormat)
	}
	return c.Engine.Validate()
}
