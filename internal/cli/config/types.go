// Package config provides configuration management for the finmodel CLI.
//
// It extends the shared execution configuration from internal/config with
// CLI-specific fields: where state lives, who the caller is and how output
// is rendered.
package config

import (
	intconfig "github.com/leapstack-labs/finmodel/internal/config"
)

// EngineConfig is an alias for the shared execution limits.
type EngineConfig = intconfig.EngineConfig

// CapabilitiesConfig is an alias for the shared capability allowlist.
type CapabilitiesConfig = intconfig.CapabilitiesConfig

// Config holds all CLI configuration options.
type Config struct {
	StatePath    string             `koanf:"state_path"`
	User         string             `koanf:"user"`
	Verbose      bool               `koanf:"verbose"`
	OutputFormat string             `koanf:"output"`
	LogFormat    string             `koanf:"log_format"`
	Engine       EngineConfig       `koanf:"engine"`
	Capabilities CapabilitiesConfig `koanf:"capabilities"`

	// ProjectRoot is the directory relative paths resolve against.
	ProjectRoot string `koanf:"-"`
}

// Default configuration values.
const (
	DefaultStateFile = ".finmodel/state.db"
	DefaultUser      = "local"
	DefaultOutput    = "auto" // Auto-detect: TTY=text, non-TTY=markdown
	DefaultLogFormat = "text"
)

// Config file names, in lookup order.
const (
	ConfigFileName    = "finmodel.yaml"
	ConfigFileNameAlt = "finmodel.yml"
)

// EnvPrefix prefixes environment variables. A double underscore separates
// nested keys: FINMODEL_ENGINE__MAX_STEPS sets engine.max_steps.
const EnvPrefix = "FINMODEL_"
