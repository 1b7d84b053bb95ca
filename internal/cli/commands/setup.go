package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/finmodel/internal/cli/config"
	"github.com/leapstack-labs/finmodel/internal/cli/output"
	"github.com/leapstack-labs/finmodel/internal/codegen"
	intconfig "github.com/leapstack-labs/finmodel/internal/config"
	"github.com/leapstack-labs/finmodel/internal/engine"
	"github.com/leapstack-labs/finmodel/internal/models"
	"github.com/leapstack-labs/finmodel/internal/state"
	"github.com/spf13/cobra"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Engine   *engine.Engine
	Service  *models.Service
	Renderer *output.Renderer
}

// NewCommandContext creates a CommandContext with the state store, engine
// and model service. The cleanup function must be called, typically via
// defer.
func NewCommandContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	cmdCtx, err := NewCommandContextWithoutStore(cmd)
	if err != nil {
		return nil, nil, err
	}

	store, err := openStore(cmd, cmdCtx.Cfg, cmdCtx.Logger)
	if err != nil {
		return nil, nil, err
	}

	svc, err := models.New(models.Config{
		Repository: store,
		Runner:     cmdCtx.Engine,
		Generator:  codegen.NewTemplateGenerator(cmdCtx.Logger),
		Logger:     cmdCtx.Logger,
	})
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	cmdCtx.Service = svc

	cleanup := func() {
		_ = store.Close()
	}
	return cmdCtx, cleanup, nil
}

// NewCommandContextWithoutStore creates a CommandContext with an engine but
// no state store. Useful for commands that never touch stored models.
func NewCommandContextWithoutStore(cmd *cobra.Command) (*CommandContext, error) {
	cfg := getConfig()
	logger := config.GetLogger(cmd.Context())

	eng, err := intconfig.NewEngine(cfg.Engine, cfg.Capabilities, logger)
	if err != nil {
		return nil, err
	}

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Engine:   eng,
		Renderer: newRenderer(cmd, cfg),
	}, nil
}

func newRenderer(cmd *cobra.Command, cfg *config.Config) *output.Renderer {
	return output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.OutputFormat))
}

// getConfig returns the current configuration, or the defaults when
// commands run without the root command's config loading.
func getConfig() *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}
	return &config.Config{
		StatePath:    config.DefaultStateFile,
		User:         config.DefaultUser,
		OutputFormat: config.DefaultOutput,
		LogFormat:    config.DefaultLogFormat,
		Engine:       intconfig.DefaultEngineConfig(),
	}
}

func openStore(cmd *cobra.Command, cfg *config.Config, logger *slog.Logger) (*state.SQLiteStore, error) {
	if cfg.StatePath != state.MemoryPath {
		// Ensure state directory exists
		stateDir := filepath.Dir(cfg.StatePath)
		if stateDir != "." && stateDir != "" {
			if err := os.MkdirAll(stateDir, 0750); err != nil {
				return nil, fmt.Errorf("failed to create state directory: %w", err)
			}
		}
	}

	store := state.NewSQLiteStore(logger)
	if err := store.Open(cmd.Context(), cfg.StatePath); err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}
	return store, nil
}
