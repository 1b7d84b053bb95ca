// Package models is the application layer over model persistence,
// versioning, execution and code generation. Every operation acts on
// behalf of a caller and enforces visibility: owners may do anything with
// their models, anyone may read and run public ones.
package models

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/leapstack-labs/finmodel/internal/versioning"
	"github.com/leapstack-labs/finmodel/pkg/core"
)

// DefaultListLimit applies when a list filter sets no limit.
const DefaultListLimit = 100

// Runner executes code. *engine.Engine satisfies it.
type Runner interface {
	Run(ctx context.Context, req core.ExecutionRequest) (*core.ExecutionResult, error)
}

// Config wires a Service.
type Config struct {
	Repository core.ModelRepository
	Runner     Runner
	// Generator is optional; Generate fails with ErrConfiguration without it.
	Generator core.CodeGenerator
	Logger    *slog.Logger
	// Clock overrides time.Now for created and updated timestamps.
	Clock func() time.Time
}

// Service implements the model operations.
type Service struct {
	repo      core.ModelRepository
	versions  *versioning.Store
	runner    Runner
	generator core.CodeGenerator
	logger    *slog.Logger
}

// New creates a Service.
func New(cfg Config) (*Service, error) {
	if cfg.Repository == nil {
		return nil, fmt.Errorf("%w: models: repository is required", core.ErrConfiguration)
	}
	if cfg.Runner == nil {
		return nil, fmt.Errorf("%w: models: runner is required", core.ErrConfiguration)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	opts := []versioning.Option{versioning.WithLogger(logger)}
	if cfg.Clock != nil {
		opts = append(opts, versioning.WithClock(cfg.Clock))
	}
	return &Service{
		repo:      cfg.Repository,
		versions:  versioning.New(cfg.Repository, opts...),
		runner:    cfg.Runner,
		generator: cfg.Generator,
		logger:    logger,
	}, nil
}

// Create stores a new model owned by userID together with version 1.
func (s *Service) Create(ctx context.Context, userID string, m *core.Model) (*core.Model, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: model is required", core.ErrInvalidInput)
	}
	in := m.Clone()
	in.OwnerID = userID
	created, _, err := s.versions.Create(ctx, in)
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Get returns a model the caller may read.
func (s *Service) Get(ctx context.Context, userID, id string) (*core.Model, error) {
	m, err := s.repo.GetModel(ctx, id)
	if err != nil {
		return nil, err
	}
	if !m.CanRead(userID) {
		return nil, fmt.Errorf("model %s: %w", id, core.ErrForbidden)
	}
	return m, nil
}

// List returns the caller's models and public ones.
func (s *Service) List(ctx context.Context, userID string, filter core.ModelFilter) ([]*core.Model, error) {
	filter.ViewerID = userID
	if filter.Limit <= 0 {
		filter.Limit = DefaultListLimit
	}
	return s.repo.ListModels(ctx, filter)
}

// Update applies a partial update. Only the owner may update a model. The
// returned version is nil when code and parameters did not change.
func (s *Service) Update(ctx context.Context, userID, id string, upd core.ModelUpdate) (*core.Model, *core.Version, error) {
	if _, err := s.writable(ctx, userID, id); err != nil {
		return nil, nil, err
	}
	return s.versions.Update(ctx, id, upd)
}

// Delete removes a model and its versions. Only the owner may delete.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.writable(ctx, userID, id); err != nil {
		return err
	}
	if err := s.repo.DeleteModel(ctx, id); err != nil {
		return err
	}
	s.logger.Info("model deleted", "model_id", id)
	return nil
}

// RunOutput is a model execution together with the parameters it ran with.
type RunOutput struct {
	Model      *core.Model
	Parameters map[string]any
	Execution  *core.ExecutionResult
}

// Run executes a model's current code with overrides layered over its
// stored parameters. The stored parameters are not modified.
func (s *Service) Run(ctx context.Context, userID, id string, overrides map[string]any) (*RunOutput, error) {
	m, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	params := core.MergeParameters(m.Parameters, overrides)
	res, err := s.runner.Run(ctx, core.ExecutionRequest{
		Code:       m.Code,
		Parameters: params,
		Filename:   filename(m),
	})
	if err != nil {
		return nil, err
	}
	if res.Failed() {
		s.logger.Debug("model run failed", "model_id", id, "kind", res.Error.Kind)
	}
	return &RunOutput{Model: m, Parameters: params, Execution: res}, nil
}

// RunVersion executes a stored version instead of the current code.
func (s *Service) RunVersion(ctx context.Context, userID, id string, number int, overrides map[string]any) (*RunOutput, error) {
	m, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	v, err := s.repo.GetVersion(ctx, id, number)
	if err != nil {
		return nil, err
	}

	params := core.MergeParameters(v.Parameters, overrides)
	res, err := s.runner.Run(ctx, core.ExecutionRequest{
		Code:       v.Code,
		Parameters: params,
		Filename:   fmt.Sprintf("%s@%d.star", slug(m.Name), number),
	})
	if err != nil {
		return nil, err
	}
	return &RunOutput{Model: m, Parameters: params, Execution: res}, nil
}

// ListVersions returns a readable model's versions, oldest first.
func (s *Service) ListVersions(ctx context.Context, userID, id string) ([]*core.Version, error) {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return nil, err
	}
	return s.repo.ListVersions(ctx, id)
}

// GetVersion returns one version of a readable model.
func (s *Service) GetVersion(ctx context.Context, userID, id string, number int) (*core.Version, error) {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return nil, err
	}
	return s.repo.GetVersion(ctx, id, number)
}

// Generate asks the code generator for a candidate model. The result is
// not stored; callers create a model from it explicitly.
func (s *Service) Generate(ctx context.Context, req core.GenerateRequest) (*core.GeneratedModel, error) {
	if s.generator == nil {
		return nil, fmt.Errorf("%w: no code generator configured", core.ErrConfiguration)
	}
	gen, err := s.generator.Generate(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to generate model: %w", err)
	}
	if gen.Parameters == nil {
		gen.Parameters = map[string]any{}
	}
	return gen, nil
}

func (s *Service) writable(ctx context.Context, userID, id string) (*core.Model, error) {
	m, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if !m.CanWrite(userID) {
		return nil, fmt.Errorf("model %s: %w", id, core.ErrForbidden)
	}
	return m, nil
}

func filename(m *core.Model) string {
	return slug(m.Name) + ".star"
}

func slug(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case b.Len() > 0 && !strings.HasSuffix(b.String(), "_"):
			b.WriteByte('_')
		}
	}
	out := strings.TrimSuffix(b.String(), "_")
	if out == "" {
		return "model"
	}
	return out
}
