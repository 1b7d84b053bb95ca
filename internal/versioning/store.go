// Package versioning decides when a model change warrants an immutable
// snapshot and assigns version numbers.
//
// Version creation for one model is serialized twice over: a per-model lock
// in this process and the repository transaction. A UNIQUE(model_id,
// version_number) constraint in storage backs both.
package versioning

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/leapstack-labs/finmodel/pkg/core"
)

// Store creates models and their versions through a repository.
type Store struct {
	repo   core.ModelRepository
	locks  *keyedMutex
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a version store on top of repo.
func New(repo core.ModelRepository, opts ...Option) *Store {
	s := &Store{
		repo:   repo,
		locks:  newKeyedMutex(),
		logger: slog.New(slog.DiscardHandler),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// InitialDescription is the description of a model's first version.
func InitialDescription(name string) string {
	return "Initial version of " + name
}

// VersionDescription is the default description of version n.
func VersionDescription(n int, name string) string {
	return fmt.Sprintf("Version %d of %s", n, name)
}

// Create stores a new model together with version 1, which mirrors the
// model's code and parameters. The model's ID and timestamps are assigned
// here; the caller's model is not modified.
func (s *Store) Create(ctx context.Context, model *core.Model) (*core.Model, *core.Version, error) {
	if strings.TrimSpace(model.Name) == "" {
		return nil, nil, fmt.Errorf("%w: model name is required", core.ErrInvalidInput)
	}
	if strings.TrimSpace(model.OwnerID) == "" {
		return nil, nil, fmt.Errorf("%w: model owner is required", core.ErrInvalidInput)
	}

	now := s.now()
	m := model.Clone()
	m.ID = uuid.NewString()
	if m.ModelType == "" {
		m.ModelType = core.ModelTypeCustom
	}
	if m.Parameters == nil {
		m.Parameters = map[string]any{}
	}
	m.CreatedAt = now
	m.UpdatedAt = now

	v := &core.Version{
		ID:          uuid.NewString(),
		ModelID:     m.ID,
		Number:      1,
		Code:        m.Code,
		Parameters:  core.CloneParameters(m.Parameters),
		Description: InitialDescription(m.Name),
		CreatedAt:   now,
	}

	if err := s.repo.CreateModel(ctx, m, v); err != nil {
		return nil, nil, fmt.Errorf("failed to create model: %w", err)
	}
	s.logger.Info("model created", "model_id", m.ID, "name", m.Name, "version", v.Number)
	return m, v, nil
}

// Update applies a partial update. A version is appended only when the
// resulting code or parameters differ from the stored ones; other fields
// change either way. The returned version is nil when none was created.
func (s *Store) Update(ctx context.Context, id string, upd core.ModelUpdate) (*core.Model, *core.Version, error) {
	if upd.Name != nil && strings.TrimSpace(*upd.Name) == "" {
		return nil, nil, fmt.Errorf("%w: model name must not be empty", core.ErrInvalidInput)
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	m, v, err := s.repo.CommitUpdate(ctx, id, func(current *core.Model, latest int) (*core.Model, *core.Version, error) {
		next := current.Clone()
		applyUpdate(next, upd)
		next.UpdatedAt = s.now()

		if !Changed(current, next.Code, next.Parameters) {
			return next, nil, nil
		}
		if s.logger.Enabled(ctx, slog.LevelDebug) {
			s.logger.Debug("parameters changed", "model_id", id,
				"diff", ParametersDiff(current.Parameters, next.Parameters))
		}
		return next, s.nextVersion(next, latest, upd.VersionDescription), nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to update model %s: %w", id, err)
	}

	if v != nil {
		s.logger.Info("version created", "model_id", id, "version", v.Number)
	} else {
		s.logger.Debug("model updated without new version", "model_id", id)
	}
	return m, v, nil
}

// SnapshotIfChanged records a new version when code or params differ from
// the model's stored values. Only model.ID is used: the comparison reads
// the current values inside the critical section, never the caller's
// possibly stale copy. It returns nil when nothing changed.
func (s *Store) SnapshotIfChanged(ctx context.Context, model *core.Model, code string, params map[string]any) (*core.Version, error) {
	if params == nil {
		params = map[string]any{}
	}
	_, v, err := s.Update(ctx, model.ID, core.ModelUpdate{Code: &code, Parameters: params})
	return v, err
}

func (s *Store) nextVersion(m *core.Model, latest int, description string) *core.Version {
	n := latest + 1
	if description == "" {
		description = VersionDescription(n, m.Name)
	}
	return &core.Version{
		ID:          uuid.NewString(),
		ModelID:     m.ID,
		Number:      n,
		Code:        m.Code,
		Parameters:  core.CloneParameters(m.Parameters),
		Description: description,
		CreatedAt:   m.UpdatedAt,
	}
}

func applyUpdate(m *core.Model, upd core.ModelUpdate) {
	if upd.Name != nil {
		m.Name = *upd.Name
	}
	if upd.Description != nil {
		m.Description = *upd.Description
	}
	if upd.ModelType != nil {
		m.ModelType = *upd.ModelType
	}
	if upd.Code != nil {
		m.Code = *upd.Code
	}
	if upd.Parameters != nil {
		m.Parameters = core.CloneParameters(upd.Parameters)
	}
	if upd.IsPublic != nil {
		m.IsPublic = *upd.IsPublic
	}
}
