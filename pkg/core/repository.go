package core

import "context"

// UpdateFunc computes the next state of a model inside a repository
// transaction. current is the model as stored (with code and parameters
// derived from its latest version) and latest is the highest existing
// version number, or 0. It returns the model to write back and an optional
// version to append; a nil version means no snapshot is taken.
type UpdateFunc func(current *Model, latest int) (*Model, *Version, error)

// ModelRepository owns persistence of models and their versions.
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use.
//   - CreateModel stores the model and its initial version atomically.
//   - CommitUpdate runs fn and applies its outcome as one unit: either the
//     model row and the new version both land, or neither does.
//   - Reads re-derive Code and Parameters from the latest version.
//   - Missing rows return errors wrapping ErrNotFound.
type ModelRepository interface {
	CreateModel(ctx context.Context, model *Model, initial *Version) error
	GetModel(ctx context.Context, id string) (*Model, error)
	ListModels(ctx context.Context, filter ModelFilter) ([]*Model, error)
	DeleteModel(ctx context.Context, id string) error
	CommitUpdate(ctx context.Context, id string, fn UpdateFunc) (*Model, *Version, error)
	ListVersions(ctx context.Context, modelID string) ([]*Version, error)
	GetVersion(ctx context.Context, modelID string, number int) (*Version, error)
}
