package versioning_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/leapstack-labs/finmodel/internal/state"
	"github.com/leapstack-labs/finmodel/internal/testutil"
	"github.com/leapstack-labs/finmodel/internal/versioning"
	"github.com/leapstack-labs/finmodel/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*versioning.Store, *state.SQLiteStore) {
	t.Helper()
	repo := state.NewSQLiteStore(testutil.NewTestLogger(t))
	require.NoError(t, repo.Open(context.Background(), state.MemoryPath))
	t.Cleanup(func() { _ = repo.Close() })
	return versioning.New(repo, versioning.WithLogger(testutil.NewTestLogger(t))), repo
}

func createModel(t *testing.T, s *versioning.Store) *core.Model {
	t.Helper()
	m, v, err := s.Create(context.Background(), &core.Model{
		Name:       "Revenue",
		ModelType:  core.ModelTypeRevenue,
		Code:       `result = {"n": parameters["n"]}`,
		Parameters: map[string]any{"n": int64(1)},
		OwnerID:    "alice",
	})
	require.NoError(t, err)
	require.Equal(t, 1, v.Number)
	return m
}

func ptr[T any](v T) *T { return &v }

func versionNumbers(t *testing.T, repo core.ModelRepository, id string) []int {
	t.Helper()
	versions, err := repo.ListVersions(context.Background(), id)
	require.NoError(t, err)
	var numbers []int
	for _, v := range versions {
		numbers = append(numbers, v.Number)
	}
	return numbers
}

func TestCreate(t *testing.T) {
	s, repo := setup(t)
	ctx := context.Background()

	input := &core.Model{Name: "Costs", Code: "result = {}", OwnerID: "alice"}
	m, v, err := s.Create(ctx, input)
	require.NoError(t, err)

	assert.NotEmpty(t, m.ID)
	assert.Empty(t, input.ID, "caller's model is not modified")
	assert.Equal(t, core.ModelTypeCustom, m.ModelType)
	assert.Equal(t, map[string]any{}, m.Parameters)
	assert.Equal(t, "Initial version of Costs", v.Description)
	assert.Equal(t, m.Code, v.Code)
	assert.Equal(t, []int{1}, versionNumbers(t, repo, m.ID))
}

func TestCreate_Validation(t *testing.T) {
	s, _ := setup(t)

	tests := []struct {
		name  string
		model *core.Model
	}{
		{name: "missing name", model: &core.Model{Name: " ", OwnerID: "alice"}},
		{name: "missing owner", model: &core.Model{Name: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := s.Create(context.Background(), tt.model)
			assert.ErrorIs(t, err, core.ErrInvalidInput)
		})
	}
}

func TestUpdate_VersionOnlyOnChange(t *testing.T) {
	s, repo := setup(t)
	ctx := context.Background()
	m := createModel(t, s)

	tests := []struct {
		name        string
		update      core.ModelUpdate
		wantVersion int
	}{
		{name: "rename only", update: core.ModelUpdate{Name: ptr("Revenue v2")}},
		{name: "same code", update: core.ModelUpdate{Code: ptr(m.Code)}},
		{name: "numerically equal params", update: core.ModelUpdate{Parameters: map[string]any{"n": 1.0}}},
		{name: "new params", update: core.ModelUpdate{Parameters: map[string]any{"n": 2}}, wantVersion: 2},
		{name: "new code", update: core.ModelUpdate{Code: ptr(`result = {}`)}, wantVersion: 3},
		{name: "visibility only", update: core.ModelUpdate{IsPublic: ptr(true)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, v, err := s.Update(ctx, m.ID, tt.update)
			require.NoError(t, err)
			if tt.wantVersion == 0 {
				assert.Nil(t, v)
				return
			}
			require.NotNil(t, v)
			assert.Equal(t, tt.wantVersion, v.Number)
		})
	}

	assert.Equal(t, []int{1, 2, 3}, versionNumbers(t, repo, m.ID))

	got, err := repo.GetModel(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "Revenue v2", got.Name)
	assert.True(t, got.IsPublic)
	assert.Equal(t, `result = {}`, got.Code)
}

func TestUpdate_DescriptionUsesNewName(t *testing.T) {
	s, _ := setup(t)
	m := createModel(t, s)

	_, v, err := s.Update(context.Background(), m.ID, core.ModelUpdate{
		Name: ptr("Renamed"),
		Code: ptr("result = {}"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Version 2 of Renamed", v.Description)

	_, v, err = s.Update(context.Background(), m.ID, core.ModelUpdate{
		Code:               ptr("result = {'a': 1}"),
		VersionDescription: "switch to constant",
	})
	require.NoError(t, err)
	assert.Equal(t, "switch to constant", v.Description)
}

func TestUpdate_IdempotentNoOp(t *testing.T) {
	s, repo := setup(t)
	m := createModel(t, s)

	for i := 0; i < 3; i++ {
		_, v, err := s.Update(context.Background(), m.ID, core.ModelUpdate{
			Code:       ptr(m.Code),
			Parameters: m.Parameters,
		})
		require.NoError(t, err)
		assert.Nil(t, v)
	}
	assert.Equal(t, []int{1}, versionNumbers(t, repo, m.ID))
}

func TestUpdate_Errors(t *testing.T) {
	s, _ := setup(t)
	m := createModel(t, s)

	_, _, err := s.Update(context.Background(), "missing", core.ModelUpdate{Code: ptr("x")})
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, _, err = s.Update(context.Background(), m.ID, core.ModelUpdate{Name: ptr("")})
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestUpdate_ConcurrentSameModel(t *testing.T) {
	s, repo := setup(t)
	m := createModel(t, s)

	const writers = 20
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := s.Update(context.Background(), m.ID, core.ModelUpdate{
				Parameters: map[string]any{"n": i + 100},
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	numbers := versionNumbers(t, repo, m.ID)
	require.Len(t, numbers, writers+1)
	for i, n := range numbers {
		assert.Equal(t, i+1, n, "version numbers are gapless")
	}
}

func TestSnapshotIfChanged(t *testing.T) {
	s, repo := setup(t)
	ctx := context.Background()
	m := createModel(t, s)

	// A stale copy: the comparison uses the stored values, not these.
	stale := m.Clone()
	stale.Code = "something else entirely"

	v, err := s.SnapshotIfChanged(ctx, stale, m.Code, m.Parameters)
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = s.SnapshotIfChanged(ctx, stale, m.Code, map[string]any{"n": 5})
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, 2, v.Number)
	assert.Equal(t, "Version 2 of Revenue", v.Description)

	got, err := repo.GetModel(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"n": int64(5)}, got.Parameters)
}

func TestWithClock(t *testing.T) {
	repo := state.NewSQLiteStore(nil)
	require.NoError(t, repo.Open(context.Background(), state.MemoryPath))
	defer repo.Close()

	fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	s := versioning.New(repo, versioning.WithClock(func() time.Time { return fixed }))

	m, v, err := s.Create(context.Background(), &core.Model{Name: "x", Code: "result = {}", OwnerID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, fixed, m.CreatedAt)
	assert.Equal(t, fixed, v.CreatedAt)
}
