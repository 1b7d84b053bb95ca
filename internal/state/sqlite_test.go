package state

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/leapstack-labs/finmodel/internal/testutil"
	"github.com/leapstack-labs/finmodel/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store := NewSQLiteStore(testutil.NewTestLogger(t))
	require.NoError(t, store.Open(context.Background(), MemoryPath))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newModel(id, owner string, public bool, created time.Time) (*core.Model, *core.Version) {
	m := &core.Model{
		ID:         id,
		Name:       "model " + id,
		ModelType:  core.ModelTypeRevenue,
		Code:       `result = {"n": parameters["n"]}`,
		Parameters: map[string]any{"n": int64(1)},
		OwnerID:    owner,
		IsPublic:   public,
		CreatedAt:  created,
		UpdatedAt:  created,
	}
	v := &core.Version{
		ID:          id + "-v1",
		ModelID:     id,
		Number:      1,
		Code:        m.Code,
		Parameters:  core.CloneParameters(m.Parameters),
		Description: "Initial version of " + m.Name,
		CreatedAt:   created,
	}
	return m, v
}

func TestSQLiteStore_OpenClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()

	store := NewSQLiteStore(nil)
	require.NoError(t, store.Open(ctx, path))
	m, v := newModel("m1", "alice", false, testTime)
	require.NoError(t, store.CreateModel(ctx, m, v))
	require.NoError(t, store.Close())

	reopened := NewSQLiteStore(nil)
	require.NoError(t, reopened.Open(ctx, path))
	defer reopened.Close()

	got, err := reopened.GetModel(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "model m1", got.Name)
	assert.Equal(t, path, reopened.Path())

	version, err := reopened.GetMigrationVersion()
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)
}

func TestSQLiteStore_NotOpened(t *testing.T) {
	store := NewSQLiteStore(nil)
	ctx := context.Background()

	_, err := store.GetModel(ctx, "x")
	assert.Error(t, err)
	assert.Error(t, store.Migrate())
	assert.NoError(t, store.Close())
}

func TestSQLiteStore_CreateAndGet(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	m, v := newModel("m1", "alice", true, testTime)
	m.Description = "monthly revenue"
	m.Parameters = map[string]any{"n": int64(1), "rates": []any{0.1, 0.2}, "nested": map[string]any{"k": "v"}}
	v.Parameters = core.CloneParameters(m.Parameters)
	require.NoError(t, store.CreateModel(ctx, m, v))

	got, err := store.GetModel(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, m, got)

	versions, err := store.ListVersions(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, v, versions[0])
}

func TestSQLiteStore_NotFound(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.GetModel(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = store.GetVersion(ctx, "missing", 1)
	assert.ErrorIs(t, err, core.ErrNotFound)

	err = store.DeleteModel(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, _, err = store.CommitUpdate(ctx, "missing", func(m *core.Model, _ int) (*core.Model, *core.Version, error) {
		return m, nil, nil
	})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestSQLiteStore_ListModels(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	fixtures := []struct {
		id, owner string
		public    bool
		typ       string
	}{
		{"a", "alice", false, core.ModelTypeRevenue},
		{"b", "alice", false, core.ModelTypeExpense},
		{"c", "bob", true, core.ModelTypeRevenue},
		{"d", "bob", false, core.ModelTypeRevenue},
	}
	for i, f := range fixtures {
		m, v := newModel(f.id, f.owner, f.public, testTime.Add(time.Duration(i)*time.Minute))
		m.ModelType = f.typ
		require.NoError(t, store.CreateModel(ctx, m, v))
	}

	tests := []struct {
		name   string
		filter core.ModelFilter
		want   []string
	}{
		{name: "all newest first", filter: core.ModelFilter{}, want: []string{"d", "c", "b", "a"}},
		{name: "visible to alice", filter: core.ModelFilter{ViewerID: "alice"}, want: []string{"c", "b", "a"}},
		{name: "visible to bob", filter: core.ModelFilter{ViewerID: "bob"}, want: []string{"d", "c"}},
		{name: "by type", filter: core.ModelFilter{ViewerID: "alice", ModelType: core.ModelTypeRevenue}, want: []string{"c", "a"}},
		{name: "limit", filter: core.ModelFilter{Limit: 2}, want: []string{"d", "c"}},
		{name: "offset", filter: core.ModelFilter{Offset: 3}, want: []string{"a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			models, err := store.ListModels(ctx, tt.filter)
			require.NoError(t, err)
			var ids []string
			for _, m := range models {
				ids = append(ids, m.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestSQLiteStore_DeleteCascades(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	m, v := newModel("m1", "alice", false, testTime)
	require.NoError(t, store.CreateModel(ctx, m, v))

	require.NoError(t, store.DeleteModel(ctx, "m1"))

	versions, err := store.ListVersions(ctx, "m1")
	require.NoError(t, err)
	assert.Empty(t, versions)

	var count int
	require.NoError(t, store.db.QueryRow(`SELECT COUNT(*) FROM model_versions`).Scan(&count))
	assert.Zero(t, count)
}

func TestSQLiteStore_CommitUpdate(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	m, v := newModel("m1", "alice", false, testTime)
	require.NoError(t, store.CreateModel(ctx, m, v))

	later := testTime.Add(time.Hour)
	next, version, err := store.CommitUpdate(ctx, "m1", func(cur *core.Model, latest int) (*core.Model, *core.Version, error) {
		assert.Equal(t, 1, latest)
		n := cur.Clone()
		n.Code = `result = {}`
		n.UpdatedAt = later
		return n, &core.Version{
			ID: "m1-v2", ModelID: "m1", Number: latest + 1,
			Code: n.Code, Parameters: n.Parameters, Description: "second", CreatedAt: later,
		}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, version.Number)
	assert.Equal(t, `result = {}`, next.Code)

	got, err := store.GetVersion(ctx, "m1", 2)
	require.NoError(t, err)
	assert.Equal(t, "second", got.Description)

	stored, err := store.GetModel(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, `result = {}`, stored.Code)
	assert.Equal(t, later, stored.UpdatedAt)
}

func TestSQLiteStore_CommitUpdate_DuplicateVersionRollsBack(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	m, v := newModel("m1", "alice", false, testTime)
	require.NoError(t, store.CreateModel(ctx, m, v))

	_, _, err := store.CommitUpdate(ctx, "m1", func(cur *core.Model, _ int) (*core.Model, *core.Version, error) {
		n := cur.Clone()
		n.Name = "renamed"
		n.Code = "changed"
		// Reusing number 1 violates UNIQUE(model_id, version_number).
		return n, &core.Version{ID: "dup", ModelID: "m1", Number: 1, Code: n.Code, CreatedAt: testTime}, nil
	})
	require.Error(t, err)

	got, err := store.GetModel(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "model m1", got.Name, "model row must roll back with the version")
	assert.Equal(t, m.Code, got.Code)
}

func TestSQLiteStore_CommitUpdate_FuncErrorWritesNothing(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	m, v := newModel("m1", "alice", false, testTime)
	require.NoError(t, store.CreateModel(ctx, m, v))

	boom := errors.New("boom")
	_, _, err := store.CommitUpdate(ctx, "m1", func(*core.Model, int) (*core.Model, *core.Version, error) {
		return nil, nil, boom
	})
	assert.ErrorIs(t, err, boom)

	versions, err := store.ListVersions(ctx, "m1")
	require.NoError(t, err)
	assert.Len(t, versions, 1)
}

func TestSQLiteStore_ReconcilesDriftOnRead(t *testing.T) {
	logger, logs := testutil.NewCaptureLogger(t)
	store := NewSQLiteStore(logger)
	require.NoError(t, store.Open(context.Background(), MemoryPath))
	defer store.Close()
	ctx := context.Background()

	m, v := newModel("m1", "alice", false, testTime)
	require.NoError(t, store.CreateModel(ctx, m, v))

	// Simulate a partially applied write from another writer.
	_, err := store.db.Exec(`UPDATE models SET code = 'drifted', parameters = '{"n": 99}' WHERE id = 'm1'`)
	require.NoError(t, err)

	got, err := store.GetModel(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, v.Code, got.Code)
	assert.Equal(t, v.Parameters, got.Parameters)
	assert.Contains(t, logs.String(), "model drifted from its latest version")

	// The next update starts from the reconciled values and rewrites the row.
	_, _, err = store.CommitUpdate(ctx, "m1", func(cur *core.Model, _ int) (*core.Model, *core.Version, error) {
		assert.Equal(t, v.Code, cur.Code)
		return cur, nil, nil
	})
	require.NoError(t, err)

	var code string
	require.NoError(t, store.db.QueryRow(`SELECT code FROM models WHERE id = 'm1'`).Scan(&code))
	assert.Equal(t, v.Code, code)
}

func TestSQLiteStore_NumericEquivalenceIsNotDrift(t *testing.T) {
	logger, logs := testutil.NewCaptureLogger(t)
	store := NewSQLiteStore(logger)
	require.NoError(t, store.Open(context.Background(), MemoryPath))
	defer store.Close()
	ctx := context.Background()

	m, v := newModel("m1", "alice", false, testTime)
	require.NoError(t, store.CreateModel(ctx, m, v))

	_, err := store.db.Exec(`UPDATE models SET parameters = '{"n": 1.0}' WHERE id = 'm1'`)
	require.NoError(t, err)

	_, err = store.GetModel(ctx, "m1")
	require.NoError(t, err)
	assert.NotContains(t, logs.String(), "drifted")
}

func TestSQLiteStore_CommitUpdate_RollbackOnVersionInsertFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewSQLiteStore(testutil.NewTestLogger(t))
	store.OpenDB(db)

	created := formatTime(testTime)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM models m")).
		WithArgs("m1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "name", "description", "model_type", "code", "parameters",
			"owner_id", "is_public", "created_at", "updated_at",
			"version_number", "code", "parameters",
		}).AddRow("m1", "m", "", "custom", "old", "{}", "alice", 0, created, created, 1, "old", "{}"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE models")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO model_versions")).
		WillReturnError(errors.New("UNIQUE constraint failed"))
	mock.ExpectRollback()

	_, _, err = store.CommitUpdate(context.Background(), "m1", func(cur *core.Model, latest int) (*core.Model, *core.Version, error) {
		n := cur.Clone()
		n.Code = "new"
		return n, &core.Version{ID: "v2", ModelID: "m1", Number: latest + 1, Code: "new", CreatedAt: testTime}, nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to insert version 2")
	assert.NoError(t, mock.ExpectationsWereMet())
}
