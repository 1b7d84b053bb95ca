package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/leapstack-labs/finmodel/pkg/core"
)

// modelSelect joins every model with its latest version, if any.
const modelSelect = `
SELECT m.id, m.name, m.description, m.model_type, m.code, m.parameters,
       m.owner_id, m.is_public, m.created_at, m.updated_at,
       v.version_number, v.code, v.parameters
FROM models m
LEFT JOIN model_versions v
  ON v.model_id = m.id
 AND v.version_number = (SELECT MAX(version_number) FROM model_versions WHERE model_id = m.id)`

// CreateModel stores a model and its initial version in one transaction.
func (s *SQLiteStore) CreateModel(ctx context.Context, model *core.Model, initial *core.Version) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	params, err := encodeParameters(model.Parameters)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO models (id, name, description, model_type, code, parameters,
		                    owner_id, is_public, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		model.ID, model.Name, model.Description, model.ModelType, model.Code, params,
		model.OwnerID, boolToInt(model.IsPublic), formatTime(model.CreatedAt), formatTime(model.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert model: %w", err)
	}

	if initial != nil {
		if err := insertVersion(ctx, tx, initial); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit model: %w", err)
	}
	return nil
}

// GetModel retrieves a model by ID with code and parameters taken from its
// latest version.
func (s *SQLiteStore) GetModel(ctx context.Context, id string) (*core.Model, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	m, _, err := s.getModel(ctx, s.db, id)
	return m, err
}

func (s *SQLiteStore) getModel(ctx context.Context, q querier, id string) (*core.Model, int, error) {
	row := q.QueryRowContext(ctx, modelSelect+` WHERE m.id = ?`, id)
	m, latest, err := s.scanModel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, fmt.Errorf("model %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get model: %w", err)
	}
	return m, latest, nil
}

// ListModels returns models matching the filter, newest first.
func (s *SQLiteStore) ListModels(ctx context.Context, filter core.ModelFilter) ([]*core.Model, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	var where []string
	var args []any
	if filter.ViewerID != "" {
		where = append(where, "(m.owner_id = ? OR m.is_public = 1)")
		args = append(args, filter.ViewerID)
	}
	if filter.ModelType != "" {
		where = append(where, "m.model_type = ?")
		args = append(args, filter.ModelType)
	}

	query := modelSelect
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY m.created_at DESC, m.id LIMIT ? OFFSET ?"

	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	defer rows.Close()

	var models []*core.Model
	for rows.Next() {
		m, _, err := s.scanModel(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan model: %w", err)
		}
		models = append(models, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	return models, nil
}

// DeleteModel removes a model; its versions go with it.
func (s *SQLiteStore) DeleteModel(ctx context.Context, id string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM models WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete model: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete model: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("model %s: %w", id, core.ErrNotFound)
	}
	return nil
}

// CommitUpdate reads the model and its latest version number, lets fn decide
// the next state and writes the outcome in the same transaction.
func (s *SQLiteStore) CommitUpdate(ctx context.Context, id string, fn core.UpdateFunc) (*core.Model, *core.Version, error) {
	if s.db == nil {
		return nil, nil, fmt.Errorf("database not opened")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, latest, err := s.getModel(ctx, tx, id)
	if err != nil {
		return nil, nil, err
	}

	next, version, err := fn(current, latest)
	if err != nil {
		return nil, nil, err
	}

	params, err := encodeParameters(next.Parameters)
	if err != nil {
		return nil, nil, err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE models
		SET name = ?, description = ?, model_type = ?, code = ?, parameters = ?,
		    is_public = ?, updated_at = ?
		WHERE id = ?`,
		next.Name, next.Description, next.ModelType, next.Code, params,
		boolToInt(next.IsPublic), formatTime(next.UpdatedAt), id,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to update model: %w", err)
	}

	if version != nil {
		if err := insertVersion(ctx, tx, version); err != nil {
			return nil, nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit update: %w", err)
	}
	return next, version, nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanModel reads one modelSelect row and reconciles the model's code and
// parameters with its latest version.
func (s *SQLiteStore) scanModel(row scanner) (*core.Model, int, error) {
	var (
		m                    core.Model
		params               string
		isPublic             int
		createdAt, updatedAt string
		latest               sql.NullInt64
		versionCode          sql.NullString
		versionParams        sql.NullString
	)
	err := row.Scan(
		&m.ID, &m.Name, &m.Description, &m.ModelType, &m.Code, &params,
		&m.OwnerID, &isPublic, &createdAt, &updatedAt,
		&latest, &versionCode, &versionParams,
	)
	if err != nil {
		return nil, 0, err
	}

	m.IsPublic = isPublic != 0
	if m.Parameters, err = decodeParameters(params); err != nil {
		return nil, 0, err
	}
	if m.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, 0, err
	}
	if m.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, 0, err
	}

	if !latest.Valid {
		return &m, 0, nil
	}

	vParams, err := decodeParameters(versionParams.String)
	if err != nil {
		return nil, 0, err
	}
	if !core.ParametersEqual(m.Parameters, vParams) || m.Code != versionCode.String {
		s.logger.Warn("model drifted from its latest version; serving the version",
			"model_id", m.ID, "version", latest.Int64)
		m.Code = versionCode.String
		m.Parameters = vParams
	}
	return &m, int(latest.Int64), nil
}
