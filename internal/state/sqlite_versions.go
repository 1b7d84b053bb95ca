package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/leapstack-labs/finmodel/pkg/core"
)

const versionSelect = `
SELECT id, model_id, version_number, code, parameters, description, created_at
FROM model_versions`

// ListVersions returns a model's versions in ascending order.
func (s *SQLiteStore) ListVersions(ctx context.Context, modelID string) ([]*core.Version, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.QueryContext(ctx, versionSelect+` WHERE model_id = ? ORDER BY version_number`, modelID)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	var versions []*core.Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	return versions, nil
}

// GetVersion returns one version of a model.
func (s *SQLiteStore) GetVersion(ctx context.Context, modelID string, number int) (*core.Version, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	row := s.db.QueryRowContext(ctx, versionSelect+` WHERE model_id = ? AND version_number = ?`, modelID, number)
	v, err := scanVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("model %s version %d: %w", modelID, number, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get version: %w", err)
	}
	return v, nil
}

func insertVersion(ctx context.Context, q querier, v *core.Version) error {
	params, err := encodeParameters(v.Parameters)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO model_versions (id, model_id, version_number, code, parameters, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.ModelID, v.Number, v.Code, params, v.Description, formatTime(v.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert version %d: %w", v.Number, err)
	}
	return nil
}

func scanVersion(row scanner) (*core.Version, error) {
	var (
		v         core.Version
		params    string
		createdAt string
	)
	if err := row.Scan(&v.ID, &v.ModelID, &v.Number, &v.Code, &params, &v.Description, &createdAt); err != nil {
		return nil, err
	}
	var err error
	if v.Parameters, err = decodeParameters(params); err != nil {
		return nil, err
	}
	if v.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &v, nil
}
