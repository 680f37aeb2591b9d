package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ProjectStore reads and writes project rows.
type ProjectStore struct{}

// NewProjectStore creates a ProjectStore.
func NewProjectStore() *ProjectStore {
	return &ProjectStore{}
}

// Insert creates a new project row.
func (s *ProjectStore) Insert(ctx context.Context, q Querier, p *Project) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO projects (id, name, path, sdk, service_name, created_at, last_build_at, build_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Path, p.SDK, p.ServiceName, p.CreatedAt.UTC(),
		nullableTime(p.LastBuildAt), p.BuildCount,
	)
	if err != nil {
		return fmt.Errorf("failed to insert project: %w", err)
	}
	return nil
}

// Get fetches a project by ID. Returns ErrNoRows when absent.
func (s *ProjectStore) Get(ctx context.Context, q Querier, id string) (*Project, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, name, path, sdk, service_name, created_at, last_build_at, build_count
		FROM projects WHERE id = ?`, id)

	p, err := scanProject(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoRows
		}
		return nil, err
	}
	return p, nil
}

// List returns all projects, most recently built first (never-built last).
func (s *ProjectStore) List(ctx context.Context, q Querier) ([]*Project, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, name, path, sdk, service_name, created_at, last_build_at, build_count
		FROM projects
		ORDER BY last_build_at IS NULL, last_build_at DESC, name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	defer rows.Close()

	var projects []*Project
	for rows.Next() {
		p, err := scanProject(rows.Scan)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func scanProject(scan func(dest ...any) error) (*Project, error) {
	var (
		p           Project
		sdk         sql.NullString
		serviceName sql.NullString
		lastBuildAt sql.NullTime
	)
	err := scan(&p.ID, &p.Name, &p.Path, &sdk, &serviceName, &p.CreatedAt,
		&lastBuildAt, &p.BuildCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan project: %w", err)
	}
	if sdk.Valid {
		v := sdk.String
		p.SDK = &v
	}
	if serviceName.Valid {
		v := serviceName.String
		p.ServiceName = &v
	}
	if lastBuildAt.Valid {
		t := lastBuildAt.Time
		p.LastBuildAt = &t
	}
	return &p, nil
}
