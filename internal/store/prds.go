package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PRDStore reads and writes requirements documents.
type PRDStore struct{}

// NewPRDStore creates a PRDStore.
func NewPRDStore() *PRDStore {
	return &PRDStore{}
}

// Insert creates a new PRD row.
func (s *PRDStore) Insert(ctx context.Context, q Querier, p *PRD) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO prds (id, filename, project_id, content, uploaded_at, uploaded_by)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.Filename, p.ProjectID, p.Content, p.UploadedAt.UTC(), p.UploadedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to insert prd: %w", err)
	}
	return nil
}

// Get fetches a PRD by ID. Returns ErrNoRows when absent.
func (s *PRDStore) Get(ctx context.Context, q Querier, id string) (*PRD, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, filename, project_id, content, uploaded_at, uploaded_by
		FROM prds WHERE id = ?`, id)
	return scanPRD(row)
}

// Latest returns the most recently uploaded PRD. Returns ErrNoRows when the
// table is empty.
func (s *PRDStore) Latest(ctx context.Context, q Querier) (*PRD, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, filename, project_id, content, uploaded_at, uploaded_by
		FROM prds ORDER BY uploaded_at DESC LIMIT 1`)
	return scanPRD(row)
}

func scanPRD(row *sql.Row) (*PRD, error) {
	var (
		p          PRD
		projectID  sql.NullString
		uploadedBy sql.NullString
	)
	err := row.Scan(&p.ID, &p.Filename, &projectID, &p.Content, &p.UploadedAt, &uploadedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoRows
		}
		return nil, fmt.Errorf("failed to scan prd: %w", err)
	}
	if projectID.Valid {
		v := projectID.String
		p.ProjectID = &v
	}
	if uploadedBy.Valid {
		v := uploadedBy.String
		p.UploadedBy = &v
	}
	return &p, nil
}
