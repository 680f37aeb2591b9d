package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNoRows is returned by Get helpers when the row does not exist. Callers
// translate it into their own not-found errors.
var ErrNoRows = sql.ErrNoRows

// BuildStore reads and writes build rows.
type BuildStore struct{}

// NewBuildStore creates a BuildStore.
func NewBuildStore() *BuildStore {
	return &BuildStore{}
}

// Insert creates a new build row. A uniqueness violation surfaces as the
// driver error; callers decide whether that is a conflict or a race.
func (s *BuildStore) Insert(ctx context.Context, q Querier, b *Build) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO builds (id, name, status, phase, started_at, stopped_at, duration, prd_id, project_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.Name, b.Status, b.Phase, b.StartedAt.UTC(),
		nullableTime(b.StoppedAt), nullableInt(b.Duration), b.PRDID, b.ProjectID,
	)
	return err
}

// Get fetches a single build by ID. Returns ErrNoRows when absent.
func (s *BuildStore) Get(ctx context.Context, q Querier, id string) (*Build, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, name, status, phase, started_at, stopped_at, duration, prd_id, project_id
		FROM builds WHERE id = ?`, id)
	return scanBuild(row)
}

// Update persists the mutable lifecycle fields of a build.
func (s *BuildStore) Update(ctx context.Context, q Querier, b *Build) error {
	_, err := q.ExecContext(ctx, `
		UPDATE builds SET status = ?, phase = ?, stopped_at = ?, duration = ?
		WHERE id = ?`,
		b.Status, b.Phase, nullableTime(b.StoppedAt), nullableInt(b.Duration), b.ID,
	)
	return err
}

// ListRunning returns all running builds, most recently started first.
func (s *BuildStore) ListRunning(ctx context.Context, q Querier) ([]*Build, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, name, status, phase, started_at, stopped_at, duration, prd_id, project_id
		FROM builds WHERE status = ? ORDER BY started_at DESC`, StatusRunning)
	if err != nil {
		return nil, fmt.Errorf("failed to query running builds: %w", err)
	}
	defer rows.Close()
	return scanBuilds(rows)
}

// ListHistory returns one page of builds ordered by started_at descending,
// optionally filtered by exact status, plus the total matching count.
func (s *BuildStore) ListHistory(ctx context.Context, q Querier, page, pageSize int, status string) ([]*Build, int, error) {
	countQuery := `SELECT COUNT(*) FROM builds`
	listQuery := `
		SELECT id, name, status, phase, started_at, stopped_at, duration, prd_id, project_id
		FROM builds`
	var args []any
	if status != "" {
		countQuery += ` WHERE status = ?`
		listQuery += ` WHERE status = ?`
		args = append(args, status)
	}

	var total int
	if err := q.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count builds: %w", err)
	}

	listQuery += ` ORDER BY started_at DESC LIMIT ? OFFSET ?`
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := q.QueryContext(ctx, listQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query build history: %w", err)
	}
	defer rows.Close()

	builds, err := scanBuilds(rows)
	if err != nil {
		return nil, 0, err
	}
	return builds, total, nil
}

// LogCount returns the number of log rows owned by a build.
func (s *BuildStore) LogCount(ctx context.Context, q Querier, buildID string) (int, error) {
	var count int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM build_logs WHERE build_id = ?`, buildID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count build logs: %w", err)
	}
	return count, nil
}

func scanBuild(row *sql.Row) (*Build, error) {
	var (
		b         Build
		stoppedAt sql.NullTime
		duration  sql.NullInt64
		prdID     sql.NullString
		projectID sql.NullString
	)
	err := row.Scan(&b.ID, &b.Name, &b.Status, &b.Phase, &b.StartedAt,
		&stoppedAt, &duration, &prdID, &projectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoRows
		}
		return nil, fmt.Errorf("failed to scan build: %w", err)
	}
	applyBuildNullables(&b, stoppedAt, duration, prdID, projectID)
	return &b, nil
}

func scanBuilds(rows *sql.Rows) ([]*Build, error) {
	var builds []*Build
	for rows.Next() {
		var (
			b         Build
			stoppedAt sql.NullTime
			duration  sql.NullInt64
			prdID     sql.NullString
			projectID sql.NullString
		)
		if err := rows.Scan(&b.ID, &b.Name, &b.Status, &b.Phase, &b.StartedAt,
			&stoppedAt, &duration, &prdID, &projectID); err != nil {
			return nil, fmt.Errorf("failed to scan build: %w", err)
		}
		applyBuildNullables(&b, stoppedAt, duration, prdID, projectID)
		builds = append(builds, &b)
	}
	return builds, rows.Err()
}

func applyBuildNullables(b *Build, stoppedAt sql.NullTime, duration sql.NullInt64, prdID, projectID sql.NullString) {
	if stoppedAt.Valid {
		t := stoppedAt.Time
		b.StoppedAt = &t
	}
	if duration.Valid {
		d := duration.Int64
		b.Duration = &d
	}
	if prdID.Valid {
		v := prdID.String
		b.PRDID = &v
	}
	if projectID.Valid {
		v := projectID.String
		b.ProjectID = &v
	}
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func nullableInt(i *int64) any {
	if i == nil {
		return nil
	}
	return *i
}
