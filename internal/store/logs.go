package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// LogStore appends and reads build log rows. Rows are append-only; nothing
// here mutates or deletes an existing entry.
type LogStore struct{}

// NewLogStore creates a LogStore.
func NewLogStore() *LogStore {
	return &LogStore{}
}

// Append inserts one log row and fills in its sequence ID.
func (s *LogStore) Append(ctx context.Context, q Querier, l *BuildLog) error {
	var metadata any
	if l.Metadata != nil {
		raw, err := json.Marshal(l.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode log metadata: %w", err)
		}
		metadata = string(raw)
	}

	res, err := q.ExecContext(ctx, `
		INSERT INTO build_logs (build_id, timestamp, event, phase, message, level, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		l.BuildID, l.Timestamp.UTC(), l.Event, l.Phase, l.Message, l.Level, metadata,
	)
	if err != nil {
		return fmt.Errorf("failed to append build log: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		l.ID = id
	}
	return nil
}

// List returns logs for a build ordered by timestamp ascending, ties broken
// by insertion sequence, paginated by limit/offset.
func (s *LogStore) List(ctx context.Context, q Querier, buildID string, limit, offset int) ([]*BuildLog, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, build_id, timestamp, event, phase, message, level, metadata
		FROM build_logs WHERE build_id = ?
		ORDER BY timestamp ASC, id ASC
		LIMIT ? OFFSET ?`, buildID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query build logs: %w", err)
	}
	defer rows.Close()

	var logs []*BuildLog
	for rows.Next() {
		var (
			l        BuildLog
			phase    sql.NullString
			metadata sql.NullString
		)
		if err := rows.Scan(&l.ID, &l.BuildID, &l.Timestamp, &l.Event, &phase,
			&l.Message, &l.Level, &metadata); err != nil {
			return nil, fmt.Errorf("failed to scan build log: %w", err)
		}
		if phase.Valid {
			v := phase.String
			l.Phase = &v
		}
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &l.Metadata); err != nil {
				// Malformed metadata shouldn't make the whole build unreadable
				l.Metadata = nil
			}
		}
		logs = append(logs, &l)
	}
	return logs, rows.Err()
}
