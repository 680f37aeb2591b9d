// Package importer replays archived build history into the database. The
// archive layout is an index.json describing builds plus one JSONL file of
// log lines per build under builds/.
package importer

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"trackd.sh/internal/database"
	"trackd.sh/internal/store"
)

// Stats summarizes one import run.
type Stats struct {
	BuildsImported int
	BuildsSkipped  int
	LogsImported   int
	Errors         int
}

// Importer loads an archive directory into the store.
type Importer struct {
	db     *sql.DB
	builds *store.BuildStore
	logs   *store.LogStore
	logger *slog.Logger
}

// New creates an Importer.
func New(db *sql.DB) *Importer {
	return &Importer{
		db:     db,
		builds: store.NewBuildStore(),
		logs:   store.NewLogStore(),
		logger: slog.Default().With("component", "importer"),
	}
}

type indexFile struct {
	Builds []indexedBuild `json:"builds"`
}

type indexedBuild struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Status    string  `json:"status"`
	Phase     string  `json:"phase"`
	StartedAt string  `json:"startedAt"`
	StoppedAt *string `json:"stoppedAt"`
	Duration  *int64  `json:"duration"`
}

type archivedLog struct {
	TS    string `json:"ts"`
	Event string `json:"event"`
	Phase string `json:"phase"`
	Msg   string `json:"msg"`
	Level string `json:"level"`
}

// Run imports every build listed in <dir>/index.json. Builds that already
// exist are skipped, not merged; malformed log lines are counted and dropped
// so one bad line cannot sink the run.
func (im *Importer) Run(ctx context.Context, dir string) (*Stats, error) {
	raw, err := os.ReadFile(filepath.Join(dir, "index.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to read archive index: %w", err)
	}

	var index indexFile
	if err := json.Unmarshal(raw, &index); err != nil {
		return nil, fmt.Errorf("failed to parse archive index: %w", err)
	}

	stats := &Stats{}
	for _, entry := range index.Builds {
		if err := im.importBuild(ctx, dir, entry, stats); err != nil {
			im.logger.Warn("failed to import build", "build_id", entry.ID, "error", err)
			stats.Errors++
		}
	}

	im.logger.Info("archive import finished",
		"builds", stats.BuildsImported,
		"skipped", stats.BuildsSkipped,
		"logs", stats.LogsImported,
		"errors", stats.Errors)
	return stats, nil
}

func (im *Importer) importBuild(ctx context.Context, dir string, entry indexedBuild, stats *Stats) error {
	if entry.ID == "" {
		return fmt.Errorf("index entry missing id")
	}

	startedAt, err := parseArchiveTime(entry.StartedAt)
	if err != nil {
		return fmt.Errorf("bad startedAt for %s: %w", entry.ID, err)
	}

	build := &store.Build{
		ID:        entry.ID,
		Name:      entry.Name,
		Status:    entry.Status,
		Phase:     entry.Phase,
		StartedAt: startedAt,
		Duration:  entry.Duration,
	}
	if build.Name == "" {
		build.Name = entry.ID
	}
	if build.Status == "" {
		build.Status = store.StatusRunning
	}
	if build.Phase == "" {
		build.Phase = store.PhasePRDUploaded
	}
	if entry.StoppedAt != nil {
		t, err := parseArchiveTime(*entry.StoppedAt)
		if err != nil {
			return fmt.Errorf("bad stoppedAt for %s: %w", entry.ID, err)
		}
		build.StoppedAt = &t
	}

	tx, err := im.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := im.builds.Insert(ctx, tx, build); err != nil {
		if database.IsUniqueViolation(err) {
			stats.BuildsSkipped++
			im.logger.Debug("build already present, skipping", "build_id", entry.ID)
			return nil
		}
		return fmt.Errorf("failed to insert build: %w", err)
	}

	imported, dropped, err := im.importLogs(ctx, tx, dir, entry.ID)
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	stats.BuildsImported++
	stats.LogsImported += imported
	stats.Errors += dropped
	return nil
}

// importLogs replays builds/<id>.jsonl. A missing file is fine; an archived
// build may have no logs.
func (im *Importer) importLogs(ctx context.Context, tx *sql.Tx, dir, buildID string) (imported, dropped int, err error) {
	f, err := os.Open(filepath.Join(dir, "builds", buildID+".jsonl"))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, 0, nil
		}
		return 0, 0, fmt.Errorf("failed to open log archive: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec archivedLog
		if err := json.Unmarshal(line, &rec); err != nil {
			dropped++
			continue
		}
		ts, err := parseArchiveTime(rec.TS)
		if err != nil || rec.Event == "" {
			dropped++
			continue
		}

		log := &store.BuildLog{
			BuildID:   buildID,
			Timestamp: ts,
			Event:     rec.Event,
			Message:   rec.Msg,
			Level:     rec.Level,
		}
		if log.Level == "" {
			log.Level = store.LevelInfo
		}
		if rec.Phase != "" {
			phase := rec.Phase
			log.Phase = &phase
		}

		if err := im.logs.Append(ctx, tx, log); err != nil {
			return imported, dropped, err
		}
		imported++
	}
	if err := scanner.Err(); err != nil {
		return imported, dropped, fmt.Errorf("failed to read log archive: %w", err)
	}
	return imported, dropped, nil
}

// parseArchiveTime accepts RFC 3339 with or without fractional seconds, in
// any offset, and normalizes to UTC.
func parseArchiveTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
