package store

import (
	"context"
	"database/sql"
	"time"
)

// Build status values.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusError   = "error"
	StatusPaused  = "paused"
	StatusAborted = "aborted"
)

// Build phase values. Callers may report phases outside this set; they are
// stored as given.
const (
	PhasePRDUploaded = "prd_uploaded"
	PhaseAnalysis    = "analysis"
	PhaseSpecGen     = "specGen"
	PhaseCodeGen     = "codeGen"
	PhaseValidation  = "validation"
	PhaseComplete    = "complete"
)

// Log level values.
const (
	LevelDebug   = "debug"
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "error"
	LevelSuccess = "success"
)

// Querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
// Store methods take a Querier so the lifecycle engine can compose them
// inside a single transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Build is one tracked execution of the automated generation pipeline.
type Build struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Status    string     `json:"status"`
	Phase     string     `json:"phase"`
	StartedAt time.Time  `json:"started_at"`
	StoppedAt *time.Time `json:"stopped_at,omitempty"`
	Duration  *int64     `json:"duration,omitempty"`
	PRDID     *string    `json:"prd_id,omitempty"`
	ProjectID *string    `json:"project_id,omitempty"`
}

// BuildLog is one append-only log entry owned by a build.
type BuildLog struct {
	ID        int64          `json:"-"`
	BuildID   string         `json:"-"`
	Timestamp time.Time      `json:"ts"`
	Event     string         `json:"event"`
	Phase     *string        `json:"phase,omitempty"`
	Message   string         `json:"msg"`
	Level     string         `json:"level"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// PRD is an uploaded requirements document.
type PRD struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	ProjectID  *string   `json:"project_id,omitempty"`
	Content    string    `json:"content"`
	UploadedAt time.Time `json:"uploaded_at"`
	UploadedBy *string   `json:"uploaded_by,omitempty"`
}

// Project is a generated server project tracked by the factory.
type Project struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Path        string     `json:"path"`
	SDK         *string    `json:"sdk,omitempty"`
	ServiceName *string    `json:"service_name,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	LastBuildAt *time.Time `json:"last_build_at,omitempty"`
	BuildCount  int        `json:"build_count"`
}
