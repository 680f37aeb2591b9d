// Package lifecycle implements the build lifecycle engine: the one place
// that decides what a build event means. It auto-provisions builds on first
// reference, applies phase updates, detects terminal events, and appends
// log rows, all inside a single transaction.
package lifecycle

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"
	"time"

	"trackd.sh/internal/database"
	"trackd.sh/internal/derrors"
	"trackd.sh/internal/store"
)

// Reserved event names with lifecycle meaning. Any other event name is a
// plain log entry.
var (
	successEvents = map[string]bool{"build_complete": true, "build_success": true}
	failureEvents = map[string]bool{"build_error": true, "build_failed": true}
)

// phaseRank orders the canonical phases for the optional strict mode.
// Unrecognized phases are never range-checked.
var phaseRank = map[string]int{
	store.PhasePRDUploaded: 0,
	store.PhaseAnalysis:    1,
	store.PhaseSpecGen:     2,
	store.PhaseCodeGen:     3,
	store.PhaseValidation:  4,
	store.PhaseComplete:    5,
}

var validStatuses = map[string]bool{
	store.StatusRunning: true,
	store.StatusSuccess: true,
	store.StatusError:   true,
	store.StatusPaused:  true,
	store.StatusAborted: true,
}

// Engine applies build lifecycle rules against the relational store.
type Engine struct {
	db           *sql.DB
	builds       *store.BuildStore
	logs         *store.LogStore
	logger       *slog.Logger
	strictPhases bool
	now          func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithStrictPhaseOrder rejects log events whose phase would move an existing
// build backward in the canonical phase sequence. Off by default: the
// automation caller is trusted and phases pass through as given.
func WithStrictPhaseOrder() Option {
	return func(e *Engine) {
		e.strictPhases = true
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// New creates a lifecycle engine.
func New(db *sql.DB, opts ...Option) *Engine {
	e := &Engine{
		db:     db,
		builds: store.NewBuildStore(),
		logs:   store.NewLogStore(),
		logger: slog.Default().With("component", "lifecycle"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// LogEvent is one incoming log event for a build.
type LogEvent struct {
	Event     string         `json:"event"`
	Phase     string         `json:"phase,omitempty"`
	Message   string         `json:"message"`
	Level     string         `json:"level,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp *time.Time     `json:"timestamp,omitempty"`
}

// lookupOutcome is the explicit result of the build lookup step. The
// auto-create and update paths both converge on applyEvent so their
// behavior cannot silently diverge.
type lookupOutcome struct {
	build   *store.Build
	created bool
}

// IngestLogEvent records one log event for a build, creating the build on
// first reference. The whole sequence runs in one transaction: on any
// failure the caller observes no change.
func (e *Engine) IngestLogEvent(ctx context.Context, buildID string, ev LogEvent) (*store.Build, error) {
	if buildID == "" {
		return nil, derrors.New(derrors.KindInvalid, "build_id is required")
	}
	if ev.Event == "" {
		return nil, derrors.New(derrors.KindInvalid, "event is required")
	}
	if ev.Level == "" {
		ev.Level = store.LevelInfo
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, derrors.Wrap(err, derrors.KindInternal, "failed to begin transaction")
	}
	defer tx.Rollback()

	outcome, err := e.lookupOrCreate(ctx, tx, buildID, ev)
	if err != nil {
		return nil, err
	}

	if err := e.applyEvent(outcome, ev); err != nil {
		return nil, err
	}
	if err := e.builds.Update(ctx, tx, outcome.build); err != nil {
		return nil, derrors.Wrap(err, derrors.KindInternal, "failed to update build")
	}

	ts := e.now().UTC()
	if ev.Timestamp != nil {
		ts = ev.Timestamp.UTC()
	}
	var phase *string
	if ev.Phase != "" {
		phase = &ev.Phase
	}
	logRow := &store.BuildLog{
		BuildID:   buildID,
		Timestamp: ts,
		Event:     ev.Event,
		Phase:     phase,
		Message:   ev.Message,
		Level:     ev.Level,
		Metadata:  ev.Metadata,
	}
	if err := e.logs.Append(ctx, tx, logRow); err != nil {
		return nil, derrors.Wrap(err, derrors.KindInternal, "failed to append build log")
	}

	if err := tx.Commit(); err != nil {
		return nil, derrors.Wrap(err, derrors.KindInternal, "failed to commit log event")
	}

	e.logger.Debug("ingested log event",
		"build_id", buildID, "event", ev.Event, "created", outcome.created,
		"status", outcome.build.Status, "phase", outcome.build.Phase)
	return outcome.build, nil
}

// lookupOrCreate resolves the build for an incoming event, auto-creating it
// when the ID is unknown. A concurrent creator winning the insert race is
// absorbed: the losing insert re-reads and proceeds as an update.
func (e *Engine) lookupOrCreate(ctx context.Context, tx *sql.Tx, buildID string, ev LogEvent) (*lookupOutcome, error) {
	build, err := e.builds.Get(ctx, tx, buildID)
	if err == nil {
		return &lookupOutcome{build: build}, nil
	}
	if !errors.Is(err, store.ErrNoRows) {
		return nil, derrors.Wrap(err, derrors.KindInternal, "failed to look up build")
	}

	phase := ev.Phase
	if phase == "" {
		phase = store.PhasePRDUploaded
	}
	build = &store.Build{
		ID:        buildID,
		Name:      DeriveName(buildID),
		Status:    store.StatusRunning,
		Phase:     phase,
		StartedAt: e.now().UTC(),
	}
	if err := e.builds.Insert(ctx, tx, build); err != nil {
		if !database.IsUniqueViolation(err) {
			return nil, derrors.Wrap(err, derrors.KindInternal, "failed to auto-create build")
		}
		// Lost the creation race; the build now exists
		build, err = e.builds.Get(ctx, tx, buildID)
		if err != nil {
			return nil, derrors.Wrap(err, derrors.KindInternal, "failed to re-read build after conflict")
		}
		return &lookupOutcome{build: build}, nil
	}
	return &lookupOutcome{build: build, created: true}, nil
}

// applyEvent mutates the build per the event's lifecycle meaning: phase
// pass-through first, then terminal detection.
func (e *Engine) applyEvent(outcome *lookupOutcome, ev LogEvent) error {
	build := outcome.build

	if ev.Phase != "" {
		if e.strictPhases && !outcome.created {
			next, nextOK := phaseRank[ev.Phase]
			cur, curOK := phaseRank[build.Phase]
			if nextOK && curOK && next < cur {
				return derrors.Newf(derrors.KindInvalid,
					"phase %q would move build %s backward from %q", ev.Phase, build.ID, build.Phase)
			}
		}
		build.Phase = ev.Phase
	}

	switch {
	case successEvents[ev.Event]:
		build.Status = store.StatusSuccess
		build.Phase = store.PhaseComplete
		e.stamp(build)
	case failureEvents[ev.Event]:
		build.Status = store.StatusError
		e.stamp(build)
	}
	return nil
}

// stamp records the terminal timestamp and derived duration. A repeated
// terminal event restamps both.
func (e *Engine) stamp(build *store.Build) {
	stopped := e.now().UTC()
	build.StoppedAt = &stopped
	if !build.StartedAt.IsZero() {
		d := int64(stopped.Sub(build.StartedAt).Seconds())
		build.Duration = &d
	}
}

// CreateBuild is the explicit creation path. It fails with a conflict when
// the ID is already taken.
func (e *Engine) CreateBuild(ctx context.Context, b *store.Build) error {
	if b.ID == "" {
		return derrors.New(derrors.KindInvalid, "build id is required")
	}
	if b.Name == "" {
		b.Name = DeriveName(b.ID)
	}
	if b.Status == "" {
		b.Status = store.StatusRunning
	} else if !validStatuses[b.Status] {
		return derrors.Newf(derrors.KindInvalid, "unknown build status %q", b.Status)
	}
	if b.Phase == "" {
		b.Phase = store.PhasePRDUploaded
	}
	if b.StartedAt.IsZero() {
		b.StartedAt = e.now().UTC()
	}

	if err := e.builds.Insert(ctx, e.db, b); err != nil {
		if database.IsUniqueViolation(err) {
			return derrors.Newf(derrors.KindConflict, "build %s already exists", b.ID)
		}
		return derrors.Wrap(err, derrors.KindInternal, "failed to create build")
	}
	e.logger.Info("build created", "build_id", b.ID, "name", b.Name)
	return nil
}

// DeriveName strips the trailing hyphen-delimited segment of a build ID,
// treating it as "{name}-{suffix}". IDs without a hyphen are used verbatim.
func DeriveName(buildID string) string {
	if idx := strings.LastIndex(buildID, "-"); idx >= 0 {
		return buildID[:idx]
	}
	return buildID
}
