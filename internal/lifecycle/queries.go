package lifecycle

import (
	"context"
	"errors"

	"trackd.sh/internal/derrors"
	"trackd.sh/internal/store"
)

// BuildSummary is a build projection enriched with its derived log count.
type BuildSummary struct {
	*store.Build
	LogCount int `json:"log_count"`
}

// HistoryPage is one page of build history.
type HistoryPage struct {
	Builds   []*BuildSummary `json:"builds"`
	Total    int             `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
}

// LogsPage holds a slice of a build's logs plus the owning build and the
// total log count.
type LogsPage struct {
	Build *store.Build
	Logs  []*store.BuildLog
	Total int
}

// GetBuild returns a single build with its log count.
func (e *Engine) GetBuild(ctx context.Context, id string) (*BuildSummary, error) {
	build, err := e.builds.Get(ctx, e.db, id)
	if err != nil {
		if errors.Is(err, store.ErrNoRows) {
			return nil, derrors.Newf(derrors.KindNotFound, "build %s not found", id)
		}
		return nil, derrors.Wrap(err, derrors.KindInternal, "failed to load build")
	}
	return e.summarize(ctx, build)
}

// ListRunning returns all currently running builds, newest first.
func (e *Engine) ListRunning(ctx context.Context) ([]*BuildSummary, error) {
	builds, err := e.builds.ListRunning(ctx, e.db)
	if err != nil {
		return nil, derrors.Wrap(err, derrors.KindInternal, "failed to list running builds")
	}
	return e.summarizeAll(ctx, builds)
}

// ListHistory returns one page of builds ordered by start time descending,
// optionally filtered by status.
func (e *Engine) ListHistory(ctx context.Context, page, pageSize int, status string) (*HistoryPage, error) {
	if page < 1 {
		return nil, derrors.New(derrors.KindInvalid, "page must be >= 1")
	}
	if pageSize < 1 || pageSize > 100 {
		return nil, derrors.New(derrors.KindInvalid, "page_size must be between 1 and 100")
	}
	if status != "" && !validStatuses[status] {
		return nil, derrors.Newf(derrors.KindInvalid, "unknown build status %q", status)
	}

	builds, total, err := e.builds.ListHistory(ctx, e.db, page, pageSize, status)
	if err != nil {
		return nil, derrors.Wrap(err, derrors.KindInternal, "failed to list build history")
	}
	summaries, err := e.summarizeAll(ctx, builds)
	if err != nil {
		return nil, err
	}
	return &HistoryPage{Builds: summaries, Total: total, Page: page, PageSize: pageSize}, nil
}

// GetLogs returns a page of a build's logs ordered by timestamp ascending.
func (e *Engine) GetLogs(ctx context.Context, buildID string, limit, offset int) (*LogsPage, error) {
	if limit < 1 || limit > 1000 {
		return nil, derrors.New(derrors.KindInvalid, "limit must be between 1 and 1000")
	}
	if offset < 0 {
		return nil, derrors.New(derrors.KindInvalid, "offset must be >= 0")
	}

	build, err := e.builds.Get(ctx, e.db, buildID)
	if err != nil {
		if errors.Is(err, store.ErrNoRows) {
			return nil, derrors.Newf(derrors.KindNotFound, "build %s not found", buildID)
		}
		return nil, derrors.Wrap(err, derrors.KindInternal, "failed to load build")
	}

	logs, err := e.logs.List(ctx, e.db, buildID, limit, offset)
	if err != nil {
		return nil, derrors.Wrap(err, derrors.KindInternal, "failed to list build logs")
	}
	total, err := e.builds.LogCount(ctx, e.db, buildID)
	if err != nil {
		return nil, derrors.Wrap(err, derrors.KindInternal, "failed to count build logs")
	}
	return &LogsPage{Build: build, Logs: logs, Total: total}, nil
}

func (e *Engine) summarize(ctx context.Context, build *store.Build) (*BuildSummary, error) {
	count, err := e.builds.LogCount(ctx, e.db, build.ID)
	if err != nil {
		return nil, derrors.Wrap(err, derrors.KindInternal, "failed to count build logs")
	}
	return &BuildSummary{Build: build, LogCount: count}, nil
}

func (e *Engine) summarizeAll(ctx context.Context, builds []*store.Build) ([]*BuildSummary, error) {
	summaries := make([]*BuildSummary, 0, len(builds))
	for _, b := range builds {
		s, err := e.summarize(ctx, b)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}
	return summaries, nil
}
