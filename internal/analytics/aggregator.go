// Package analytics computes read-only rollups over build history for the
// dashboard. Nothing here mutates the store.
package analytics

import (
	"context"
	"database/sql"
	"math"
	"time"

	"trackd.sh/internal/derrors"
	"trackd.sh/internal/store"
)

// weekDays is the size of the rolling histogram window.
const weekDays = 7

// topNames caps the per-name leaderboard.
const topNames = 10

// NameStats is the rollup for one distinct build name.
type NameStats struct {
	Name        string  `json:"name"`
	Builds      int     `json:"builds"`
	SuccessRate float64 `json:"success_rate"`
	AvgTime     float64 `json:"avg_time"`
}

// Rollup is the full analytics response. total_builds is global while the
// histogram is windowed; that asymmetry is intentional.
type Rollup struct {
	TotalBuilds  int         `json:"total_builds"`
	SuccessRate  float64     `json:"success_rate"`
	AvgDuration  float64     `json:"avg_duration"`
	WeeklyBuilds []int       `json:"weekly_builds"`
	MCPs         []NameStats `json:"mcps"`
	PeriodStart  time.Time   `json:"period_start"`
	PeriodEnd    time.Time   `json:"period_end"`
}

// Aggregator answers dashboard analytics queries.
type Aggregator struct {
	db  *sql.DB
	now func() time.Time
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		a.now = now
	}
}

// New creates an Aggregator.
func New(db *sql.DB, opts ...Option) *Aggregator {
	a := &Aggregator{db: db, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Rollup computes build statistics for the trailing 7-day window ending now.
func (a *Aggregator) Rollup(ctx context.Context) (*Rollup, error) {
	now := a.now().UTC()

	var total int
	if err := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM builds`).Scan(&total); err != nil {
		return nil, derrors.Wrap(err, derrors.KindInternal, "failed to count builds")
	}

	var successes int
	if err := a.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM builds WHERE status = ?`, store.StatusSuccess).Scan(&successes); err != nil {
		return nil, derrors.Wrap(err, derrors.KindInternal, "failed to count successful builds")
	}

	successRate := 0.0
	if total > 0 {
		successRate = float64(successes) / float64(total) * 100
	}

	var avgDuration float64
	err := a.db.QueryRowContext(ctx, `
		SELECT COALESCE(AVG(duration), 0) FROM builds
		WHERE duration IS NOT NULL AND status IN (?, ?)`,
		store.StatusSuccess, store.StatusError).Scan(&avgDuration)
	if err != nil {
		return nil, derrors.Wrap(err, derrors.KindInternal, "failed to average build duration")
	}

	weekly, err := a.weeklyHistogram(ctx, now)
	if err != nil {
		return nil, err
	}

	names, err := a.nameLeaderboard(ctx)
	if err != nil {
		return nil, err
	}

	return &Rollup{
		TotalBuilds:  total,
		SuccessRate:  round1(successRate),
		AvgDuration:  round1(avgDuration),
		WeeklyBuilds: weekly,
		MCPs:         names,
		PeriodStart:  now.AddDate(0, 0, -weekDays),
		PeriodEnd:    now,
	}, nil
}

// weeklyHistogram counts builds started on each of the last 7 calendar days,
// oldest day first. Day boundaries are derived from "now", so the window
// rolls with the call time.
func (a *Aggregator) weeklyHistogram(ctx context.Context, now time.Time) ([]int, error) {
	counts := make([]int, 0, weekDays)
	for i := weekDays - 1; i >= 0; i-- {
		day := now.AddDate(0, 0, -i)
		dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
		dayEnd := dayStart.AddDate(0, 0, 1)

		var count int
		err := a.db.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM builds
			WHERE started_at >= ? AND started_at < ?`, dayStart, dayEnd).Scan(&count)
		if err != nil {
			return nil, derrors.Wrap(err, derrors.KindInternal, "failed to count daily builds")
		}
		counts = append(counts, count)
	}
	return counts, nil
}

// nameLeaderboard returns the top build names by build count, each with its
// own success rate and average duration.
func (a *Aggregator) nameLeaderboard(ctx context.Context) ([]NameStats, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT name,
		       COUNT(*) AS build_count,
		       COALESCE(AVG(duration), 0) AS avg_duration,
		       SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS success_count
		FROM builds
		GROUP BY name
		ORDER BY build_count DESC
		LIMIT ?`, store.StatusSuccess, topNames)
	if err != nil {
		return nil, derrors.Wrap(err, derrors.KindInternal, "failed to query name stats")
	}
	defer rows.Close()

	stats := make([]NameStats, 0, topNames)
	for rows.Next() {
		var (
			name        string
			buildCount  int
			avgDuration float64
			successes   int
		)
		if err := rows.Scan(&name, &buildCount, &avgDuration, &successes); err != nil {
			return nil, derrors.Wrap(err, derrors.KindInternal, "failed to scan name stats")
		}

		rate := 0.0
		if buildCount > 0 {
			rate = float64(successes) / float64(buildCount) * 100
		}
		stats = append(stats, NameStats{
			Name:        name,
			Builds:      buildCount,
			SuccessRate: round1(rate),
			AvgTime:     round1(avgDuration),
		})
	}
	return stats, rows.Err()
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
