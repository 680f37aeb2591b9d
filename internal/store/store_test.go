package store_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trackd.sh/internal/database"
	"trackd.sh/internal/store"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(database.DefaultConfig(":memory:"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestBuildInsertGetRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	builds := store.NewBuildStore()
	ctx := context.Background()

	started := time.Date(2025, 1, 8, 10, 0, 0, 0, time.UTC)
	stopped := started.Add(42 * time.Second)
	duration := int64(42)
	prdID := "prd-1"

	require.NoError(t, builds.Insert(ctx, db, &store.Build{
		ID:        "rt-1",
		Name:      "rt",
		Status:    store.StatusSuccess,
		Phase:     store.PhaseComplete,
		StartedAt: started,
		StoppedAt: &stopped,
		Duration:  &duration,
		PRDID:     &prdID,
	}))

	got, err := builds.Get(ctx, db, "rt-1")
	require.NoError(t, err)
	assert.Equal(t, "rt", got.Name)
	assert.Equal(t, store.StatusSuccess, got.Status)
	assert.True(t, got.StartedAt.Equal(started))
	require.NotNil(t, got.StoppedAt)
	assert.True(t, got.StoppedAt.Equal(stopped))
	require.NotNil(t, got.Duration)
	assert.Equal(t, int64(42), *got.Duration)
	require.NotNil(t, got.PRDID)
	assert.Equal(t, "prd-1", *got.PRDID)
	assert.Nil(t, got.ProjectID)
}

func TestBuildGetMissing(t *testing.T) {
	db := setupTestDB(t)

	_, err := store.NewBuildStore().Get(context.Background(), db, "missing")
	assert.ErrorIs(t, err, store.ErrNoRows)
}

func TestBuildInsertDuplicate(t *testing.T) {
	db := setupTestDB(t)
	builds := store.NewBuildStore()
	ctx := context.Background()

	b := &store.Build{ID: "dup-1", Name: "dup", Status: store.StatusRunning,
		Phase: store.PhaseAnalysis, StartedAt: time.Now().UTC()}
	require.NoError(t, builds.Insert(ctx, db, b))

	err := builds.Insert(ctx, db, b)
	require.Error(t, err)
	assert.True(t, database.IsUniqueViolation(err))
}

func TestBuildUpdate(t *testing.T) {
	db := setupTestDB(t)
	builds := store.NewBuildStore()
	ctx := context.Background()

	b := &store.Build{ID: "up-1", Name: "up", Status: store.StatusRunning,
		Phase: store.PhaseAnalysis, StartedAt: time.Now().UTC()}
	require.NoError(t, builds.Insert(ctx, db, b))

	stopped := time.Now().UTC()
	duration := int64(7)
	b.Status = store.StatusError
	b.StoppedAt = &stopped
	b.Duration = &duration
	require.NoError(t, builds.Update(ctx, db, b))

	got, err := builds.Get(ctx, db, "up-1")
	require.NoError(t, err)
	assert.Equal(t, store.StatusError, got.Status)
	require.NotNil(t, got.Duration)
	assert.Equal(t, int64(7), *got.Duration)
}

func TestLogAppendAndList(t *testing.T) {
	db := setupTestDB(t)
	builds := store.NewBuildStore()
	logs := store.NewLogStore()
	ctx := context.Background()

	base := time.Date(2025, 1, 8, 10, 0, 0, 0, time.UTC)
	require.NoError(t, builds.Insert(ctx, db, &store.Build{
		ID: "log-1", Name: "log", Status: store.StatusRunning,
		Phase: store.PhaseAnalysis, StartedAt: base,
	}))

	phase := store.PhaseAnalysis
	// Appended out of timestamp order on purpose
	for i, offset := range []time.Duration{2 * time.Second, 0, time.Second} {
		require.NoError(t, logs.Append(ctx, db, &store.BuildLog{
			BuildID:   "log-1",
			Timestamp: base.Add(offset),
			Event:     "tick",
			Phase:     &phase,
			Message:   "entry",
			Level:     store.LevelInfo,
			Metadata:  map[string]any{"seq": i},
		}))
	}

	got, err := logs.List(ctx, db, "log-1", 10, 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.True(t, got[0].Timestamp.Before(got[1].Timestamp))
	assert.True(t, got[1].Timestamp.Before(got[2].Timestamp))
	require.NotNil(t, got[0].Phase)
	assert.Equal(t, store.PhaseAnalysis, *got[0].Phase)
	assert.Equal(t, float64(1), got[0].Metadata["seq"])

	count, err := builds.LogCount(ctx, db, "log-1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestLogCascadeDelete(t *testing.T) {
	db := setupTestDB(t)
	builds := store.NewBuildStore()
	logs := store.NewLogStore()
	ctx := context.Background()

	require.NoError(t, builds.Insert(ctx, db, &store.Build{
		ID: "cas-1", Name: "cas", Status: store.StatusRunning,
		Phase: store.PhaseAnalysis, StartedAt: time.Now().UTC(),
	}))
	require.NoError(t, logs.Append(ctx, db, &store.BuildLog{
		BuildID: "cas-1", Timestamp: time.Now().UTC(), Event: "tick", Level: store.LevelInfo,
	}))

	_, err := db.ExecContext(ctx, `DELETE FROM builds WHERE id = ?`, "cas-1")
	require.NoError(t, err)

	count, err := builds.LogCount(ctx, db, "cas-1")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestPRDLatest(t *testing.T) {
	db := setupTestDB(t)
	prds := store.NewPRDStore()
	ctx := context.Background()

	_, err := prds.Latest(ctx, db)
	assert.ErrorIs(t, err, store.ErrNoRows)

	base := time.Date(2025, 1, 8, 10, 0, 0, 0, time.UTC)
	require.NoError(t, prds.Insert(ctx, db, &store.PRD{
		ID: "old", Filename: "old.yaml", Content: "a", UploadedAt: base,
	}))
	require.NoError(t, prds.Insert(ctx, db, &store.PRD{
		ID: "new", Filename: "new.yaml", Content: "b", UploadedAt: base.Add(time.Hour),
	}))

	latest, err := prds.Latest(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, "new", latest.ID)

	got, err := prds.Get(ctx, db, "old")
	require.NoError(t, err)
	assert.Equal(t, "old.yaml", got.Filename)
}

func TestProjectListOrdering(t *testing.T) {
	db := setupTestDB(t)
	projects := store.NewProjectStore()
	ctx := context.Background()

	base := time.Date(2025, 1, 8, 10, 0, 0, 0, time.UTC)
	recent := base.Add(time.Hour)
	require.NoError(t, projects.Insert(ctx, db, &store.Project{
		ID: "stale", Name: "stale", Path: "/srv/stale", CreatedAt: base, LastBuildAt: &base,
	}))
	require.NoError(t, projects.Insert(ctx, db, &store.Project{
		ID: "fresh", Name: "fresh", Path: "/srv/fresh", CreatedAt: base, LastBuildAt: &recent,
	}))
	require.NoError(t, projects.Insert(ctx, db, &store.Project{
		ID: "never", Name: "never", Path: "/srv/never", CreatedAt: base,
	}))

	got, err := projects.List(ctx, db)
	require.NoError(t, err)
	require.Len(t, got, 3)
	// Most recently built first, never-built last
	assert.Equal(t, "fresh", got[0].ID)
	assert.Equal(t, "stale", got[1].ID)
	assert.Equal(t, "never", got[2].ID)
}
