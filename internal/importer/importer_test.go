package importer

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

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

func writeArchive(t *testing.T, index string, logs map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.json"), []byte(index), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "builds"), 0o755))
	for id, content := range logs {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "builds", id+".jsonl"), []byte(content), 0o644))
	}
	return dir
}

const sampleIndex = `{
  "builds": [
    {
      "id": "weather-mcp-20250107",
      "name": "weather-mcp",
      "status": "success",
      "phase": "complete",
      "startedAt": "2025-01-07T10:00:00Z",
      "stoppedAt": "2025-01-07T10:02:30Z",
      "duration": 150
    },
    {
      "id": "todo-mcp-20250107",
      "name": "todo-mcp",
      "status": "error",
      "phase": "codeGen",
      "startedAt": "2025-01-07T11:00:00+01:00"
    }
  ]
}`

const sampleLogs = `{"ts":"2025-01-07T10:00:00Z","event":"build_start","phase":"analysis","msg":"starting","level":"info"}
{"ts":"2025-01-07T10:02:30Z","event":"build_complete","phase":"complete","msg":"done","level":"success"}
`

func TestImportArchive(t *testing.T) {
	db := setupTestDB(t)
	dir := writeArchive(t, sampleIndex, map[string]string{"weather-mcp-20250107": sampleLogs})

	stats, err := New(db).Run(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.BuildsImported)
	assert.Equal(t, 0, stats.BuildsSkipped)
	assert.Equal(t, 2, stats.LogsImported)
	assert.Equal(t, 0, stats.Errors)

	builds := store.NewBuildStore()
	ctx := context.Background()

	weather, err := builds.Get(ctx, db, "weather-mcp-20250107")
	require.NoError(t, err)
	assert.Equal(t, store.StatusSuccess, weather.Status)
	assert.Equal(t, store.PhaseComplete, weather.Phase)
	require.NotNil(t, weather.Duration)
	assert.Equal(t, int64(150), *weather.Duration)

	// Offset timestamps are normalized to UTC
	todo, err := builds.Get(ctx, db, "todo-mcp-20250107")
	require.NoError(t, err)
	assert.Equal(t, 10, todo.StartedAt.UTC().Hour())
	assert.Nil(t, todo.StoppedAt)

	logs, err := store.NewLogStore().List(ctx, db, "weather-mcp-20250107", 10, 0)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "build_start", logs[0].Event)
	require.NotNil(t, logs[0].Phase)
	assert.Equal(t, "analysis", *logs[0].Phase)
}

func TestImportSkipsExistingBuilds(t *testing.T) {
	db := setupTestDB(t)
	dir := writeArchive(t, sampleIndex, map[string]string{"weather-mcp-20250107": sampleLogs})

	_, err := New(db).Run(context.Background(), dir)
	require.NoError(t, err)

	stats, err := New(db).Run(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.BuildsImported)
	assert.Equal(t, 2, stats.BuildsSkipped)
	assert.Equal(t, 0, stats.LogsImported)

	// Logs were not duplicated
	count, err := store.NewBuildStore().LogCount(context.Background(), db, "weather-mcp-20250107")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestImportDropsMalformedLines(t *testing.T) {
	db := setupTestDB(t)
	logs := `{"ts":"2025-01-07T10:00:00Z","event":"build_start","msg":"ok","level":"info"}
not json at all
{"ts":"garbage-date","event":"tick"}
{"ts":"2025-01-07T10:00:01Z","msg":"missing event"}

{"ts":"2025-01-07T10:00:02Z","event":"tick","msg":"ok too"}
`
	index := `{"builds":[{"id":"b-1","name":"b","status":"running","phase":"analysis","startedAt":"2025-01-07T10:00:00Z"}]}`
	dir := writeArchive(t, index, map[string]string{"b-1": logs})

	stats, err := New(db).Run(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.BuildsImported)
	assert.Equal(t, 2, stats.LogsImported)
	assert.Equal(t, 3, stats.Errors)
}

func TestImportBuildWithoutLogsFile(t *testing.T) {
	db := setupTestDB(t)
	index := `{"builds":[{"id":"quiet-1","name":"quiet","status":"success","phase":"complete","startedAt":"2025-01-07T10:00:00Z"}]}`
	dir := writeArchive(t, index, nil)

	stats, err := New(db).Run(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.BuildsImported)
	assert.Equal(t, 0, stats.LogsImported)
}

func TestImportBadIndexEntry(t *testing.T) {
	db := setupTestDB(t)
	index := `{"builds":[
	  {"id":"","name":"nameless","status":"running","phase":"analysis","startedAt":"2025-01-07T10:00:00Z"},
	  {"id":"ok-1","name":"ok","status":"running","phase":"analysis","startedAt":"2025-01-07T10:00:00Z"}
	]}`
	dir := writeArchive(t, index, nil)

	stats, err := New(db).Run(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.BuildsImported)
	assert.Equal(t, 1, stats.Errors)
}

func TestImportMissingIndex(t *testing.T) {
	db := setupTestDB(t)

	_, err := New(db).Run(context.Background(), t.TempDir())
	assert.Error(t, err)
}
