package api

import (
	"net/http"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trackd.sh/internal/analytics"
	"trackd.sh/internal/database"
	"trackd.sh/internal/lifecycle"
)

func TestAnalyticsEndpoint(t *testing.T) {
	db, err := database.Open(database.DefaultConfig(":memory:"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	r := mux.NewRouter()
	NewBuildHandlers(lifecycle.New(db)).RegisterRoutes(r)
	NewAnalyticsHandlers(analytics.New(db)).RegisterRoutes(r)

	doJSON(t, r, http.MethodPost, "/builds/alpha-1/logs", map[string]any{"event": "build_start"})
	doJSON(t, r, http.MethodPost, "/builds/alpha-1/logs", map[string]any{"event": "build_complete"})
	doJSON(t, r, http.MethodPost, "/builds/alpha-2/logs", map[string]any{"event": "build_start"})

	rec, body := doJSON(t, r, http.MethodGet, "/analytics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), body["total_builds"])
	assert.Equal(t, 50.0, body["success_rate"])
	assert.Len(t, body["weekly_builds"].([]any), 7)
	mcps := body["mcps"].([]any)
	require.Len(t, mcps, 1)
	assert.Equal(t, "alpha", mcps[0].(map[string]any)["name"])
}
