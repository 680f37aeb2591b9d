package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trackd.sh/internal/database"
	"trackd.sh/internal/lifecycle"
)

func setupBuildRouter(t *testing.T) *mux.Router {
	t.Helper()
	db, err := database.Open(database.DefaultConfig(":memory:"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	r := mux.NewRouter()
	NewBuildHandlers(lifecycle.New(db)).RegisterRoutes(r)
	return r
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

func TestCreateBuildEndpoint(t *testing.T) {
	r := setupBuildRouter(t)

	rec, body := doJSON(t, r, http.MethodPost, "/builds", map[string]string{"id": "api-test-1"})
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "created", body["status"])
	assert.Equal(t, "api-test-1", body["build_id"])

	rec, body = doJSON(t, r, http.MethodPost, "/builds", map[string]string{"id": "api-test-1"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "conflict", errObj["kind"])
}

func TestCreateBuildBadBody(t *testing.T) {
	r := setupBuildRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/builds", strings.NewReader("{nope"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngestLogEndpoint(t *testing.T) {
	r := setupBuildRouter(t)

	rec, body := doJSON(t, r, http.MethodPost, "/builds/ing-1/logs", map[string]any{
		"event":   "phase_start",
		"phase":   "analysis",
		"message": "working",
	})
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "logged", body["status"])

	rec, build := doJSON(t, r, http.MethodGet, "/builds/ing-1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ing", build["name"])
	assert.Equal(t, "running", build["status"])
	assert.Equal(t, "analysis", build["phase"])
	assert.Equal(t, float64(1), build["log_count"])
}

func TestIngestTerminalEventEndpoint(t *testing.T) {
	r := setupBuildRouter(t)

	rec, _ := doJSON(t, r, http.MethodPost, "/builds/term-1/logs", map[string]any{"event": "build_start", "phase": "codeGen"})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec, _ = doJSON(t, r, http.MethodPost, "/builds/term-1/logs", map[string]any{"event": "build_complete"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, build := doJSON(t, r, http.MethodGet, "/builds/term-1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", build["status"])
	assert.Equal(t, "complete", build["phase"])
	assert.NotNil(t, build["stopped_at"])
}

func TestIngestMissingEvent(t *testing.T) {
	r := setupBuildRouter(t)

	rec, body := doJSON(t, r, http.MethodPost, "/builds/x-1/logs", map[string]any{"message": "no event"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "invalid", errObj["kind"])
}

func TestCurrentBuildsEndpoint(t *testing.T) {
	r := setupBuildRouter(t)

	rec, body := doJSON(t, r, http.MethodGet, "/builds/current", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), body["count"])

	doJSON(t, r, http.MethodPost, "/builds/run-1/logs", map[string]any{"event": "build_start"})
	doJSON(t, r, http.MethodPost, "/builds/run-2/logs", map[string]any{"event": "build_start"})
	doJSON(t, r, http.MethodPost, "/builds/run-2/logs", map[string]any{"event": "build_error"})

	rec, body = doJSON(t, r, http.MethodGet, "/builds/current", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["count"])
	running := body["running"].([]any)
	require.Len(t, running, 1)
	assert.Equal(t, "run-1", running[0].(map[string]any)["id"])
}

func TestBuildHistoryEndpoint(t *testing.T) {
	r := setupBuildRouter(t)

	for _, id := range []string{"h-1", "h-2", "h-3"} {
		doJSON(t, r, http.MethodPost, "/builds/"+id+"/logs", map[string]any{"event": "build_start"})
	}

	rec, body := doJSON(t, r, http.MethodGet, "/builds/history?page=2&page_size=2", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(3), body["total"])
	assert.Equal(t, float64(2), body["page"])
	assert.Len(t, body["builds"].([]any), 1)
}

func TestBuildHistoryValidation(t *testing.T) {
	r := setupBuildRouter(t)

	rec, _ := doJSON(t, r, http.MethodGet, "/builds/history?page=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = doJSON(t, r, http.MethodGet, "/builds/history?page=0", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = doJSON(t, r, http.MethodGet, "/builds/history?page_size=500", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = doJSON(t, r, http.MethodGet, "/builds/history?status=weird", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetBuildNotFoundEndpoint(t *testing.T) {
	r := setupBuildRouter(t)

	rec, body := doJSON(t, r, http.MethodGet, "/builds/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "not_found", errObj["kind"])
}

func TestGetLogsEndpoint(t *testing.T) {
	r := setupBuildRouter(t)

	for i := 0; i < 3; i++ {
		doJSON(t, r, http.MethodPost, "/builds/lg-1/logs", map[string]any{"event": "tick", "message": "m"})
	}

	rec, body := doJSON(t, r, http.MethodGet, "/builds/lg-1/logs?limit=2", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "lg-1", body["build_id"])
	assert.Equal(t, float64(3), body["total"])
	assert.Len(t, body["logs"].([]any), 2)

	rec, _ = doJSON(t, r, http.MethodGet, "/builds/lg-1/logs?limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = doJSON(t, r, http.MethodGet, "/builds/ghost/logs", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
