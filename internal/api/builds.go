package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"trackd.sh/internal/derrors"
	"trackd.sh/internal/lifecycle"
	"trackd.sh/internal/store"
)

// BuildHandlers serves the build CRUD and ingestion endpoints.
type BuildHandlers struct {
	engine *lifecycle.Engine
}

// NewBuildHandlers creates build handlers around the lifecycle engine.
func NewBuildHandlers(engine *lifecycle.Engine) *BuildHandlers {
	return &BuildHandlers{engine: engine}
}

// RegisterRoutes registers the build routes.
func (h *BuildHandlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/builds", h.handleCreateBuild).Methods("POST")
	r.HandleFunc("/builds/current", h.handleCurrentBuilds).Methods("GET")
	r.HandleFunc("/builds/history", h.handleBuildHistory).Methods("GET")
	r.HandleFunc("/builds/{id}", h.handleGetBuild).Methods("GET")
	r.HandleFunc("/builds/{id}/logs", h.handleGetLogs).Methods("GET")
	r.HandleFunc("/builds/{id}/logs", h.handleIngestLog).Methods("POST")
}

type createBuildRequest struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Status    string  `json:"status"`
	Phase     string  `json:"phase"`
	PRDID     *string `json:"prd_id"`
	ProjectID *string `json:"project_id"`
}

func (h *BuildHandlers) handleCreateBuild(w http.ResponseWriter, r *http.Request) {
	var req createBuildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, derrors.New(derrors.KindInvalid, "invalid request body"))
		return
	}

	build := &store.Build{
		ID:        req.ID,
		Name:      req.Name,
		Status:    req.Status,
		Phase:     req.Phase,
		PRDID:     req.PRDID,
		ProjectID: req.ProjectID,
	}
	if err := h.engine.CreateBuild(r.Context(), build); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"status":   "created",
		"build_id": build.ID,
	})
}

func (h *BuildHandlers) handleCurrentBuilds(w http.ResponseWriter, r *http.Request) {
	builds, err := h.engine.ListRunning(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"running": builds,
		"count":   len(builds),
	})
}

func (h *BuildHandlers) handleBuildHistory(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page", 1)
	if err != nil {
		writeError(w, err)
		return
	}
	pageSize, err := queryInt(r, "page_size", 20)
	if err != nil {
		writeError(w, err)
		return
	}
	status := r.URL.Query().Get("status")

	history, err := h.engine.ListHistory(r.Context(), page, pageSize, status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (h *BuildHandlers) handleGetBuild(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	build, err := h.engine.GetBuild(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, build)
}

func (h *BuildHandlers) handleGetLogs(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	limit, err := queryInt(r, "limit", 100)
	if err != nil {
		writeError(w, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, err)
		return
	}

	page, err := h.engine.GetLogs(r.Context(), id, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"build_id":   page.Build.ID,
		"name":       page.Build.Name,
		"status":     page.Build.Status,
		"started_at": page.Build.StartedAt,
		"stopped_at": page.Build.StoppedAt,
		"duration":   page.Build.Duration,
		"logs":       page.Logs,
		"total":      page.Total,
	})
}

func (h *BuildHandlers) handleIngestLog(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var ev lifecycle.LogEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, derrors.New(derrors.KindInvalid, "invalid request body"))
		return
	}

	if _, err := h.engine.IngestLogEvent(r.Context(), id, ev); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"status":   "logged",
		"build_id": id,
	})
}

// queryInt parses an integer query parameter, rejecting garbage before any
// store access happens.
func queryInt(r *http.Request, name string, defaultValue int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, derrors.Newf(derrors.KindInvalid, "%s must be an integer", name)
	}
	return v, nil
}
