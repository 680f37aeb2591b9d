package api

import (
	"database/sql"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"

	"trackd.sh/internal/version"
	"trackd.sh/internal/workflow"
)

// HealthHandlers reports per-dependency health. The endpoint always answers
// 200; a degraded dependency is reported in the body so the dashboard can
// show partial outages instead of a blank page.
type HealthHandlers struct {
	db           *sql.DB
	gateway      *workflow.Gateway
	buildLogsDir string
}

// NewHealthHandlers creates health handlers.
func NewHealthHandlers(db *sql.DB, gateway *workflow.Gateway, buildLogsDir string) *HealthHandlers {
	return &HealthHandlers{db: db, gateway: gateway, buildLogsDir: buildLogsDir}
}

// RegisterRoutes registers the health route.
func (h *HealthHandlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", h.handleHealth).Methods("GET")
}

func (h *HealthHandlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	dbStatus := "connected"
	if err := h.db.PingContext(r.Context()); err != nil {
		dbStatus = "disconnected"
		status = "degraded"
	} else if _, err := h.db.ExecContext(r.Context(), "SELECT 1"); err != nil {
		dbStatus = "disconnected"
		status = "degraded"
	}

	workflowStatus := "reachable"
	if !h.gateway.HealthCheck(r.Context()) {
		workflowStatus = "unreachable"
		status = "degraded"
	}

	logsStatus := "accessible"
	if info, err := os.Stat(h.buildLogsDir); err != nil || !info.IsDir() {
		logsStatus = "inaccessible"
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     status,
		"database":   dbStatus,
		"workflow":   workflowStatus,
		"build_logs": logsStatus,
		"timestamp":  time.Now().UTC(),
		"version":    version.Version,
	})
}
