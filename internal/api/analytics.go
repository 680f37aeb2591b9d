package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"trackd.sh/internal/analytics"
)

// AnalyticsHandlers serves the dashboard rollup endpoint.
type AnalyticsHandlers struct {
	aggregator *analytics.Aggregator
}

// NewAnalyticsHandlers creates analytics handlers.
func NewAnalyticsHandlers(aggregator *analytics.Aggregator) *AnalyticsHandlers {
	return &AnalyticsHandlers{aggregator: aggregator}
}

// RegisterRoutes registers the analytics routes.
func (h *AnalyticsHandlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/analytics", h.handleAnalytics).Methods("GET")
}

func (h *AnalyticsHandlers) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	rollup, err := h.aggregator.Rollup(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rollup)
}
