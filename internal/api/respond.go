package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"trackd.sh/internal/derrors"
)

// writeJSON serializes v with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Error("failed to encode response", "error", err)
	}
}

// writeError maps a kind-tagged error onto an HTTP status and a structured
// error body. The dashboard relies on the kind to distinguish "missing"
// from "already exists" from "degraded dependency".
func writeError(w http.ResponseWriter, err error) {
	kind := derrors.KindOf(err)

	status := http.StatusInternalServerError
	switch kind {
	case derrors.KindNotFound:
		status = http.StatusNotFound
	case derrors.KindConflict:
		status = http.StatusConflict
	case derrors.KindInvalid:
		status = http.StatusBadRequest
	case derrors.KindUnavailable:
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		slog.Default().Error("request failed", "error", err)
	}

	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"kind":   string(kind),
			"detail": derrors.DetailOf(err),
		},
	})
}
