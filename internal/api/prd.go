package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"trackd.sh/internal/derrors"
	"trackd.sh/internal/middleware"
	"trackd.sh/internal/store"
	"trackd.sh/internal/workflow"
)

// PRDHandlers serves requirements-document endpoints, including the upload
// path that kicks off a build via the workflow gateway.
type PRDHandlers struct {
	db      *sql.DB
	prds    *store.PRDStore
	gateway *workflow.Gateway
	prdDir  string
	logger  *slog.Logger
	now     func() time.Time
}

// NewPRDHandlers creates PRD handlers.
func NewPRDHandlers(db *sql.DB, gateway *workflow.Gateway, prdDir string) *PRDHandlers {
	return &PRDHandlers{
		db:      db,
		prds:    store.NewPRDStore(),
		gateway: gateway,
		prdDir:  prdDir,
		logger:  slog.Default().With("component", "prd-handlers"),
		now:     time.Now,
	}
}

// RegisterRoutes registers the PRD routes. Upload requires authentication.
func (h *PRDHandlers) RegisterRoutes(r *mux.Router, am *middleware.AuthMiddleware) {
	r.HandleFunc("/prd/latest", h.handleLatestPRD).Methods("GET")
	r.HandleFunc("/prd/{id}", h.handleGetPRD).Methods("GET")
	r.Handle("/prd/upload", am.Require(http.HandlerFunc(h.handleUploadPRD))).Methods("POST")
}

func (h *PRDHandlers) handleLatestPRD(w http.ResponseWriter, r *http.Request) {
	prd, err := h.prds.Latest(r.Context(), h.db)
	if err == nil {
		writeJSON(w, http.StatusOK, prd)
		return
	}
	if !errors.Is(err, store.ErrNoRows) {
		writeError(w, derrors.Wrap(err, derrors.KindInternal, "failed to load latest prd"))
		return
	}

	if prd := h.latestFromDir(); prd != nil {
		writeJSON(w, http.StatusOK, prd)
		return
	}
	writeError(w, derrors.New(derrors.KindNotFound, "no PRDs found"))
}

func (h *PRDHandlers) handleGetPRD(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	prd, err := h.prds.Get(r.Context(), h.db, id)
	if err == nil {
		writeJSON(w, http.StatusOK, prd)
		return
	}
	if !errors.Is(err, store.ErrNoRows) {
		writeError(w, derrors.Wrap(err, derrors.KindInternal, "failed to load prd"))
		return
	}

	if prd := h.fromFile(id + ".yaml"); prd != nil {
		prd.ID = id
		writeJSON(w, http.StatusOK, prd)
		return
	}
	writeError(w, derrors.Newf(derrors.KindNotFound, "PRD %s not found", id))
}

type uploadPRDRequest struct {
	Filename    string `json:"filename"`
	Content     string `json:"content"`
	ProjectName string `json:"project_name"`
}

// handleUploadPRD saves the document and asks the workflow engine to start
// a build. The upload succeeds even when the trigger fails; the response
// tells the dashboard whether a build was actually started.
func (h *PRDHandlers) handleUploadPRD(w http.ResponseWriter, r *http.Request) {
	var req uploadPRDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, derrors.New(derrors.KindInvalid, "invalid request body"))
		return
	}
	if req.Filename == "" || req.Content == "" {
		writeError(w, derrors.New(derrors.KindInvalid, "filename and content are required"))
		return
	}

	now := h.now().UTC()
	prdID := strings.TrimSuffix(req.Filename, ".yaml") + "-" + now.Format("20060102150405")

	prd := &store.PRD{
		ID:         prdID,
		Filename:   req.Filename,
		Content:    req.Content,
		UploadedAt: now,
	}
	if claims := middleware.ClaimsFromContext(r.Context()); claims != nil {
		email := claims.Subject
		prd.UploadedBy = &email
	}

	if err := h.prds.Insert(r.Context(), h.db, prd); err != nil {
		writeError(w, derrors.Wrap(err, derrors.KindInternal, "failed to save prd"))
		return
	}

	// Mirror to the shared directory so the automation host sees the file
	if err := os.MkdirAll(h.prdDir, 0o755); err == nil {
		if err := os.WriteFile(filepath.Join(h.prdDir, req.Filename), []byte(req.Content), 0o644); err != nil {
			h.logger.Warn("failed to mirror prd to disk", "filename", req.Filename, "error", err)
		}
	}

	buildTriggered := false
	var buildID *string
	result, err := h.gateway.TriggerBuild(r.Context(), req.Filename)
	if err != nil {
		// The PRD is saved either way; the trigger is best-effort
		h.logger.Warn("failed to trigger build", "filename", req.Filename, "error", err)
	} else {
		buildTriggered = true
		if result.BuildID != "" {
			buildID = &result.BuildID
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":              prdID,
		"filename":        req.Filename,
		"uploaded_at":     prd.UploadedAt,
		"build_triggered": buildTriggered,
		"build_id":        buildID,
	})
}

// latestFromDir returns the most recently modified PRD file on disk.
func (h *PRDHandlers) latestFromDir() *store.PRD {
	matches, err := filepath.Glob(filepath.Join(h.prdDir, "*.yaml"))
	if err != nil || len(matches) == 0 {
		return nil
	}

	sort.Slice(matches, func(i, j int) bool {
		fi, erri := os.Stat(matches[i])
		fj, errj := os.Stat(matches[j])
		if erri != nil || errj != nil {
			return matches[i] > matches[j]
		}
		return fi.ModTime().After(fj.ModTime())
	})

	prd := h.fromFile(filepath.Base(matches[0]))
	if prd != nil {
		prd.ID = strings.TrimSuffix(filepath.Base(matches[0]), ".yaml")
	}
	return prd
}

// fromFile reads one PRD file from the shared directory.
func (h *PRDHandlers) fromFile(filename string) *store.PRD {
	path := filepath.Join(h.prdDir, filename)
	content, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil
	}

	return &store.PRD{
		Filename:   filename,
		Content:    string(content),
		UploadedAt: info.ModTime(),
	}
}
