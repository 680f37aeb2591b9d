package api

import (
	"database/sql"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sort"

	"github.com/gorilla/mux"

	"trackd.sh/internal/derrors"
	"trackd.sh/internal/store"
)

// ProjectHandlers serves the project read endpoints. The store is
// authoritative; a filesystem scan of the generation output directory is
// kept as a fallback for hosts that predate the database.
type ProjectHandlers struct {
	db          *sql.DB
	projects    *store.ProjectStore
	projectsDir string
}

// NewProjectHandlers creates project handlers.
func NewProjectHandlers(db *sql.DB, projectsDir string) *ProjectHandlers {
	return &ProjectHandlers{
		db:          db,
		projects:    store.NewProjectStore(),
		projectsDir: projectsDir,
	}
}

// RegisterRoutes registers the project routes.
func (h *ProjectHandlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/projects", h.handleListProjects).Methods("GET")
	r.HandleFunc("/projects/{id}", h.handleGetProject).Methods("GET")
}

func (h *ProjectHandlers) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.projects.List(r.Context(), h.db)
	if err != nil {
		writeError(w, derrors.Wrap(err, derrors.KindInternal, "failed to list projects"))
		return
	}

	if len(projects) == 0 {
		projects = h.scanProjectsDir()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"projects": projects,
		"total":    len(projects),
	})
}

func (h *ProjectHandlers) handleGetProject(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	project, err := h.projects.Get(r.Context(), h.db, id)
	if err != nil {
		if !errors.Is(err, store.ErrNoRows) {
			writeError(w, derrors.Wrap(err, derrors.KindInternal, "failed to load project"))
			return
		}
		project = h.projectFromDir(id)
		if project == nil {
			writeError(w, derrors.Newf(derrors.KindNotFound, "project %s not found", id))
			return
		}
	}

	writeJSON(w, http.StatusOK, project)
}

// scanProjectsDir lists project directories on disk, sorted by name.
func (h *ProjectHandlers) scanProjectsDir() []*store.Project {
	projects := []*store.Project{}

	entries, err := os.ReadDir(h.projectsDir)
	if err != nil {
		return projects
	}

	for _, entry := range entries {
		if !entry.IsDir() || entry.Name()[0] == '.' {
			continue
		}
		if p := h.projectFromDir(entry.Name()); p != nil {
			projects = append(projects, p)
		}
	}

	sort.Slice(projects, func(i, j int) bool { return projects[i].Name < projects[j].Name })
	return projects
}

// projectFromDir builds a project record from a directory on disk, sniffing
// the SDK from the build files present.
func (h *ProjectHandlers) projectFromDir(id string) *store.Project {
	path := filepath.Join(h.projectsDir, id)
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return nil
	}

	var sdk *string
	if fileExists(filepath.Join(path, "package.json")) {
		v := "typescript"
		sdk = &v
	} else if fileExists(filepath.Join(path, "pyproject.toml")) || fileExists(filepath.Join(path, "setup.py")) {
		v := "python"
		sdk = &v
	} else if fileExists(filepath.Join(path, "go.mod")) {
		v := "go"
		sdk = &v
	}

	return &store.Project{
		ID:        id,
		Name:      id,
		Path:      path,
		SDK:       sdk,
		CreatedAt: info.ModTime(),
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
