package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/gorilla/mux"

	"trackd.sh/internal/auth"
	"trackd.sh/internal/derrors"
	"trackd.sh/internal/middleware"
)

// AuthHandlers serves the dashboard login flow: Google OAuth redirect,
// callback code exchange, and session introspection.
type AuthHandlers struct {
	oauth        *auth.GoogleOAuth
	jwtManager   *auth.JWTManager
	dashboardURL string
	logger       *slog.Logger
}

// NewAuthHandlers creates auth handlers.
func NewAuthHandlers(oauth *auth.GoogleOAuth, jwtManager *auth.JWTManager, dashboardURL string) *AuthHandlers {
	return &AuthHandlers{
		oauth:        oauth,
		jwtManager:   jwtManager,
		dashboardURL: dashboardURL,
		logger:       slog.Default().With("component", "auth-handlers"),
	}
}

// RegisterRoutes registers the auth routes (outside the /api prefix).
func (h *AuthHandlers) RegisterRoutes(r *mux.Router, am *middleware.AuthMiddleware) {
	r.HandleFunc("/auth/login", h.handleLogin).Methods("GET")
	r.HandleFunc("/auth/callback", h.handleCallback).Methods("GET")
	r.Handle("/auth/me", am.Require(http.HandlerFunc(h.handleMe))).Methods("GET")
	r.HandleFunc("/auth/logout", h.handleLogout).Methods("POST")
}

func (h *AuthHandlers) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !h.oauth.Configured() {
		writeError(w, derrors.New(derrors.KindUnavailable, "OAuth not configured"))
		return
	}
	http.Redirect(w, r, h.oauth.ConsentURL(), http.StatusTemporaryRedirect)
}

func (h *AuthHandlers) handleCallback(w http.ResponseWriter, r *http.Request) {
	if !h.oauth.Configured() {
		writeError(w, derrors.New(derrors.KindUnavailable, "OAuth not configured"))
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, derrors.New(derrors.KindInvalid, "missing authorization code"))
		return
	}

	user, err := h.oauth.Exchange(r.Context(), code)
	if err != nil {
		writeError(w, err)
		return
	}

	token, _, err := h.jwtManager.GenerateToken(user.Email, user.Name, user.Picture)
	if err != nil {
		writeError(w, derrors.Wrap(err, derrors.KindInternal, "failed to issue session token"))
		return
	}

	h.logger.Info("user logged in", "email", user.Email)
	redirect := fmt.Sprintf("%s?token=%s", h.dashboardURL, url.QueryEscape(token))
	http.Redirect(w, r, redirect, http.StatusTemporaryRedirect)
}

func (h *AuthHandlers) handleMe(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, derrors.New(derrors.KindInternal, "claims missing after auth"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"email":    claims.Subject,
		"name":     claims.Name,
		"picture":  claims.Picture,
		"is_admin": false,
	})
}

func (h *AuthHandlers) handleLogout(w http.ResponseWriter, r *http.Request) {
	// Sessions are stateless; the client discards its token
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}
