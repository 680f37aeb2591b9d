package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"trackd.sh/internal/auth"
)

const (
	// ClaimsContextKey is the context key for verified JWT claims
	ClaimsContextKey contextKey = "claims"
)

// AuthMiddleware verifies bearer session tokens.
type AuthMiddleware struct {
	jwtManager *auth.JWTManager
	logger     *slog.Logger
}

// NewAuthMiddleware creates an auth middleware around a JWT manager.
func NewAuthMiddleware(jwtManager *auth.JWTManager) *AuthMiddleware {
	return &AuthMiddleware{
		jwtManager: jwtManager,
		logger:     slog.Default().With("component", "auth-middleware"),
	}
}

// Optional attaches claims to the context when a valid bearer token is
// present, and passes the request through either way.
func (am *AuthMiddleware) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if claims := am.claimsFromRequest(r); claims != nil {
			r = r.WithContext(context.WithValue(r.Context(), ClaimsContextKey, claims))
		}
		next.ServeHTTP(w, r)
	})
}

// Require rejects requests without a valid bearer token.
func (am *AuthMiddleware) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := am.claimsFromRequest(r)
		if claims == nil {
			w.Header().Set("WWW-Authenticate", "Bearer")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]string{
					"kind":   "unauthorized",
					"detail": "missing or invalid bearer token",
				},
			})
			return
		}
		ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (am *AuthMiddleware) claimsFromRequest(r *http.Request) *auth.Claims {
	header := r.Header.Get("Authorization")
	if header == "" || !strings.HasPrefix(header, "Bearer ") {
		return nil
	}
	token := strings.TrimPrefix(header, "Bearer ")

	claims, err := am.jwtManager.VerifyToken(token)
	if err != nil {
		am.logger.Debug("token verification failed", "error", err)
		return nil
	}
	return claims
}

// ClaimsFromContext extracts verified claims from the request context.
func ClaimsFromContext(ctx context.Context) *auth.Claims {
	if claims, ok := ctx.Value(ClaimsContextKey).(*auth.Claims); ok {
		return claims
	}
	return nil
}
