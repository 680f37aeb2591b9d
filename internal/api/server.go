package api

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"trackd.sh/internal/analytics"
	"trackd.sh/internal/auth"
	"trackd.sh/internal/config"
	"trackd.sh/internal/database"
	"trackd.sh/internal/lifecycle"
	"trackd.sh/internal/middleware"
	"trackd.sh/internal/version"
	"trackd.sh/internal/workflow"
)

// Server is the trackd API server.
type Server struct {
	cfg        *config.Config
	db         *sql.DB
	httpServer *http.Server
	logger     *slog.Logger

	valkeyLimiter   *middleware.ValkeyRateLimiter
	inMemoryLimiter *middleware.RateLimiter
}

// New wires the whole service: database, lifecycle engine, aggregator,
// workflow gateway, auth, middleware chain, and routes.
func New(cfg *config.Config) (*Server, error) {
	db, err := database.Open(database.DefaultConfig(cfg.DatabasePath))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	engine := lifecycle.New(db)
	aggregator := analytics.New(db)
	gateway := workflow.NewGateway(cfg.WebhookBaseURL)
	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTExpiry)
	oauth := auth.NewGoogleOAuth(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.OAuthRedirectURL)
	authMW := middleware.NewAuthMiddleware(jwtManager)

	s := &Server{
		cfg:    cfg,
		db:     db,
		logger: slog.Default().With("component", "api-server"),
	}

	// Rate limiting: Valkey when configured, in-memory otherwise
	var limiterMW func(http.Handler) http.Handler
	if cfg.ValkeyAddr != "" {
		valkeyLimiter, err := middleware.NewValkeyRateLimiter(cfg.ValkeyAddr, cfg.RateLimitReq, cfg.RateLimitWindow)
		if err != nil {
			s.logger.Warn("failed to initialize Valkey rate limiter, falling back to in-memory", "error", err)
		} else {
			s.valkeyLimiter = valkeyLimiter
			limiterMW = valkeyLimiter.Middleware
			s.logger.Info("Valkey rate limiter initialized", "addr", cfg.ValkeyAddr)
		}
	}
	if limiterMW == nil {
		rl := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:       float64(cfg.RateLimitReq) / float64(cfg.RateLimitWindow),
			Burst:      cfg.RateLimitReq,
			Expiration: time.Hour,
		})
		s.inMemoryLimiter = rl
		limiterMW = rl.Middleware
	}

	router := mux.NewRouter()
	router.HandleFunc("/", s.handleRoot).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	apiRouter := router.PathPrefix("/api").Subrouter()
	apiRouter.HandleFunc("", s.handleAPIInfo).Methods("GET")

	NewHealthHandlers(db, gateway, cfg.BuildLogsDir).RegisterRoutes(apiRouter)
	NewBuildHandlers(engine).RegisterRoutes(apiRouter)
	NewAnalyticsHandlers(aggregator).RegisterRoutes(apiRouter)
	NewProjectHandlers(db, cfg.ProjectsDir).RegisterRoutes(apiRouter)
	NewPRDHandlers(db, gateway, cfg.PRDDir).RegisterRoutes(apiRouter, authMW)
	NewAuthHandlers(oauth, jwtManager, cfg.DashboardURL).RegisterRoutes(router, authMW)

	var handler http.Handler = router
	handler = authMW.Optional(handler)
	handler = limiterMW(handler)
	handler = middleware.Metrics(handler)
	handler = middleware.NewCORS(cfg.CORSOrigins).Handler(handler)
	handler = middleware.RequestID(handler)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s, nil
}

// Run starts the HTTP server and blocks until SIGINT/SIGTERM, then shuts
// down gracefully.
func (s *Server) Run() error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("trackd API listening", "addr", s.httpServer.Addr, "version", version.Version)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-sigCh:
		s.logger.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return s.Close()
}

// Close releases server resources.
func (s *Server) Close() error {
	if s.inMemoryLimiter != nil {
		s.inMemoryLimiter.Close()
	}
	if s.valkeyLimiter != nil {
		s.valkeyLimiter.Close()
	}
	return s.db.Close()
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"name":    "trackd",
		"version": version.Version,
		"health":  "/api/health",
	})
}

func (s *Server) handleAPIInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"version": version.Version,
		"endpoints": map[string]string{
			"builds":    "/api/builds",
			"analytics": "/api/analytics",
			"projects":  "/api/projects",
			"prd":       "/api/prd",
			"health":    "/api/health",
			"auth":      "/auth",
			"metrics":   "/metrics",
		},
	})
}
