package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every knob the trackd server needs. It is constructed once at
// startup and passed by reference; there is no process-wide singleton.
type Config struct {
	// HTTP
	Port        int
	CORSOrigins []string

	// Database
	DatabasePath string

	// Auth
	JWTSecret          string
	JWTExpiry          time.Duration
	GoogleClientID     string
	GoogleClientSecret string
	OAuthRedirectURL   string
	DashboardURL       string

	// Workflow engine webhooks
	WebhookBaseURL string

	// Filesystem layout shared with the automation host
	PRDDir       string
	ProjectsDir  string
	BuildLogsDir string

	// Rate limiting
	ValkeyAddr      string
	RateLimitReq    int
	RateLimitWindow int
}

// Load builds a Config from environment variables, then overlays values from
// an optional config.toml in the working directory.
func Load() *Config {
	cfg := &Config{
		Port:               GetIntFromEnv("TRACKD_PORT", 8000),
		CORSOrigins:        GetStringSliceFromEnv("TRACKD_CORS_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
		DatabasePath:       GetStringFromEnv("TRACKD_DB", "./trackd.db"),
		JWTSecret:          GetStringFromEnv("TRACKD_JWT_SECRET", ""),
		JWTExpiry:          GetDurationFromEnv("TRACKD_JWT_EXPIRY", 24*time.Hour),
		GoogleClientID:     GetStringFromEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: GetStringFromEnv("GOOGLE_CLIENT_SECRET", ""),
		OAuthRedirectURL:   GetStringFromEnv("TRACKD_OAUTH_REDIRECT_URL", "http://localhost:8000/auth/callback"),
		DashboardURL:       GetStringFromEnv("TRACKD_DASHBOARD_URL", "http://localhost:3000"),
		WebhookBaseURL:     GetStringFromEnv("TRACKD_WEBHOOK_BASE_URL", ""),
		PRDDir:             GetStringFromEnv("TRACKD_PRD_DIR", "./prds"),
		ProjectsDir:        GetStringFromEnv("TRACKD_PROJECTS_DIR", "./projects"),
		BuildLogsDir:       GetStringFromEnv("TRACKD_BUILD_LOGS_DIR", "./build-logs"),
		ValkeyAddr:         GetStringFromEnv("TRACKD_VALKEY_ADDR", ""),
		RateLimitReq:       GetIntFromEnv("TRACKD_RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow:    GetIntFromEnv("TRACKD_RATE_LIMIT_WINDOW", 60),
	}

	cfg.applyFileOverrides()
	return cfg
}

// applyFileOverrides overlays settings from config.toml when one exists.
func (c *Config) applyFileOverrides() {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		return
	}
	slog.Info("loaded configuration overrides from config.toml")

	if v.IsSet("server.port") {
		c.Port = v.GetInt("server.port")
	}
	if v.IsSet("server.cors_origins") {
		c.CORSOrigins = v.GetStringSlice("server.cors_origins")
	}
	if v.IsSet("database.path") {
		c.DatabasePath = v.GetString("database.path")
	}
	if v.IsSet("auth.jwt_secret") {
		c.JWTSecret = v.GetString("auth.jwt_secret")
	}
	if v.IsSet("auth.jwt_expiry") {
		c.JWTExpiry = v.GetDuration("auth.jwt_expiry")
	}
	if v.IsSet("auth.dashboard_url") {
		c.DashboardURL = v.GetString("auth.dashboard_url")
	}
	if v.IsSet("workflow.webhook_base_url") {
		c.WebhookBaseURL = v.GetString("workflow.webhook_base_url")
	}
	if v.IsSet("paths.prd_dir") {
		c.PRDDir = v.GetString("paths.prd_dir")
	}
	if v.IsSet("paths.projects_dir") {
		c.ProjectsDir = v.GetString("paths.projects_dir")
	}
	if v.IsSet("paths.build_logs_dir") {
		c.BuildLogsDir = v.GetString("paths.build_logs_dir")
	}
}

// GetStringFromEnv retrieves a string value from the environment variables.
// If the key does not exist, it returns the default value.
func GetStringFromEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// GetIntFromEnv retrieves an integer value from the environment variables.
// If the key does not exist or cannot be converted to an int, it returns the default value.
func GetIntFromEnv(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		intValue, err := strconv.Atoi(value)
		if err != nil {
			slog.With("key", key).With("value", value).With("error", err).Error("error converting to int, using default value")
			return defaultValue
		}
		return intValue
	}
	return defaultValue
}

// GetDurationFromEnv retrieves a time duration from the environment variables.
// The value should be in a format accepted by time.ParseDuration, like "300ms", "1.5h", or "2h45m".
func GetDurationFromEnv(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		durationValue, err := time.ParseDuration(value)
		if err != nil {
			slog.With("key", key).With("value", value).With("error", err).Error("error parsing to duration, using default value")
			return defaultValue
		}
		return durationValue
	}
	return defaultValue
}

// GetStringSliceFromEnv retrieves a comma-separated list from the environment.
func GetStringSliceFromEnv(key string, defaultValue []string) []string {
	if value, exists := os.LookupEnv(key); exists {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
