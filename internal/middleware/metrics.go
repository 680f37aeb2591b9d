package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackd_http_requests_total",
			Help: "Total HTTP requests by method, endpoint and status.",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trackd_http_request_duration_seconds",
			Help:    "HTTP request latency by method and endpoint.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
)

// metricsResponseWriter wraps http.ResponseWriter to capture the status code
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Metrics records Prometheus request metrics for every handler.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		endpoint := cleanPath(r.URL.Path)
		httpRequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(wrapped.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
	})
}

// cleanPath collapses dynamic path segments so metric cardinality stays
// bounded: build, project, and prd IDs become ":id".
func cleanPath(path string) string {
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if i == 0 || part == "" {
			continue
		}
		prev := parts[i-1]
		if prev == "builds" || prev == "projects" || prev == "prd" {
			if part != "current" && part != "history" && part != "latest" && part != "upload" {
				parts[i] = ":id"
			}
		}
	}
	return strings.Join(parts, "/")
}
