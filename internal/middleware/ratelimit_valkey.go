package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// ValkeyRateLimiter implements fixed-window rate limiting backed by Valkey,
// for deployments running more than one trackd instance.
type ValkeyRateLimiter struct {
	client        *redis.Client
	requestLimit  int
	windowSeconds int
}

// NewValkeyRateLimiter connects to Valkey and returns a limiter. Connection
// failure is returned so the caller can fall back to in-memory limiting.
func NewValkeyRateLimiter(addr string, requestLimit, windowSeconds int) (*ValkeyRateLimiter, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Valkey: %w", err)
	}

	return &ValkeyRateLimiter{
		client:        client,
		requestLimit:  requestLimit,
		windowSeconds: windowSeconds,
	}, nil
}

// Middleware rejects requests exceeding the per-client window with 429 and
// sets the usual X-RateLimit headers.
func (v *ValkeyRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, remaining := v.checkRateLimit(r.Context(), clientIP(r))

		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", v.requestLimit))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))

		if !allowed {
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Close releases the Valkey connection.
func (v *ValkeyRateLimiter) Close() error {
	return v.client.Close()
}

// checkRateLimit counts the request against a fixed window. Valkey being
// unreachable fails open: one instance losing its limiter should not take
// the API down.
func (v *ValkeyRateLimiter) checkRateLimit(ctx context.Context, clientID string) (bool, int) {
	key := fmt.Sprintf("ratelimit:%s", clientID)

	count, err := v.client.Incr(ctx, key).Result()
	if err != nil {
		return true, v.requestLimit
	}
	if count == 1 {
		v.client.Expire(ctx, key, time.Duration(v.windowSeconds)*time.Second)
	}

	remaining := v.requestLimit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return count <= int64(v.requestLimit), remaining
}
