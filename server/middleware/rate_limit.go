package middleware

import (
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/hrygo/cinesense/internal/metrics"
)

// Default per-key limits: 10 requests per second, with burst of 20.
const (
	DefaultRequestsPerSecond = 10
	DefaultBurst             = 20
)

// RateLimiter keeps one token bucket per key.
type RateLimiter struct {
	mu     sync.Mutex
	limits map[string]*rate.Limiter
	rps    rate.Limit
	burst  int
}

// NewRateLimiter creates a new rate limiter. Non-positive values fall back to the defaults.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if rps <= 0 {
		rps = DefaultRequestsPerSecond
	}
	if burst <= 0 {
		burst = DefaultBurst
	}
	return &RateLimiter{
		limits: make(map[string]*rate.Limiter),
		rps:    rate.Limit(rps),
		burst:  burst,
	}
}

// getLimiter gets or creates a limiter for the given key.
func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if limiter, ok := rl.limits[key]; ok {
		return limiter
	}
	limiter := rate.NewLimiter(rl.rps, rl.burst)
	rl.limits[key] = limiter
	return limiter
}

// Allow checks if a request is allowed for the given key.
func (rl *RateLimiter) Allow(key string) bool {
	return rl.getLimiter(key).Allow()
}

// KeyFunc extracts the rate limit key from a request. An empty key skips limiting.
type KeyFunc func(c echo.Context) string

// RateLimit rejects requests over the per-key budget with 429.
func RateLimit(rl *RateLimiter, keyFunc KeyFunc) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := keyFunc(c)
			if key == "" || rl.Allow(key) {
				return next(c)
			}
			metrics.APIRateLimitHits.WithLabelValues(c.Path()).Inc()
			return c.JSON(http.StatusTooManyRequests, map[string]string{
				"code":    "RATE_LIMITED",
				"message": "rate limit exceeded",
			})
		}
	}
}
