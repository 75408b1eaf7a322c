// Package tmdb is the metadata catalogue client: movie details, search, listings and
// recommendations from The Movie Database API.
package tmdb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/hrygo/cinesense/internal/metrics"
	"github.com/hrygo/cinesense/plugin/ai/timeout"
)

const upstreamName = "tmdb"

// maxErrorBodySize limits how much of an error response is kept for diagnostics.
const maxErrorBodySize = 4 * 1024

// maxRetryAfter caps a server-requested wait.
const maxRetryAfter = 10 * time.Second

// ErrNotFound is returned when the catalogue has no record for the request.
var ErrNotFound = errors.New("tmdb: not found")

// StatusError is a non-success HTTP status from the catalogue.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("tmdb: unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("tmdb: unexpected status %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether the status is worth retrying.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Config configures the catalogue client.
type Config struct {
	BaseURL           string
	APIKey            string // v3 api_key query parameter
	ReadToken         string // v4 bearer read access token, preferred when set
	Language          string
	RequestsPerSecond float64
	CallTimeout       time.Duration // per attempt
	MaxAttempts       int
	RetryBaseDelay    time.Duration
	HTTPClient        *http.Client
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:           "https://api.themoviedb.org/3",
		Language:          "en-US",
		RequestsPerSecond: 35,
		CallTimeout:       timeout.MetadataTimeout,
		MaxAttempts:       3,
		RetryBaseDelay:    500 * time.Millisecond,
	}
}

// IsConfigured reports whether any credential is present.
func (c Config) IsConfigured() bool {
	return c.APIKey != "" || c.ReadToken != ""
}

// Client performs raw catalogue requests with rate limiting, bounded retry and a circuit breaker.
//
// Retry policy per request:
//   - network errors, timeouts and 5xx: exponential backoff from RetryBaseDelay
//   - 429: wait for Retry-After when present, else the same backoff
//   - 404: ErrNotFound, never retried
//   - other 4xx: StatusError, never retried
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	cb      *gobreaker.CircuitBreaker[[]byte]
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewClient creates a new catalogue client.
func NewClient(cfg Config) *Client {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = def.CallTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = def.RetryBaseDelay
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	limit, burst := rate.Inf, 1
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
		burst = max(1, int(cfg.RequestsPerSecond))
	}

	return &Client{
		cfg:     cfg,
		http:    httpClient,
		limiter: rate.NewLimiter(limit, burst),
		cb:      newCircuitBreaker(upstreamName),
		sleep:   sleepContext,
	}
}

func newCircuitBreaker(name string) *gobreaker.CircuitBreaker[[]byte] {
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	return gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		// Opens when failure rate >= 60% with minimum 10 requests.
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			if ratio >= 0.6 {
				slog.Warn("circuit breaker opening", "name", name, "failures", counts.TotalFailures, "failure_ratio", ratio)
				return true
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Info("circuit breaker state transition", "name", name, "from", from.String(), "to", to.String())
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
		// Misses and caller cancellations say nothing about upstream health.
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled) {
				return true
			}
			var se *StatusError
			if errors.As(err, &se) && !se.Temporary() {
				return true
			}
			return false
		},
	})
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// Get fetches path with params and decodes the JSON body into out.
func (c *Client) Get(ctx context.Context, path string, params url.Values, out any) error {
	body, err := c.cb.Execute(func() ([]byte, error) {
		return c.fetch(ctx, path, params)
	})
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(upstreamName, outcomeOf(err)).Inc()
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(upstreamName, "malformed").Inc()
		return fmt.Errorf("tmdb: decode %s: %w", path, err)
	}
	metrics.UpstreamRequestsTotal.WithLabelValues(upstreamName, "success").Inc()
	return nil
}

func outcomeOf(err error) string {
	var se *StatusError
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "rejected"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &se) && se.StatusCode == http.StatusTooManyRequests:
		return "rate_limited"
	default:
		return "failure"
	}
}

func (c *Client) fetch(ctx context.Context, path string, params url.Values) ([]byte, error) {
	reqURL := c.buildURL(path, params)

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		body, header, err := c.doOnce(ctx, reqURL)
		if err == nil {
			return body, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		delay := c.cfg.RetryBaseDelay * time.Duration(1<<uint(attempt-1))
		reason := "network"

		var se *StatusError
		switch {
		case errors.Is(err, ErrNotFound):
			return nil, err
		case errors.As(err, &se) && !se.Temporary():
			return nil, err
		case errors.As(err, &se) && se.StatusCode == http.StatusTooManyRequests:
			reason = "rate_limited"
			if wait, ok := parseRetryAfter(header.Get("Retry-After"), time.Now()); ok {
				delay = wait
			}
		case errors.As(err, &se):
			reason = "server_error"
		}
		lastErr = err

		if attempt == c.cfg.MaxAttempts {
			break
		}

		metrics.UpstreamRetriesTotal.WithLabelValues(upstreamName, reason).Inc()
		slog.Debug("retrying tmdb request", "path", path, "attempt", attempt, "delay", delay, "error", err)
		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("tmdb: %s failed after %d attempts: %w", path, c.cfg.MaxAttempts, lastErr)
}

// doOnce performs a single attempt bounded by the per-call timeout.
func (c *Client) doOnce(ctx context.Context, reqURL string) ([]byte, http.Header, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, nil, fmt.Errorf("tmdb: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.ReadToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.ReadToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, nil, fmt.Errorf("tmdb: request timed out: %w", err)
		}
		return nil, nil, fmt.Errorf("tmdb: request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, nil, fmt.Errorf("tmdb: read body: %w", err)
		}
		return body, resp.Header, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, resp.Header, ErrNotFound
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return nil, resp.Header, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
}

func (c *Client) buildURL(path string, params url.Values) string {
	q := url.Values{}
	for k, vs := range params {
		q[k] = append([]string(nil), vs...)
	}
	if c.cfg.ReadToken == "" && c.cfg.APIKey != "" {
		q.Set("api_key", c.cfg.APIKey)
	}
	if c.cfg.Language != "" && q.Get("language") == "" {
		q.Set("language", c.cfg.Language)
	}
	return c.cfg.BaseURL + "/" + strings.TrimLeft(path, "/") + "?" + q.Encode()
}

// parseRetryAfter accepts delta-seconds or an HTTP date (RFC 9110).
func parseRetryAfter(v string, now time.Time) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	var d time.Duration
	if secs, err := strconv.Atoi(v); err == nil {
		d = time.Duration(secs) * time.Second
	} else if at, err := http.ParseTime(v); err == nil {
		d = at.Sub(now)
	} else {
		return 0, false
	}
	if d < 0 {
		d = 0
	}
	return min(d, maxRetryAfter), true
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
