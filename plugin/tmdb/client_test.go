package tmdb

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient returns a client whose backoff waits are recorded instead of slept.
func newTestClient(t *testing.T, baseURL string, cfg Config) (*Client, *[]time.Duration) {
	t.Helper()
	cfg.BaseURL = baseURL
	cfg.RequestsPerSecond = 0
	c := NewClient(cfg)

	var mu sync.Mutex
	waits := &[]time.Duration{}
	c.sleep = func(_ context.Context, d time.Duration) error {
		mu.Lock()
		defer mu.Unlock()
		*waits = append(*waits, d)
		return nil
	}
	return c, waits
}

const matrixJSON = `{
	"id": 603,
	"title": "The Matrix",
	"overview": "A hacker learns the truth about reality.",
	"release_date": "1999-03-30",
	"runtime": 136,
	"original_language": "en",
	"genres": [{"id": 28, "name": "Action"}, {"id": 878, "name": "Science Fiction"}],
	"credits": {"crew": [
		{"id": 1, "name": "Bill Pope", "job": "Director of Photography"},
		{"id": 2, "name": "Lana Wachowski", "job": "Director"},
		{"id": 3, "name": "Lilly Wachowski", "job": "Director"}
	]}
}`

func TestClient_GetDecodesAndAuthenticates(t *testing.T) {
	var gotPath, gotAuth, gotAppend, gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotAppend = r.URL.Query().Get("append_to_response")
		gotKey = r.URL.Query().Get("api_key")
		_, _ = w.Write([]byte(matrixJSON))
	}))
	defer server.Close()

	c, _ := newTestClient(t, server.URL, Config{ReadToken: "token"})
	var m Movie
	require.NoError(t, c.Get(context.Background(), "/movie/603", url.Values{"append_to_response": {"credits"}}, &m))

	assert.Equal(t, "/movie/603", gotPath)
	assert.Equal(t, "Bearer token", gotAuth)
	assert.Equal(t, "credits", gotAppend)
	assert.Empty(t, gotKey)
	assert.Equal(t, int32(603), m.ID)
	assert.Equal(t, "Lana Wachowski", m.Director())
	assert.Equal(t, []string{"Lana Wachowski", "Lilly Wachowski"}, m.Directors())
	assert.Equal(t, 1999, m.ReleaseYear())
	assert.Equal(t, []string{"Action", "Science Fiction"}, m.GenreNames())
}

func TestClient_APIKeyQueryParameter(t *testing.T) {
	var gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.URL.Query().Get("api_key")
		_, _ = w.Write([]byte(`{"page":1,"results":[]}`))
	}))
	defer server.Close()

	c, _ := newTestClient(t, server.URL, Config{APIKey: "v3key"})
	var p Page
	require.NoError(t, c.Get(context.Background(), "/movie/popular", nil, &p))
	assert.Equal(t, "v3key", gotKey)
}

func TestClient_RetriesServerErrorsWithBackoff(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(matrixJSON))
	}))
	defer server.Close()

	c, waits := newTestClient(t, server.URL, Config{APIKey: "k"})
	var m Movie
	require.NoError(t, c.Get(context.Background(), "/movie/603", nil, &m))

	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second}, *waits)
}

func TestClient_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c, waits := newTestClient(t, server.URL, Config{APIKey: "k"})
	var m Movie
	err := c.Get(context.Background(), "/movie/603", nil, &m)
	require.Error(t, err)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusServiceUnavailable, se.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
	assert.Len(t, *waits, 2)
}

func TestClient_RateLimitHonoursRetryAfter(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(matrixJSON))
	}))
	defer server.Close()

	c, waits := newTestClient(t, server.URL, Config{APIKey: "k"})
	var m Movie
	require.NoError(t, c.Get(context.Background(), "/movie/603", nil, &m))
	assert.Equal(t, []time.Duration{2 * time.Second}, *waits)
}

func TestClient_RateLimitWithoutRetryAfterBacksOff(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(matrixJSON))
	}))
	defer server.Close()

	c, waits := newTestClient(t, server.URL, Config{APIKey: "k"})
	var m Movie
	require.NoError(t, c.Get(context.Background(), "/movie/603", nil, &m))
	assert.Equal(t, []time.Duration{500 * time.Millisecond}, *waits)
}

func TestClient_NotFoundIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c, waits := newTestClient(t, server.URL, Config{APIKey: "k"})
	var m Movie
	err := c.Get(context.Background(), "/movie/1", nil, &m)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int32(1), calls.Load())
	assert.Empty(t, *waits)
}

func TestClient_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"status_message":"Invalid API key"}`))
	}))
	defer server.Close()

	c, _ := newTestClient(t, server.URL, Config{APIKey: "bad"})
	var m Movie
	err := c.Get(context.Background(), "/movie/1", nil, &m)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.StatusCode)
	assert.Contains(t, se.Body, "Invalid API key")
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_MalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id": "not-a-number"`))
	}))
	defer server.Close()

	c, _ := newTestClient(t, server.URL, Config{APIKey: "k"})
	var m Movie
	assert.Error(t, c.Get(context.Background(), "/movie/1", nil, &m))
}

func TestClient_PerCallTimeoutIsRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
			return
		}
		_, _ = w.Write([]byte(matrixJSON))
	}))
	defer server.Close()

	c, waits := newTestClient(t, server.URL, Config{APIKey: "k", CallTimeout: 50 * time.Millisecond})
	var m Movie
	require.NoError(t, c.Get(context.Background(), "/movie/603", nil, &m))
	assert.Equal(t, int32(2), calls.Load())
	assert.Len(t, *waits, 1)
}

func TestClient_CircuitBreakerOpens(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c, _ := newTestClient(t, server.URL, Config{APIKey: "k", MaxAttempts: 1})
	var m Movie
	for i := 0; i < 10; i++ {
		require.Error(t, c.Get(context.Background(), "/movie/1", nil, &m))
	}

	err := c.Get(context.Background(), "/movie/1", nil, &m)
	assert.True(t, errors.Is(err, gobreaker.ErrOpenState))
	assert.Equal(t, int32(10), calls.Load())
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	d, ok := parseRetryAfter("3", now)
	assert.True(t, ok)
	assert.Equal(t, 3*time.Second, d)

	d, ok = parseRetryAfter(now.Add(4*time.Second).Format(http.TimeFormat), now)
	assert.True(t, ok)
	assert.Equal(t, 4*time.Second, d)

	d, ok = parseRetryAfter("3600", now)
	assert.True(t, ok)
	assert.Equal(t, maxRetryAfter, d)

	_, ok = parseRetryAfter("", now)
	assert.False(t, ok)
	_, ok = parseRetryAfter("soon", now)
	assert.False(t, ok)
}

func TestMovie_ReleaseYear(t *testing.T) {
	assert.Equal(t, 2025, (&Movie{ReleaseDate: "2025-06-01"}).ReleaseYear())
	assert.Equal(t, 0, (&Movie{ReleaseDate: ""}).ReleaseYear())
	assert.Equal(t, 0, (&Movie{ReleaseDate: "TBA"}).ReleaseYear())
	var nilMovie *Movie
	assert.Equal(t, 0, nilMovie.ReleaseYear())
	assert.Equal(t, "", nilMovie.Director())
}
