package tmdb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/hrygo/cinesense/internal/metrics"
	"github.com/hrygo/cinesense/plugin/cache"
)

// Resolver is the degrading view over Client: every lookup returns nil or an empty
// slice once retries are exhausted, and logs the reason. Callers treat missing data
// as unknown, not as an error.
type Resolver struct {
	client *Client
	movies *cache.Tiered[*Movie]
	lists  *cache.Tiered[[]*Movie]
	group  singleflight.Group
}

// NewResolver creates a resolver. remote may be nil to run with the in-process cache only.
func NewResolver(client *Client, remote cache.Remote) *Resolver {
	cfg := cache.DefaultTieredConfig()
	return &Resolver{
		client: client,
		movies: cache.NewTiered[*Movie](cfg, remote),
		lists:  cache.NewTiered[[]*Movie](cfg, remote),
	}
}

// GetByID returns details with credits, or nil.
func (r *Resolver) GetByID(ctx context.Context, id int32) *Movie {
	if id <= 0 {
		return nil
	}
	key := "movie:" + strconv.Itoa(int(id))
	if m, ok := r.movies.Get(ctx, key); ok {
		metrics.CacheLookupsTotal.WithLabelValues("movie", "hit").Inc()
		return m
	}
	metrics.CacheLookupsTotal.WithLabelValues("movie", "miss").Inc()

	v, err := r.shared(ctx, key, func(ctx context.Context) (any, error) {
		if m, ok := r.movies.Get(ctx, key); ok {
			return m, nil
		}
		var m Movie
		params := url.Values{"append_to_response": {"credits"}}
		if err := r.client.Get(ctx, "/movie/"+strconv.Itoa(int(id)), params, &m); err != nil {
			return nil, err
		}
		r.movies.Set(ctx, key, &m)
		return &m, nil
	})
	if err != nil {
		logLookupFailure(ctx, "get_by_id", err, "movie_id", id)
		return nil
	}
	return v.(*Movie)
}

// SearchByTitle searches by title, narrowed to a release year when year > 0.
func (r *Resolver) SearchByTitle(ctx context.Context, title string, year int) []*Movie {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil
	}
	params := url.Values{"query": {title}, "include_adult": {"false"}}
	if year > 0 {
		params.Set("year", strconv.Itoa(year))
	}
	key := fmt.Sprintf("search:%s:%d", strings.ToLower(title), year)
	return r.listing(ctx, "search", key, "/search/movie", params)
}

// GetTrending returns this week's trending movies.
func (r *Resolver) GetTrending(ctx context.Context) []*Movie {
	return r.listing(ctx, "trending", "trending:week", "/trending/movie/week", nil)
}

// GetPopular returns the popular listing.
func (r *Resolver) GetPopular(ctx context.Context) []*Movie {
	return r.listing(ctx, "popular", "popular", "/movie/popular", nil)
}

// GetRecommendationsFor returns the catalogue's recommendations for a movie.
func (r *Resolver) GetRecommendationsFor(ctx context.Context, id int32) []*Movie {
	if id <= 0 {
		return nil
	}
	path := "/movie/" + strconv.Itoa(int(id)) + "/recommendations"
	return r.listing(ctx, "recommendations", "recommendations:"+strconv.Itoa(int(id)), path, nil)
}

func (r *Resolver) listing(ctx context.Context, kind, key, path string, params url.Values) []*Movie {
	if movies, ok := r.lists.Get(ctx, key); ok {
		metrics.CacheLookupsTotal.WithLabelValues(kind, "hit").Inc()
		return movies
	}
	metrics.CacheLookupsTotal.WithLabelValues(kind, "miss").Inc()

	v, err := r.shared(ctx, key, func(ctx context.Context) (any, error) {
		if movies, ok := r.lists.Get(ctx, key); ok {
			return movies, nil
		}
		var page Page
		if err := r.client.Get(ctx, path, params, &page); err != nil {
			return nil, err
		}
		movies := make([]*Movie, 0, len(page.Results))
		for _, m := range page.Results {
			if m != nil && m.ID > 0 {
				movies = append(movies, m)
			}
		}
		r.lists.Set(ctx, key, movies)
		return movies, nil
	})
	if err != nil {
		logLookupFailure(ctx, kind, err, "key", key)
		return nil
	}
	return v.([]*Movie)
}

// shared collapses concurrent identical lookups into one upstream call. The call is
// detached from any single caller's cancellation; each caller still stops waiting
// when its own context ends.
func (r *Resolver) shared(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	ch := r.group.DoChan(key, func() (any, error) {
		return fn(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func logLookupFailure(ctx context.Context, op string, err error, args ...any) {
	if errors.Is(err, ErrNotFound) {
		slog.DebugContext(ctx, "tmdb lookup found nothing", append([]any{"op", op}, args...)...)
		return
	}
	slog.WarnContext(ctx, "tmdb lookup failed", append([]any{"op", op, "error", err}, args...)...)
}
