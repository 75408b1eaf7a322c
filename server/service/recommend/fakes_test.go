package recommend

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hrygo/cinesense/plugin/ai/oracle"
	"github.com/hrygo/cinesense/plugin/tmdb"
	"github.com/hrygo/cinesense/store"
)

type fakeStore struct {
	mu        sync.Mutex
	profile   *store.TasteProfile
	reviews   []*store.Review
	watchlist []*store.WatchlistEntry
	matches   []*store.MovieMatch
	matchErr  error
	listErr   error

	matchCalls []*store.MatchMoviesOptions
}

func (f *fakeStore) GetTasteProfile(context.Context, string) (*store.TasteProfile, error) {
	return f.profile, nil
}

func (f *fakeStore) ListReviews(_ context.Context, find *store.FindReview) ([]*store.Review, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []*store.Review
	for _, r := range f.reviews {
		if find.HasRating && r.Rating == nil {
			continue
		}
		out = append(out, r)
		if find.Limit > 0 && len(out) == find.Limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) ListWatchlist(context.Context, *store.FindWatchlist) ([]*store.WatchlistEntry, error) {
	return f.watchlist, nil
}

func (f *fakeStore) MatchMovies(_ context.Context, opts *store.MatchMoviesOptions) ([]*store.MovieMatch, error) {
	f.mu.Lock()
	f.matchCalls = append(f.matchCalls, opts)
	f.mu.Unlock()
	if f.matchErr != nil {
		return nil, f.matchErr
	}
	return f.matches, nil
}

type fakeResolver struct {
	movies   map[int32]*tmdb.Movie
	search   map[string][]*tmdb.Movie
	trending []*tmdb.Movie
	popular  []*tmdb.Movie
	similar  map[int32][]*tmdb.Movie

	getCalls     atomic.Int32
	searchCalls  atomic.Int32
	similarCalls sync.Map
}

func newFakeResolver(movies ...*tmdb.Movie) *fakeResolver {
	r := &fakeResolver{
		movies:  map[int32]*tmdb.Movie{},
		search:  map[string][]*tmdb.Movie{},
		similar: map[int32][]*tmdb.Movie{},
	}
	for _, m := range movies {
		r.movies[m.ID] = m
	}
	return r
}

func (r *fakeResolver) GetByID(_ context.Context, id int32) *tmdb.Movie {
	r.getCalls.Add(1)
	return r.movies[id]
}

func (r *fakeResolver) SearchByTitle(_ context.Context, title string, _ int) []*tmdb.Movie {
	r.searchCalls.Add(1)
	return r.search[strings.ToLower(title)]
}

func (r *fakeResolver) GetTrending(context.Context) []*tmdb.Movie {
	return r.trending
}

func (r *fakeResolver) GetPopular(context.Context) []*tmdb.Movie {
	return r.popular
}

func (r *fakeResolver) GetRecommendationsFor(_ context.Context, id int32) []*tmdb.Movie {
	r.similarCalls.Store(id, true)
	return r.similar[id]
}

type fakeOracle struct {
	result *oracle.Result
	reqs   []oracle.Request
}

func (o *fakeOracle) Analyze(_ context.Context, req oracle.Request) *oracle.Result {
	o.reqs = append(o.reqs, req)
	return o.result
}

type fakeEmbedder struct {
	vector []float32
	err    error

	// deadlines records whether each call's context carried a deadline.
	deadlines []bool
}

func (e *fakeEmbedder) Embed(ctx context.Context, _ string) ([]float32, error) {
	_, ok := ctx.Deadline()
	e.deadlines = append(e.deadlines, ok)
	return e.vector, e.err
}

func movie(id int32, title, releaseDate string, runtime int, directors ...string) *tmdb.Movie {
	m := &tmdb.Movie{ID: id, Title: title, ReleaseDate: releaseDate, Runtime: runtime, OriginalLanguage: "en"}
	if len(directors) > 0 {
		m.Credits = &tmdb.Credits{}
		for _, d := range directors {
			m.Credits.Crew = append(m.Credits.Crew, tmdb.CrewMember{Name: d, Job: "Director"})
		}
	}
	return m
}

func rated(movieID int32, rating int32, createdTs int64) *store.Review {
	return &store.Review{UserID: "u1", MovieID: movieID, Rating: &rating, CreatedTs: createdTs}
}

func newTestService(st Store, movies MetadataResolver, o Oracle, e Embedder, cfg Config) *Service {
	svc, err := NewService(st, movies, o, e, cfg)
	if err != nil {
		panic(err)
	}
	svc.now = func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }
	svc.shuffle = func(int, func(i, j int)) {}
	return svc
}

func ids(recs []*Recommendation) []int32 {
	out := make([]int32, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.ID)
	}
	return out
}
