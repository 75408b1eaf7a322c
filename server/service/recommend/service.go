// Package recommend is the recommendation orchestrator. It serves proactive
// picks from a user's taste vector and reactive discovery from a mood query,
// merging the oracle, the similarity index and the metadata catalogue under
// the user's exclusion set.
//
// Upstream failures never surface as errors: a failed source contributes no
// candidates and the next fallback tier runs. Only store reads that the
// exclusion set depends on are returned as errors.
package recommend

import (
	"context"
	"math/rand"
	"time"

	"github.com/hrygo/cinesense/plugin/ai/oracle"
	"github.com/hrygo/cinesense/plugin/tmdb"
	"github.com/hrygo/cinesense/store"
)

// Store is the subset of the store read by the orchestrator.
type Store interface {
	GetTasteProfile(ctx context.Context, userID string) (*store.TasteProfile, error)
	ListReviews(ctx context.Context, find *store.FindReview) ([]*store.Review, error)
	ListWatchlist(ctx context.Context, find *store.FindWatchlist) ([]*store.WatchlistEntry, error)
	MatchMovies(ctx context.Context, opts *store.MatchMoviesOptions) ([]*store.MovieMatch, error)
}

// MetadataResolver looks movies up in the catalogue. Lookups return nil or an
// empty list when the movie is unknown or the catalogue is unreachable.
// Returned movies may be shared with a cache and must not be modified.
type MetadataResolver interface {
	GetByID(ctx context.Context, id int32) *tmdb.Movie
	SearchByTitle(ctx context.Context, title string, year int) []*tmdb.Movie
	GetTrending(ctx context.Context) []*tmdb.Movie
	GetPopular(ctx context.Context) []*tmdb.Movie
	GetRecommendationsFor(ctx context.Context, id int32) []*tmdb.Movie
}

// Oracle extracts constraints and candidate titles from a mood query.
type Oracle interface {
	Analyze(ctx context.Context, req oracle.Request) *oracle.Result
}

// Embedder embeds query text into the review embedding space.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Service is the recommendation orchestrator.
type Service struct {
	store    Store
	movies   MetadataResolver
	oracle   Oracle
	embedder Embedder
	policy   *Policy

	languages map[string]struct{}

	now     func() time.Time
	shuffle func(n int, swap func(i, j int))
}

// NewService creates an orchestrator. oracle and embedder may be nil, which
// disables oracle candidates and query embedding respectively.
func NewService(st Store, movies MetadataResolver, o Oracle, embedder Embedder, cfg Config) (*Service, error) {
	policy, err := NewPolicy(cfg.CandidatePolicy)
	if err != nil {
		return nil, err
	}

	languages := make(map[string]struct{}, len(cfg.BroadeningLanguages))
	for _, lang := range cfg.BroadeningLanguages {
		languages[lang] = struct{}{}
	}

	return &Service{
		store:     st,
		movies:    movies,
		oracle:    o,
		embedder:  embedder,
		policy:    policy,
		languages: languages,
		now:       time.Now,
		shuffle:   rand.Shuffle,
	}, nil
}

// exclusionSet is the set of movie ids a user must not be recommended.
type exclusionSet map[int32]struct{}

func (e exclusionSet) has(id int32) bool {
	_, ok := e[id]
	return ok
}

func (e exclusionSet) add(id int32) {
	e[id] = struct{}{}
}

func (e exclusionSet) ids() []int32 {
	out := make([]int32, 0, len(e))
	for id := range e {
		out = append(out, id)
	}
	return out
}
