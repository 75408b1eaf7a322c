package recommend

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/hrygo/cinesense/plugin/ai/oracle"
	"github.com/hrygo/cinesense/plugin/ai/timeout"
	"github.com/hrygo/cinesense/plugin/tmdb"
	"github.com/hrygo/cinesense/server/internal/observability"
	"github.com/hrygo/cinesense/store"
)

const operationDiscover = "discover"

// ErrEmptyQuery is returned when Discover is called without a query.
var ErrEmptyQuery = errors.New("query is required")

// DiscoverOptions is one mood query.
type DiscoverOptions struct {
	Query string
	// UserID is optional; when set, the user's rated and watchlisted movies are excluded.
	UserID string
	// ExcludeTitles are titles already shown to the user, matched case-insensitively.
	ExcludeTitles []string
	// Context is optional taste text passed to the oracle.
	Context string
	View    View
}

// Discover answers a mood query. Oracle candidates come first, then similarity
// index hits; both are hydrated and filtered, and a broadening pass fills the
// page when too few survive.
func (s *Service) Discover(ctx context.Context, opts DiscoverOptions) ([]*Recommendation, error) {
	query := strings.TrimSpace(opts.Query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	params := paramsFor(opts.View)
	op := observability.StartOperation(ctx, operationDiscover)
	log := observability.LoggerFrom(ctx)

	result := s.analyze(ctx, query, opts)
	refined := strings.TrimSpace(result.Analysis.RefinedVectorQuery)
	if refined == "" {
		refined = query
	}

	var (
		vector   []float32
		excluded = exclusionSet{}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		vector = s.embedQuery(gctx, refined)
		return nil
	})
	if opts.UserID != "" {
		g.Go(func() error {
			ids, err := s.seenMovieIDs(gctx, opts.UserID)
			if err != nil {
				return err
			}
			excluded = ids
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	filter := newDiscoverFilter(opts.ExcludeTitles, excluded, result.Analysis, query, s.now(), s.policy)

	candidates := make([]Candidate, 0, len(result.Movies)+params.limit)
	for _, m := range result.Movies {
		if filter.titleExcluded(m.Title) {
			continue
		}
		candidates = append(candidates, TitleCandidate{Title: m.Title, Year: int(m.Year), Reasoning: m.Reasoning})
	}
	candidates = append(candidates, s.indexCandidates(ctx, vector, params, excluded)...)

	picks := make([]*Recommendation, 0, params.pageSize)
	seen := exclusionSet{}
	s.hydrate(ctx, candidates, func(c Candidate, movie *tmdb.Movie) bool {
		if movie == nil || seen.has(movie.ID) {
			return false
		}
		if reason := filter.reject(movie); reason != "" {
			log.Debug("candidate rejected", slog.Int("movie_id", int(movie.ID)), slog.String("reason", reason))
			return false
		}
		seen.add(movie.ID)
		picks = append(picks, newRecommendation(c, movie, sourceOf(c)))
		return len(picks) >= params.pageSize
	})

	source := "pipeline"
	if len(picks) < params.pageSize {
		before := len(picks)
		picks = s.broaden(ctx, query, filter, seen, picks, params.pageSize)
		if before == 0 && len(picks) > 0 {
			source = string(SourceBroadening)
		}
	}

	op.Finish(source, len(picks))
	return picks, nil
}

func (s *Service) analyze(ctx context.Context, query string, opts DiscoverOptions) *oracle.Result {
	req := oracle.Request{
		Query:                query,
		Context:              opts.Context,
		PriorRecommendations: strings.Join(opts.ExcludeTitles, ", "),
	}
	if s.oracle == nil {
		return &oracle.Result{Analysis: oracle.Analysis{RefinedVectorQuery: query}, Degraded: true}
	}
	if result := s.oracle.Analyze(ctx, req); result != nil {
		return result
	}
	return &oracle.Result{Analysis: oracle.Analysis{RefinedVectorQuery: query}, Degraded: true}
}

func (s *Service) embedQuery(ctx context.Context, text string) []float32 {
	if s.embedder == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, timeout.EmbeddingTimeout)
	defer cancel()

	vector, err := s.embedder.Embed(ctx, text)
	if err != nil {
		observability.LoggerFrom(ctx).Warn("failed to embed discovery query", slog.Any("error", err))
		return nil
	}
	return vector
}

// seenMovieIDs returns the user's most recently rated and watchlisted movie ids.
func (s *Service) seenMovieIDs(ctx context.Context, userID string) (exclusionSet, error) {
	reviews, err := s.store.ListReviews(ctx, &store.FindReview{UserID: &userID, HasRating: true, Limit: RatedIDsCap})
	if err != nil {
		return nil, errorf(err, "list rated movies")
	}
	watchlist, err := s.store.ListWatchlist(ctx, &store.FindWatchlist{UserID: &userID})
	if err != nil {
		return nil, errorf(err, "list watchlist")
	}

	ids := exclusionSet{}
	for _, r := range reviews {
		ids.add(r.MovieID)
	}
	for _, w := range watchlist {
		ids.add(w.MovieID)
	}
	return ids, nil
}

func (s *Service) indexCandidates(ctx context.Context, vector []float32, params searchParams, excluded exclusionSet) []Candidate {
	if len(vector) == 0 {
		return nil
	}
	matches, err := s.store.MatchMovies(ctx, &store.MatchMoviesOptions{
		Vector:      vector,
		Threshold:   params.threshold,
		Limit:       params.limit,
		ExcludedIDs: excluded.ids(),
	})
	if err != nil {
		observability.LoggerFrom(ctx).Warn("discovery vector search failed", slog.Any("error", err))
		return nil
	}
	out := make([]Candidate, 0, len(matches))
	for _, m := range matches {
		out = append(out, IndexCandidate{MovieID: m.MovieID, Similarity: m.Similarity})
	}
	return out
}

// broaden fills the page from a plain keyword search, then from trending and
// popular movies. Only the id, year, runtime and language checks apply here.
func (s *Service) broaden(ctx context.Context, query string, filter *discoverFilter, seen exclusionSet, picks []*Recommendation, target int) []*Recommendation {
	year := 0
	if filter.year != "" {
		year, _ = strconv.Atoi(filter.year)
	}

	sources := []func() []*tmdb.Movie{
		func() []*tmdb.Movie { return s.movies.SearchByTitle(ctx, query, year) },
		func() []*tmdb.Movie { return s.movies.GetTrending(ctx) },
		func() []*tmdb.Movie { return s.movies.GetPopular(ctx) },
	}
	for _, fetch := range sources {
		if len(picks) >= target {
			break
		}
		var candidates []Candidate
		for _, m := range fetch() {
			if m != nil && !seen.has(m.ID) && !filter.excluded.has(m.ID) {
				candidates = append(candidates, IndexCandidate{MovieID: m.ID})
			}
		}
		s.hydrate(ctx, candidates, func(c Candidate, movie *tmdb.Movie) bool {
			if movie == nil || seen.has(movie.ID) {
				return false
			}
			if reason := s.rejectBroadening(movie, filter); reason != "" {
				return false
			}
			seen.add(movie.ID)
			picks = append(picks, newRecommendation(c, movie, SourceBroadening))
			return len(picks) >= target
		})
	}
	return picks
}
