package recommend

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/hrygo/cinesense/plugin/tmdb"
	"github.com/hrygo/cinesense/server/internal/observability"
	"github.com/hrygo/cinesense/store"
)

const operationPickedForYou = "picked_for_you"

// PickedForYou returns proactive picks from the user's taste vector, falling
// back to catalogue recommendations for the user's favourite movies. Users with
// fewer than ColdStartMinRatings ratings get an empty list.
func (s *Service) PickedForYou(ctx context.Context, userID string) ([]*Recommendation, error) {
	op := observability.StartOperation(ctx, operationPickedForYou)
	log := observability.LoggerFrom(ctx)

	var (
		profile   *store.TasteProfile
		reviews   []*store.Review
		watchlist []*store.WatchlistEntry
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		profile, err = s.store.GetTasteProfile(gctx, userID)
		return errorf(err, "get taste profile")
	})
	g.Go(func() (err error) {
		reviews, err = s.store.ListReviews(gctx, &store.FindReview{UserID: &userID})
		return errorf(err, "list reviews")
	})
	g.Go(func() (err error) {
		watchlist, err = s.store.ListWatchlist(gctx, &store.FindWatchlist{UserID: &userID})
		return errorf(err, "list watchlist")
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rated := 0
	for _, r := range reviews {
		if r.Rating != nil {
			rated++
		}
	}
	samples := rated
	if profile != nil && int(profile.RatingCount) > samples {
		samples = int(profile.RatingCount)
	}
	if samples < ColdStartMinRatings {
		log.Debug("cold start, no proactive picks", slog.Int("samples", samples))
		op.Finish("none", 0)
		return []*Recommendation{}, nil
	}

	excluded := exclusionSet{}
	for _, r := range reviews {
		excluded.add(r.MovieID)
	}
	for _, w := range watchlist {
		excluded.add(w.MovieID)
	}

	if profile != nil && len(profile.TasteVector) > 0 {
		if picks := s.tasteVectorPicks(ctx, profile.TasteVector, excluded); len(picks) > 0 {
			op.Finish(string(SourceTasteVector), len(picks))
			return picks, nil
		}
	}

	picks := s.similarMoviePicks(ctx, reviews, excluded)
	op.Finish(string(SourceSimilar), len(picks))
	return picks, nil
}

// tasteVectorPicks hydrates the index hits for the taste vector in index order.
func (s *Service) tasteVectorPicks(ctx context.Context, vector []float32, excluded exclusionSet) []*Recommendation {
	matches, err := s.store.MatchMovies(ctx, &store.MatchMoviesOptions{
		Vector:      vector,
		Threshold:   PickedForYouThreshold,
		Limit:       PickedForYouLimit,
		ExcludedIDs: excluded.ids(),
	})
	if err != nil {
		observability.LoggerFrom(ctx).Warn("taste vector search failed", slog.Any("error", err))
		return nil
	}

	candidates := make([]Candidate, 0, len(matches))
	for _, m := range matches {
		candidates = append(candidates, IndexCandidate{MovieID: m.MovieID, Similarity: m.Similarity})
	}

	picks := make([]*Recommendation, 0, len(candidates))
	seen := exclusionSet{}
	s.hydrate(ctx, candidates, func(c Candidate, movie *tmdb.Movie) bool {
		if movie == nil || excluded.has(movie.ID) || seen.has(movie.ID) || !s.policy.Allow(movie) {
			return false
		}
		seen.add(movie.ID)
		picks = append(picks, newRecommendation(c, movie, SourceTasteVector))
		return false
	})
	return picks
}

// similarMoviePicks seeds catalogue recommendations from the user's top-rated
// movies. The result is shuffled so no single seed dominates the head.
func (s *Service) similarMoviePicks(ctx context.Context, reviews []*store.Review, excluded exclusionSet) []*Recommendation {
	seeds := fallbackSeeds(reviews)
	if len(seeds) == 0 {
		return []*Recommendation{}
	}

	lists := make([][]*tmdb.Movie, len(seeds))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range seeds {
		i, id := i, id
		g.Go(func() error {
			lists[i] = s.movies.GetRecommendationsFor(gctx, id)
			return nil
		})
	}
	_ = g.Wait()

	// The exclusion set grows as picks are accepted; copy it so the caller's stays intact.
	accepted := make(exclusionSet, len(excluded))
	for id := range excluded {
		accepted.add(id)
	}

	var picks []*Recommendation
	for _, list := range lists {
		for _, movie := range list {
			if movie == nil || accepted.has(movie.ID) || !s.policy.Allow(movie) {
				continue
			}
			accepted.add(movie.ID)
			picks = append(picks, &Recommendation{Movie: movie, Source: SourceSimilar})
		}
	}

	s.shuffle(len(picks), func(i, j int) { picks[i], picks[j] = picks[j], picks[i] })
	if len(picks) > FallbackCap {
		picks = picks[:FallbackCap]
	}
	if picks == nil {
		picks = []*Recommendation{}
	}
	return picks
}

// fallbackSeeds returns up to FallbackSeedCount distinct movie ids from
// qualifying reviews, highest rating first and most recent first within a rating.
func fallbackSeeds(reviews []*store.Review) []int32 {
	qualifying := make([]*store.Review, 0, len(reviews))
	for _, r := range reviews {
		if r.IsQualifying() {
			qualifying = append(qualifying, r)
		}
	}
	sort.SliceStable(qualifying, func(i, j int) bool {
		if *qualifying[i].Rating != *qualifying[j].Rating {
			return *qualifying[i].Rating > *qualifying[j].Rating
		}
		return qualifying[i].CreatedTs > qualifying[j].CreatedTs
	})

	seen := exclusionSet{}
	seeds := make([]int32, 0, FallbackSeedCount)
	for _, r := range qualifying {
		if len(seeds) == FallbackSeedCount {
			break
		}
		if seen.has(r.MovieID) {
			continue
		}
		seen.add(r.MovieID)
		seeds = append(seeds, r.MovieID)
	}
	return seeds
}

func errorf(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}
