package recommend

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/hrygo/cinesense/plugin/tmdb"
)

// hydrate resolves candidates HydrationBatchSize at a time and hands each
// result to accept in candidate order; unresolved candidates arrive as nil.
// No further batches are issued once accept returns true.
func (s *Service) hydrate(ctx context.Context, candidates []Candidate, accept func(Candidate, *tmdb.Movie) (done bool)) {
	for start := 0; start < len(candidates); start += HydrationBatchSize {
		if ctx.Err() != nil {
			return
		}
		end := min(start+HydrationBatchSize, len(candidates))
		batch := candidates[start:end]

		resolved := make([]*tmdb.Movie, len(batch))
		g, gctx := errgroup.WithContext(ctx)
		for i, c := range batch {
			i, c := i, c
			g.Go(func() error {
				resolved[i] = s.resolve(gctx, c)
				return nil
			})
		}
		_ = g.Wait()

		for i, c := range batch {
			if accept(c, resolved[i]) {
				return
			}
		}
	}
}

// resolve turns a candidate into full movie details, or nil.
func (s *Service) resolve(ctx context.Context, c Candidate) *tmdb.Movie {
	switch c := c.(type) {
	case IndexCandidate:
		return s.movies.GetByID(ctx, c.MovieID)
	case TitleCandidate:
		match := pickTitleMatch(s.movies.SearchByTitle(ctx, c.Title, c.Year), c.Title, c.Year)
		if match == nil {
			return nil
		}
		// Search results carry no credits or runtime.
		if details := s.movies.GetByID(ctx, match.ID); details != nil {
			return details
		}
		return match
	default:
		return nil
	}
}

// pickTitleMatch prefers an exact title with the right year, then the right
// year, then an exact title, then the catalogue's first hit.
func pickTitleMatch(results []*tmdb.Movie, title string, year int) *tmdb.Movie {
	if len(results) == 0 {
		return nil
	}
	var byYear, byTitle *tmdb.Movie
	for _, m := range results {
		if m == nil {
			continue
		}
		titleMatch := strings.EqualFold(strings.TrimSpace(m.Title), strings.TrimSpace(title))
		yearMatch := year > 0 && m.ReleaseYear() == year
		switch {
		case titleMatch && yearMatch:
			return m
		case yearMatch && byYear == nil:
			byYear = m
		case titleMatch && byTitle == nil:
			byTitle = m
		}
	}
	if byYear != nil {
		return byYear
	}
	if byTitle != nil {
		return byTitle
	}
	for _, m := range results {
		if m != nil {
			return m
		}
	}
	return nil
}
