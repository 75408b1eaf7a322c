package store

import "context"

// ReviewEmbedding is the vector embedding of a review's text, indexed by movie.
type ReviewEmbedding struct {
	ReviewID  int32
	MovieID   int32
	Embedding []float32 // 384-dimensional, L2-normalized
	Model     string    // Model identifier, e.g., "sentence-transformers/all-MiniLM-L6-v2"
	CreatedTs int64
	UpdatedTs int64
}

// MovieMatch is one vector similarity hit: the best-matching review of a movie.
type MovieMatch struct {
	MovieID    int32
	Similarity float32
}

// MatchMoviesOptions represents the options for the movie similarity query.
type MatchMoviesOptions struct {
	Vector      []float32
	Threshold   float32 // only matches strictly above this similarity
	Limit       int
	ExcludedIDs []int32
}

// UpsertReviewEmbedding inserts or updates a review embedding.
func (s *Store) UpsertReviewEmbedding(ctx context.Context, embedding *ReviewEmbedding) (*ReviewEmbedding, error) {
	return s.driver.UpsertReviewEmbedding(ctx, embedding)
}

// MatchMovies returns movies whose review embeddings are most similar to the vector,
// in descending similarity, one row per movie.
func (s *Store) MatchMovies(ctx context.Context, opts *MatchMoviesOptions) ([]*MovieMatch, error) {
	if len(opts.Vector) == 0 || opts.Limit <= 0 {
		return nil, nil
	}
	return s.driver.MatchMovies(ctx, opts)
}
