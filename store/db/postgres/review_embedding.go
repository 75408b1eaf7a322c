package postgres

import (
	"context"
	"time"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/hrygo/cinesense/store"
)

// UpsertReviewEmbedding inserts or updates a review embedding.
func (d *DB) UpsertReviewEmbedding(ctx context.Context, embedding *store.ReviewEmbedding) (*store.ReviewEmbedding, error) {
	now := time.Now().Unix()

	stmt := `
		INSERT INTO review_embedding (review_id, movie_id, embedding, model, created_ts, updated_ts)
		VALUES (` + placeholders(6) + `)
		ON CONFLICT (review_id)
		DO UPDATE SET
			embedding = EXCLUDED.embedding,
			model = EXCLUDED.model,
			updated_ts = EXCLUDED.updated_ts
		RETURNING created_ts, updated_ts
	`

	result := *embedding
	err := d.db.QueryRowContext(ctx, stmt,
		embedding.ReviewID,
		embedding.MovieID,
		pgvector.NewVector(embedding.Embedding),
		embedding.Model,
		now,
		now,
	).Scan(&result.CreatedTs, &result.UpdatedTs)
	if err != nil {
		return nil, errors.Wrap(err, "failed to upsert review embedding")
	}
	return &result, nil
}

// MatchMovies calls the match_movie_reviews function.
func (d *DB) MatchMovies(ctx context.Context, opts *store.MatchMoviesOptions) ([]*store.MovieMatch, error) {
	excluded := make([]int64, len(opts.ExcludedIDs))
	for i, id := range opts.ExcludedIDs {
		excluded[i] = int64(id)
	}

	query := `SELECT movie_id, similarity FROM match_movie_reviews(` + placeholders(4) + `)`
	rows, err := d.db.QueryContext(ctx, query,
		pgvector.NewVector(opts.Vector),
		opts.Threshold,
		opts.Limit,
		pq.Array(excluded),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to match movies")
	}
	defer rows.Close()

	list := []*store.MovieMatch{}
	for rows.Next() {
		var match store.MovieMatch
		var similarity float64
		if err := rows.Scan(&match.MovieID, &similarity); err != nil {
			return nil, errors.Wrap(err, "failed to scan movie match")
		}
		match.Similarity = float32(similarity)
		list = append(list, &match)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}
