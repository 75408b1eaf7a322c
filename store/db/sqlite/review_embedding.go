package sqlite

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/cinesense/plugin/ai"
	"github.com/hrygo/cinesense/store"
)

// UpsertReviewEmbedding inserts or updates a review embedding.
func (d *DB) UpsertReviewEmbedding(ctx context.Context, embedding *store.ReviewEmbedding) (*store.ReviewEmbedding, error) {
	raw, err := encodeVector(embedding.Embedding)
	if err != nil {
		return nil, err
	}
	now := time.Now().Unix()

	stmt := `
		INSERT INTO review_embedding (review_id, movie_id, embedding, model, created_ts, updated_ts)
		VALUES (` + placeholders(6) + `)
		ON CONFLICT (review_id) DO UPDATE SET
			embedding = excluded.embedding,
			model = excluded.model,
			updated_ts = excluded.updated_ts
		RETURNING created_ts, updated_ts`

	result := *embedding
	if err := d.db.QueryRowContext(ctx, stmt, embedding.ReviewID, embedding.MovieID, raw, embedding.Model, now, now).
		Scan(&result.CreatedTs, &result.UpdatedTs); err != nil {
		return nil, errors.Wrap(err, "failed to upsert review embedding")
	}
	return &result, nil
}

// MatchMovies scans every stored embedding outside the excluded set and keeps
// the best similarity per movie.
func (d *DB) MatchMovies(ctx context.Context, opts *store.MatchMoviesOptions) ([]*store.MovieMatch, error) {
	query := `SELECT movie_id, embedding FROM review_embedding`
	args := make([]any, 0, len(opts.ExcludedIDs))
	if len(opts.ExcludedIDs) > 0 {
		query += ` WHERE movie_id NOT IN (` + placeholders(len(opts.ExcludedIDs)) + `)`
		for _, id := range opts.ExcludedIDs {
			args = append(args, id)
		}
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to match movies")
	}
	defer rows.Close()

	best := map[int32]float32{}
	for rows.Next() {
		var movieID int32
		var raw string
		if err := rows.Scan(&movieID, &raw); err != nil {
			return nil, errors.Wrap(err, "failed to scan review embedding")
		}
		vector, err := decodeVector(raw)
		if err != nil {
			return nil, err
		}
		similarity := float32(ai.Cosine(opts.Vector, vector))
		if similarity <= opts.Threshold {
			continue
		}
		if prev, ok := best[movieID]; !ok || similarity > prev {
			best[movieID] = similarity
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	list := make([]*store.MovieMatch, 0, len(best))
	for movieID, similarity := range best {
		list = append(list, &store.MovieMatch{MovieID: movieID, Similarity: similarity})
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Similarity != list[j].Similarity {
			return list[i].Similarity > list[j].Similarity
		}
		return list[i].MovieID < list[j].MovieID
	})
	if len(list) > opts.Limit {
		list = list[:opts.Limit]
	}
	return list, nil
}

