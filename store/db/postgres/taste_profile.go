package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/hrygo/cinesense/store"
)

func (d *DB) GetTasteProfile(ctx context.Context, userID string) (*store.TasteProfile, error) {
	query := `SELECT user_id, taste_vector, rating_count, created_ts, updated_ts FROM taste_profile WHERE user_id = ` + placeholder(1)

	result := &store.TasteProfile{}
	var vector pgvector.Vector
	err := d.db.QueryRowContext(ctx, query, userID).Scan(
		&result.UserID,
		&vector,
		&result.RatingCount,
		&result.CreatedTs,
		&result.UpdatedTs,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get taste profile")
	}
	result.TasteVector = vector.Slice()
	return result, nil
}

func (d *DB) UpsertTasteProfile(ctx context.Context, upsert *store.TasteProfile) (*store.TasteProfile, error) {
	now := time.Now().Unix()

	stmt := `INSERT INTO taste_profile (user_id, taste_vector, rating_count, created_ts, updated_ts)
		VALUES (` + placeholders(5) + `)
		ON CONFLICT (user_id) DO UPDATE SET
			taste_vector = EXCLUDED.taste_vector,
			rating_count = EXCLUDED.rating_count,
			updated_ts = EXCLUDED.updated_ts
		RETURNING created_ts, updated_ts`

	result := *upsert
	err := d.db.QueryRowContext(ctx, stmt,
		upsert.UserID,
		pgvector.NewVector(upsert.TasteVector),
		upsert.RatingCount,
		now,
		now,
	).Scan(&result.CreatedTs, &result.UpdatedTs)
	if err != nil {
		return nil, errors.Wrap(err, "failed to upsert taste profile")
	}
	return &result, nil
}
