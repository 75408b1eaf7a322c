package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/cinesense/store"
)

func (d *DB) GetTasteProfile(ctx context.Context, userID string) (*store.TasteProfile, error) {
	query := `SELECT user_id, taste_vector, rating_count, created_ts, updated_ts FROM taste_profile WHERE user_id = ?`

	result := &store.TasteProfile{}
	var raw string
	err := d.db.QueryRowContext(ctx, query, userID).Scan(
		&result.UserID,
		&raw,
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
	if result.TasteVector, err = decodeVector(raw); err != nil {
		return nil, err
	}
	return result, nil
}

func (d *DB) UpsertTasteProfile(ctx context.Context, upsert *store.TasteProfile) (*store.TasteProfile, error) {
	raw, err := encodeVector(upsert.TasteVector)
	if err != nil {
		return nil, err
	}
	now := time.Now().Unix()

	stmt := `INSERT INTO taste_profile (user_id, taste_vector, rating_count, created_ts, updated_ts)
		VALUES (` + placeholders(5) + `)
		ON CONFLICT (user_id) DO UPDATE SET
			taste_vector = excluded.taste_vector,
			rating_count = excluded.rating_count,
			updated_ts = excluded.updated_ts
		RETURNING created_ts, updated_ts`

	result := *upsert
	if err := d.db.QueryRowContext(ctx, stmt, upsert.UserID, raw, upsert.RatingCount, now, now).
		Scan(&result.CreatedTs, &result.UpdatedTs); err != nil {
		return nil, errors.Wrap(err, "failed to upsert taste profile")
	}
	return &result, nil
}
