package sqlite

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/cinesense/store"
)

func (d *DB) UpsertWatchlistEntry(ctx context.Context, upsert *store.WatchlistEntry) (*store.WatchlistEntry, error) {
	stmt := `INSERT INTO watchlist (user_id, movie_id, created_ts) VALUES (` + placeholders(3) + `)
		ON CONFLICT (user_id, movie_id) DO UPDATE SET user_id = excluded.user_id
		RETURNING created_ts`

	result := *upsert
	if err := d.db.QueryRowContext(ctx, stmt, upsert.UserID, upsert.MovieID, time.Now().Unix()).Scan(&result.CreatedTs); err != nil {
		return nil, errors.Wrap(err, "failed to upsert watchlist entry")
	}
	return &result, nil
}

func (d *DB) ListWatchlist(ctx context.Context, find *store.FindWatchlist) ([]*store.WatchlistEntry, error) {
	where, args := []string{"1 = 1"}, []any{}
	if find.UserID != nil {
		where, args = append(where, "user_id = ?"), append(args, *find.UserID)
	}

	query := `SELECT user_id, movie_id, created_ts FROM watchlist WHERE ` + strings.Join(where, " AND ") + ` ORDER BY created_ts DESC, movie_id`
	if find.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list watchlist")
	}
	defer rows.Close()

	list := []*store.WatchlistEntry{}
	for rows.Next() {
		var entry store.WatchlistEntry
		if err := rows.Scan(&entry.UserID, &entry.MovieID, &entry.CreatedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan watchlist entry")
		}
		list = append(list, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}
