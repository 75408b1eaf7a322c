package store

import "context"

// WatchlistEntry is a movie a user saved for later.
type WatchlistEntry struct {
	UserID    string
	MovieID   int32
	CreatedTs int64
}

// FindWatchlist is the find condition for watchlist entries.
type FindWatchlist struct {
	UserID *string
	Limit  int
}

// UpsertWatchlistEntry adds a movie to a watchlist; adding it twice is a no-op.
func (s *Store) UpsertWatchlistEntry(ctx context.Context, upsert *WatchlistEntry) (*WatchlistEntry, error) {
	return s.driver.UpsertWatchlistEntry(ctx, upsert)
}

// ListWatchlist lists watchlist entries, newest first.
func (s *Store) ListWatchlist(ctx context.Context, find *FindWatchlist) ([]*WatchlistEntry, error) {
	return s.driver.ListWatchlist(ctx, find)
}
