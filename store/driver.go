package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for store driver.
// It contains all methods that store database driver should implement.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	IsInitialized(ctx context.Context) (bool, error)

	// TasteProfile model related methods.
	GetTasteProfile(ctx context.Context, userID string) (*TasteProfile, error)
	UpsertTasteProfile(ctx context.Context, upsert *TasteProfile) (*TasteProfile, error)

	// Review model related methods.
	CreateReview(ctx context.Context, create *Review) (*Review, error)
	ListReviews(ctx context.Context, find *FindReview) ([]*Review, error)

	// Watchlist model related methods.
	UpsertWatchlistEntry(ctx context.Context, upsert *WatchlistEntry) (*WatchlistEntry, error)
	ListWatchlist(ctx context.Context, find *FindWatchlist) ([]*WatchlistEntry, error)

	// ReviewEmbedding model related methods.
	UpsertReviewEmbedding(ctx context.Context, embedding *ReviewEmbedding) (*ReviewEmbedding, error)

	// MatchMovies runs the vector similarity query over review embeddings.
	MatchMovies(ctx context.Context, opts *MatchMoviesOptions) ([]*MovieMatch, error)
}
