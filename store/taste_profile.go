package store

import "context"

// TasteProfile is a user's running mean embedding over qualifying ratings.
type TasteProfile struct {
	UserID      string
	TasteVector []float32
	RatingCount int32 // number of samples folded into TasteVector
	CreatedTs   int64
	UpdatedTs   int64
}

// GetTasteProfile returns the profile for userID, or nil when the user has none yet.
func (s *Store) GetTasteProfile(ctx context.Context, userID string) (*TasteProfile, error) {
	return s.driver.GetTasteProfile(ctx, userID)
}

// UpsertTasteProfile replaces the stored vector and count in a single write.
func (s *Store) UpsertTasteProfile(ctx context.Context, upsert *TasteProfile) (*TasteProfile, error) {
	return s.driver.UpsertTasteProfile(ctx, upsert)
}
