package store

import "context"

// QualifyingRating is the lowest rating that counts as a strong preference.
const QualifyingRating = 4

// Review is a user's rating and/or written review of a movie.
type Review struct {
	ID        int32
	UserID    string
	MovieID   int32
	Rating    *int32 // 1-5, nil when the user only wrote text
	Content   string
	CreatedTs int64
}

// IsQualifying reports whether the rating is high enough to update the taste profile.
func (r *Review) IsQualifying() bool {
	return r != nil && r.Rating != nil && *r.Rating >= QualifyingRating
}

// FindReview is the find condition for reviews. Results are ordered newest first.
type FindReview struct {
	ID      *int32
	UserID  *string
	MovieID *int32

	// HasContent keeps reviews with non-empty text.
	HasContent bool
	// WithoutEmbedding keeps reviews that have no stored embedding yet.
	WithoutEmbedding bool
	// HasRating keeps reviews that carry a rating.
	HasRating bool

	Limit int
}

// CreateReview stores a new review.
func (s *Store) CreateReview(ctx context.Context, create *Review) (*Review, error) {
	return s.driver.CreateReview(ctx, create)
}

// ListReviews lists reviews.
func (s *Store) ListReviews(ctx context.Context, find *FindReview) ([]*Review, error) {
	return s.driver.ListReviews(ctx, find)
}
