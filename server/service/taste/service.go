// Package taste maintains each user's taste profile: the running mean of the
// embeddings of movies the user rated highly.
//
// Updates are read-modify-write without cross-request locking. Two qualifying
// ratings for the same user that race can lose one sample (last write wins).
package taste

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hrygo/cinesense/internal/metrics"
	"github.com/hrygo/cinesense/plugin/ai"
	"github.com/hrygo/cinesense/plugin/ai/timeout"
	"github.com/hrygo/cinesense/plugin/tmdb"
	"github.com/hrygo/cinesense/server/internal/observability"
	"github.com/hrygo/cinesense/store"
)

// Store is the subset of the store used by the taste service.
type Store interface {
	GetTasteProfile(ctx context.Context, userID string) (*store.TasteProfile, error)
	UpsertTasteProfile(ctx context.Context, upsert *store.TasteProfile) (*store.TasteProfile, error)
	UpsertReviewEmbedding(ctx context.Context, embedding *store.ReviewEmbedding) (*store.ReviewEmbedding, error)
}

// MovieLookup resolves a movie id to its details, or nil when unknown.
type MovieLookup interface {
	GetByID(ctx context.Context, id int32) *tmdb.Movie
}

// Service updates taste profiles and review embeddings.
type Service struct {
	store    Store
	embedder ai.EmbeddingService
	movies   MovieLookup
}

// NewService creates a new taste service.
func NewService(store Store, embedder ai.EmbeddingService, movies MovieLookup) *Service {
	return &Service{
		store:    store,
		embedder: embedder,
		movies:   movies,
	}
}

// UpdateTaste folds the embedding of text into the user's taste vector.
// The first sample creates the profile.
func (s *Service) UpdateTaste(ctx context.Context, userID, text string) (*store.TasteProfile, error) {
	profile, err := s.updateTaste(ctx, userID, text)
	outcome := "error"
	switch {
	case err != nil:
	case profile.RatingCount == 1:
		outcome = "created"
	default:
		outcome = "updated"
	}
	metrics.TasteUpdatesTotal.WithLabelValues(outcome).Inc()
	return profile, err
}

func (s *Service) updateTaste(ctx context.Context, userID, text string) (*store.TasteProfile, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("taste text is empty")
	}

	sample, err := s.embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed taste text: %w", err)
	}

	existing, err := s.store.GetTasteProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get taste profile: %w", err)
	}

	var (
		mean  []float32
		count int
	)
	if existing != nil {
		mean, count = existing.TasteVector, int(existing.RatingCount)
	}
	updated, err := ai.FoldMean(mean, count, sample)
	if err != nil {
		return nil, fmt.Errorf("fold taste sample: %w", err)
	}

	profile, err := s.store.UpsertTasteProfile(ctx, &store.TasteProfile{
		UserID:      userID,
		TasteVector: updated,
		RatingCount: int32(count + 1),
	})
	if err != nil {
		return nil, fmt.Errorf("upsert taste profile: %w", err)
	}
	return profile, nil
}

// OnReviewSaved runs the enrichment that follows a saved review: review text is
// embedded into the similarity index, and a qualifying rating updates the
// user's taste profile. Failures are logged and never returned.
func (s *Service) OnReviewSaved(ctx context.Context, review *store.Review) {
	if review == nil {
		return
	}
	log := observability.LoggerFrom(ctx).With(
		slog.Int("review_id", int(review.ID)),
		slog.Int("movie_id", int(review.MovieID)),
	)

	if strings.TrimSpace(review.Content) != "" {
		if err := s.embedReview(ctx, review); err != nil {
			log.Warn("failed to embed review", slog.Any("error", err))
		}
	}

	if !review.IsQualifying() {
		return
	}
	text := s.tasteText(ctx, review)
	if text == "" {
		log.Warn("skipping taste update: no descriptive text for movie")
		return
	}
	if _, err := s.UpdateTaste(ctx, review.UserID, text); err != nil {
		log.Warn("failed to update taste profile", slog.Any("error", err))
		return
	}
	log.Debug("taste profile updated", slog.String(observability.LogFieldUserID, review.UserID))
}

func (s *Service) embedReview(ctx context.Context, review *store.Review) error {
	vector, err := s.embed(ctx, review.Content)
	if err != nil {
		metrics.ReviewEmbeddingsTotal.WithLabelValues("inline", "error").Inc()
		return err
	}
	_, err = s.store.UpsertReviewEmbedding(ctx, &store.ReviewEmbedding{
		ReviewID:  review.ID,
		MovieID:   review.MovieID,
		Embedding: vector,
		Model:     s.embedder.Model(),
	})
	if err != nil {
		metrics.ReviewEmbeddingsTotal.WithLabelValues("inline", "error").Inc()
		return err
	}
	metrics.ReviewEmbeddingsTotal.WithLabelValues("inline", "success").Inc()
	return nil
}

func (s *Service) embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout.EmbeddingTimeout)
	defer cancel()
	return s.embedder.Embed(ctx, text)
}

// tasteText prefers the movie's descriptive text and falls back to the review itself.
func (s *Service) tasteText(ctx context.Context, review *store.Review) string {
	if s.movies != nil {
		if movie := s.movies.GetByID(ctx, review.MovieID); movie != nil {
			if text := MovieText(movie); text != "" {
				return text
			}
		}
	}
	return strings.TrimSpace(review.Content)
}

// MovieText builds the descriptive text embedded for a movie:
// title, year, genres, director and overview.
func MovieText(movie *tmdb.Movie) string {
	if movie == nil || movie.Title == "" {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(movie.Title)
	if year := movie.ReleaseYear(); year > 0 {
		fmt.Fprintf(&sb, " (%d)", year)
	}
	sb.WriteString(".")
	if genres := movie.GenreNames(); len(genres) > 0 {
		sb.WriteString(" Genres: ")
		sb.WriteString(strings.Join(genres, ", "))
		sb.WriteString(".")
	}
	if director := movie.Director(); director != "" {
		sb.WriteString(" Directed by ")
		sb.WriteString(director)
		sb.WriteString(".")
	}
	if overview := strings.TrimSpace(movie.Overview); overview != "" {
		sb.WriteString(" ")
		sb.WriteString(overview)
	}
	return sb.String()
}
