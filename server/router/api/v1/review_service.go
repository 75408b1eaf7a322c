package v1

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/cinesense/plugin/ai/timeout"
	apperrors "github.com/hrygo/cinesense/server/internal/errors"
	"github.com/hrygo/cinesense/server/internal/observability"
	"github.com/hrygo/cinesense/store"
)

type createReviewRequest struct {
	MovieID int32  `json:"movie_id"`
	Rating  *int32 `json:"rating,omitempty"`
	Content string `json:"content,omitempty"`
}

type reviewResponse struct {
	ID        int32  `json:"id"`
	MovieID   int32  `json:"movie_id"`
	Rating    *int32 `json:"rating,omitempty"`
	Content   string `json:"content,omitempty"`
	CreatedTs int64  `json:"created_ts"`
}

type watchlistRequest struct {
	MovieID int32 `json:"movie_id"`
}

type watchlistResponse struct {
	MovieID   int32 `json:"movie_id"`
	CreatedTs int64 `json:"created_ts"`
}

// CreateReview stores a rating and/or written review, then updates the
// caller's taste profile in the background.
// POST /api/v1/reviews
func (s *APIV1Service) CreateReview(c echo.Context) error {
	var request createReviewRequest
	if err := c.Bind(&request); err != nil {
		return s.errorResponse(c, apperrors.InvalidArgument("invalid request body"))
	}
	request.Content = strings.TrimSpace(request.Content)
	if request.MovieID <= 0 {
		return s.errorResponse(c, apperrors.InvalidArgument("movie_id is required"))
	}
	if request.Rating != nil && (*request.Rating < 1 || *request.Rating > 5) {
		return s.errorResponse(c, apperrors.InvalidArgument("rating must be between 1 and 5"))
	}
	if request.Rating == nil && request.Content == "" {
		return s.errorResponse(c, apperrors.InvalidArgument("rating or content is required"))
	}

	review, err := s.Store.CreateReview(c.Request().Context(), &store.Review{
		UserID:  userIDFrom(c),
		MovieID: request.MovieID,
		Rating:  request.Rating,
		Content: request.Content,
	})
	if err != nil {
		return s.errorResponse(c, apperrors.Internal("failed to save review", err))
	}

	s.afterReviewSaved(c.Request().Context(), review)

	return c.JSON(http.StatusCreated, reviewResponse{
		ID:        review.ID,
		MovieID:   review.MovieID,
		Rating:    review.Rating,
		Content:   review.Content,
		CreatedTs: review.CreatedTs,
	})
}

// afterReviewSaved runs the taste update detached from the request, which may
// finish before it does.
func (s *APIV1Service) afterReviewSaved(ctx context.Context, review *store.Review) {
	if s.Taste == nil {
		return
	}
	detached := context.WithoutCancel(ctx)
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		ctx, cancel := context.WithTimeout(detached, timeout.TasteUpdateTimeout)
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				observability.LoggerFrom(ctx).Error("taste update panicked", "panic", r)
			}
		}()
		s.Taste.OnReviewSaved(ctx, review)
	}()
}

// AddToWatchlist saves a movie for later. Adding it twice is a no-op.
// POST /api/v1/watchlist
func (s *APIV1Service) AddToWatchlist(c echo.Context) error {
	var request watchlistRequest
	if err := c.Bind(&request); err != nil {
		return s.errorResponse(c, apperrors.InvalidArgument("invalid request body"))
	}
	if request.MovieID <= 0 {
		return s.errorResponse(c, apperrors.InvalidArgument("movie_id is required"))
	}

	entry, err := s.Store.UpsertWatchlistEntry(c.Request().Context(), &store.WatchlistEntry{
		UserID:  userIDFrom(c),
		MovieID: request.MovieID,
	})
	if err != nil {
		return s.errorResponse(c, apperrors.Internal("failed to save watchlist entry", err))
	}
	return c.JSON(http.StatusCreated, watchlistResponse{MovieID: entry.MovieID, CreatedTs: entry.CreatedTs})
}

// Healthz reports liveness.
// GET /healthz
func (s *APIV1Service) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
