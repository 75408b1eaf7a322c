package v1

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/cinesense/plugin/ai/timeout"
	apperrors "github.com/hrygo/cinesense/server/internal/errors"
	"github.com/hrygo/cinesense/server/service/recommend"
)

type movieListResponse struct {
	Movies []*recommend.Recommendation `json:"movies"`
}

func newMovieListResponse(movies []*recommend.Recommendation) movieListResponse {
	if movies == nil {
		movies = []*recommend.Recommendation{}
	}
	return movieListResponse{Movies: movies}
}

// recommendationContext bounds a whole recommendation request.
func recommendationContext(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), timeout.RequestTimeout)
}

// PickedForYou returns proactive recommendations for the caller.
// GET /api/v1/recommendations/picked-for-you
func (s *APIV1Service) PickedForYou(c echo.Context) error {
	ctx, cancel := recommendationContext(c)
	defer cancel()

	movies, err := s.Recommender.PickedForYou(ctx, userIDFrom(c))
	if err != nil {
		return s.errorResponse(c, apperrors.Internal("failed to build recommendations", err))
	}
	return c.JSON(http.StatusOK, newMovieListResponse(movies))
}

// Discover answers a free-text mood query.
// GET /api/v1/discover?q=&exclude=&view=
func (s *APIV1Service) Discover(c echo.Context) error {
	query := strings.TrimSpace(c.QueryParam("q"))
	if query == "" {
		return s.errorResponse(c, apperrors.InvalidArgument("query parameter q is required"))
	}

	view := recommend.View(c.QueryParam("view"))
	switch view {
	case "":
		view = recommend.ViewInteractive
	case recommend.ViewInteractive, recommend.ViewListing:
	default:
		return s.errorResponse(c, apperrors.InvalidArgument("view must be interactive or listing"))
	}

	var exclude []string
	for _, title := range c.QueryParams()["exclude"] {
		if title = strings.TrimSpace(title); title != "" {
			exclude = append(exclude, title)
		}
	}

	ctx, cancel := recommendationContext(c)
	defer cancel()

	movies, err := s.Recommender.Discover(ctx, recommend.DiscoverOptions{
		Query:         query,
		UserID:        userIDFrom(c),
		ExcludeTitles: exclude,
		Context:       c.QueryParam("context"),
		View:          view,
	})
	if err != nil {
		if errors.Is(err, recommend.ErrEmptyQuery) {
			return s.errorResponse(c, apperrors.InvalidArgument(err.Error()))
		}
		return s.errorResponse(c, apperrors.Internal("failed to discover movies", err))
	}
	return c.JSON(http.StatusOK, newMovieListResponse(movies))
}
