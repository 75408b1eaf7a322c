package v1

import (
	"context"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hrygo/cinesense/internal/profile"
	cinemiddleware "github.com/hrygo/cinesense/server/middleware"
	"github.com/hrygo/cinesense/server/service/recommend"
	"github.com/hrygo/cinesense/store"
)

// Recommender serves both recommendation surfaces.
type Recommender interface {
	PickedForYou(ctx context.Context, userID string) ([]*recommend.Recommendation, error)
	Discover(ctx context.Context, opts recommend.DiscoverOptions) ([]*recommend.Recommendation, error)
}

// ReviewStore persists the user events the API accepts.
type ReviewStore interface {
	CreateReview(ctx context.Context, create *store.Review) (*store.Review, error)
	UpsertWatchlistEntry(ctx context.Context, upsert *store.WatchlistEntry) (*store.WatchlistEntry, error)
}

// ReviewListener is notified after a review is saved.
type ReviewListener interface {
	OnReviewSaved(ctx context.Context, review *store.Review)
}

type APIV1Service struct {
	Profile     *profile.Profile
	Store       ReviewStore
	Recommender Recommender
	Taste       ReviewListener

	authenticator *Authenticator
	rateLimiter   *cinemiddleware.RateLimiter

	// background tracks detached taste updates.
	background sync.WaitGroup
}

func NewAPIV1Service(profile *profile.Profile, store ReviewStore, recommender Recommender, taste ReviewListener) *APIV1Service {
	return &APIV1Service{
		Profile:       profile,
		Store:         store,
		Recommender:   recommender,
		Taste:         taste,
		authenticator: NewAuthenticator(profile.JWTSecret, profile.IsDev()),
		rateLimiter:   cinemiddleware.NewRateLimiter(cinemiddleware.DefaultRequestsPerSecond, cinemiddleware.DefaultBurst),
	}
}

// RegisterRoutes registers the JSON API, health and metrics endpoints.
func (s *APIV1Service) RegisterRoutes(echoServer *echo.Echo) {
	echoServer.JSONSerializer = JSONSerializer{}
	echoServer.Use(
		s.requestContextMiddleware,
		middleware.RecoverWithConfig(middleware.RecoverConfig{DisableStackAll: !s.Profile.IsDev()}),
	)

	echoServer.GET("/healthz", s.Healthz)
	echoServer.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := echoServer.Group("/api/v1",
		middleware.CORS(),
		s.authMiddleware,
		cinemiddleware.RateLimit(s.rateLimiter, userIDFrom),
	)
	api.GET("/recommendations/picked-for-you", s.PickedForYou)
	api.GET("/discover", s.Discover)
	api.POST("/reviews", s.CreateReview)
	api.POST("/watchlist", s.AddToWatchlist)
}

// Wait blocks until detached work started by handlers has finished.
func (s *APIV1Service) Wait() {
	s.background.Wait()
}
