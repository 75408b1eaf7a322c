package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/hrygo/cinesense/internal/profile"
	"github.com/hrygo/cinesense/plugin/ai"
	"github.com/hrygo/cinesense/plugin/ai/oracle"
	"github.com/hrygo/cinesense/plugin/cache"
	"github.com/hrygo/cinesense/plugin/tmdb"
	apiv1 "github.com/hrygo/cinesense/server/router/api/v1"
	"github.com/hrygo/cinesense/server/runner/embedding"
	"github.com/hrygo/cinesense/server/service/recommend"
	"github.com/hrygo/cinesense/server/service/taste"
	"github.com/hrygo/cinesense/store"
)

type Server struct {
	Profile *profile.Profile
	Store   *store.Store

	echoServer      *echo.Echo
	apiV1Service    *apiv1.APIV1Service
	embeddingRunner *embedding.Runner
	remoteCache     cache.Remote

	runnerCancel context.CancelFunc
}

func NewServer(ctx context.Context, profile *profile.Profile, store *store.Store) (*Server, error) {
	s := &Server{
		Profile: profile,
		Store:   store,
	}

	echoServer := echo.New()
	echoServer.Debug = profile.IsDev()
	echoServer.HideBanner = true
	echoServer.HidePort = true
	s.echoServer = echoServer

	embedder, err := NewEmbeddingService(profile)
	if err != nil {
		return nil, err
	}

	var llm ai.LLMService
	if profile.IsOracleConfigured() {
		llm, err = ai.NewLLMService(&ai.NewConfigFromProfile(profile).LLM)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create llm service")
		}
	} else {
		slog.Warn("completion oracle is not configured; discovery runs on the similarity index only")
	}

	if !profile.IsTMDBConfigured() {
		slog.Warn("movie metadata provider is not configured; every lookup will be treated as unknown")
	}
	if profile.RedisAddr != "" {
		redisCache, err := cache.NewRedisCache(ctx, cache.DefaultRedisConfig(profile.RedisAddr))
		if err != nil {
			// The in-process tier still works on its own.
			slog.Warn("redis cache unavailable, continuing without it", "addr", profile.RedisAddr, "error", err)
		} else {
			s.remoteCache = redisCache
		}
	}
	resolver := tmdb.NewResolver(tmdb.NewClient(tmdbConfig(profile)), s.remoteCache)

	tasteService := taste.NewService(store, embedder, resolver)
	recommendService, err := recommend.NewService(store, resolver, oracle.New(llm), embedder, recommend.Config{
		CandidatePolicy:     profile.CandidatePolicy,
		BroadeningLanguages: profile.BroadeningLanguages,
	})
	if err != nil {
		return nil, errors.Wrap(err, "invalid candidate policy")
	}

	s.apiV1Service = apiv1.NewAPIV1Service(profile, store, recommendService, tasteService)
	s.apiV1Service.RegisterRoutes(echoServer)
	s.embeddingRunner = embedding.NewRunner(store, embedder)

	return s, nil
}

// NewEmbeddingService builds the embedding provider selected by the profile.
func NewEmbeddingService(profile *profile.Profile) (ai.EmbeddingService, error) {
	aiConfig := ai.NewConfigFromProfile(profile)
	if err := aiConfig.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid embedding configuration")
	}
	embedder, err := ai.NewEmbeddingService(&aiConfig.Embedding)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create embedding service")
	}
	return embedder, nil
}

func tmdbConfig(profile *profile.Profile) tmdb.Config {
	cfg := tmdb.DefaultConfig()
	cfg.APIKey = profile.TMDBAPIKey
	cfg.ReadToken = profile.TMDBReadToken
	if profile.TMDBBaseURL != "" {
		cfg.BaseURL = profile.TMDBBaseURL
	}
	if profile.TMDBRequestsPerSecond > 0 {
		cfg.RequestsPerSecond = profile.TMDBRequestsPerSecond
	}
	return cfg
}

func (s *Server) Start(ctx context.Context) error {
	address := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return errors.Wrap(err, "failed to listen")
	}
	s.echoServer.Listener = listener

	runnerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.runnerCancel = cancel
	go s.embeddingRunner.Run(runnerCtx)

	go func() {
		if err := s.echoServer.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to start echo server", "error", err)
		}
	}()
	slog.Info("cinesense started", "address", listener.Addr().String(), "mode", s.Profile.Mode, "driver", s.Profile.Driver)
	return nil
}

func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	slog.Info("server shutting down")

	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown server", "error", err)
	}
	if s.runnerCancel != nil {
		s.runnerCancel()
	}

	// Let detached taste updates finish while the store is still open.
	done := make(chan struct{})
	go func() {
		s.apiV1Service.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("shutdown deadline reached with taste updates still running")
	}

	if s.remoteCache != nil {
		if err := s.remoteCache.Close(); err != nil {
			slog.Error("failed to close redis cache", "error", err)
		}
	}
	if err := s.Store.Close(); err != nil {
		slog.Error("failed to close database", "error", err)
	}

	slog.Info("server stopped properly")
}
