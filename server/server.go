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

	"github.com/hrygo/recall/internal/profile"
	"github.com/hrygo/recall/plugin/ai"
	apiv1 "github.com/hrygo/recall/server/router/api/v1"
	"github.com/hrygo/recall/store"
)

const (
	shutdownTimeout     = 10 * time.Second
	rateLimiterIdleTime = 10 * time.Minute
)

type Server struct {
	Profile *profile.Profile
	Store   *store.Store

	echoServer *echo.Echo
	apiV1      *apiv1.APIV1Service
	cancel     context.CancelFunc
}

// NewServer wires the Ollama services described by profile.
func NewServer(profile *profile.Profile, store *store.Store) (*Server, error) {
	aiConfig := ai.NewConfigFromProfile(profile)
	if err := aiConfig.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid ai config")
	}
	llm, err := ai.NewLLMService(&aiConfig.LLM)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create llm service")
	}
	embedder, err := ai.NewEmbeddingService(&aiConfig.Embedding)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create embedding service")
	}
	return NewServerWithServices(profile, store, llm, embedder), nil
}

// NewServerWithServices builds a server on the given model services.
func NewServerWithServices(profile *profile.Profile, store *store.Store, llm ai.LLMService, embedder ai.EmbeddingService) *Server {
	echoServer := echo.New()
	echoServer.Debug = profile.IsDev()
	echoServer.HideBanner = true
	echoServer.HidePort = true

	echoServer.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "Service ready.")
	})

	apiV1Service := apiv1.NewAPIV1Service(profile, store, llm, embedder)
	apiV1Service.RegisterRoutes(echoServer)

	return &Server{
		Profile:    profile,
		Store:      store,
		echoServer: echoServer,
		apiV1:      apiV1Service,
	}
}

// Handler exposes the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echoServer
}

// Start listens on the profile address and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	address := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", address)
	}
	s.echoServer.Listener = listener

	ctx, s.cancel = context.WithCancel(ctx)
	go s.pruneRateLimiter(ctx)

	go func() {
		if err := s.echoServer.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to start echo server", "error", err)
		}
	}()
	slog.Info("recall server started", "address", listener.Addr().String(), "driver", s.Profile.Driver)
	return nil
}

// Shutdown stops accepting requests, lets in-flight ones finish and closes the store.
func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if s.cancel != nil {
		s.cancel()
	}
	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown server", "error", err)
	}
	s.apiV1.Close()
	if err := s.Store.Close(); err != nil {
		slog.Error("failed to close database", "error", err)
	}
	slog.Info("recall stopped properly")
}

func (s *Server) pruneRateLimiter(ctx context.Context) {
	ticker := time.NewTicker(rateLimiterIdleTime)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.apiV1.RateLimiter.Prune(rateLimiterIdleTime); n > 0 {
				slog.Debug("pruned idle rate limiters", "count", n)
			}
		}
	}
}
