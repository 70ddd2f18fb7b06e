package v1

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/hrygo/recall/internal/profile"
	"github.com/hrygo/recall/plugin/ai"
	"github.com/hrygo/recall/plugin/ai/agent"
	aierrors "github.com/hrygo/recall/server/internal/errors"
	"github.com/hrygo/recall/server/internal/observability"
	ratelimit "github.com/hrygo/recall/server/middleware"
	"github.com/hrygo/recall/store"
)

// DefaultAllowedOrigins are the local web UI dev servers.
var DefaultAllowedOrigins = []string{
	"http://localhost:5173",
	"http://127.0.0.1:5173",
}

type APIV1Service struct {
	Profile  *profile.Profile
	Store    *store.Store
	LLM      ai.LLMService
	Embedder ai.EmbeddingService
	Registry *agent.Registry

	AgentMetrics   *agent.AgentMetrics
	RequestMetrics *observability.Metrics
	RateLimiter    *ratelimit.RateLimiter

	markdown goldmark.Markdown
	defaults agent.AgentConfig
}

func NewAPIV1Service(profile *profile.Profile, store *store.Store, llm ai.LLMService, embedder ai.EmbeddingService) *APIV1Service {
	return &APIV1Service{
		Profile:  profile,
		Store:    store,
		LLM:      llm,
		Embedder: embedder,
		Registry: agent.NewRegistry(agent.RegistryConfig{
			Capacity: profile.MaxSessions,
			IdleTTL:  profile.SessionIdleTTL,
		}),
		AgentMetrics:   agent.NewAgentMetrics(),
		RequestMetrics: observability.NewMetrics(0),
		RateLimiter:    ratelimit.NewRateLimiter(0, 0),
		markdown:       goldmark.New(goldmark.WithExtensions(extension.GFM)),
		defaults: agent.AgentConfig{
			Model:        profile.ChatModel,
			SummaryModel: profile.SummaryModel,
		},
	}
}

// RegisterRoutes mounts the API under /api/v1.
func (s *APIV1Service) RegisterRoutes(echoServer *echo.Echo) {
	g := echoServer.Group("/api/v1")
	g.Use(
		middleware.Recover(),
		middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:     DefaultAllowedOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowHeaders:     []string{"*"},
			AllowCredentials: true,
		}),
		observability.Middleware(slog.Default(), s.RequestMetrics),
		s.RateLimiter.Middleware(),
	)

	g.GET("/conversations", s.ListConversations)
	g.POST("/conversations", s.CreateConversation)
	g.GET("/conversations/:uid", s.GetConversation)
	g.PATCH("/conversations/:uid", s.RenameConversation)
	g.DELETE("/conversations/:uid", s.DeleteConversation)
	g.GET("/conversations/:uid/messages", s.ListMessages)
	g.GET("/conversations/:uid/export", s.ExportConversation)

	g.POST("/chat", s.Chat)

	g.GET("/agents", s.ListAgents)
	g.POST("/agents", s.CreateAgent)
	g.PATCH("/agents/:uid", s.UpdateAgent)
	g.DELETE("/agents/:uid", s.DeleteAgent)

	g.GET("/models", s.ListModels)
	g.GET("/config", s.GetConfig)
	g.GET("/metrics", s.GetMetrics)
}

// Close releases the live sessions.
func (s *APIV1Service) Close() {
	s.AgentMetrics.LogSummary()
	s.Registry.Close()
}

func (s *APIV1Service) deps() agent.Deps {
	return agent.Deps{
		LLM:      s.LLM,
		Embedder: s.Embedder,
		Metrics:  s.AgentMetrics,
	}
}

// session returns the live session of a conversation, or a throwaway one
// when uid is empty. The caller must Release it.
func (s *APIV1Service) session(ctx context.Context, uid string) (*agent.Session, error) {
	if uid == "" {
		return agent.NewSession("", s.defaults.WithDefaults("", ""), s.deps(), nil)
	}
	return s.Registry.GetOrCreate(ctx, uid, agent.StoreBuilder(s.Store, s.deps(), s.defaults))
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Code    aierrors.ErrorCode `json:"code"`
	Message string             `json:"message"`
	Detail  string             `json:"detail,omitempty"`
}

// respondError writes err with the status matching its class.
// Internal causes are logged, not returned.
func respondError(c echo.Context, err error) error {
	aiErr := aierrors.FromError(err)
	observability.LoggerFromContext(c.Request().Context()).Warn("request error",
		slog.String(observability.LogFieldErrorCode, string(aiErr.Code)),
		slog.String("error", err.Error()),
	)

	resp := ErrorResponse{Code: aiErr.Code, Message: aiErr.Message}
	if aiErr.Cause != nil && aiErr.Code != aierrors.ErrCodeInternal {
		resp.Detail = aiErr.Cause.Error()
	}
	return c.JSON(aiErr.HTTPStatus(), resp)
}
