package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/recall/plugin/ai/agent"
	"github.com/hrygo/recall/server/internal/observability"
)

// ConfigResponse is what a client needs to offer a new conversation.
type ConfigResponse struct {
	Models []string `json:"models"`
	Agents []*Agent `json:"agents"`
}

// MetricsResponse combines request and chat turn metrics.
type MetricsResponse struct {
	Requests       *observability.MetricsSnapshot `json:"requests"`
	Turns          agent.MetricsSummary           `json:"turns"`
	ActiveSessions int                            `json:"active_sessions"`
}

// ListModels returns the models installed on the Ollama backend.
// GET /api/v1/models
func (s *APIV1Service) ListModels(c echo.Context) error {
	models, err := s.LLM.ListModels(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, models)
}

// GetConfig returns the installed models and agent presets.
// GET /api/v1/config
func (s *APIV1Service) GetConfig(c echo.Context) error {
	models, err := s.LLM.ListModels(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	agents, err := s.listAgents(c)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, ConfigResponse{Models: models, Agents: agents})
}

// GetMetrics returns a snapshot of the server metrics.
// GET /api/v1/metrics
func (s *APIV1Service) GetMetrics(c echo.Context) error {
	return c.JSON(http.StatusOK, MetricsResponse{
		Requests:       s.RequestMetrics.Snapshot(),
		Turns:          s.AgentMetrics.GetSummary(),
		ActiveSessions: s.Registry.Len(),
	})
}
