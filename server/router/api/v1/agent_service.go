package v1

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/recall/internal/util"
	aierrors "github.com/hrygo/recall/server/internal/errors"
	"github.com/hrygo/recall/store"
)

// Agent is the API view of an agent preset.
type Agent struct {
	UID       string `json:"uid"`
	Name      string `json:"name"`
	Resume    string `json:"resume"`
	Prompt    string `json:"prompt"`
	Model     string `json:"model"`
	CreatedTs int64  `json:"created_ts"`
	UpdatedTs int64  `json:"updated_ts"`
}

type CreateAgentRequest struct {
	Name   string `json:"name"`
	Resume string `json:"resume"`
	Prompt string `json:"prompt"`
	Model  string `json:"model"`
}

// UpdateAgentRequest is partial; absent fields keep their value.
type UpdateAgentRequest struct {
	Name   *string `json:"name"`
	Resume *string `json:"resume"`
	Prompt *string `json:"prompt"`
	Model  *string `json:"model"`
}

// ListAgents returns every agent preset.
// GET /api/v1/agents
func (s *APIV1Service) ListAgents(c echo.Context) error {
	agents, err := s.listAgents(c)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, agents)
}

func (s *APIV1Service) listAgents(c echo.Context) ([]*Agent, error) {
	list, err := s.Store.ListAgents(c.Request().Context(), &store.FindAgent{})
	if err != nil {
		return nil, err
	}
	agents := make([]*Agent, 0, len(list))
	for _, a := range list {
		agents = append(agents, convertAgentFromStore(a))
	}
	return agents, nil
}

// CreateAgent stores a new agent preset.
// POST /api/v1/agents
func (s *APIV1Service) CreateAgent(c echo.Context) error {
	var req CreateAgentRequest
	if err := c.Bind(&req); err != nil {
		return respondError(c, aierrors.InvalidArgument("malformed request body"))
	}
	if strings.TrimSpace(req.Name) == "" {
		return respondError(c, aierrors.InvalidArgument("name must not be empty"))
	}

	created, err := s.Store.CreateAgent(c.Request().Context(), &store.Agent{
		UID:    util.GenUID(),
		Name:   strings.TrimSpace(req.Name),
		Resume: req.Resume,
		Prompt: req.Prompt,
		Model:  req.Model,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, convertAgentFromStore(created))
}

// UpdateAgent applies a partial update to an agent preset.
// PATCH /api/v1/agents/:uid
func (s *APIV1Service) UpdateAgent(c echo.Context) error {
	var req UpdateAgentRequest
	if err := c.Bind(&req); err != nil {
		return respondError(c, aierrors.InvalidArgument("malformed request body"))
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		return respondError(c, aierrors.InvalidArgument("name must not be empty"))
	}

	updated, err := s.Store.UpdateAgent(c.Request().Context(), &store.UpdateAgent{
		UID:    c.Param("uid"),
		Name:   req.Name,
		Resume: req.Resume,
		Prompt: req.Prompt,
		Model:  req.Model,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, convertAgentFromStore(updated))
}

// DeleteAgent removes an agent preset. Conversations created from it keep their settings.
// DELETE /api/v1/agents/:uid
func (s *APIV1Service) DeleteAgent(c echo.Context) error {
	if err := s.Store.DeleteAgent(c.Request().Context(), &store.DeleteAgent{UID: c.Param("uid")}); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func convertAgentFromStore(a *store.Agent) *Agent {
	return &Agent{
		UID:       a.UID,
		Name:      a.Name,
		Resume:    a.Resume,
		Prompt:    a.Prompt,
		Model:     a.Model,
		CreatedTs: a.CreatedTs,
		UpdatedTs: a.UpdatedTs,
	}
}
