package v1

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/recall/internal/util"
	"github.com/hrygo/recall/plugin/ai/agent"
	aierrors "github.com/hrygo/recall/server/internal/errors"
	"github.com/hrygo/recall/store"
)

const defaultConversationName = "New conversation"

// Conversation is the API view of a stored conversation.
type Conversation struct {
	UID       string            `json:"uid"`
	Name      string            `json:"name"`
	AgentUID  string            `json:"agent_uid,omitempty"`
	Config    agent.AgentConfig `json:"config"`
	CreatedTs int64             `json:"created_ts"`
	UpdatedTs int64             `json:"updated_ts"`
}

// ConversationSummary is one entry of the conversation index.
type ConversationSummary struct {
	UID  string `json:"uid"`
	Name string `json:"name"`
}

type CreateConversationRequest struct {
	Name string `json:"name"`
	// AgentUID starts the conversation from a stored preset.
	AgentUID string            `json:"agent_uid"`
	Config   agent.AgentConfig `json:"config"`
}

type RenameConversationRequest struct {
	Name string `json:"name"`
}

// Message is the API view of a stored message.
type Message struct {
	UID       string `json:"uid"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	Partial   bool   `json:"partial,omitempty"`
	CreatedTs int64  `json:"created_ts"`
}

// ListConversations returns the uid and name of every conversation.
// GET /api/v1/conversations
func (s *APIV1Service) ListConversations(c echo.Context) error {
	list, err := s.Store.ListConversations(c.Request().Context(), &store.FindConversation{})
	if err != nil {
		return respondError(c, err)
	}

	response := make([]ConversationSummary, 0, len(list))
	for _, conv := range list {
		response = append(response, ConversationSummary{UID: conv.UID, Name: conv.Name})
	}
	return c.JSON(http.StatusOK, response)
}

// CreateConversation stores a new conversation and returns it.
// POST /api/v1/conversations
func (s *APIV1Service) CreateConversation(c echo.Context) error {
	ctx := c.Request().Context()

	var req CreateConversationRequest
	if err := c.Bind(&req); err != nil {
		return respondError(c, aierrors.InvalidArgument("malformed request body"))
	}

	cfg := req.Config
	name := strings.TrimSpace(req.Name)
	if req.AgentUID != "" {
		preset, err := s.Store.GetAgent(ctx, req.AgentUID)
		if err != nil {
			return respondError(c, err)
		}
		if cfg.SystemPrompt == "" {
			cfg.SystemPrompt = preset.Prompt
		}
		if cfg.Model == "" {
			cfg.Model = preset.Model
		}
		if name == "" {
			name = preset.Name
		}
	}
	if name == "" {
		name = defaultConversationName
	}

	cfg = cfg.WithDefaults(s.defaults.Model, s.defaults.SummaryModel)
	if err := cfg.Validate(); err != nil {
		return respondError(c, err)
	}

	conv := &store.Conversation{
		UID:      util.GenUID(),
		Name:     name,
		AgentUID: req.AgentUID,
	}
	cfg.ApplyTo(conv)

	created, err := s.Store.CreateConversation(ctx, conv)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, convertConversationFromStore(created))
}

// GetConversation returns the full conversation record.
// GET /api/v1/conversations/:uid
func (s *APIV1Service) GetConversation(c echo.Context) error {
	conv, err := s.Store.GetConversation(c.Request().Context(), c.Param("uid"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, convertConversationFromStore(conv))
}

// RenameConversation changes the display name.
// PATCH /api/v1/conversations/:uid
func (s *APIV1Service) RenameConversation(c echo.Context) error {
	var req RenameConversationRequest
	if err := c.Bind(&req); err != nil {
		return respondError(c, aierrors.InvalidArgument("malformed request body"))
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return respondError(c, aierrors.InvalidArgument("name must not be empty"))
	}

	conv, err := s.Store.UpdateConversation(c.Request().Context(), &store.UpdateConversation{
		UID:  c.Param("uid"),
		Name: &name,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, convertConversationFromStore(conv))
}

// DeleteConversation removes the conversation and its live session.
// DELETE /api/v1/conversations/:uid
func (s *APIV1Service) DeleteConversation(c echo.Context) error {
	uid := c.Param("uid")
	if err := s.Store.DeleteConversation(c.Request().Context(), &store.DeleteConversation{UID: uid}); err != nil {
		return respondError(c, err)
	}
	s.Registry.Remove(uid)
	return c.NoContent(http.StatusNoContent)
}

// ListMessages returns the full history of a conversation.
// GET /api/v1/conversations/:uid/messages
func (s *APIV1Service) ListMessages(c echo.Context) error {
	history, err := s.Store.ListFullHistory(c.Request().Context(), c.Param("uid"))
	if err != nil {
		return respondError(c, err)
	}

	response := make([]Message, 0, len(history))
	for _, m := range history {
		response = append(response, convertMessageFromStore(m))
	}
	return c.JSON(http.StatusOK, response)
}

func convertConversationFromStore(conv *store.Conversation) *Conversation {
	return &Conversation{
		UID:       conv.UID,
		Name:      conv.Name,
		AgentUID:  conv.AgentUID,
		Config:    agent.ConfigFromConversation(conv),
		CreatedTs: conv.CreatedTs,
		UpdatedTs: conv.UpdatedTs,
	}
}

func convertMessageFromStore(m *store.Message) Message {
	return Message{
		UID:       m.UID,
		Role:      m.Role,
		Content:   m.Content,
		Partial:   m.Partial,
		CreatedTs: m.CreatedTs,
	}
}
