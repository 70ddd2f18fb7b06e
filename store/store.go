package store

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/recall/internal/profile"
	"github.com/hrygo/recall/plugin/ai/cache"
)

const (
	conversationCacheSize = 512
	conversationCacheTTL  = 10 * time.Minute
)

// Store provides database access to all raw objects.
type Store struct {
	profile *profile.Profile
	driver  Driver

	// conversationCache holds conversation records by UID.
	conversationCache *cache.LRUCache[*Conversation]
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{
		driver:            driver,
		profile:           profile,
		conversationCache: cache.NewLRUCache[*Conversation](conversationCacheSize, conversationCacheTTL),
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Close() error {
	s.conversationCache.Clear()
	return s.driver.Close()
}

func (s *Store) CreateConversation(ctx context.Context, create *Conversation) (*Conversation, error) {
	now := time.Now().Unix()
	if create.CreatedTs == 0 {
		create.CreatedTs = now
	}
	if create.UpdatedTs == 0 {
		create.UpdatedTs = create.CreatedTs
	}
	conversation, err := s.driver.CreateConversation(ctx, create)
	if err != nil {
		return nil, err
	}
	s.conversationCache.Set(conversation.UID, conversation)
	return conversation, nil
}

func (s *Store) ListConversations(ctx context.Context, find *FindConversation) ([]*Conversation, error) {
	return s.driver.ListConversations(ctx, find)
}

// GetConversation returns the conversation with the given UID or ErrNotFound.
func (s *Store) GetConversation(ctx context.Context, uid string) (*Conversation, error) {
	if conversation, ok := s.conversationCache.Get(uid); ok {
		return conversation, nil
	}

	list, err := s.driver.ListConversations(ctx, &FindConversation{UID: &uid})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, errors.Wrapf(ErrNotFound, "conversation %s", uid)
	}
	s.conversationCache.Set(uid, list[0])
	return list[0], nil
}

func (s *Store) UpdateConversation(ctx context.Context, update *UpdateConversation) (*Conversation, error) {
	if update.UpdatedTs == nil {
		now := time.Now().Unix()
		update.UpdatedTs = &now
	}
	conversation, err := s.driver.UpdateConversation(ctx, update)
	if err != nil {
		return nil, err
	}
	s.conversationCache.Set(conversation.UID, conversation)
	return conversation, nil
}

func (s *Store) DeleteConversation(ctx context.Context, delete *DeleteConversation) error {
	s.conversationCache.Remove(delete.UID)
	return s.driver.DeleteConversation(ctx, delete)
}

func (s *Store) AppendFullHistory(ctx context.Context, conversationUID string, messages []*Message) error {
	return s.driver.AppendFullHistory(ctx, conversationUID, messages)
}

func (s *Store) ListFullHistory(ctx context.Context, conversationUID string) ([]*Message, error) {
	return s.driver.ListFullHistory(ctx, conversationUID)
}

func (s *Store) ReplaceWorkingHistory(ctx context.Context, conversationUID string, history *WorkingHistory) error {
	return s.driver.ReplaceWorkingHistory(ctx, conversationUID, history)
}

func (s *Store) GetWorkingHistory(ctx context.Context, conversationUID string) (*WorkingHistory, error) {
	return s.driver.GetWorkingHistory(ctx, conversationUID)
}

func (s *Store) AppendEmbedding(ctx context.Context, conversationUID string, embedding *Embedding) error {
	if embedding.CreatedTs == 0 {
		embedding.CreatedTs = time.Now().Unix()
	}
	return s.driver.AppendEmbedding(ctx, conversationUID, embedding)
}

func (s *Store) ListEmbeddings(ctx context.Context, conversationUID string) ([]*Embedding, error) {
	return s.driver.ListEmbeddings(ctx, conversationUID)
}

func (s *Store) CreateAgent(ctx context.Context, create *Agent) (*Agent, error) {
	now := time.Now().Unix()
	if create.CreatedTs == 0 {
		create.CreatedTs = now
	}
	if create.UpdatedTs == 0 {
		create.UpdatedTs = create.CreatedTs
	}
	return s.driver.CreateAgent(ctx, create)
}

func (s *Store) ListAgents(ctx context.Context, find *FindAgent) ([]*Agent, error) {
	return s.driver.ListAgents(ctx, find)
}

// GetAgent returns the agent with the given UID or ErrNotFound.
func (s *Store) GetAgent(ctx context.Context, uid string) (*Agent, error) {
	list, err := s.driver.ListAgents(ctx, &FindAgent{UID: &uid})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, errors.Wrapf(ErrNotFound, "agent %s", uid)
	}
	return list[0], nil
}

// UpdateAgent applies a partial update. It returns ErrNotUpdated when no
// field is set or every set field already holds the requested value.
func (s *Store) UpdateAgent(ctx context.Context, update *UpdateAgent) (*Agent, error) {
	if update.IsEmpty() {
		return nil, ErrNotUpdated
	}
	current, err := s.GetAgent(ctx, update.UID)
	if err != nil {
		return nil, err
	}
	if !agentChanged(current, update) {
		return nil, ErrNotUpdated
	}
	if update.UpdatedTs == nil {
		now := time.Now().Unix()
		update.UpdatedTs = &now
	}
	return s.driver.UpdateAgent(ctx, update)
}

func (s *Store) DeleteAgent(ctx context.Context, delete *DeleteAgent) error {
	return s.driver.DeleteAgent(ctx, delete)
}

func agentChanged(current *Agent, update *UpdateAgent) bool {
	differs := func(field *string, value string) bool {
		return field != nil && *field != value
	}
	return differs(update.Name, current.Name) ||
		differs(update.Resume, current.Resume) ||
		differs(update.Prompt, current.Prompt) ||
		differs(update.Model, current.Model)
}
