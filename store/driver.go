package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for store driver.
// It contains all methods that store database driver should implement.
//
// Per-conversation methods return ErrNotFound for an unknown conversation
// and ErrCorrupted when stored data cannot be decoded.
type Driver interface {
	Close() error

	IsInitialized(ctx context.Context) (bool, error)

	// Conversation model related methods.
	CreateConversation(ctx context.Context, create *Conversation) (*Conversation, error)
	ListConversations(ctx context.Context, find *FindConversation) ([]*Conversation, error)
	UpdateConversation(ctx context.Context, update *UpdateConversation) (*Conversation, error)
	DeleteConversation(ctx context.Context, delete *DeleteConversation) error

	// AppendFullHistory appends messages to the append-only full history.
	AppendFullHistory(ctx context.Context, conversationUID string, messages []*Message) error
	ListFullHistory(ctx context.Context, conversationUID string) ([]*Message, error)

	// ReplaceWorkingHistory overwrites the working history and summary.
	ReplaceWorkingHistory(ctx context.Context, conversationUID string, history *WorkingHistory) error
	GetWorkingHistory(ctx context.Context, conversationUID string) (*WorkingHistory, error)

	// Embedding related methods.
	AppendEmbedding(ctx context.Context, conversationUID string, embedding *Embedding) error
	ListEmbeddings(ctx context.Context, conversationUID string) ([]*Embedding, error)

	// Agent model related methods.
	CreateAgent(ctx context.Context, create *Agent) (*Agent, error)
	ListAgents(ctx context.Context, find *FindAgent) ([]*Agent, error)
	UpdateAgent(ctx context.Context, update *UpdateAgent) (*Agent, error)
	DeleteAgent(ctx context.Context, delete *DeleteAgent) error
}

// SQLDriver is implemented by drivers backed by database/sql.
type SQLDriver interface {
	Driver
	GetDB() *sql.DB
}
