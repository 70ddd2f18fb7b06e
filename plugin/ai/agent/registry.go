package agent

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hrygo/recall/plugin/ai/cache"
	"github.com/hrygo/recall/plugin/ai/timeout"
	"github.com/hrygo/recall/store"
)

// Builder constructs the session for a conversation the registry has not seen.
type Builder func(ctx context.Context, id string) (*Session, error)

// RegistryConfig bounds the number of resident sessions.
type RegistryConfig struct {
	// Capacity is the resident session count above which idle sessions are evicted.
	Capacity int
	// IdleTTL evicts sessions unused for this long.
	IdleTTL time.Duration
	// CleanupInterval is how often expired sessions are swept.
	CleanupInterval time.Duration
}

// DefaultRegistryConfig returns the default registry bounds.
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		Capacity:        256,
		IdleTTL:         30 * time.Minute,
		CleanupInterval: time.Minute,
	}
}

// Registry maps conversation UIDs to live sessions.
// A session that is leased or has a turn in flight is never evicted.
type Registry struct {
	// mu covers check-then-insert only; builds run outside it.
	mu       sync.Mutex
	closed   bool
	sessions *cache.Service[*Session]
	group    singleflight.Group
}

// NewRegistry creates a Registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	defaults := DefaultRegistryConfig()
	if cfg.Capacity <= 0 {
		cfg.Capacity = defaults.Capacity
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = defaults.IdleTTL
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = defaults.CleanupInterval
	}

	return &Registry{
		sessions: cache.NewService(cache.ServiceConfig{
			Capacity:        cfg.Capacity,
			IdleTTL:         cfg.IdleTTL,
			CleanupInterval: cfg.CleanupInterval,
		},
			cache.WithEvictable(func(_ string, s *Session) bool { return !s.Busy() }),
			cache.WithOnEvict(func(id string, _ *Session) {
				slog.Debug("session evicted", "conversation_id", id)
			}),
		),
	}
}

// GetOrCreate returns the session for id, building it with build on first use.
// Concurrent callers for the same unseen id share one build.
//
// The returned session carries a lease: it stays resident, and every caller
// for id gets this same session, until Release is called. A session is only
// evicted while nobody holds it, so dropping one never splits a conversation
// between two live sessions.
func (r *Registry) GetOrCreate(ctx context.Context, id string, build Builder) (*Session, error) {
	if id == "" {
		return nil, errors.New("ephemeral sessions are not registered")
	}

	for {
		if s, ok, err := r.acquire(id); err != nil || ok {
			return s, err
		}

		_, err, _ := r.group.Do(id, func() (any, error) {
			if _, ok, err := r.lookup(id); err != nil || ok {
				return nil, err
			}

			// The build is shared, so it must not die with the first caller.
			bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout.SessionLoadTimeout)
			defer cancel()
			s, err := build(bctx, id)
			if err != nil {
				return nil, err
			}

			r.mu.Lock()
			defer r.mu.Unlock()
			if r.closed {
				return nil, ErrSessionClosed
			}
			if _, ok := r.sessions.Get(id); !ok {
				r.sessions.Set(id, s)
				slog.Debug("session created", "conversation_id", id, "resident", r.sessions.Size())
			}
			return nil, nil
		})
		if err != nil {
			return nil, err
		}
		// A fresh session nobody holds yet can be evicted before acquire
		// runs; nothing uses it then, so another round builds a new one.
	}
}

// acquire returns the resident session for id with a lease taken.
func (r *Registry) acquire(id string) (*Session, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, false, ErrSessionClosed
	}
	s, ok := r.sessions.GetAndHold(id, (*Session).hold)
	return s, ok, nil
}

func (r *Registry) lookup(id string) (*Session, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, false, ErrSessionClosed
	}
	s, ok := r.sessions.Get(id)
	return s, ok, nil
}

// Remove drops the session for id, e.g. after its conversation was deleted.
func (r *Registry) Remove(id string) bool {
	_, ok := r.sessions.Remove(id)
	return ok
}

// Len returns the number of resident sessions.
func (r *Registry) Len() int {
	return r.sessions.Size()
}

// Close stops the sweeper and drops every session.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.sessions.Close()
	r.sessions.Clear()
}

// ConversationStore is the store surface needed to rebuild a session.
type ConversationStore interface {
	Persistence
	GetConversation(ctx context.Context, uid string) (*store.Conversation, error)
	GetWorkingHistory(ctx context.Context, uid string) (*store.WorkingHistory, error)
}

// StoreBuilder builds sessions from persisted conversations. defaults supplies
// the models for conversations stored without one.
func StoreBuilder(st ConversationStore, deps Deps, defaults AgentConfig) Builder {
	deps.Store = st
	return func(ctx context.Context, id string) (*Session, error) {
		conv, err := st.GetConversation(ctx, id)
		if err != nil {
			return nil, err
		}
		working, err := st.GetWorkingHistory(ctx, id)
		if err != nil {
			return nil, err
		}
		cfg := ConfigFromConversation(conv).WithDefaults(defaults.Model, defaults.SummaryModel)
		return NewSession(id, cfg, deps, working)
	}
}
