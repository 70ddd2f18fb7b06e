package cache

import (
	"context"
	"sync"
	"time"
)

// ServiceConfig configures the cache service.
type ServiceConfig struct {
	Capacity        int           // Maximum number of entries (default: 256)
	IdleTTL         time.Duration // Idle time before an entry expires (default: 30 minutes)
	CleanupInterval time.Duration // Interval for expired entry cleanup (default: 1 minute)
}

// DefaultServiceConfig returns default cache service configuration.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Capacity:        256,
		IdleTTL:         30 * time.Minute,
		CleanupInterval: time.Minute,
	}
}

// Service wraps an LRUCache with a background janitor that drops idle entries.
type Service[V any] struct {
	*LRUCache[V]

	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once

	cleanupInterval time.Duration
}

// NewService creates a new cache service and starts its cleanup loop.
func NewService[V any](cfg ServiceConfig, opts ...Option[V]) *Service[V] {
	def := DefaultServiceConfig()
	if cfg.Capacity <= 0 {
		cfg.Capacity = def.Capacity
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = def.IdleTTL
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Service[V]{
		LRUCache:        NewLRUCache(cfg.Capacity, cfg.IdleTTL, opts...),
		cancel:          cancel,
		cleanupInterval: cfg.CleanupInterval,
	}

	// Start background cleanup
	s.wg.Add(1)
	go s.cleanupLoop(ctx)

	return s
}

// Close stops the cleanup loop. Cached entries are left in place.
func (s *Service[V]) Close() {
	s.once.Do(func() {
		s.cancel()
		s.wg.Wait()
	})
}

// cleanupLoop periodically removes expired entries.
func (s *Service[V]) cleanupLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.CleanupExpired()
		}
	}
}
