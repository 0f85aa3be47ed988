package llm

import (
	"fmt"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"git.home.luguber.info/inful/docwiki/internal/config"
	"git.home.luguber.info/inful/docwiki/internal/logfields"
)

// Factory constructs a backend for a configuration.
type Factory func(cfg config.LLMConfig) (Backend, error)

// Registry caches constructed backends keyed by provider|model|endpoint.
// It is bounded; the least recently used backend is evicted first.
type Registry struct {
	mu      sync.Mutex
	cache   *lru.Cache[string, Backend]
	factory Factory
}

// NewRegistry returns a registry holding at most size backends. A nil factory uses NewBackend.
func NewRegistry(size int, factory Factory) (*Registry, error) {
	if size <= 0 {
		size = 8
	}
	if factory == nil {
		factory = NewBackend
	}
	cache, err := lru.NewWithEvict(size, func(key string, _ Backend) {
		slog.Debug("Evicted LLM backend", slog.String("key", key))
	})
	if err != nil {
		return nil, fmt.Errorf("create backend registry: %w", err)
	}
	return &Registry{cache: cache, factory: factory}, nil
}

// Key identifies a backend configuration.
func Key(cfg config.LLMConfig) string {
	return cfg.Provider + "|" + cfg.Model + "|" + cfg.Endpoint
}

// Get returns the cached backend for cfg, constructing and rate-limiting it on first use.
func (r *Registry) Get(cfg config.LLMConfig) (Backend, error) {
	key := Key(cfg)

	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.cache.Get(key); ok {
		return b, nil
	}
	b, err := r.factory(cfg)
	if err != nil {
		return nil, err
	}
	b = WithRateLimit(b, cfg.RequestsPerSecond, cfg.Burst)
	r.cache.Add(key, b)
	slog.Info("LLM backend created", logfields.Model(cfg.Model), slog.String("provider", cfg.Provider))
	return b, nil
}

// Len returns the number of cached backends.
func (r *Registry) Len() int {
	return r.cache.Len()
}
