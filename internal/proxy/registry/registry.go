// Package registry caches the proxy's model listing. Entries are keyed
// by endpoint+credential and expire after a TTL, so model resolution
// stays cheap without going stale for long.
package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/lk2023060901/chat-bridge/internal/pkg/logger"
	"github.com/lk2023060901/chat-bridge/internal/proxy/types"
)

// Registry is safe for concurrent use. Refreshes for the same key are
// allowed to race; the last write wins and a stale-but-valid read
// within the TTL is acceptable.
type Registry struct {
	ttl time.Duration
	log *logger.Logger

	mu      sync.RWMutex
	entries map[string]entry
}

type entry struct {
	models    []types.Model
	fetchedAt time.Time
}

// New builds a registry. TTL zero disables caching.
func New(ttl time.Duration, log *logger.Logger) *Registry {
	if log == nil {
		log = logger.L()
	}
	return &Registry{
		ttl:     ttl,
		log:     log,
		entries: make(map[string]entry),
	}
}

// Models returns the endpoint's model listing, served from cache within
// the freshness window.
func (r *Registry) Models(ctx context.Context, cfg *types.Config) ([]types.Model, error) {
	key := cfg.CacheKey()
	if models, ok := r.cached(key); ok {
		return models, nil
	}

	models, err := r.fetch(ctx, cfg)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.entries[key] = entry{models: models, fetchedAt: time.Now()}
	r.mu.Unlock()

	r.log.Debug("model listing refreshed",
		zap.String("endpoint", cfg.BaseURL),
		zap.Int("models", len(models)))
	return models, nil
}

// HasModel reports whether the endpoint serves the given model id.
func (r *Registry) HasModel(ctx context.Context, cfg *types.Config, modelID string) (bool, error) {
	models, err := r.Models(ctx, cfg)
	if err != nil {
		return false, err
	}
	for _, m := range models {
		if m.ID == modelID {
			return true, nil
		}
	}
	return false, nil
}

// Invalidate drops the cached listing for one endpoint.
func (r *Registry) Invalidate(cfg *types.Config) {
	r.mu.Lock()
	delete(r.entries, cfg.CacheKey())
	r.mu.Unlock()
}

func (r *Registry) cached(key string) ([]types.Model, bool) {
	if r.ttl <= 0 {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[key]
	if !ok || time.Since(e.fetchedAt) > r.ttl {
		return nil, false
	}
	return e.models, true
}

// fetch lists models through the OpenAI client pointed at the proxy.
func (r *Registry) fetch(ctx context.Context, cfg *types.Config) ([]types.Model, error) {
	clientCfg := goopenai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = cfg.BaseURL
	client := goopenai.NewClientWithConfig(clientCfg)

	list, err := client.ListModels(ctx)
	if err != nil {
		return nil, types.NewNetworkError("list models", err)
	}

	models := make([]types.Model, 0, len(list.Models))
	for _, m := range list.Models {
		models = append(models, types.Model{
			ID:      m.ID,
			Object:  m.Object,
			Created: m.CreatedAt,
			OwnedBy: m.OwnedBy,
		})
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models, nil
}
