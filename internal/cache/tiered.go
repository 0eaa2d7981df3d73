package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"order-engine/internal/model"
)

// Tiered fronts an optional shared Store with a local TTLCache.
// Shared-tier failures are logged and otherwise ignored: the local tier and the
// caller's loader keep the engine working without Redis.
type Tiered[V any] struct {
	local  *TTLCache[V]
	shared Store // nil disables the shared tier
	ttl    time.Duration
	prefix string
	logger *slog.Logger
}

// NewTiered creates a two-level cache. shared may be nil.
func NewTiered[V any](cfg Config, shared Store, prefix string, logger *slog.Logger) *Tiered[V] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tiered[V]{
		local:  New[V](cfg),
		shared: shared,
		ttl:    cfg.TTL,
		prefix: prefix,
		logger: logger,
	}
}

// Get checks the local tier, then the shared one. A shared hit repopulates the
// local tier for the remaining shared TTL so an entry never outlives its origin.
func (t *Tiered[V]) Get(ctx context.Context, key string) (V, bool) {
	if v, ok := t.local.Get(key); ok {
		return v, true
	}
	var zero V
	if t.shared == nil {
		return zero, false
	}

	data, ttl, err := t.shared.Get(ctx, t.prefix+key)
	if err != nil {
		if !errors.Is(err, model.ErrCacheMiss) {
			t.logger.Warn("shared cache read failed", "key", t.prefix+key, "error", err)
		}
		return zero, false
	}

	var v V
	if err := json.Unmarshal(data, &v); err != nil {
		t.logger.Warn("shared cache entry corrupt", "key", t.prefix+key, "error", err)
		_ = t.shared.Delete(ctx, t.prefix+key)
		return zero, false
	}
	t.local.SetWithTTL(key, v, min(ttl, t.ttl))
	return v, true
}

// Set writes through both tiers.
func (t *Tiered[V]) Set(ctx context.Context, key string, v V) {
	t.local.Set(key, v)
	if t.shared == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		t.logger.Warn("shared cache encode failed", "key", t.prefix+key, "error", err)
		return
	}
	if err := t.shared.Set(ctx, t.prefix+key, data, t.ttl); err != nil {
		t.logger.Warn("shared cache write failed", "key", t.prefix+key, "error", err)
	}
}

// GetOrLoad returns a cached value from either tier or calls load once per key
// across concurrent callers, writing the result through both tiers.
func (t *Tiered[V]) GetOrLoad(ctx context.Context, key string, load func(ctx context.Context) (V, error)) (V, error) {
	if v, ok := t.Get(ctx, key); ok {
		return v, nil
	}
	res, err, _ := t.local.group.Do(key, func() (any, error) {
		if v, ok := t.Get(ctx, key); ok {
			return v, nil
		}
		v, err := load(ctx)
		if err != nil {
			return v, err
		}
		t.Set(ctx, key, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return res.(V), nil
}

// Delete removes key from both tiers.
func (t *Tiered[V]) Delete(ctx context.Context, key string) {
	t.local.Delete(key)
	if t.shared != nil {
		if err := t.shared.Delete(ctx, t.prefix+key); err != nil {
			t.logger.Warn("shared cache delete failed", "key", t.prefix+key, "error", err)
		}
	}
}

// Local exposes the in-memory tier, mainly for sweeping.
func (t *Tiered[V]) Local() *TTLCache[V] {
	return t.local
}
