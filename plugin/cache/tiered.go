package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
)

// Tiered checks L1, then L2, and promotes L2 hits into L1.
// Values cross the L2 boundary as JSON.
type Tiered[V any] struct {
	l1    *LRU[string, V]
	l2    Remote
	l2TTL time.Duration
}

// TieredConfig holds the configuration for the tiered cache.
type TieredConfig struct {
	L1MaxItems int
	L1TTL      time.Duration
	L2TTL      time.Duration
}

// DefaultTieredConfig returns the default tiered cache configuration.
func DefaultTieredConfig() TieredConfig {
	return TieredConfig{
		L1MaxItems: 2000,
		L1TTL:      30 * time.Minute,
		L2TTL:      24 * time.Hour,
	}
}

// NewTiered creates a tiered cache. l2 may be nil.
func NewTiered[V any](cfg TieredConfig, l2 Remote) *Tiered[V] {
	return &Tiered[V]{
		l1:    NewLRU[string, V](cfg.L1MaxItems, cfg.L1TTL),
		l2:    l2,
		l2TTL: cfg.L2TTL,
	}
}

func (t *Tiered[V]) Get(ctx context.Context, key string) (V, bool) {
	if v, ok := t.l1.Get(key); ok {
		return v, true
	}

	var zero V
	if t.l2 == nil {
		return zero, false
	}

	data, ok := t.l2.Get(ctx, key)
	if !ok {
		return zero, false
	}
	var v V
	if err := json.Unmarshal(data, &v); err != nil {
		slog.Warn("failed to decode cached value", "key", key, "error", err)
		return zero, false
	}
	t.l1.Set(key, v, 0)
	return v, true
}

// Set stores value in L1 and, when configured, L2.
func (t *Tiered[V]) Set(ctx context.Context, key string, value V) {
	t.l1.Set(key, value, 0)
	if t.l2 == nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		slog.Warn("failed to encode cache value", "key", key, "error", err)
		return
	}
	t.l2.Set(ctx, key, data, t.l2TTL)
}

// Len returns the L1 size.
func (t *Tiered[V]) Len() int {
	return t.l1.Len()
}
