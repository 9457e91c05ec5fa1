// Package refdata caches the authority-published reference data behind a
// tiered read-through strategy:
// L1: in-memory snapshot with TTL (fast, local to instance)
// L2: Redis (slower, shared across instances, optional)
// L3: database loader (source of truth for the engine)
package refdata

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pos/backend/internal/domain/fbr"
	"github.com/pos/backend/internal/domain/shared"
)

const redisKey = "fbr:refdata:snapshot"

// Loader supplies the reference data from its source of truth
type Loader interface {
	Load(ctx context.Context) (*fbr.ReferenceDataSet, error)
}

// Cache implements fbr.ReferenceProvider over a loader with optional
// memory and redis tiers. A snapshot, once handed out, is never mutated.
type Cache struct {
	loader    Loader
	memoryTTL time.Duration
	redisTTL  time.Duration
	redis     *redis.Client
	logger    *zap.Logger

	mu        sync.RWMutex
	snapshot  *fbr.ReferenceDataSet
	fetchedAt time.Time
}

// Option is a functional option for configuring the cache
type Option func(*Cache)

// WithRedis enables the shared redis tier
func WithRedis(client *redis.Client, ttl time.Duration) Option {
	return func(c *Cache) {
		c.redis = client
		c.redisTTL = ttl
	}
}

// WithLogger sets the logger for the cache
func WithLogger(logger *zap.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// New creates a reference data cache over the given loader
func New(loader Loader, memoryTTL time.Duration, opts ...Option) *Cache {
	c := &Cache{
		loader:    loader,
		memoryTTL: memoryTTL,
		redisTTL:  time.Hour,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Snapshot returns the current reference data set, refreshing expired tiers
// on the way down. With an empty cache and a failing loader it reports
// shared.ErrRefDataUnavailable, which the worker treats as a config-class
// failure (no attempt consumed).
func (c *Cache) Snapshot(ctx context.Context) (*fbr.ReferenceDataSet, error) {
	c.mu.RLock()
	if c.fresh() {
		snap := c.snapshot
		c.mu.RUnlock()
		return snap, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fresh() {
		return c.snapshot, nil
	}

	if snap := c.fromRedis(ctx); snap != nil {
		c.store(snap)
		return snap, nil
	}

	snap, err := c.loader.Load(ctx)
	if err != nil {
		if c.snapshot != nil {
			// Serve the stale snapshot rather than stalling the whole queue
			c.logger.Warn("reference data refresh failed, serving stale snapshot",
				zap.Error(err),
				zap.Time("loaded_at", c.snapshot.LoadedAt),
			)
			return c.snapshot, nil
		}
		return nil, fmt.Errorf("%w: %v", shared.ErrRefDataUnavailable, err)
	}

	c.store(snap)
	c.toRedis(ctx, snap)
	return snap, nil
}

// Invalidate drops the memory and redis tiers, forcing the next Snapshot to
// hit the loader. Called after a reference data import.
func (c *Cache) Invalidate(ctx context.Context) {
	c.mu.Lock()
	c.snapshot = nil
	c.fetchedAt = time.Time{}
	c.mu.Unlock()

	if c.redis != nil {
		if err := c.redis.Del(ctx, redisKey).Err(); err != nil {
			c.logger.Warn("failed to invalidate redis reference data", zap.Error(err))
		}
	}
}

// fresh reports whether the memory tier can serve. Caller holds at least a
// read lock.
func (c *Cache) fresh() bool {
	return c.snapshot != nil && time.Since(c.fetchedAt) < c.memoryTTL
}

// store replaces the memory tier. Caller holds the write lock.
func (c *Cache) store(snap *fbr.ReferenceDataSet) {
	c.snapshot = snap
	c.fetchedAt = time.Now()
}

// fromRedis tries the shared tier; any failure is a miss, never an error
func (c *Cache) fromRedis(ctx context.Context) *fbr.ReferenceDataSet {
	if c.redis == nil {
		return nil
	}
	raw, err := c.redis.Get(ctx, redisKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("redis reference data read failed", zap.Error(err))
		}
		return nil
	}
	var snap fbr.ReferenceDataSet
	if err := json.Unmarshal(raw, &snap); err != nil {
		c.logger.Warn("redis reference data is malformed, ignoring", zap.Error(err))
		return nil
	}
	return &snap
}

// toRedis writes through to the shared tier, best effort
func (c *Cache) toRedis(ctx context.Context, snap *fbr.ReferenceDataSet) {
	if c.redis == nil {
		return
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		c.logger.Warn("failed to encode reference data for redis", zap.Error(err))
		return
	}
	if err := c.redis.Set(ctx, redisKey, raw, c.redisTTL).Err(); err != nil {
		c.logger.Warn("redis reference data write failed", zap.Error(err))
	}
}

var _ fbr.ReferenceProvider = (*Cache)(nil)
