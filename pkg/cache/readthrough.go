package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/afeezaziz/arkrelay-gateway/pkg/logger"
)

// localEntry is one slot in the in-process tier of ReadThrough.
type localEntry struct {
	value     string
	expiresAt time.Time
}

// Stats tracks ReadThrough hit/miss counters for observability.
type Stats struct {
	Hits       int64
	Misses     int64
	LocalHits  int64
	RedisHits  int64
	Sets       int64
	Deletes    int64
	Evictions  int64
}

// ReadThrough is a two-tier cache: a short-TTL in-process map in front of
// Redis. A lookup checks the local tier first, then Redis, and backfills the
// local tier on a Redis hit. Writes invalidate both tiers so stale local
// entries never outlive a write. Any Redis failure degrades to "miss"
// rather than propagating — the cache is an optimization, not a dependency.
type ReadThrough struct {
	mu        sync.Mutex
	local     map[string]localEntry
	localTTL  time.Duration
	stats     Stats
}

// NewReadThrough creates a ReadThrough cache whose local tier entries live
// for localTTL before they must be revalidated against Redis.
func NewReadThrough(localTTL time.Duration) *ReadThrough {
	if localTTL <= 0 {
		localTTL = 2 * time.Second
	}
	return &ReadThrough{
		local:    make(map[string]localEntry),
		localTTL: localTTL,
	}
}

// cacheKey hashes namespace+key into a short, collision-resistant Redis key.
func cacheKey(namespace, key string) string {
	sum := md5.Sum([]byte(namespace + ":" + key))
	return namespace + ":" + hex.EncodeToString(sum[:])
}

// Get returns the cached value for (namespace, key), checking the local tier
// before falling back to Redis. The second return value is false on a miss
// in both tiers, or if Redis is unreachable.
func (r *ReadThrough) Get(ctx context.Context, namespace, key string) (string, bool) {
	rk := cacheKey(namespace, key)

	r.mu.Lock()
	if entry, ok := r.local[rk]; ok {
		if time.Now().Before(entry.expiresAt) {
			r.stats.Hits++
			r.stats.LocalHits++
			r.mu.Unlock()
			return entry.value, true
		}
		delete(r.local, rk)
		r.stats.Evictions++
	}
	r.mu.Unlock()

	val, err := Get(ctx, rk)
	if err != nil || val == "" {
		r.mu.Lock()
		r.stats.Misses++
		r.mu.Unlock()
		return "", false
	}

	r.mu.Lock()
	r.local[rk] = localEntry{value: val, expiresAt: time.Now().Add(r.localTTL)}
	r.stats.Hits++
	r.stats.RedisHits++
	r.mu.Unlock()

	return val, true
}

// Set writes value to Redis with the given TTL and seeds the local tier.
// A Redis failure is logged and swallowed — callers should never block on
// cache availability.
func (r *ReadThrough) Set(ctx context.Context, namespace, key, value string, ttl time.Duration) {
	rk := cacheKey(namespace, key)

	if err := Set(ctx, rk, value, ttl); err != nil {
		logger.Warn("read-through cache set failed, serving local tier only",
			zap.String("namespace", namespace), zap.Error(err))
	}

	r.mu.Lock()
	localTTL := r.localTTL
	if ttl > 0 && ttl < localTTL {
		localTTL = ttl
	}
	r.local[rk] = localEntry{value: value, expiresAt: time.Now().Add(localTTL)}
	r.stats.Sets++
	r.mu.Unlock()
}

// Invalidate removes (namespace, key) from both tiers.
func (r *ReadThrough) Invalidate(ctx context.Context, namespace, key string) {
	rk := cacheKey(namespace, key)

	r.mu.Lock()
	delete(r.local, rk)
	r.stats.Deletes++
	r.mu.Unlock()

	if _, err := Delete(ctx, rk); err != nil {
		logger.Warn("read-through cache invalidate failed", zap.String("namespace", namespace), zap.Error(err))
	}
}

// StatsSnapshot returns a snapshot of the cache's hit/miss counters.
func (r *ReadThrough) StatsSnapshot() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}
