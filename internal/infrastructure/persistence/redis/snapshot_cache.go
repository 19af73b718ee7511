package redis

import (
	"context"
	"time"
)

// SnapshotCache caches assembled progress snapshots per child. The snapshot
// structure is owned by the query layer; this cache treats it as an opaque
// JSON document so the read model can evolve without touching storage code.
type SnapshotCache struct {
	cache *Cache
	ttl   time.Duration
}

// NewSnapshotCache creates a new SnapshotCache.
func NewSnapshotCache(cache *Cache, ttl time.Duration) *SnapshotCache {
	if ttl <= 0 {
		ttl = TTLSnapshotCache
	}
	return &SnapshotCache{cache: cache, ttl: ttl}
}

// Get loads a cached snapshot into dest.
// Returns ErrCacheMiss when the child has no cached snapshot.
func (s *SnapshotCache) Get(ctx context.Context, childID string, dest interface{}) error {
	return s.cache.Get(ctx, SnapshotKey(childID), dest)
}

// Set stores a snapshot.
func (s *SnapshotCache) Set(ctx context.Context, childID string, snapshot interface{}) error {
	return s.cache.Set(ctx, SnapshotKey(childID), snapshot, s.ttl)
}

// Invalidate drops a child's cached snapshot. Called after every write that
// changes balance, streaks, goals, achievements or claims.
func (s *SnapshotCache) Invalidate(ctx context.Context, childID string) error {
	return s.cache.Delete(ctx, SnapshotKey(childID), SummaryKey(childID))
}
