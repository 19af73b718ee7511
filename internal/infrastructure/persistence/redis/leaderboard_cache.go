package redis

import (
	"context"
	"fmt"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// FAMILY LEADERBOARD CACHE
// One sorted set per family, scored by total points. Rebuilt from PostgreSQL
// whenever the set is missing or stale; a cold cache only slows the first
// read, never changes it.
// ══════════════════════════════════════════════════════════════════════════════

// RankedChild is one leaderboard row.
type RankedChild struct {
	// ChildID identifies the child.
	ChildID string `json:"child_id"`

	// Points is the total point balance at ranking time.
	Points int `json:"points"`

	// Rank is the 1-based position within the family, best first.
	Rank int `json:"rank"`
}

// LeaderboardCache maintains per-family sorted sets.
type LeaderboardCache struct {
	cache *Cache
	ttl   time.Duration
}

// NewLeaderboardCache creates a new LeaderboardCache.
func NewLeaderboardCache(cache *Cache, ttl time.Duration) *LeaderboardCache {
	if ttl <= 0 {
		ttl = TTLLeaderboardCache
	}
	return &LeaderboardCache{cache: cache, ttl: ttl}
}

// UpdateScore sets a child's score in the family set. Called after every
// balance change so the next read is already ordered.
func (l *LeaderboardCache) UpdateScore(ctx context.Context, familyID, childID string, points int) error {
	key := LeaderboardKey(familyID)

	if err := l.cache.ZSet(ctx, key, childID, float64(points)); err != nil {
		return fmt.Errorf("failed to update leaderboard score: %w", err)
	}

	return l.cache.Expire(ctx, key, l.ttl)
}

// Rebuild replaces the family set with fresh scores from storage.
func (l *LeaderboardCache) Rebuild(ctx context.Context, familyID string, scores map[string]int) error {
	key := LeaderboardKey(familyID)

	if err := l.cache.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to clear leaderboard: %w", err)
	}
	if len(scores) == 0 {
		return nil
	}

	members := make(map[string]float64, len(scores))
	for childID, points := range scores {
		members[childID] = float64(points)
	}

	if err := l.cache.ZSetBatch(ctx, key, members); err != nil {
		return fmt.Errorf("failed to rebuild leaderboard: %w", err)
	}

	return l.cache.Expire(ctx, key, l.ttl)
}

// Top returns the family's top count children, best first, or ErrCacheMiss
// when the set is absent and needs a rebuild.
func (l *LeaderboardCache) Top(ctx context.Context, familyID string, count int) ([]RankedChild, error) {
	key := LeaderboardKey(familyID)

	exists, err := l.cache.Exists(ctx, key)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrCacheMiss
	}

	zs, err := l.cache.ZTopWithScores(ctx, key, count)
	if err != nil {
		return nil, fmt.Errorf("failed to read leaderboard: %w", err)
	}

	ranked := make([]RankedChild, 0, len(zs))
	for i, z := range zs {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		ranked = append(ranked, RankedChild{
			ChildID: member,
			Points:  int(z.Score),
			Rank:    i + 1,
		})
	}

	return ranked, nil
}

// Rank returns a child's 1-based rank within the family.
// Returns ErrCacheMiss when the child or the set is absent.
func (l *LeaderboardCache) Rank(ctx context.Context, familyID, childID string) (int, error) {
	rank, err := l.cache.ZRevRank(ctx, LeaderboardKey(familyID), childID)
	if err != nil {
		return 0, err
	}
	return int(rank) + 1, nil
}

// Remove drops a child from the family set.
func (l *LeaderboardCache) Remove(ctx context.Context, familyID, childID string) error {
	return l.cache.ZRemove(ctx, LeaderboardKey(familyID), childID)
}

// Invalidate drops the whole family set.
func (l *LeaderboardCache) Invalidate(ctx context.Context, familyID string) error {
	return l.cache.Delete(ctx, LeaderboardKey(familyID))
}
