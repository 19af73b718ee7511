package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deen-kids/deen-progress-engine/internal/domain/child"
	"github.com/deen-kids/deen-progress-engine/internal/infrastructure/persistence/memory"
	"github.com/deen-kids/deen-progress-engine/internal/infrastructure/persistence/redis"
)

// fakeLeaderboardStore is an in-process LeaderboardStore.
type fakeLeaderboardStore struct {
	ranked   []redis.RankedChild
	topErr   error
	rebuilds []map[string]int
}

func (f *fakeLeaderboardStore) Top(_ context.Context, _ string, _ int) ([]redis.RankedChild, error) {
	if f.topErr != nil {
		return nil, f.topErr
	}
	return f.ranked, nil
}

func (f *fakeLeaderboardStore) Rebuild(_ context.Context, _ string, scores map[string]int) error {
	f.rebuilds = append(f.rebuilds, scores)
	return nil
}

func sibling(t *testing.T, id string, points int) *child.Child {
	t.Helper()
	c, err := child.NewChild(id, "fam-1", "Child "+id, "Asia/Almaty", time.Now().UTC())
	require.NoError(t, err)
	c.TotalPoints = child.Points(points)
	c.IslamicLevel = child.CalculateLevel(c.TotalPoints)
	return c
}

func TestGetLeaderboard_RanksFromStorageOnMiss(t *testing.T) {
	childRepo := memory.NewChildRepository(
		sibling(t, "a", 120), sibling(t, "b", 480), sibling(t, "c", 300),
	)
	cache := &fakeLeaderboardStore{topErr: errors.New("cache miss")}
	h := NewGetLeaderboardHandler(childRepo, cache, nil)

	board, err := h.Handle(context.Background(), "fam-1")
	require.NoError(t, err)
	assert.False(t, board.FromCache)

	require.Len(t, board.Entries, 3)
	assert.Equal(t, []string{"b", "c", "a"}, []string{
		board.Entries[0].ChildID, board.Entries[1].ChildID, board.Entries[2].ChildID,
	})
	assert.Equal(t, 1, board.Entries[0].Rank)
	assert.Equal(t, 480, board.Entries[0].TotalPoints)

	require.Len(t, cache.rebuilds, 1)
	assert.Equal(t, map[string]int{"a": 120, "b": 480, "c": 300}, cache.rebuilds[0])
}

func TestGetLeaderboard_ServesFromCache(t *testing.T) {
	childRepo := memory.NewChildRepository(sibling(t, "a", 120), sibling(t, "b", 480))
	cache := &fakeLeaderboardStore{ranked: []redis.RankedChild{
		{ChildID: "b", Points: 480, Rank: 1},
		{ChildID: "a", Points: 120, Rank: 2},
	}}
	h := NewGetLeaderboardHandler(childRepo, cache, nil)

	board, err := h.Handle(context.Background(), "fam-1")
	require.NoError(t, err)
	assert.True(t, board.FromCache)
	require.Len(t, board.Entries, 2)
	assert.Equal(t, "b", board.Entries[0].ChildID)
	assert.Empty(t, cache.rebuilds)
}

func TestGetLeaderboard_StaleMembershipTriggersRebuild(t *testing.T) {
	// The set only knows one of the two siblings, so the cached ordering
	// cannot be trusted.
	childRepo := memory.NewChildRepository(sibling(t, "a", 120), sibling(t, "b", 480))
	cache := &fakeLeaderboardStore{ranked: []redis.RankedChild{
		{ChildID: "b", Points: 480, Rank: 1},
	}}
	h := NewGetLeaderboardHandler(childRepo, cache, nil)

	board, err := h.Handle(context.Background(), "fam-1")
	require.NoError(t, err)
	assert.False(t, board.FromCache)
	require.Len(t, board.Entries, 2)
	assert.Len(t, cache.rebuilds, 1)
}

func TestGetLeaderboard_NoCacheConfigured(t *testing.T) {
	childRepo := memory.NewChildRepository(sibling(t, "a", 120))
	h := NewGetLeaderboardHandler(childRepo, nil, nil)

	board, err := h.Handle(context.Background(), "fam-1")
	require.NoError(t, err)
	require.Len(t, board.Entries, 1)
	assert.Equal(t, "a", board.Entries[0].ChildID)
}

func TestGetLeaderboard_RequiresFamilyID(t *testing.T) {
	h := NewGetLeaderboardHandler(memory.NewChildRepository(), nil, nil)
	_, err := h.Handle(context.Background(), "")
	assert.Error(t, err)
}
