package eventhandler

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deen-kids/deen-progress-engine/internal/domain/shared"
	"github.com/deen-kids/deen-progress-engine/internal/infrastructure/persistence/memory"
	"github.com/deen-kids/deen-progress-engine/pkg/retry"
)

type recordingInvalidator struct {
	mu       sync.Mutex
	childIDs []string
	err      error
}

func (f *recordingInvalidator) Invalidate(_ context.Context, childID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.childIDs = append(f.childIDs, childID)
	return nil
}

type recordingScorer struct {
	mu      sync.Mutex
	updates []scoreUpdate
}

type scoreUpdate struct {
	familyID string
	childID  string
	points   int
}

func (f *recordingScorer) UpdateScore(_ context.Context, familyID, childID string, points int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, scoreUpdate{familyID, childID, points})
	return nil
}

func TestOnBalanceChanged_RefreshesCaches(t *testing.T) {
	c := testChild(t, "child-1")
	c.TotalPoints = 230
	childRepo := memory.NewChildRepository(c)
	snapshots := &recordingInvalidator{}
	leaderboard := &recordingScorer{}
	h := NewBalanceChangedHandler(childRepo, snapshots, leaderboard, nil)

	err := h.Handle(shared.NewPointsCreditedEvent("child-1", 30, 230, "activity", "act-1"))
	require.NoError(t, err)

	assert.Equal(t, []string{"child-1"}, snapshots.childIDs)
	require.Len(t, leaderboard.updates, 1)
	assert.Equal(t, scoreUpdate{"fam-1", "child-1", 230}, leaderboard.updates[0])
}

func TestOnBalanceChanged_CoversAllBalanceMovingEvents(t *testing.T) {
	childRepo := memory.NewChildRepository(testChild(t, "child-1"))
	snapshots := &recordingInvalidator{}
	h := NewBalanceChangedHandler(childRepo, snapshots, &recordingScorer{}, nil)

	events := []shared.Event{
		shared.NewPointsCreditedEvent("child-1", 10, 10, "activity", "act-1"),
		shared.NewClaimDecidedEvent("child-1", "claim-1", "rw-1", "approved", "parent-1", 50),
		shared.NewBalanceDriftEvent("child-1", 99, 10, true),
		shared.NewStreakUpdatedEvent("child-1", 2, 2, 1),
	}
	for _, e := range events {
		require.NoError(t, h.Handle(e))
	}
	assert.Len(t, snapshots.childIDs, len(events))
}

func TestOnBalanceChanged_NilCachesAreFine(t *testing.T) {
	childRepo := memory.NewChildRepository(testChild(t, "child-1"))
	h := NewBalanceChangedHandler(childRepo, nil, nil, nil)

	err := h.Handle(shared.NewPointsCreditedEvent("child-1", 10, 10, "activity", "act-1"))
	assert.NoError(t, err)
}

func TestOnBalanceChanged_CacheFailureOnlyCostsFreshness(t *testing.T) {
	childRepo := memory.NewChildRepository(testChild(t, "child-1"))
	snapshots := &recordingInvalidator{err: retry.Permanent(errors.New("cache down"))}
	leaderboard := &recordingScorer{}
	h := NewBalanceChangedHandler(childRepo, snapshots, leaderboard, nil)

	// Invalidation failure is logged, not propagated; the score still lands.
	err := h.Handle(shared.NewPointsCreditedEvent("child-1", 10, 10, "activity", "act-1"))
	require.NoError(t, err)
	assert.Len(t, leaderboard.updates, 1)
}

func TestOnBalanceChanged_UnknownChildFails(t *testing.T) {
	h := NewBalanceChangedHandler(memory.NewChildRepository(), nil, nil, nil)

	err := h.Handle(shared.NewPointsCreditedEvent("ghost", 10, 10, "activity", "act-1"))
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestOnBalanceChanged_IgnoresForeignEvents(t *testing.T) {
	snapshots := &recordingInvalidator{}
	h := NewBalanceChangedHandler(memory.NewChildRepository(), snapshots, nil, nil)

	require.NoError(t, h.Handle(shared.NewLevelUpEvent("child-1", 1, 2)))
	assert.Empty(t, snapshots.childIDs)
}
