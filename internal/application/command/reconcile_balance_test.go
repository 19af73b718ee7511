package command

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deen-kids/deen-progress-engine/internal/domain/child"
	"github.com/deen-kids/deen-progress-engine/internal/domain/goal"
	"github.com/deen-kids/deen-progress-engine/internal/domain/ledger"
	"github.com/deen-kids/deen-progress-engine/internal/domain/shared"
)

// seedHistory records two activities, completes a goal, and approves a claim,
// leaving the child with 10+20+50-30 = 50 points.
func seedHistory(t *testing.T) (*memChildRepo, *memLedgerRepo, *memGoalRepo, *memRewardRepo) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	childRepo := newMemChildRepo(testChild(t, "child-1", 0))
	ledgerRepo := newMemLedgerRepo(childRepo)
	goalRepo := newMemGoalRepo(childRepo)
	rewardRepo := newMemRewardRepo(childRepo)

	for i, points := range []int{10, 20} {
		a, err := ledger.NewActivity(
			"act-"+string(rune('a'+i)), "child-1", ledger.ActivityGoodDeed,
			points, now.Add(time.Duration(-i)*time.Hour), ledger.DedupKey("deed-"+string(rune('a'+i))), now)
		require.NoError(t, err)
		res, err := ledgerRepo.Append(ctx, a)
		require.NoError(t, err)
		require.True(t, res.Accepted)
	}

	g, err := goal.NewGoal("goal-1", "child-1", goal.TypeDailyPrayers, "Five a day", 5, 50, nil, now)
	require.NoError(t, err)
	require.NoError(t, goalRepo.Create(ctx, g))
	completed, _, err := goalRepo.CompleteAndCredit(ctx, "goal-1", now)
	require.NoError(t, err)
	require.True(t, completed)

	pendingClaim(t, rewardRepo, "claim-1", "child-1", 30)
	decided, _, err := rewardRepo.ApproveAndDebit(ctx, "claim-1", "parent-1", now)
	require.NoError(t, err)
	require.True(t, decided)

	return childRepo, ledgerRepo, goalRepo, rewardRepo
}

func TestReconcileBalance_ConsistentBalance(t *testing.T) {
	childRepo, ledgerRepo, goalRepo, rewardRepo := seedHistory(t)
	pub := &capturePublisher{}
	h := NewReconcileBalanceHandler(childRepo, ledgerRepo, goalRepo, rewardRepo, pub)

	result, err := h.Handle(context.Background(), ReconcileBalanceCommand{ChildID: "child-1"})
	require.NoError(t, err)

	assert.True(t, result.Consistent)
	assert.Equal(t, 50, result.StoredBalance)
	assert.Equal(t, 50, result.DerivedBalance)
	assert.False(t, result.Repaired)
	assert.Empty(t, pub.ofType(shared.EventBalanceDriftDetected))
}

func TestReconcileBalance_DetectsDriftWithoutRepair(t *testing.T) {
	childRepo, ledgerRepo, goalRepo, rewardRepo := seedHistory(t)
	// Tamper with the materialized balance behind the ledger's back.
	require.NoError(t, childRepo.SetBalance(context.Background(), "child-1", child.Points(999)))

	pub := &capturePublisher{}
	h := NewReconcileBalanceHandler(childRepo, ledgerRepo, goalRepo, rewardRepo, pub)

	result, err := h.Handle(context.Background(), ReconcileBalanceCommand{ChildID: "child-1"})
	require.NoError(t, err)

	assert.False(t, result.Consistent)
	assert.Equal(t, 999, result.StoredBalance)
	assert.Equal(t, 50, result.DerivedBalance)
	assert.False(t, result.Repaired)

	// Audit-only: the stored balance is left as evidence.
	c, err := childRepo.GetByID(context.Background(), "child-1")
	require.NoError(t, err)
	assert.Equal(t, 999, int(c.TotalPoints))

	events := pub.ofType(shared.EventBalanceDriftDetected)
	require.Len(t, events, 1)
	drift := events[0].(shared.BalanceDriftEvent)
	assert.Equal(t, 999, drift.StoredBalance)
	assert.Equal(t, 50, drift.DerivedBalance)
	assert.False(t, drift.Repaired)
}

func TestReconcileBalance_RepairOverwritesStored(t *testing.T) {
	childRepo, ledgerRepo, goalRepo, rewardRepo := seedHistory(t)
	require.NoError(t, childRepo.SetBalance(context.Background(), "child-1", child.Points(999)))

	pub := &capturePublisher{}
	h := NewReconcileBalanceHandler(childRepo, ledgerRepo, goalRepo, rewardRepo, pub)

	result, err := h.Handle(context.Background(), ReconcileBalanceCommand{ChildID: "child-1", Repair: true})
	require.NoError(t, err)

	assert.False(t, result.Consistent)
	assert.True(t, result.Repaired)

	c, err := childRepo.GetByID(context.Background(), "child-1")
	require.NoError(t, err)
	assert.Equal(t, 50, int(c.TotalPoints))
	assert.Equal(t, child.CalculateLevel(50), c.IslamicLevel)

	events := pub.ofType(shared.EventBalanceDriftDetected)
	require.Len(t, events, 1)
	assert.True(t, events[0].(shared.BalanceDriftEvent).Repaired)
}

func TestReconcileBalance_UnknownChild(t *testing.T) {
	childRepo := newMemChildRepo()
	h := NewReconcileBalanceHandler(
		childRepo, newMemLedgerRepo(childRepo), newMemGoalRepo(childRepo),
		newMemRewardRepo(childRepo), &capturePublisher{})

	_, err := h.Handle(context.Background(), ReconcileBalanceCommand{ChildID: "ghost"})
	assert.ErrorIs(t, err, shared.ErrNotFound)
}
