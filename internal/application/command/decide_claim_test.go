package command

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deen-kids/deen-progress-engine/internal/domain/reward"
	"github.com/deen-kids/deen-progress-engine/internal/domain/shared"
)

func pendingClaim(t *testing.T, repo *memRewardRepo, id, childID string, cost int) *reward.Claim {
	t.Helper()
	r, err := reward.NewReward("rw-"+id, "fam-1", "Ice cream trip", cost, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, repo.CreateReward(context.Background(), r))

	c, err := reward.NewClaim(id, childID, r, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, repo.CreateClaim(context.Background(), c))
	return c
}

func TestDecideClaim_ApproveDebitsBalance(t *testing.T) {
	childRepo := newMemChildRepo(testChild(t, "child-1", 200))
	rewardRepo := newMemRewardRepo(childRepo)
	pendingClaim(t, rewardRepo, "claim-1", "child-1", 150)
	pub := &capturePublisher{}
	h := NewDecideClaimHandler(rewardRepo, pub)

	result, err := h.Handle(context.Background(), DecideClaimCommand{
		ClaimID:   "claim-1",
		Decision:  reward.DecisionApprove,
		DeciderID: "parent-1",
	})
	require.NoError(t, err)

	assert.True(t, result.Decided)
	assert.Equal(t, 50, result.NewBalance)
	assert.Equal(t, reward.StatusApproved, result.Claim.Status)
	assert.Equal(t, "parent-1", result.Claim.DeciderID)

	events := pub.ofType(shared.EventClaimDecided)
	require.Len(t, events, 1)
	decided := events[0].(shared.ClaimDecidedEvent)
	assert.Equal(t, "approved", decided.Decision)
	assert.Equal(t, 150, decided.PointsSpent)
}

func TestDecideClaim_DenyCostsNothing(t *testing.T) {
	childRepo := newMemChildRepo(testChild(t, "child-1", 200))
	rewardRepo := newMemRewardRepo(childRepo)
	pendingClaim(t, rewardRepo, "claim-1", "child-1", 150)
	pub := &capturePublisher{}
	h := NewDecideClaimHandler(rewardRepo, pub)

	result, err := h.Handle(context.Background(), DecideClaimCommand{
		ClaimID:   "claim-1",
		Decision:  reward.DecisionDeny,
		DeciderID: "parent-1",
	})
	require.NoError(t, err)

	assert.True(t, result.Decided)
	assert.Equal(t, reward.StatusDenied, result.Claim.Status)

	c, err := childRepo.GetByID(context.Background(), "child-1")
	require.NoError(t, err)
	assert.Equal(t, 200, int(c.TotalPoints))

	events := pub.ofType(shared.EventClaimDecided)
	require.Len(t, events, 1)
	assert.Equal(t, 0, events[0].(shared.ClaimDecidedEvent).PointsSpent)
}

func TestDecideClaim_SecondDecisionLoses(t *testing.T) {
	childRepo := newMemChildRepo(testChild(t, "child-1", 200))
	rewardRepo := newMemRewardRepo(childRepo)
	pendingClaim(t, rewardRepo, "claim-1", "child-1", 150)
	pub := &capturePublisher{}
	h := NewDecideClaimHandler(rewardRepo, pub)

	first, err := h.Handle(context.Background(), DecideClaimCommand{
		ClaimID: "claim-1", Decision: reward.DecisionDeny, DeciderID: "parent-1",
	})
	require.NoError(t, err)
	require.True(t, first.Decided)

	// The racing approval finds the claim already decided: no debit, no
	// event, the earlier denial stands.
	second, err := h.Handle(context.Background(), DecideClaimCommand{
		ClaimID: "claim-1", Decision: reward.DecisionApprove, DeciderID: "parent-2",
	})
	require.NoError(t, err)

	assert.False(t, second.Decided)
	assert.Equal(t, reward.StatusDenied, second.Claim.Status)
	assert.Equal(t, "parent-1", second.Claim.DeciderID)

	c, err := childRepo.GetByID(context.Background(), "child-1")
	require.NoError(t, err)
	assert.Equal(t, 200, int(c.TotalPoints))
	assert.Len(t, pub.ofType(shared.EventClaimDecided), 1)
}

func TestDecideClaim_ConcurrentDecisionsExactlyOneWins(t *testing.T) {
	childRepo := newMemChildRepo(testChild(t, "child-1", 200))
	rewardRepo := newMemRewardRepo(childRepo)
	pendingClaim(t, rewardRepo, "claim-1", "child-1", 150)
	pub := &capturePublisher{}
	h := NewDecideClaimHandler(rewardRepo, pub)

	// Two parents decide the same claim at the same moment. The status CAS
	// lets exactly one verdict through; the other sees the claim already
	// terminal.
	commands := []DecideClaimCommand{
		{ClaimID: "claim-1", Decision: reward.DecisionApprove, DeciderID: "parent-1"},
		{ClaimID: "claim-1", Decision: reward.DecisionDeny, DeciderID: "parent-2"},
	}

	results := make([]*DecideClaimResult, len(commands))
	var wg sync.WaitGroup
	for i, cmd := range commands {
		wg.Add(1)
		go func(i int, cmd DecideClaimCommand) {
			defer wg.Done()
			result, err := h.Handle(context.Background(), cmd)
			if assert.NoError(t, err) {
				results[i] = result
			}
		}(i, cmd)
	}
	wg.Wait()

	decided := 0
	for _, r := range results {
		require.NotNil(t, r)
		if r.Decided {
			decided++
		}
	}
	assert.Equal(t, 1, decided)
	assert.Len(t, pub.ofType(shared.EventClaimDecided), 1)

	// The balance reflects the winner: debited once on approval, untouched
	// on denial. Either way it never goes below 50.
	c, err := childRepo.GetByID(context.Background(), "child-1")
	require.NoError(t, err)
	final, err := rewardRepo.GetClaim(context.Background(), "claim-1")
	require.NoError(t, err)
	if final.Status == reward.StatusApproved {
		assert.Equal(t, 50, int(c.TotalPoints))
	} else {
		assert.Equal(t, reward.StatusDenied, final.Status)
		assert.Equal(t, 200, int(c.TotalPoints))
	}
}

func TestDecideClaim_UnderfundedApprovalStaysPending(t *testing.T) {
	childRepo := newMemChildRepo(testChild(t, "child-1", 100))
	rewardRepo := newMemRewardRepo(childRepo)
	pendingClaim(t, rewardRepo, "claim-1", "child-1", 150)
	pub := &capturePublisher{}
	h := NewDecideClaimHandler(rewardRepo, pub)

	_, err := h.Handle(context.Background(), DecideClaimCommand{
		ClaimID:   "claim-1",
		Decision:  reward.DecisionApprove,
		DeciderID: "parent-1",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrInsufficientBalance)

	// The claim is still pending and the balance untouched, so the parent
	// can deny it or wait.
	c, err := rewardRepo.GetClaim(context.Background(), "claim-1")
	require.NoError(t, err)
	assert.Equal(t, reward.StatusPending, c.Status)

	ch, err := childRepo.GetByID(context.Background(), "child-1")
	require.NoError(t, err)
	assert.Equal(t, 100, int(ch.TotalPoints))
	assert.Empty(t, pub.ofType(shared.EventClaimDecided))
}

func TestDecideClaim_Validation(t *testing.T) {
	h := NewDecideClaimHandler(newMemRewardRepo(newMemChildRepo()), &capturePublisher{})

	_, err := h.Handle(context.Background(), DecideClaimCommand{
		ClaimID: "claim-1", Decision: "maybe", DeciderID: "parent-1",
	})
	assert.ErrorIs(t, err, reward.ErrInvalidDecision)

	_, err = h.Handle(context.Background(), DecideClaimCommand{
		Decision: reward.DecisionApprove, DeciderID: "parent-1",
	})
	assert.Error(t, err)
}
