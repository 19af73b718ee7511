package command

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deen-kids/deen-progress-engine/internal/domain/goal"
	"github.com/deen-kids/deen-progress-engine/internal/domain/reward"
	"github.com/deen-kids/deen-progress-engine/internal/domain/shared"
)

func rewardCatalogEntry(id, familyID string, cost int) (*reward.Reward, error) {
	return reward.NewReward(id, familyID, "Family treat", cost, time.Now().UTC())
}

func activeGoal(t *testing.T, repo *memGoalRepo, id string, target, rewardPoints int) *goal.Goal {
	t.Helper()
	g, err := goal.NewGoal(id, "child-1", goal.TypeStoryReading, "Read ten stories", target, rewardPoints, nil, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, repo.Create(context.Background(), g))
	return g
}

func TestSetGoalProgress_PartialProgress(t *testing.T) {
	childRepo := newMemChildRepo(testChild(t, "child-1", 0))
	goalRepo := newMemGoalRepo(childRepo)
	activeGoal(t, goalRepo, "goal-1", 10, 100)
	pub := &capturePublisher{}
	h := NewSetGoalProgressHandler(goalRepo, pub)

	result, err := h.Handle(context.Background(), SetGoalProgressCommand{GoalID: "goal-1", Value: 4})
	require.NoError(t, err)

	assert.True(t, result.Applied)
	assert.False(t, result.Completed)
	assert.Equal(t, 4, result.Goal.CurrentValue)
	assert.Nil(t, result.Goal.CompletedAt)
	assert.Empty(t, pub.events)
}

func TestSetGoalProgress_ReachingTargetCreditsOnce(t *testing.T) {
	childRepo := newMemChildRepo(testChild(t, "child-1", 0))
	goalRepo := newMemGoalRepo(childRepo)
	activeGoal(t, goalRepo, "goal-1", 10, 100)
	pub := &capturePublisher{}
	h := NewSetGoalProgressHandler(goalRepo, pub)

	result, err := h.Handle(context.Background(), SetGoalProgressCommand{GoalID: "goal-1", Value: 10})
	require.NoError(t, err)

	assert.True(t, result.Applied)
	assert.True(t, result.Completed)
	assert.Equal(t, 100, result.NewBalance)

	require.Len(t, pub.ofType(shared.EventGoalCompleted), 1)
	require.Len(t, pub.ofType(shared.EventPointsCredited), 1)
	credited := pub.ofType(shared.EventPointsCredited)[0].(shared.PointsCreditedEvent)
	assert.Equal(t, "goal_reward", credited.Source)
	assert.Equal(t, 100, credited.Amount)
}

func TestSetGoalProgress_CompletedGoalIsImmutable(t *testing.T) {
	childRepo := newMemChildRepo(testChild(t, "child-1", 0))
	goalRepo := newMemGoalRepo(childRepo)
	activeGoal(t, goalRepo, "goal-1", 10, 100)
	pub := &capturePublisher{}
	h := NewSetGoalProgressHandler(goalRepo, pub)

	_, err := h.Handle(context.Background(), SetGoalProgressCommand{GoalID: "goal-1", Value: 10})
	require.NoError(t, err)

	// A later correction cannot reopen the goal or credit again.
	result, err := h.Handle(context.Background(), SetGoalProgressCommand{GoalID: "goal-1", Value: 3})
	require.NoError(t, err)

	assert.False(t, result.Applied)
	assert.Equal(t, 10, result.Goal.CurrentValue)
	assert.NotNil(t, result.Goal.CompletedAt)

	c, err := childRepo.GetByID(context.Background(), "child-1")
	require.NoError(t, err)
	assert.Equal(t, 100, int(c.TotalPoints))
	assert.Len(t, pub.ofType(shared.EventGoalCompleted), 1)
	assert.Len(t, pub.ofType(shared.EventPointsCredited), 1)
}

func TestSetGoalProgress_CorrectionCannotDecrease(t *testing.T) {
	childRepo := newMemChildRepo(testChild(t, "child-1", 0))
	goalRepo := newMemGoalRepo(childRepo)
	activeGoal(t, goalRepo, "goal-1", 10, 100)
	h := NewSetGoalProgressHandler(goalRepo, &capturePublisher{})

	_, err := h.Handle(context.Background(), SetGoalProgressCommand{GoalID: "goal-1", Value: 5})
	require.NoError(t, err)

	// A lower value leaves the counter where it was; progress is monotone
	// while the goal is open.
	result, err := h.Handle(context.Background(), SetGoalProgressCommand{GoalID: "goal-1", Value: 2})
	require.NoError(t, err)

	assert.True(t, result.Applied)
	assert.Equal(t, 5, result.Goal.CurrentValue)

	got, err := goalRepo.GetByID(context.Background(), "goal-1")
	require.NoError(t, err)
	assert.Equal(t, 5, got.CurrentValue)
}

func TestSetGoalProgress_DeltaAdvances(t *testing.T) {
	childRepo := newMemChildRepo(testChild(t, "child-1", 0))
	goalRepo := newMemGoalRepo(childRepo)
	activeGoal(t, goalRepo, "goal-1", 10, 100)
	pub := &capturePublisher{}
	h := NewSetGoalProgressHandler(goalRepo, pub)

	delta := 4
	result, err := h.Handle(context.Background(), SetGoalProgressCommand{GoalID: "goal-1", Delta: &delta})
	require.NoError(t, err)
	assert.Equal(t, 4, result.Goal.CurrentValue)
	assert.False(t, result.Completed)

	// A second delta that reaches the target completes and credits once.
	delta = 6
	result, err = h.Handle(context.Background(), SetGoalProgressCommand{GoalID: "goal-1", Delta: &delta})
	require.NoError(t, err)
	assert.True(t, result.Completed)
	assert.Equal(t, 100, result.NewBalance)
	assert.Len(t, pub.ofType(shared.EventGoalCompleted), 1)
}

func TestSetGoalProgress_NegativeDeltaRejected(t *testing.T) {
	childRepo := newMemChildRepo(testChild(t, "child-1", 0))
	goalRepo := newMemGoalRepo(childRepo)
	activeGoal(t, goalRepo, "goal-1", 10, 100)
	h := NewSetGoalProgressHandler(goalRepo, &capturePublisher{})

	delta := -3
	_, err := h.Handle(context.Background(), SetGoalProgressCommand{GoalID: "goal-1", Delta: &delta})
	assert.Error(t, err)
}

func TestSetGoalProgress_ValueClampedToTarget(t *testing.T) {
	childRepo := newMemChildRepo(testChild(t, "child-1", 0))
	goalRepo := newMemGoalRepo(childRepo)
	activeGoal(t, goalRepo, "goal-1", 10, 100)
	h := NewSetGoalProgressHandler(goalRepo, &capturePublisher{})

	result, err := h.Handle(context.Background(), SetGoalProgressCommand{GoalID: "goal-1", Value: 25})
	require.NoError(t, err)

	assert.Equal(t, 10, result.Goal.CurrentValue)
	assert.True(t, result.Completed)
}

func TestSetGoalProgress_UnknownGoal(t *testing.T) {
	childRepo := newMemChildRepo()
	h := NewSetGoalProgressHandler(newMemGoalRepo(childRepo), &capturePublisher{})

	_, err := h.Handle(context.Background(), SetGoalProgressCommand{GoalID: "ghost", Value: 1})
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestClaimReward_CrossFamilyRejected(t *testing.T) {
	childRepo := newMemChildRepo(testChild(t, "child-1", 500))
	rewardRepo := newMemRewardRepo(childRepo)
	h := NewClaimRewardHandler(childRepo, rewardRepo)

	// Reward belongs to another family's catalog.
	r, err := rewardCatalogEntry("rw-1", "fam-other", 100)
	require.NoError(t, err)
	require.NoError(t, rewardRepo.CreateReward(context.Background(), r))

	_, err = h.Handle(context.Background(), ClaimRewardCommand{ChildID: "child-1", RewardID: "rw-1"})
	assert.Error(t, err)
}

func TestClaimReward_PendingRegardlessOfBalance(t *testing.T) {
	// 0 points: claiming is still allowed, affordability is decided later.
	childRepo := newMemChildRepo(testChild(t, "child-1", 0))
	rewardRepo := newMemRewardRepo(childRepo)
	h := NewClaimRewardHandler(childRepo, rewardRepo)

	r, err := rewardCatalogEntry("rw-1", "fam-1", 100)
	require.NoError(t, err)
	require.NoError(t, rewardRepo.CreateReward(context.Background(), r))

	claim, err := h.Handle(context.Background(), ClaimRewardCommand{ChildID: "child-1", RewardID: "rw-1"})
	require.NoError(t, err)

	assert.Equal(t, "child-1", claim.ChildID)
	assert.Equal(t, 100, claim.PointsRequired)
	assert.Nil(t, claim.DecidedAt)
}
