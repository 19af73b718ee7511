package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/deen-kids/deen-progress-engine/internal/domain/goal"
	"github.com/deen-kids/deen-progress-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SET GOAL PROGRESS COMMAND
// Parent correction path: raise a goal's progress counter, either to an
// explicit value or by a delta. Progress never decreases while the goal is
// open. Reaching the target through a correction completes the goal and
// credits the reward via the same one-time path as automatic progression.
// ══════════════════════════════════════════════════════════════════════════════

// SetGoalProgressCommand contains the data to correct goal progress.
type SetGoalProgressCommand struct {
	// GoalID is the goal to correct.
	GoalID string

	// Value is the explicit progress counter, clamped to the target. A value
	// below the stored counter leaves it unchanged. Ignored when Delta is set.
	Value int

	// Delta, when non-nil, advances the counter by this amount instead of
	// setting it. Must be non-negative.
	Delta *int
}

// Validate validates the command.
func (c SetGoalProgressCommand) Validate() error {
	if c.GoalID == "" {
		return errors.New("set_goal_progress: goal_id is required")
	}
	if c.Delta != nil {
		if *c.Delta < 0 {
			return errors.New("set_goal_progress: delta must be non-negative")
		}
		return nil
	}
	if c.Value < 0 {
		return errors.New("set_goal_progress: value must be non-negative")
	}
	return nil
}

// SetGoalProgressResult contains the result of a progress correction.
type SetGoalProgressResult struct {
	// Goal is the goal after the correction.
	Goal *goal.Goal

	// Applied is false when the goal was already completed; terminal goals
	// never change.
	Applied bool

	// Completed indicates the correction pushed the goal to its target.
	Completed bool

	// NewBalance carries the child's balance after the reward credit, valid
	// only when Completed is true.
	NewBalance int
}

// SetGoalProgressHandler handles the SetGoalProgressCommand.
type SetGoalProgressHandler struct {
	goalRepo       goal.Repository
	eventPublisher shared.EventPublisher
}

// NewSetGoalProgressHandler creates a new SetGoalProgressHandler.
func NewSetGoalProgressHandler(goalRepo goal.Repository, eventPublisher shared.EventPublisher) *SetGoalProgressHandler {
	return &SetGoalProgressHandler{goalRepo: goalRepo, eventPublisher: eventPublisher}
}

// Handle executes the set goal progress command.
func (h *SetGoalProgressHandler) Handle(ctx context.Context, cmd SetGoalProgressCommand) (*SetGoalProgressResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	var (
		g       *goal.Goal
		applied bool
		err     error
	)
	if cmd.Delta != nil {
		g, applied, err = h.goalRepo.AdvanceProgress(ctx, cmd.GoalID, *cmd.Delta)
	} else {
		g, applied, err = h.goalRepo.SetProgress(ctx, cmd.GoalID, cmd.Value)
	}
	if err != nil {
		return nil, fmt.Errorf("set_goal_progress: %w", err)
	}

	result := &SetGoalProgressResult{Goal: g, Applied: applied}
	if !applied || g.CurrentValue < g.TargetValue {
		return result, nil
	}

	// Target reached: complete and credit through the one-time path.
	completedAt := time.Now().UTC()
	completed, newBalance, err := h.goalRepo.CompleteAndCredit(ctx, g.ID, completedAt)
	if err != nil {
		return nil, fmt.Errorf("set_goal_progress: complete: %w", err)
	}
	if !completed {
		// A concurrent writer completed it first; the reward was credited
		// exactly once by whoever won.
		return result, nil
	}

	result.Completed = true
	result.NewBalance = newBalance

	_ = h.eventPublisher.Publish(shared.NewGoalCompletedEvent(
		g.ChildID, g.ID, string(g.Type), g.RewardPoints, completedAt,
	))
	if g.RewardPoints > 0 {
		_ = h.eventPublisher.Publish(shared.NewPointsCreditedEvent(
			g.ChildID, g.RewardPoints, newBalance, "goal_reward", g.ID,
		))
	}

	return result, nil
}
