package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/deen-kids/deen-progress-engine/internal/domain/child"
	"github.com/deen-kids/deen-progress-engine/internal/domain/goal"
)

// ══════════════════════════════════════════════════════════════════════════════
// CREATE GOAL COMMAND
// Parents set goals; progress then accrues automatically from ledger facts.
// ══════════════════════════════════════════════════════════════════════════════

// CreateGoalCommand contains the data to create a goal.
type CreateGoalCommand struct {
	// ChildID is the child the goal is set for.
	ChildID string

	// Type determines the counting rule.
	Type goal.Type

	// Title is the parent-facing goal description.
	Title string

	// TargetValue is the value at which the goal completes.
	TargetValue int

	// RewardPoints is credited once on completion.
	RewardPoints int

	// Deadline is an optional soft deadline.
	Deadline *time.Time
}

// Validate validates the command.
func (c CreateGoalCommand) Validate() error {
	if c.ChildID == "" {
		return errors.New("create_goal: child_id is required")
	}
	if !c.Type.IsValid() {
		return fmt.Errorf("create_goal: unknown goal type: %s", c.Type)
	}
	if c.TargetValue <= 0 {
		return errors.New("create_goal: target_value must be positive")
	}
	if c.RewardPoints < 0 {
		return errors.New("create_goal: reward_points must be non-negative")
	}
	return nil
}

// CreateGoalHandler handles the CreateGoalCommand.
type CreateGoalHandler struct {
	childRepo child.Repository
	goalRepo  goal.Repository
}

// NewCreateGoalHandler creates a new CreateGoalHandler.
func NewCreateGoalHandler(childRepo child.Repository, goalRepo goal.Repository) *CreateGoalHandler {
	return &CreateGoalHandler{childRepo: childRepo, goalRepo: goalRepo}
}

// Handle executes the create goal command.
func (h *CreateGoalHandler) Handle(ctx context.Context, cmd CreateGoalCommand) (*goal.Goal, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	// The child must exist; a dangling goal would never progress.
	if _, err := h.childRepo.GetByID(ctx, cmd.ChildID); err != nil {
		return nil, fmt.Errorf("create_goal: load child: %w", err)
	}

	g, err := goal.NewGoal(uuid.NewString(), cmd.ChildID, cmd.Type, cmd.Title,
		cmd.TargetValue, cmd.RewardPoints, cmd.Deadline, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("create_goal: %w", err)
	}

	if err := h.goalRepo.Create(ctx, g); err != nil {
		return nil, fmt.Errorf("create_goal: store: %w", err)
	}

	return g, nil
}
