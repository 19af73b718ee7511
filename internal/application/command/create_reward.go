package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/deen-kids/deen-progress-engine/internal/domain/child"
	"github.com/deen-kids/deen-progress-engine/internal/domain/reward"
)

// ══════════════════════════════════════════════════════════════════════════════
// CREATE REWARD COMMAND
// Adds an entry to the family's reward catalog.
// ══════════════════════════════════════════════════════════════════════════════

// CreateRewardCommand contains the data to create a catalog entry.
type CreateRewardCommand struct {
	// FamilyID scopes the reward to one family.
	FamilyID string

	// Title is the parent-facing reward description.
	Title string

	// PointsRequired is the cost in points.
	PointsRequired int
}

// Validate validates the command.
func (c CreateRewardCommand) Validate() error {
	if c.FamilyID == "" {
		return errors.New("create_reward: family_id is required")
	}
	if c.Title == "" {
		return errors.New("create_reward: title is required")
	}
	if c.PointsRequired <= 0 {
		return errors.New("create_reward: points_required must be positive")
	}
	return nil
}

// CreateRewardHandler handles the CreateRewardCommand.
type CreateRewardHandler struct {
	familyRepo child.FamilyRepository
	rewardRepo reward.Repository
}

// NewCreateRewardHandler creates a new CreateRewardHandler.
func NewCreateRewardHandler(familyRepo child.FamilyRepository, rewardRepo reward.Repository) *CreateRewardHandler {
	return &CreateRewardHandler{familyRepo: familyRepo, rewardRepo: rewardRepo}
}

// Handle executes the create reward command.
func (h *CreateRewardHandler) Handle(ctx context.Context, cmd CreateRewardCommand) (*reward.Reward, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	if _, err := h.familyRepo.GetByID(ctx, cmd.FamilyID); err != nil {
		return nil, fmt.Errorf("create_reward: load family: %w", err)
	}

	r, err := reward.NewReward(uuid.NewString(), cmd.FamilyID, cmd.Title, cmd.PointsRequired, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("create_reward: %w", err)
	}

	if err := h.rewardRepo.CreateReward(ctx, r); err != nil {
		return nil, fmt.Errorf("create_reward: store: %w", err)
	}

	return r, nil
}
