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
// CLAIM REWARD COMMAND
// A child asks to spend points on a catalog reward. Creating the claim never
// checks the balance; affordability is decided later by the parent, against
// the balance at decision time.
// ══════════════════════════════════════════════════════════════════════════════

// ClaimRewardCommand contains the data to create a claim.
type ClaimRewardCommand struct {
	// ChildID is the claiming child.
	ChildID string

	// RewardID references the catalog entry.
	RewardID string
}

// Validate validates the command.
func (c ClaimRewardCommand) Validate() error {
	if c.ChildID == "" {
		return errors.New("claim_reward: child_id is required")
	}
	if c.RewardID == "" {
		return errors.New("claim_reward: reward_id is required")
	}
	return nil
}

// ClaimRewardHandler handles the ClaimRewardCommand.
type ClaimRewardHandler struct {
	childRepo  child.Repository
	rewardRepo reward.Repository
}

// NewClaimRewardHandler creates a new ClaimRewardHandler.
func NewClaimRewardHandler(childRepo child.Repository, rewardRepo reward.Repository) *ClaimRewardHandler {
	return &ClaimRewardHandler{childRepo: childRepo, rewardRepo: rewardRepo}
}

// Handle executes the claim reward command.
func (h *ClaimRewardHandler) Handle(ctx context.Context, cmd ClaimRewardCommand) (*reward.Claim, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	ch, err := h.childRepo.GetByID(ctx, cmd.ChildID)
	if err != nil {
		return nil, fmt.Errorf("claim_reward: load child: %w", err)
	}

	r, err := h.rewardRepo.GetReward(ctx, cmd.RewardID)
	if err != nil {
		return nil, fmt.Errorf("claim_reward: load reward: %w", err)
	}
	if r.FamilyID != ch.FamilyID.String() {
		return nil, fmt.Errorf("claim_reward: reward %s does not belong to the child's family", cmd.RewardID)
	}

	claim, err := reward.NewClaim(uuid.NewString(), cmd.ChildID, r, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("claim_reward: %w", err)
	}

	if err := h.rewardRepo.CreateClaim(ctx, claim); err != nil {
		return nil, fmt.Errorf("claim_reward: store: %w", err)
	}

	return claim, nil
}
