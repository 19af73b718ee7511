package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/deen-kids/deen-progress-engine/internal/domain/reward"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET REWARD CATALOG QUERY
// ══════════════════════════════════════════════════════════════════════════════

// RewardCatalog is a family's active rewards together with a child's claim
// history, so the claiming surface renders both in one call.
type RewardCatalog struct {
	FamilyID string           `json:"family_id"`
	Rewards  []*reward.Reward `json:"rewards"`
	Claims   []*reward.Claim  `json:"claims,omitempty"`
}

// GetRewardCatalogHandler handles reward catalog queries.
type GetRewardCatalogHandler struct {
	rewardRepo reward.Repository
}

// NewGetRewardCatalogHandler creates a new GetRewardCatalogHandler.
func NewGetRewardCatalogHandler(rewardRepo reward.Repository) *GetRewardCatalogHandler {
	return &GetRewardCatalogHandler{rewardRepo: rewardRepo}
}

// Handle returns the family catalog. When childID is non-empty the child's
// claims are included.
func (h *GetRewardCatalogHandler) Handle(ctx context.Context, familyID, childID string) (*RewardCatalog, error) {
	if familyID == "" {
		return nil, errors.New("get_reward_catalog: family_id is required")
	}

	rewards, err := h.rewardRepo.ListRewards(ctx, familyID)
	if err != nil {
		return nil, fmt.Errorf("get_reward_catalog: list rewards: %w", err)
	}

	catalog := &RewardCatalog{FamilyID: familyID, Rewards: rewards}

	if childID != "" {
		claims, err := h.rewardRepo.ListClaims(ctx, childID)
		if err != nil {
			return nil, fmt.Errorf("get_reward_catalog: list claims: %w", err)
		}
		catalog.Claims = claims
	}

	return catalog, nil
}
