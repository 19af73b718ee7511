package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/deen-kids/deen-progress-engine/internal/domain/achievement"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACKNOWLEDGE ACHIEVEMENT COMMAND
// Flips the celebration flag exactly once, so the consuming surface shows
// each badge celebration a single time even when the child taps twice.
// ══════════════════════════════════════════════════════════════════════════════

// AcknowledgeAchievementCommand contains the data to acknowledge a celebration.
type AcknowledgeAchievementCommand struct {
	// ChildID is the child whose celebration was viewed.
	ChildID string

	// DefinitionID references the badge catalog.
	DefinitionID string
}

// Validate validates the command.
func (c AcknowledgeAchievementCommand) Validate() error {
	if c.ChildID == "" {
		return errors.New("acknowledge_achievement: child_id is required")
	}
	if c.DefinitionID == "" {
		return errors.New("acknowledge_achievement: definition_id is required")
	}
	return nil
}

// AcknowledgeAchievementResult contains the outcome of the acknowledgement.
type AcknowledgeAchievementResult struct {
	// Acknowledged is false when the flag had already been flipped; the
	// repeat tap is a no-op, not an error.
	Acknowledged bool
}

// AcknowledgeAchievementHandler handles the AcknowledgeAchievementCommand.
type AcknowledgeAchievementHandler struct {
	achievementRepo achievement.Repository
}

// NewAcknowledgeAchievementHandler creates a new AcknowledgeAchievementHandler.
func NewAcknowledgeAchievementHandler(achievementRepo achievement.Repository) *AcknowledgeAchievementHandler {
	return &AcknowledgeAchievementHandler{achievementRepo: achievementRepo}
}

// Handle executes the acknowledge achievement command.
func (h *AcknowledgeAchievementHandler) Handle(ctx context.Context, cmd AcknowledgeAchievementCommand) (*AcknowledgeAchievementResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	acknowledged, err := h.achievementRepo.Acknowledge(ctx, cmd.ChildID, cmd.DefinitionID)
	if err != nil {
		return nil, fmt.Errorf("acknowledge_achievement: %w", err)
	}

	return &AcknowledgeAchievementResult{Acknowledged: acknowledged}, nil
}
