package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/deen-kids/deen-progress-engine/internal/domain/reward"
	"github.com/deen-kids/deen-progress-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// DECIDE CLAIM COMMAND
// Parent verdict on a pending claim. Approval debits the balance in the same
// transaction as the status flip; denial costs nothing. Of two racing
// decisions exactly one wins.
// ══════════════════════════════════════════════════════════════════════════════

// DecideClaimCommand contains the data to decide a claim.
type DecideClaimCommand struct {
	// ClaimID is the claim being decided.
	ClaimID string

	// Decision is approved or denied.
	Decision reward.Decision

	// DeciderID identifies the deciding parent.
	DeciderID string
}

// Validate validates the command.
func (c DecideClaimCommand) Validate() error {
	if c.ClaimID == "" {
		return errors.New("decide_claim: claim_id is required")
	}
	if !c.Decision.IsValid() {
		return fmt.Errorf("decide_claim: %w: %s", reward.ErrInvalidDecision, c.Decision)
	}
	if c.DeciderID == "" {
		return errors.New("decide_claim: decider_id is required")
	}
	return nil
}

// DecideClaimResult contains the result of a claim decision.
type DecideClaimResult struct {
	// Decided is false when the claim had already been decided; the earlier
	// decision stands and nothing changed.
	Decided bool

	// Claim is the claim after the command.
	Claim *reward.Claim

	// NewBalance is the child's balance after an approval debit. Unchanged
	// on denial.
	NewBalance int
}

// DecideClaimHandler handles the DecideClaimCommand.
type DecideClaimHandler struct {
	rewardRepo     reward.Repository
	eventPublisher shared.EventPublisher
}

// NewDecideClaimHandler creates a new DecideClaimHandler.
func NewDecideClaimHandler(rewardRepo reward.Repository, eventPublisher shared.EventPublisher) *DecideClaimHandler {
	return &DecideClaimHandler{rewardRepo: rewardRepo, eventPublisher: eventPublisher}
}

// Handle executes the decide claim command. An approval of an under-funded
// claim returns shared.ErrBalanceTooLow and leaves the claim pending, so the
// parent can deny it or wait for more points.
func (h *DecideClaimHandler) Handle(ctx context.Context, cmd DecideClaimCommand) (*DecideClaimResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	decidedAt := time.Now().UTC()

	var decided bool
	var newBalance int
	var err error
	if cmd.Decision == reward.DecisionApprove {
		decided, newBalance, err = h.rewardRepo.ApproveAndDebit(ctx, cmd.ClaimID, cmd.DeciderID, decidedAt)
	} else {
		decided, err = h.rewardRepo.Deny(ctx, cmd.ClaimID, cmd.DeciderID, decidedAt)
	}
	if err != nil {
		return nil, fmt.Errorf("decide_claim: %w", err)
	}

	claim, err := h.rewardRepo.GetClaim(ctx, cmd.ClaimID)
	if err != nil {
		return nil, fmt.Errorf("decide_claim: reload claim: %w", err)
	}

	result := &DecideClaimResult{Decided: decided, Claim: claim, NewBalance: newBalance}
	if !decided {
		return result, nil
	}

	pointsSpent := 0
	if cmd.Decision == reward.DecisionApprove {
		pointsSpent = claim.PointsRequired
	}
	_ = h.eventPublisher.Publish(shared.NewClaimDecidedEvent(
		claim.ChildID, claim.ID, claim.RewardID, string(cmd.Decision), cmd.DeciderID, pointsSpent,
	))

	return result, nil
}
