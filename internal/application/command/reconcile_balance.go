package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/deen-kids/deen-progress-engine/internal/domain/child"
	"github.com/deen-kids/deen-progress-engine/internal/domain/goal"
	"github.com/deen-kids/deen-progress-engine/internal/domain/ledger"
	"github.com/deen-kids/deen-progress-engine/internal/domain/reward"
	"github.com/deen-kids/deen-progress-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECONCILE BALANCE COMMAND
// Audits the materialized balance against its sources: ledger credits plus
// completed-goal rewards minus approved-claim debits. Drift is surfaced,
// never silently repaired; the repair flag must be explicit.
// ══════════════════════════════════════════════════════════════════════════════

// ReconcileBalanceCommand contains the data for a balance audit.
type ReconcileBalanceCommand struct {
	// ChildID is the audited child.
	ChildID string

	// Repair overwrites the stored balance with the derived value when they
	// disagree. Off by default.
	Repair bool
}

// Validate validates the command.
func (c ReconcileBalanceCommand) Validate() error {
	if c.ChildID == "" {
		return errors.New("reconcile_balance: child_id is required")
	}
	return nil
}

// ReconcileBalanceResult contains the audit outcome.
type ReconcileBalanceResult struct {
	// ChildID is the audited child.
	ChildID string

	// StoredBalance is the materialized balance on the child row.
	StoredBalance int

	// DerivedBalance is the balance recomputed from the sources.
	DerivedBalance int

	// Consistent is true when the two agree.
	Consistent bool

	// Repaired is true when drift was found and the stored balance was
	// overwritten with the derived value.
	Repaired bool
}

// ReconcileBalanceHandler handles the ReconcileBalanceCommand.
type ReconcileBalanceHandler struct {
	childRepo      child.Repository
	ledgerRepo     ledger.Repository
	goalRepo       goal.Repository
	rewardRepo     reward.Repository
	eventPublisher shared.EventPublisher
}

// NewReconcileBalanceHandler creates a new ReconcileBalanceHandler.
func NewReconcileBalanceHandler(
	childRepo child.Repository,
	ledgerRepo ledger.Repository,
	goalRepo goal.Repository,
	rewardRepo reward.Repository,
	eventPublisher shared.EventPublisher,
) *ReconcileBalanceHandler {
	return &ReconcileBalanceHandler{
		childRepo:      childRepo,
		ledgerRepo:     ledgerRepo,
		goalRepo:       goalRepo,
		rewardRepo:     rewardRepo,
		eventPublisher: eventPublisher,
	}
}

// Handle executes the reconcile balance command.
func (h *ReconcileBalanceHandler) Handle(ctx context.Context, cmd ReconcileBalanceCommand) (*ReconcileBalanceResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	ch, err := h.childRepo.GetByID(ctx, cmd.ChildID)
	if err != nil {
		return nil, fmt.Errorf("reconcile_balance: load child: %w", err)
	}

	earned, err := h.ledgerRepo.SumPoints(ctx, cmd.ChildID)
	if err != nil {
		return nil, fmt.Errorf("reconcile_balance: sum ledger: %w", err)
	}
	rewards, err := h.goalRepo.SumCompletedRewards(ctx, cmd.ChildID)
	if err != nil {
		return nil, fmt.Errorf("reconcile_balance: sum goal rewards: %w", err)
	}
	spent, err := h.rewardRepo.SumApprovedCosts(ctx, cmd.ChildID)
	if err != nil {
		return nil, fmt.Errorf("reconcile_balance: sum approved claims: %w", err)
	}

	result := &ReconcileBalanceResult{
		ChildID:        cmd.ChildID,
		StoredBalance:  int(ch.TotalPoints),
		DerivedBalance: earned + rewards - spent,
	}
	result.Consistent = result.StoredBalance == result.DerivedBalance
	if result.Consistent {
		return result, nil
	}

	if cmd.Repair {
		if err := h.childRepo.SetBalance(ctx, cmd.ChildID, child.Points(result.DerivedBalance)); err != nil {
			return nil, fmt.Errorf("reconcile_balance: repair: %w", err)
		}
		result.Repaired = true
	}

	if h.eventPublisher != nil {
		_ = h.eventPublisher.Publish(shared.NewBalanceDriftEvent(
			cmd.ChildID, result.StoredBalance, result.DerivedBalance, result.Repaired,
		))
	}

	return result, nil
}
