package reward

import (
	"context"
	"time"
)

// Repository defines the storage contract for rewards and claims. Decisions
// are compare-and-set on status='pending'; of two racing decide calls exactly
// one wins and the loser observes decided=false.
type Repository interface {
	// CreateReward adds a catalog entry.
	CreateReward(ctx context.Context, r *Reward) error

	// GetReward returns a catalog entry.
	// Returns shared.ErrRewardNotFound if it does not exist.
	GetReward(ctx context.Context, id string) (*Reward, error)

	// ListRewards returns a family's active catalog.
	ListRewards(ctx context.Context, familyID string) ([]*Reward, error)

	// CreateClaim stores a pending claim.
	CreateClaim(ctx context.Context, c *Claim) error

	// GetClaim returns a claim.
	// Returns shared.ErrClaimNotFound if it does not exist.
	GetClaim(ctx context.Context, id string) (*Claim, error)

	// ListClaims returns a child's claims, newest first.
	ListClaims(ctx context.Context, childID string) ([]*Claim, error)

	// Deny moves pending→denied with no balance effect, CAS-guarded on the
	// pending status. decided=false means another decision already landed.
	Deny(ctx context.Context, claimID, deciderID string, decidedAt time.Time) (decided bool, err error)

	// ApproveAndDebit moves pending→approved and debits the child's balance
	// in one transaction. The debit statement itself requires
	// total_points >= cost, so an under-funded approval rolls back and
	// returns shared.ErrBalanceTooLow with the balance untouched.
	// decided=false means the claim was no longer pending.
	ApproveAndDebit(ctx context.Context, claimID, deciderID string, decidedAt time.Time) (decided bool, newBalance int, err error)

	// SumApprovedCosts returns the total points debited by approved claims.
	// Audit path for the balance invariant.
	SumApprovedCosts(ctx context.Context, childID string) (int, error)
}
