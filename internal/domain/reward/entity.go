// Package reward contains the reward catalog and the claim state machine
// that governs spending of accumulated points under parent approval.
// This is a pure domain layer with zero external dependencies.
package reward

import (
	"errors"
	"time"
)

// Domain errors for the reward package.
var (
	ErrInvalidChildID  = errors.New("reward: invalid child ID")
	ErrInvalidRewardID = errors.New("reward: invalid reward ID")
	ErrInvalidCost     = errors.New("reward: points required must be positive")
	ErrInactiveReward  = errors.New("reward: reward is not active")
	ErrInvalidDecision = errors.New("reward: decision must be approved or denied")
	ErrAlreadyDecided  = errors.New("reward: claim already decided")
)

// Reward is an item in the family's reward catalog.
type Reward struct {
	// ID is the internal unique identifier.
	ID string

	// FamilyID scopes the reward to one family's catalog.
	FamilyID string

	// Title is the parent-facing reward description.
	Title string

	// PointsRequired is the cost in points. Positive.
	PointsRequired int

	// Active controls whether new claims may reference the reward.
	Active bool

	// CreatedAt is when the reward was created.
	CreatedAt time.Time
}

// NewReward validates and creates a catalog entry.
func NewReward(id, familyID, title string, pointsRequired int, now time.Time) (*Reward, error) {
	if id == "" {
		return nil, ErrInvalidRewardID
	}
	if pointsRequired <= 0 {
		return nil, ErrInvalidCost
	}
	return &Reward{
		ID:             id,
		FamilyID:       familyID,
		Title:          title,
		PointsRequired: pointsRequired,
		Active:         true,
		CreatedAt:      now,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CLAIM STATE MACHINE
// pending → approved | denied, both terminal. Balance is checked at decision
// time, not claim time, since the balance can change while the claim waits
// for parental review.
// ══════════════════════════════════════════════════════════════════════════════

// Status is the claim lifecycle state.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
)

// IsValid checks that the status is known.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusDenied:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transition is permitted.
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusDenied
}

// Decision is a parental verdict on a pending claim.
type Decision string

const (
	DecisionApprove Decision = "approved"
	DecisionDeny    Decision = "denied"
)

// IsValid checks that the decision is known.
func (d Decision) IsValid() bool {
	return d == DecisionApprove || d == DecisionDeny
}

// TargetStatus maps a decision to the terminal status it produces.
func (d Decision) TargetStatus() Status {
	if d == DecisionApprove {
		return StatusApproved
	}
	return StatusDenied
}

// Claim is a child's request to spend points on a reward.
type Claim struct {
	// ID is the internal unique identifier.
	ID string

	// ChildID is the claiming child.
	ChildID string

	// RewardID references the catalog entry.
	RewardID string

	// Status is the lifecycle state.
	Status Status

	// PointsRequired snapshots the reward cost at claim time, so a later
	// catalog price change cannot alter what an approval debits.
	PointsRequired int

	// ClaimedAt is when the claim was created.
	ClaimedAt time.Time

	// DecidedAt is set once, together with the terminal status.
	DecidedAt *time.Time

	// DeciderID is the parent who decided. Empty while pending.
	DeciderID string
}

// NewClaim creates a pending claim. Creation is always permitted regardless
// of the current balance.
func NewClaim(id, childID string, r *Reward, now time.Time) (*Claim, error) {
	if childID == "" {
		return nil, ErrInvalidChildID
	}
	if r == nil {
		return nil, ErrInvalidRewardID
	}
	if !r.Active {
		return nil, ErrInactiveReward
	}
	return &Claim{
		ID:             id,
		ChildID:        childID,
		RewardID:       r.ID,
		Status:         StatusPending,
		PointsRequired: r.PointsRequired,
		ClaimedAt:      now,
	}, nil
}

// CanDecide reports whether a decision is still possible.
func (c *Claim) CanDecide() bool {
	return c.Status == StatusPending
}

// Decide applies a terminal transition in memory. The storage layer enforces
// the same transition with a compare-and-set on status='pending'; this method
// exists for pure-domain computation and tests.
func (c *Claim) Decide(d Decision, deciderID string, now time.Time) error {
	if !d.IsValid() {
		return ErrInvalidDecision
	}
	if !c.CanDecide() {
		return ErrAlreadyDecided
	}
	c.Status = d.TargetStatus()
	c.DeciderID = deciderID
	c.DecidedAt = &now
	return nil
}
