package child

import (
	"context"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// These interfaces define the storage contract for the child aggregate.
// Implementations live in infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository defines storage operations for children.
type Repository interface {
	// Create creates a new child profile.
	// Returns shared.ErrChildAlreadyExists if the child already exists.
	Create(ctx context.Context, c *Child) error

	// GetByID returns a child by internal ID.
	// Returns shared.ErrChildNotFound if the child is not found.
	GetByID(ctx context.Context, id string) (*Child, error)

	// GetByFamily returns all children of a family, ordered by total points
	// descending.
	GetByFamily(ctx context.Context, familyID FamilyID) ([]*Child, error)

	// ListAll returns every child profile. Used by background sweeps
	// (streak recomputation, reconciliation), never by request handlers.
	ListAll(ctx context.Context) ([]*Child, error)

	// UpdateStreaks overwrites the current streak and raises the longest
	// streak if the new current run exceeds it. The update is a single-row
	// atomic statement so concurrent recomputations cannot interleave.
	UpdateStreaks(ctx context.Context, id string, current int) error

	// SetBalance overwrites the stored balance and derived level. Used only
	// by the reconciliation repair path, never by the hot path.
	SetBalance(ctx context.Context, id string, balance Points) error
}

// FamilyRepository defines storage operations for families.
type FamilyRepository interface {
	// Create creates a new family.
	Create(ctx context.Context, f *Family) error

	// GetByID returns a family by ID.
	// Returns shared.ErrFamilyNotFound if the family is not found.
	GetByID(ctx context.Context, id string) (*Family, error)
}
