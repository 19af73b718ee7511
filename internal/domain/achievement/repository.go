package achievement

import (
	"context"
	"time"
)

// Repository defines the storage contract for achievement instances. Earn
// and acknowledgement are both compare-and-set transitions: the statement
// that observes the expected prior state wins, the loser sees false.
type Repository interface {
	// ListByChild returns all of a child's achievement instances.
	ListByChild(ctx context.Context, childID string) ([]*Achievement, error)

	// EarnedIDs returns the set of definition IDs the child already earned.
	EarnedIDs(ctx context.Context, childID string) (map[string]bool, error)

	// UpsertProgress stores the latest progress percentage for a
	// not-yet-earned instance. A row whose earned_at is already set is left
	// untouched.
	UpsertProgress(ctx context.Context, childID, definitionID string, progress int) error

	// MarkEarned sets earned_at, guarded by earned_at IS NULL. Returns
	// earned=false when another evaluator already won.
	MarkEarned(ctx context.Context, childID, definitionID string, earnedAt time.Time) (earned bool, err error)

	// Acknowledge flips celebration_viewed false→true, guarded by earned_at
	// being set and the flag still false. Returns acknowledged=false when the
	// flag was already flipped.
	Acknowledge(ctx context.Context, childID, definitionID string) (acknowledged bool, err error)

	// GetByID returns one instance.
	// Returns shared.ErrAchievementNotFound if it does not exist.
	GetByID(ctx context.Context, childID, definitionID string) (*Achievement, error)
}
