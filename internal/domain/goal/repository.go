package goal

import (
	"context"
	"time"
)

// Repository defines the storage contract for goals. The completion path is
// compare-and-set: only the statement that observes completed_at still null
// wins, so the reward credit can never run twice.
type Repository interface {
	// Create creates a new goal.
	Create(ctx context.Context, g *Goal) error

	// GetByID returns a goal by ID.
	// Returns shared.ErrGoalNotFound if the goal does not exist.
	GetByID(ctx context.Context, id string) (*Goal, error)

	// ListActive returns a child's non-completed goals.
	ListActive(ctx context.Context, childID string) ([]*Goal, error)

	// ListByChild returns all of a child's goals, active first.
	ListByChild(ctx context.Context, childID string) ([]*Goal, error)

	// AdvanceProgress adds delta to current_value, clamped to target_value,
	// guarded by completed_at IS NULL. Returns the updated goal; a terminal
	// goal comes back unchanged with advanced=false.
	AdvanceProgress(ctx context.Context, goalID string, delta int) (g *Goal, advanced bool, err error)

	// SetProgress raises current_value to the given value (parent correction
	// path), clamped to target_value and guarded by completed_at IS NULL. A
	// value below the stored counter is a no-op: progress never decreases
	// while the goal is open.
	SetProgress(ctx context.Context, goalID string, value int) (g *Goal, applied bool, err error)

	// CompleteAndCredit sets completed_at and credits reward_points to the
	// child's balance in one transaction, guarded by a compare-and-set on
	// completed_at IS NULL. Returns completed=false when another writer won
	// the race; the credit is then not applied.
	CompleteAndCredit(ctx context.Context, goalID string, completedAt time.Time) (completed bool, newBalance int, err error)

	// CountCompleted returns how many goals the child has completed. Used by
	// achievement requirement rules.
	CountCompleted(ctx context.Context, childID string) (int, error)

	// SumCompletedRewards returns the total reward points credited by
	// completed goals. Audit path for the balance invariant.
	SumCompletedRewards(ctx context.Context, childID string) (int, error)
}
