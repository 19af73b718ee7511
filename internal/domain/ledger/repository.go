package ledger

import (
	"context"
	"time"
)

// AppendResult reports the outcome of a ledger append.
type AppendResult struct {
	// Accepted is false when the fact was rejected as a duplicate.
	Accepted bool

	// Activity is the stored fact (nil when rejected).
	Activity *Activity

	// NewBalance is the child's balance after the credit. On a duplicate it
	// carries the unchanged balance.
	NewBalance int
}

// DailySummary aggregates one child-local day of ledger activity. Dashboard
// figures are derived from these, never fabricated.
type DailySummary struct {
	Day            DayKey `json:"day"`
	Activities     int    `json:"activities"`
	PointsEarned   int    `json:"points_earned"`
	Prayers        int    `json:"prayers"`
	StreakQualifying bool `json:"streak_qualifying"`
}

// Repository defines the storage contract for the activity ledger.
type Repository interface {
	// Append atomically inserts the fact and credits the child's balance in
	// one transaction. A dedup-key collision for the same child is not an
	// error: the result comes back with Accepted=false.
	Append(ctx context.Context, a *Activity) (AppendResult, error)

	// ListByChild returns a child's facts, newest first, up to limit.
	ListByChild(ctx context.Context, childID string, limit int) ([]*Activity, error)

	// ListSince returns a child's facts with OccurredAt at or after since,
	// oldest first. Derivation path for goal progress: goal counters are a
	// function of the facts since goal creation, not of delivery counts.
	ListSince(ctx context.Context, childID string, since time.Time) ([]*Activity, error)

	// CompleteDays returns the set of child-local days that contain at least
	// one streak-qualifying activity. Days are bucketed in the given location.
	CompleteDays(ctx context.Context, childID string, loc *time.Location) (map[DayKey]bool, error)

	// SumPoints returns the full-ledger sum for a child. Audit path only;
	// the hot path never re-sums the ledger.
	SumPoints(ctx context.Context, childID string) (int, error)

	// CountByType returns per-type activity counts for a child, used by
	// achievement requirement rules.
	CountByType(ctx context.Context, childID string) (map[ActivityType]int, error)

	// DailySummaries returns per-day aggregates for the last n child-local
	// days, oldest first.
	DailySummaries(ctx context.Context, childID string, loc *time.Location, n int) ([]DailySummary, error)
}
