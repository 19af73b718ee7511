// Package goal contains the domain model for parent-set goals and the rules
// that map ledger activity onto goal progress.
// This is a pure domain layer with zero external dependencies.
package goal

import (
	"errors"
	"time"

	"github.com/deen-kids/deen-progress-engine/internal/domain/ledger"
)

// Domain errors for the goal package.
var (
	ErrInvalidChildID   = errors.New("goal: invalid child ID")
	ErrInvalidGoalType  = errors.New("goal: unknown goal type")
	ErrInvalidTarget    = errors.New("goal: target value must be positive")
	ErrNegativeReward   = errors.New("goal: reward points must be non-negative")
	ErrAlreadyCompleted = errors.New("goal: goal is already completed")
	ErrNegativeDelta    = errors.New("goal: progress cannot decrease")
)

// Type defines a goal family. The counting rule is fixed per type so replays
// of the same ledger facts always produce the same progress.
type Type string

const (
	// TypeDailyPrayers - complete N prayers. +1 per prayer_completed fact.
	TypeDailyPrayers Type = "daily_prayers"

	// TypeStoryReading - finish N stories. +1 per story_finished fact.
	TypeStoryReading Type = "story_reading"

	// TypeQuranJourney - log N recitations. +1 per quran_recited fact.
	TypeQuranJourney Type = "quran_journey"

	// TypeDhikrPractice - complete N dhikr sessions. +1 per dhikr_completed.
	TypeDhikrPractice Type = "dhikr_practice"

	// TypePointsTarget - accumulate N points. Advances by each fact's own
	// points value, regardless of activity type.
	TypePointsTarget Type = "points_target"
)

// IsValid checks that the goal type is known.
func (t Type) IsValid() bool {
	switch t {
	case TypeDailyPrayers, TypeStoryReading, TypeQuranJourney, TypeDhikrPractice, TypePointsTarget:
		return true
	default:
		return false
	}
}

// CountingDelta returns how much an activity advances goals of this type.
// Zero means the activity does not qualify.
func (t Type) CountingDelta(a *ledger.Activity) int {
	switch t {
	case TypeDailyPrayers:
		if a.Type == ledger.ActivityPrayerCompleted {
			return 1
		}
	case TypeStoryReading:
		if a.Type == ledger.ActivityStoryFinished {
			return 1
		}
	case TypeQuranJourney:
		if a.Type == ledger.ActivityQuranRecited {
			return 1
		}
	case TypeDhikrPractice:
		if a.Type == ledger.ActivityDhikrCompleted {
			return 1
		}
	case TypePointsTarget:
		return a.PointsValue
	}
	return 0
}

// Goal tracks progress toward a parent-set target. CurrentValue is monotone
// while CompletedAt is nil; once CompletedAt is set the goal is terminal and
// neither field changes again.
type Goal struct {
	// ID is the internal unique identifier.
	ID string

	// ChildID is the child the goal belongs to.
	ChildID string

	// Type determines the counting rule.
	Type Type

	// Title is the parent-facing goal description.
	Title string

	// TargetValue is the value at which the goal completes. Positive.
	TargetValue int

	// CurrentValue is the accumulated progress, always in [0, TargetValue].
	CurrentValue int

	// Deadline is an optional soft deadline. The engine does not enforce it;
	// expired goals simply stop being shown as active by the surface.
	Deadline *time.Time

	// RewardPoints is credited to the child exactly once on completion.
	RewardPoints int

	// CompletedAt marks the terminal state. Set at most once.
	CompletedAt *time.Time

	// CreatedAt is when the goal was created.
	CreatedAt time.Time

	// UpdatedAt is when the goal was last updated.
	UpdatedAt time.Time
}

// NewGoal validates and creates a goal.
func NewGoal(id, childID string, t Type, title string, targetValue, rewardPoints int, deadline *time.Time, now time.Time) (*Goal, error) {
	if childID == "" {
		return nil, ErrInvalidChildID
	}
	if !t.IsValid() {
		return nil, ErrInvalidGoalType
	}
	if targetValue <= 0 {
		return nil, ErrInvalidTarget
	}
	if rewardPoints < 0 {
		return nil, ErrNegativeReward
	}

	return &Goal{
		ID:           id,
		ChildID:      childID,
		Type:         t,
		Title:        title,
		TargetValue:  targetValue,
		CurrentValue: 0,
		Deadline:     deadline,
		RewardPoints: rewardPoints,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// IsCompleted reports whether the goal is terminal.
func (g *Goal) IsCompleted() bool {
	return g.CompletedAt != nil
}

// ProgressDelta returns how much the given activity advances this goal.
// Completed goals never advance.
func (g *Goal) ProgressDelta(a *ledger.Activity) int {
	if g.IsCompleted() {
		return 0
	}
	return g.Type.CountingDelta(a)
}

// Advance applies a progress delta in memory, clamped to the target.
// Returns true when the goal has just reached its target. Storage-level
// completion still goes through the compare-and-set repository path; this
// method exists for pure-domain computation and tests.
func (g *Goal) Advance(delta int, now time.Time) (reachedTarget bool, err error) {
	if g.IsCompleted() {
		return false, ErrAlreadyCompleted
	}
	if delta < 0 {
		return false, ErrNegativeDelta
	}

	g.CurrentValue += delta
	if g.CurrentValue > g.TargetValue {
		g.CurrentValue = g.TargetValue
	}
	g.UpdatedAt = now
	return g.CurrentValue >= g.TargetValue, nil
}

// ProgressPercentage returns completion progress in [0, 100].
func (g *Goal) ProgressPercentage() int {
	if g.TargetValue <= 0 {
		return 0
	}
	pct := g.CurrentValue * 100 / g.TargetValue
	if pct > 100 {
		pct = 100
	}
	return pct
}
