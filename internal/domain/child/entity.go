// Package child contains the domain model for a supervised child profile.
// This is a pure domain layer with zero external dependencies.
package child

import (
	"errors"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Points represents an accumulated point balance. Never negative.
type Points int

// IsValid checks that the balance is non-negative.
func (p Points) IsValid() bool {
	return p >= 0
}

// Add returns the balance after crediting delta.
func (p Points) Add(delta Points) Points {
	return p + delta
}

// CanAfford reports whether the balance covers the given cost.
func (p Points) CanAfford(cost Points) bool {
	return p >= cost
}

// IslamicLevel represents the child's learning level, derived from points.
type IslamicLevel int

// Level thresholds: every 500 points advance one level, starting at level 1.
const pointsPerLevel = 500

// CalculateLevel derives the islamic level from a point balance.
func CalculateLevel(points Points) IslamicLevel {
	if points < 0 {
		return 1
	}
	return IslamicLevel(int(points)/pointsPerLevel + 1)
}

// FamilyID identifies the family that owns a child profile.
type FamilyID string

// IsValid checks if the family ID is valid.
func (f FamilyID) IsValid() bool {
	return f != ""
}

// String returns the string representation of FamilyID.
func (f FamilyID) String() string {
	return string(f)
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	ErrInvalidChildID  = errors.New("child: invalid child ID")
	ErrInvalidFamilyID = errors.New("child: invalid family ID")
	ErrInvalidName     = errors.New("child: display name must be 1-100 chars")
	ErrNegativePoints  = errors.New("child: points must be non-negative")
	ErrStreakOrder     = errors.New("child: longest streak cannot be below current streak")
	ErrNegativeStreak  = errors.New("child: streak cannot be negative")
	ErrEmptyTimezone   = errors.New("child: timezone is required")
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: CHILD
// ══════════════════════════════════════════════════════════════════════════════

// Child is the aggregate whose derived state the engine keeps consistent.
// TotalPoints, CurrentStreak, LongestStreak, and IslamicLevel are mutated
// only by the engine's components, never directly by callers.
type Child struct {
	// ID is the internal unique identifier (UUID in string form).
	ID string

	// FamilyID is the owning family.
	FamilyID FamilyID

	// DisplayName is the child's display name.
	DisplayName string

	// TotalPoints is the materialized point balance. Source of truth is the
	// activity ledger plus goal rewards minus approved claims; this field is
	// kept in sync by atomic increments and audited by reconciliation.
	TotalPoints Points

	// CurrentStreak is the current run of consecutive active days.
	CurrentStreak int

	// LongestStreak is the best run ever recorded. Always >= CurrentStreak
	// after recomputation.
	LongestStreak int

	// IslamicLevel is derived from TotalPoints.
	IslamicLevel IslamicLevel

	// Timezone is the IANA timezone name used to bucket activity into
	// child-local calendar days. Empty means unresolved; streak days are then
	// not credited (fail closed).
	Timezone string

	// CreatedAt is when the profile was created.
	CreatedAt time.Time

	// UpdatedAt is when the profile was last updated.
	UpdatedAt time.Time
}

// NewChild creates a new child profile with a zeroed economy.
func NewChild(id string, familyID FamilyID, displayName, timezone string, now time.Time) (*Child, error) {
	if id == "" {
		return nil, ErrInvalidChildID
	}
	if !familyID.IsValid() {
		return nil, ErrInvalidFamilyID
	}
	if len(displayName) == 0 || len(displayName) > 100 {
		return nil, ErrInvalidName
	}
	if timezone == "" {
		return nil, ErrEmptyTimezone
	}

	return &Child{
		ID:            id,
		FamilyID:      familyID,
		DisplayName:   displayName,
		TotalPoints:   0,
		CurrentStreak: 0,
		LongestStreak: 0,
		IslamicLevel:  CalculateLevel(0),
		Timezone:      timezone,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// Level returns the level derived from the current balance.
func (c *Child) Level() IslamicLevel {
	return CalculateLevel(c.TotalPoints)
}

// ApplyStreaks overwrites the streak counters with a freshly recomputed pair.
// CurrentStreak may decrease (a missed day resets it); LongestStreak is
// monotone via max.
func (c *Child) ApplyStreaks(current int, now time.Time) error {
	if current < 0 {
		return ErrNegativeStreak
	}
	c.CurrentStreak = current
	if current > c.LongestStreak {
		c.LongestStreak = current
	}
	c.UpdatedAt = now
	return nil
}

// Validate checks the aggregate's internal invariants.
func (c *Child) Validate() error {
	if c.ID == "" {
		return ErrInvalidChildID
	}
	if !c.FamilyID.IsValid() {
		return ErrInvalidFamilyID
	}
	if c.TotalPoints < 0 {
		return ErrNegativePoints
	}
	if c.LongestStreak < c.CurrentStreak {
		return ErrStreakOrder
	}
	return nil
}
