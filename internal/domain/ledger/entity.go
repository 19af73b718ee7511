// Package ledger contains the append-only activity ledger, the source of
// truth for every point-bearing event in a child's economy.
// This is a pure domain layer with zero external dependencies.
package ledger

import (
	"errors"
	"fmt"
	"time"
)

// Domain errors for the ledger package.
var (
	ErrInvalidChildID   = errors.New("ledger: invalid child ID")
	ErrInvalidType      = errors.New("ledger: invalid activity type")
	ErrNegativePoints   = errors.New("ledger: points value must be non-negative")
	ErrEmptyDedupKey    = errors.New("ledger: dedup key is required")
	ErrFutureTimestamp  = errors.New("ledger: timestamp cannot be in the future")
)

// ActivityType defines the kind of point-bearing event.
type ActivityType string

const (
	// ActivityPrayerCompleted - a prayer was logged as completed.
	ActivityPrayerCompleted ActivityType = "prayer_completed"

	// ActivityStoryFinished - a story was read to the end.
	ActivityStoryFinished ActivityType = "story_finished"

	// ActivityQuizCompleted - an educational quiz was finished.
	ActivityQuizCompleted ActivityType = "quiz_completed"

	// ActivityDhikrCompleted - a dhikr session was completed.
	ActivityDhikrCompleted ActivityType = "dhikr_completed"

	// ActivityQuranRecited - a Quran recitation was logged.
	ActivityQuranRecited ActivityType = "quran_recited"

	// ActivityGoodDeed - a good deed was logged by a parent.
	ActivityGoodDeed ActivityType = "good_deed"

	// ActivityGamePlayed - an educational game round was finished.
	ActivityGamePlayed ActivityType = "game_played"
)

// IsValid checks that the activity type is known.
func (t ActivityType) IsValid() bool {
	switch t {
	case ActivityPrayerCompleted, ActivityStoryFinished, ActivityQuizCompleted,
		ActivityDhikrCompleted, ActivityQuranRecited, ActivityGoodDeed,
		ActivityGamePlayed:
		return true
	default:
		return false
	}
}

// IsStreakQualifying reports whether the type counts toward the daily
// consistency streak. Games and parent-logged deeds motivate points but do
// not anchor streak days.
func (t ActivityType) IsStreakQualifying() bool {
	switch t {
	case ActivityPrayerCompleted, ActivityStoryFinished, ActivityQuranRecited,
		ActivityDhikrCompleted:
		return true
	default:
		return false
	}
}

// StreakQualifyingTypes returns the set of types that anchor streak days.
func StreakQualifyingTypes() []ActivityType {
	return []ActivityType{
		ActivityPrayerCompleted,
		ActivityStoryFinished,
		ActivityQuranRecited,
		ActivityDhikrCompleted,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// DEDUP KEYS
// ══════════════════════════════════════════════════════════════════════════════

// DedupKey is a deterministic identifier for a real-world event. Resubmitting
// an activity with the same key for the same child is rejected as a duplicate,
// which makes retried network calls and parallel sessions safe.
type DedupKey string

// IsValid checks that the key is non-empty.
func (k DedupKey) IsValid() bool {
	return k != ""
}

// String returns the string representation of DedupKey.
func (k DedupKey) String() string {
	return string(k)
}

// PrayerDedupKey builds the key for a named prayer on a child-local date.
// The same prayer logged twice on one day (two devices, a retry) collapses
// to one fact.
func PrayerDedupKey(prayerName string, localDate time.Time) DedupKey {
	return DedupKey(fmt.Sprintf("prayer:%s:%s", prayerName, localDate.Format("2006-01-02")))
}

// DailyDedupKey builds a once-per-day key for an activity type.
func DailyDedupKey(t ActivityType, localDate time.Time) DedupKey {
	return DedupKey(fmt.Sprintf("%s:%s", t, localDate.Format("2006-01-02")))
}

// ContentDedupKey builds a once-per-content key (e.g. a story or quiz can be
// credited only once, whenever it is finished).
func ContentDedupKey(t ActivityType, contentID string) DedupKey {
	return DedupKey(fmt.Sprintf("%s:%s", t, contentID))
}

// ══════════════════════════════════════════════════════════════════════════════
// ACTIVITY FACT
// ══════════════════════════════════════════════════════════════════════════════

// Activity is an immutable point-bearing fact. Once appended it is never
// edited; corrections happen by appending compensating facts, not by mutation.
type Activity struct {
	// ID is the internal unique identifier.
	ID string

	// ChildID is the child this fact belongs to.
	ChildID string

	// Type is the kind of event.
	Type ActivityType

	// PointsValue is the number of points this fact credits. Non-negative.
	PointsValue int

	// OccurredAt is when the real-world event happened (client-reported).
	OccurredAt time.Time

	// DedupKey prevents double crediting of the same real-world event.
	DedupKey DedupKey

	// RecordedAt is when the ledger accepted the fact.
	RecordedAt time.Time
}

// NewActivity validates and creates an activity fact.
func NewActivity(id, childID string, t ActivityType, pointsValue int, occurredAt time.Time, dedupKey DedupKey, now time.Time) (*Activity, error) {
	if childID == "" {
		return nil, ErrInvalidChildID
	}
	if !t.IsValid() {
		return nil, ErrInvalidType
	}
	if pointsValue < 0 {
		return nil, ErrNegativePoints
	}
	if !dedupKey.IsValid() {
		return nil, ErrEmptyDedupKey
	}
	if occurredAt.After(now.Add(time.Minute)) { // Allow 1 minute clock skew
		return nil, ErrFutureTimestamp
	}

	return &Activity{
		ID:          id,
		ChildID:     childID,
		Type:        t,
		PointsValue: pointsValue,
		OccurredAt:  occurredAt,
		DedupKey:    dedupKey,
		RecordedAt:  now,
	}, nil
}
