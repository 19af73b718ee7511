// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/deen-kids/deen-progress-engine/internal/domain/child"
	"github.com/deen-kids/deen-progress-engine/internal/domain/ledger"
	"github.com/deen-kids/deen-progress-engine/internal/domain/shared"
	"github.com/deen-kids/deen-progress-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD ACTIVITY COMMAND
// The single entry point for point-bearing facts. Appends to the ledger and
// credits the balance atomically; everything downstream (streaks, goals,
// achievements, caches) reacts to the published event.
// ══════════════════════════════════════════════════════════════════════════════

// RecordActivityCommand contains the data to record an activity.
type RecordActivityCommand struct {
	// ChildID is the internal ID of the child.
	ChildID string

	// Type is the kind of activity.
	Type ledger.ActivityType

	// PointsValue is the number of points this fact credits.
	PointsValue int

	// OccurredAt is when the event happened on the client (defaults to now).
	OccurredAt time.Time

	// DedupKey identifies the real-world event. When empty it is derived
	// from the fields below.
	DedupKey ledger.DedupKey

	// PrayerName names the prayer for prayer_completed facts (e.g. "fajr").
	PrayerName string

	// ContentID identifies the story/quiz/recitation content, for
	// once-per-content crediting.
	ContentID string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c RecordActivityCommand) Validate() error {
	if c.ChildID == "" {
		return errors.New("record_activity: child_id is required")
	}
	if !c.Type.IsValid() {
		return fmt.Errorf("record_activity: unknown activity type: %s", c.Type)
	}
	if c.PointsValue < 0 {
		return errors.New("record_activity: points_value must be non-negative")
	}
	if c.Type == ledger.ActivityPrayerCompleted && c.DedupKey == "" && c.PrayerName == "" {
		return errors.New("record_activity: prayer_name is required for prayer_completed")
	}
	return nil
}

// RecordActivityResult contains the result of recording an activity.
type RecordActivityResult struct {
	// Accepted is false when the fact was rejected as a duplicate. A
	// duplicate is not an error; the balance is simply unchanged.
	Accepted bool

	// ActivityID is the stored fact's ID (empty on duplicate).
	ActivityID string

	// DedupKey is the key the ledger checked.
	DedupKey ledger.DedupKey

	// NewBalance is the child's balance after the command.
	NewBalance int

	// NewLevel is the level derived from NewBalance.
	NewLevel int

	// LeveledUp indicates the credit crossed a level threshold.
	LeveledUp bool

	// RecordedAt is when the ledger accepted the fact.
	RecordedAt time.Time
}

// ──────────────────────────────────────────────────────────────────────────────
// HANDLER
// ──────────────────────────────────────────────────────────────────────────────

// RecordActivityHandler handles the RecordActivityCommand.
type RecordActivityHandler struct {
	childRepo      child.Repository
	ledgerRepo     ledger.Repository
	eventPublisher shared.EventPublisher

	// maxClockSkew bounds how far in the future a client-reported
	// timestamp may sit before the fact is rejected.
	maxClockSkew time.Duration
}

// NewRecordActivityHandler creates a new RecordActivityHandler.
func NewRecordActivityHandler(
	childRepo child.Repository,
	ledgerRepo ledger.Repository,
	eventPublisher shared.EventPublisher,
	maxClockSkew time.Duration,
) *RecordActivityHandler {
	if maxClockSkew <= 0 {
		maxClockSkew = time.Minute
	}
	return &RecordActivityHandler{
		childRepo:      childRepo,
		ledgerRepo:     ledgerRepo,
		eventPublisher: eventPublisher,
		maxClockSkew:   maxClockSkew,
	}
}

// Handle executes the record activity command.
func (h *RecordActivityHandler) Handle(ctx context.Context, cmd RecordActivityCommand) (*RecordActivityResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	occurredAt := cmd.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = now
	}
	if occurredAt.After(now.Add(h.maxClockSkew)) {
		return nil, fmt.Errorf("record_activity: %w", ledger.ErrFutureTimestamp)
	}

	ch, err := h.childRepo.GetByID(ctx, cmd.ChildID)
	if err != nil {
		return nil, fmt.Errorf("record_activity: load child: %w", err)
	}

	dedupKey, err := h.resolveDedupKey(cmd, ch, occurredAt)
	if err != nil {
		return nil, err
	}

	fact, err := ledger.NewActivity(uuid.NewString(), cmd.ChildID, cmd.Type, cmd.PointsValue, occurredAt, dedupKey, now)
	if err != nil {
		return nil, fmt.Errorf("record_activity: %w", err)
	}

	appended, err := h.ledgerRepo.Append(ctx, fact)
	if err != nil {
		return nil, fmt.Errorf("record_activity: append: %w", err)
	}

	result := &RecordActivityResult{
		Accepted:   appended.Accepted,
		DedupKey:   dedupKey,
		NewBalance: appended.NewBalance,
		NewLevel:   int(child.CalculateLevel(child.Points(appended.NewBalance))),
		RecordedAt: now,
	}

	if !appended.Accepted {
		return result, nil
	}

	result.ActivityID = appended.Activity.ID

	oldLevel := child.CalculateLevel(ch.TotalPoints)
	newLevel := child.CalculateLevel(child.Points(appended.NewBalance))
	result.LeveledUp = newLevel > oldLevel

	recorded := shared.NewActivityRecordedEvent(
		cmd.ChildID, appended.Activity.ID, string(cmd.Type),
		cmd.PointsValue, appended.NewBalance, dedupKey.String(), occurredAt,
	)
	recorded.BaseEvent = recorded.WithCorrelationID(cmd.CorrelationID)
	_ = h.eventPublisher.Publish(recorded)

	if cmd.PointsValue > 0 {
		_ = h.eventPublisher.Publish(shared.NewPointsCreditedEvent(
			cmd.ChildID, cmd.PointsValue, appended.NewBalance, "activity", appended.Activity.ID,
		))
	}
	if result.LeveledUp {
		_ = h.eventPublisher.Publish(shared.NewLevelUpEvent(cmd.ChildID, int(oldLevel), int(newLevel)))
	}

	return result, nil
}

// resolveDedupKey derives the dedup key from the command when the caller did
// not supply one. Prayer and daily keys use the child-local date so the same
// real-world day collapses regardless of the server's timezone.
func (h *RecordActivityHandler) resolveDedupKey(cmd RecordActivityCommand, ch *child.Child, occurredAt time.Time) (ledger.DedupKey, error) {
	if cmd.DedupKey != "" {
		return cmd.DedupKey, nil
	}

	loc, err := timeutil.ResolveLocation(ch.Timezone)
	if err != nil {
		return "", fmt.Errorf("record_activity: %w: %q", shared.ErrTimezoneUnresolved, ch.Timezone)
	}
	localDate := occurredAt.In(loc)

	switch {
	case cmd.Type == ledger.ActivityPrayerCompleted:
		return ledger.PrayerDedupKey(cmd.PrayerName, localDate), nil
	case cmd.ContentID != "":
		return ledger.ContentDedupKey(cmd.Type, cmd.ContentID), nil
	default:
		return ledger.DailyDedupKey(cmd.Type, localDate), nil
	}
}
