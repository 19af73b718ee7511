package command

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deen-kids/deen-progress-engine/internal/domain/child"
	"github.com/deen-kids/deen-progress-engine/internal/domain/ledger"
	"github.com/deen-kids/deen-progress-engine/internal/domain/shared"
)

func testChild(t *testing.T, id string, points int) *child.Child {
	t.Helper()
	c, err := child.NewChild(id, "fam-1", "Amina", "Asia/Almaty", time.Now().UTC())
	require.NoError(t, err)
	c.TotalPoints = child.Points(points)
	c.IslamicLevel = child.CalculateLevel(c.TotalPoints)
	return c
}

func TestRecordActivity_CreditsAndPublishes(t *testing.T) {
	childRepo := newMemChildRepo(testChild(t, "child-1", 0))
	ledgerRepo := newMemLedgerRepo(childRepo)
	pub := &capturePublisher{}
	h := NewRecordActivityHandler(childRepo, ledgerRepo, pub, time.Minute)

	result, err := h.Handle(context.Background(), RecordActivityCommand{
		ChildID:     "child-1",
		Type:        ledger.ActivityPrayerCompleted,
		PointsValue: 10,
		PrayerName:  "fajr",
	})
	require.NoError(t, err)

	assert.True(t, result.Accepted)
	assert.NotEmpty(t, result.ActivityID)
	assert.Equal(t, 10, result.NewBalance)
	assert.Equal(t, 1, result.NewLevel)
	assert.False(t, result.LeveledUp)
	assert.Contains(t, result.DedupKey.String(), "prayer:fajr:")

	require.Len(t, pub.ofType(shared.EventActivityRecorded), 1)
	require.Len(t, pub.ofType(shared.EventPointsCredited), 1)
	assert.Empty(t, pub.ofType(shared.EventLevelUp))

	credited := pub.ofType(shared.EventPointsCredited)[0].(shared.PointsCreditedEvent)
	assert.Equal(t, "activity", credited.Source)
	assert.Equal(t, 10, credited.NewBalance)
}

func TestRecordActivity_DuplicateIsNotAnError(t *testing.T) {
	childRepo := newMemChildRepo(testChild(t, "child-1", 0))
	ledgerRepo := newMemLedgerRepo(childRepo)
	pub := &capturePublisher{}
	h := NewRecordActivityHandler(childRepo, ledgerRepo, pub, time.Minute)

	cmd := RecordActivityCommand{
		ChildID:     "child-1",
		Type:        ledger.ActivityPrayerCompleted,
		PointsValue: 10,
		PrayerName:  "maghrib",
	}

	first, err := h.Handle(context.Background(), cmd)
	require.NoError(t, err)
	require.True(t, first.Accepted)

	// Same prayer, same child-local day: the retry must collapse.
	second, err := h.Handle(context.Background(), cmd)
	require.NoError(t, err)
	assert.False(t, second.Accepted)
	assert.Equal(t, 10, second.NewBalance)
	assert.Empty(t, second.ActivityID)

	// No downstream events for a rejected fact.
	assert.Len(t, pub.ofType(shared.EventActivityRecorded), 1)
	assert.Len(t, pub.ofType(shared.EventPointsCredited), 1)
}

func TestRecordActivity_ContentCreditedOnce(t *testing.T) {
	childRepo := newMemChildRepo(testChild(t, "child-1", 0))
	ledgerRepo := newMemLedgerRepo(childRepo)
	h := NewRecordActivityHandler(childRepo, ledgerRepo, &capturePublisher{}, time.Minute)

	cmd := RecordActivityCommand{
		ChildID:     "child-1",
		Type:        ledger.ActivityStoryFinished,
		PointsValue: 15,
		ContentID:   "story-prophets-07",
	}

	first, err := h.Handle(context.Background(), cmd)
	require.NoError(t, err)
	assert.True(t, first.Accepted)
	assert.Equal(t, ledger.DedupKey("story_finished:story-prophets-07"), first.DedupKey)

	// Re-reading the same story later still credits nothing.
	cmd.OccurredAt = time.Now().UTC().Add(-time.Hour)
	second, err := h.Handle(context.Background(), cmd)
	require.NoError(t, err)
	assert.False(t, second.Accepted)
	assert.Equal(t, 15, second.NewBalance)
}

func TestRecordActivity_FutureTimestampRejected(t *testing.T) {
	childRepo := newMemChildRepo(testChild(t, "child-1", 0))
	ledgerRepo := newMemLedgerRepo(childRepo)
	h := NewRecordActivityHandler(childRepo, ledgerRepo, &capturePublisher{}, time.Minute)

	_, err := h.Handle(context.Background(), RecordActivityCommand{
		ChildID:     "child-1",
		Type:        ledger.ActivityGoodDeed,
		PointsValue: 5,
		OccurredAt:  time.Now().UTC().Add(time.Hour),
	})
	assert.ErrorIs(t, err, ledger.ErrFutureTimestamp)
}

func TestRecordActivity_SmallSkewTolerated(t *testing.T) {
	childRepo := newMemChildRepo(testChild(t, "child-1", 0))
	ledgerRepo := newMemLedgerRepo(childRepo)
	h := NewRecordActivityHandler(childRepo, ledgerRepo, &capturePublisher{}, time.Minute)

	result, err := h.Handle(context.Background(), RecordActivityCommand{
		ChildID:     "child-1",
		Type:        ledger.ActivityGoodDeed,
		PointsValue: 5,
		OccurredAt:  time.Now().UTC().Add(30 * time.Second),
	})
	require.NoError(t, err)
	assert.True(t, result.Accepted)
}

func TestRecordActivity_LevelUpCrossesThreshold(t *testing.T) {
	childRepo := newMemChildRepo(testChild(t, "child-1", 495))
	ledgerRepo := newMemLedgerRepo(childRepo)
	pub := &capturePublisher{}
	h := NewRecordActivityHandler(childRepo, ledgerRepo, pub, time.Minute)

	result, err := h.Handle(context.Background(), RecordActivityCommand{
		ChildID:     "child-1",
		Type:        ledger.ActivityQuizCompleted,
		PointsValue: 10,
		ContentID:   "quiz-42",
	})
	require.NoError(t, err)

	assert.Equal(t, 505, result.NewBalance)
	assert.Equal(t, 2, result.NewLevel)
	assert.True(t, result.LeveledUp)

	levelUps := pub.ofType(shared.EventLevelUp)
	require.Len(t, levelUps, 1)
	event := levelUps[0].(shared.LevelUpEvent)
	assert.Equal(t, 1, event.OldLevel)
	assert.Equal(t, 2, event.NewLevel)
}

func TestRecordActivity_UnresolvableTimezoneFailsClosed(t *testing.T) {
	c := testChild(t, "child-1", 0)
	c.Timezone = "Mars/Olympus_Mons"
	childRepo := newMemChildRepo(c)
	ledgerRepo := newMemLedgerRepo(childRepo)
	h := NewRecordActivityHandler(childRepo, ledgerRepo, &capturePublisher{}, time.Minute)

	// No explicit dedup key, so the handler must bucket by the child-local
	// day and cannot.
	_, err := h.Handle(context.Background(), RecordActivityCommand{
		ChildID:     "child-1",
		Type:        ledger.ActivityDhikrCompleted,
		PointsValue: 5,
	})
	assert.ErrorIs(t, err, shared.ErrTimezoneUnresolved)

	// An explicit key sidesteps the timezone entirely.
	result, err := h.Handle(context.Background(), RecordActivityCommand{
		ChildID:     "child-1",
		Type:        ledger.ActivityDhikrCompleted,
		PointsValue: 5,
		DedupKey:    "dhikr:session-9",
	})
	require.NoError(t, err)
	assert.True(t, result.Accepted)
}

func TestRecordActivity_Validation(t *testing.T) {
	h := NewRecordActivityHandler(newMemChildRepo(), newMemLedgerRepo(newMemChildRepo()), &capturePublisher{}, time.Minute)

	cases := []struct {
		name string
		cmd  RecordActivityCommand
	}{
		{"missing child", RecordActivityCommand{Type: ledger.ActivityGoodDeed}},
		{"unknown type", RecordActivityCommand{ChildID: "c", Type: "weightlifting"}},
		{"negative points", RecordActivityCommand{ChildID: "c", Type: ledger.ActivityGoodDeed, PointsValue: -1}},
		{"prayer without name", RecordActivityCommand{ChildID: "c", Type: ledger.ActivityPrayerCompleted}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.Handle(context.Background(), tc.cmd)
			assert.Error(t, err)
		})
	}
}

func TestRecordActivity_UnknownChild(t *testing.T) {
	childRepo := newMemChildRepo()
	h := NewRecordActivityHandler(childRepo, newMemLedgerRepo(childRepo), &capturePublisher{}, time.Minute)

	_, err := h.Handle(context.Background(), RecordActivityCommand{
		ChildID:     "ghost",
		Type:        ledger.ActivityGoodDeed,
		PointsValue: 5,
	})
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRecordActivity_ZeroPointFactStillRecords(t *testing.T) {
	childRepo := newMemChildRepo(testChild(t, "child-1", 100))
	ledgerRepo := newMemLedgerRepo(childRepo)
	pub := &capturePublisher{}
	h := NewRecordActivityHandler(childRepo, ledgerRepo, pub, time.Minute)

	result, err := h.Handle(context.Background(), RecordActivityCommand{
		ChildID:   "child-1",
		Type:      ledger.ActivityGamePlayed,
		ContentID: "game-3",
	})
	require.NoError(t, err)

	assert.True(t, result.Accepted)
	assert.Equal(t, 100, result.NewBalance)
	assert.Len(t, pub.ofType(shared.EventActivityRecorded), 1)
	assert.Empty(t, pub.ofType(shared.EventPointsCredited))
}
