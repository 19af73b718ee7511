package eventhandler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deen-kids/deen-progress-engine/internal/application/saga"
	"github.com/deen-kids/deen-progress-engine/internal/domain/child"
	"github.com/deen-kids/deen-progress-engine/internal/domain/goal"
	"github.com/deen-kids/deen-progress-engine/internal/domain/ledger"
	"github.com/deen-kids/deen-progress-engine/internal/domain/shared"
	"github.com/deen-kids/deen-progress-engine/internal/infrastructure/persistence/memory"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *capturePublisher) Publish(event shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *capturePublisher) ofType(t shared.EventType) []shared.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []shared.Event
	for _, e := range p.events {
		if e.EventType() == t {
			out = append(out, e)
		}
	}
	return out
}

// env bundles the repositories and handler under test.
type env struct {
	childRepo  *memory.ChildRepository
	ledgerRepo *memory.LedgerRepository
	goalRepo   *memory.GoalRepository
	pub        *capturePublisher
	handler    *ActivityRecordedHandler
}

func newEnv(t *testing.T, children ...*child.Child) *env {
	t.Helper()
	childRepo := memory.NewChildRepository(children...)
	ledgerRepo := memory.NewLedgerRepository(childRepo)
	goalRepo := memory.NewGoalRepository(childRepo)
	achievementRepo := memory.NewAchievementRepository()
	pub := &capturePublisher{}
	flow := saga.NewAchievementFlow(childRepo, ledgerRepo, goalRepo, achievementRepo, pub, nil)
	return &env{
		childRepo:  childRepo,
		ledgerRepo: ledgerRepo,
		goalRepo:   goalRepo,
		pub:        pub,
		handler:    NewActivityRecordedHandler(childRepo, ledgerRepo, goalRepo, flow, pub, nil),
	}
}

func testChild(t *testing.T, id string) *child.Child {
	t.Helper()
	c, err := child.NewChild(id, "fam-1", "Amina", "Asia/Almaty", time.Now().UTC())
	require.NoError(t, err)
	return c
}

// appendFact writes a fact straight into the ledger and returns the event
// the command layer would have published for it.
func appendFact(t *testing.T, e *env, childID string, typ ledger.ActivityType, points int, key string) shared.ActivityRecordedEvent {
	t.Helper()
	occurredAt := time.Now().UTC()
	result, err := e.ledgerRepo.Append(context.Background(), &ledger.Activity{
		ID:          "act-" + key,
		ChildID:     childID,
		Type:        typ,
		PointsValue: points,
		OccurredAt:  occurredAt,
		DedupKey:    ledger.DedupKey(key),
	})
	require.NoError(t, err)
	require.True(t, result.Accepted)
	return shared.NewActivityRecordedEvent(
		childID, result.Activity.ID, string(typ), points, result.NewBalance, key, occurredAt,
	)
}

func TestOnActivityRecorded_RefreshesStreak(t *testing.T) {
	e := newEnv(t, testChild(t, "child-1"))
	event := appendFact(t, e, "child-1", ledger.ActivityPrayerCompleted, 10, "k1")

	require.NoError(t, e.handler.Handle(event))

	c, err := e.childRepo.GetByID(context.Background(), "child-1")
	require.NoError(t, err)
	assert.Equal(t, 1, c.CurrentStreak)
	assert.Equal(t, 1, c.LongestStreak)

	updates := e.pub.ofType(shared.EventStreakUpdated)
	require.Len(t, updates, 1)
	streak := updates[0].(shared.StreakUpdatedEvent)
	assert.Equal(t, 1, streak.CurrentStreak)
	assert.Equal(t, 0, streak.PreviousStreak)
}

func TestOnActivityRecorded_UnchangedStreakIsQuiet(t *testing.T) {
	e := newEnv(t, testChild(t, "child-1"))
	first := appendFact(t, e, "child-1", ledger.ActivityPrayerCompleted, 10, "k1")
	require.NoError(t, e.handler.Handle(first))

	// A second fact on the same day leaves the streak at 1.
	second := appendFact(t, e, "child-1", ledger.ActivityDhikrCompleted, 5, "k2")
	require.NoError(t, e.handler.Handle(second))

	assert.Len(t, e.pub.ofType(shared.EventStreakUpdated), 1)
}

func TestOnActivityRecorded_UnresolvableTimezoneSkipsStreak(t *testing.T) {
	broken := testChild(t, "child-1")
	broken.Timezone = "Atlantis/Sunken_City"
	e := newEnv(t, broken)
	event := appendFact(t, e, "child-1", ledger.ActivityPrayerCompleted, 10, "k1")

	// Streak refresh fails closed; goal and achievement steps still run.
	require.NoError(t, e.handler.Handle(event))

	c, err := e.childRepo.GetByID(context.Background(), "child-1")
	require.NoError(t, err)
	assert.Equal(t, 0, c.CurrentStreak)
	assert.Empty(t, e.pub.ofType(shared.EventStreakUpdated))
	assert.NotEmpty(t, e.pub.ofType(shared.EventAchievementEarned))
}

func TestOnActivityRecorded_AdvancesMatchingGoal(t *testing.T) {
	e := newEnv(t, testChild(t, "child-1"))
	g, err := goal.NewGoal("goal-1", "child-1", goal.TypeStoryReading, "Read 2 stories", 2, 100, nil, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, e.goalRepo.Create(context.Background(), g))

	event := appendFact(t, e, "child-1", ledger.ActivityStoryFinished, 15, "story_finished:s-1")
	require.NoError(t, e.handler.Handle(event))

	got, err := e.goalRepo.GetByID(context.Background(), "goal-1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.CurrentValue)
	assert.Nil(t, got.CompletedAt)
	assert.Empty(t, e.pub.ofType(shared.EventGoalCompleted))
}

func TestOnActivityRecorded_CompletesGoalAndCreditsReward(t *testing.T) {
	e := newEnv(t, testChild(t, "child-1"))
	g, err := goal.NewGoal("goal-1", "child-1", goal.TypeStoryReading, "Read 2 stories", 2, 100, nil, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, e.goalRepo.Create(context.Background(), g))

	require.NoError(t, e.handler.Handle(appendFact(t, e, "child-1", ledger.ActivityStoryFinished, 15, "story_finished:s-1")))
	require.NoError(t, e.handler.Handle(appendFact(t, e, "child-1", ledger.ActivityStoryFinished, 15, "story_finished:s-2")))

	got, err := e.goalRepo.GetByID(context.Background(), "goal-1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.CurrentValue)
	require.NotNil(t, got.CompletedAt)

	completions := e.pub.ofType(shared.EventGoalCompleted)
	require.Len(t, completions, 1)
	assert.Equal(t, "goal-1", completions[0].(shared.GoalCompletedEvent).GoalID)

	// One goal_reward credit on top of the two activity points.
	c, err := e.childRepo.GetByID(context.Background(), "child-1")
	require.NoError(t, err)
	assert.Equal(t, child.Points(15+15+100), c.TotalPoints)

	var rewardCredits []shared.PointsCreditedEvent
	for _, raw := range e.pub.ofType(shared.EventPointsCredited) {
		credit := raw.(shared.PointsCreditedEvent)
		if credit.Source == "goal_reward" {
			rewardCredits = append(rewardCredits, credit)
		}
	}
	require.Len(t, rewardCredits, 1)
	assert.Equal(t, 100, rewardCredits[0].Amount)
}

func TestOnActivityRecorded_RedeliveryDoesNotOveradvance(t *testing.T) {
	e := newEnv(t, testChild(t, "child-1"))
	g, err := goal.NewGoal("goal-1", "child-1", goal.TypeStoryReading, "Read 3 stories", 3, 100, nil, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, e.goalRepo.Create(context.Background(), g))

	// The bus redelivers after a partial failure: the same event arrives
	// twice for a single ledger fact.
	event := appendFact(t, e, "child-1", ledger.ActivityStoryFinished, 15, "story_finished:s-1")
	require.NoError(t, e.handler.Handle(event))
	require.NoError(t, e.handler.Handle(event))

	got, err := e.goalRepo.GetByID(context.Background(), "goal-1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.CurrentValue)
	assert.Nil(t, got.CompletedAt)
	assert.Empty(t, e.pub.ofType(shared.EventGoalCompleted))
}

func TestOnActivityRecorded_ConcurrentDeliveriesCreditOnce(t *testing.T) {
	e := newEnv(t, testChild(t, "child-1"))
	g, err := goal.NewGoal("goal-1", "child-1", goal.TypeDhikrPractice, "Daily dhikr", 1, 50, nil, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, e.goalRepo.Create(context.Background(), g))

	event := appendFact(t, e, "child-1", ledger.ActivityDhikrCompleted, 5, "dhikr_completed:2026-03-01")

	// Two completion detectors race on the same fact; the compare-and-set on
	// completed_at lets exactly one of them credit the reward.
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, e.handler.Handle(event))
		}()
	}
	wg.Wait()

	assert.Len(t, e.pub.ofType(shared.EventGoalCompleted), 1)

	c, err := e.childRepo.GetByID(context.Background(), "child-1")
	require.NoError(t, err)
	assert.Equal(t, child.Points(5+50), c.TotalPoints)
}

func TestOnActivityRecorded_RedeliveryCannotDoubleComplete(t *testing.T) {
	e := newEnv(t, testChild(t, "child-1"))
	g, err := goal.NewGoal("goal-1", "child-1", goal.TypeDhikrPractice, "Daily dhikr", 1, 50, nil, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, e.goalRepo.Create(context.Background(), g))

	event := appendFact(t, e, "child-1", ledger.ActivityDhikrCompleted, 5, "dhikr_completed:2026-03-01")
	require.NoError(t, e.handler.Handle(event))
	require.NoError(t, e.handler.Handle(event))

	assert.Len(t, e.pub.ofType(shared.EventGoalCompleted), 1)

	c, err := e.childRepo.GetByID(context.Background(), "child-1")
	require.NoError(t, err)
	assert.Equal(t, child.Points(5+50), c.TotalPoints)
}

func TestOnActivityRecorded_EarnsFirstPrayerBadge(t *testing.T) {
	e := newEnv(t, testChild(t, "child-1"))
	event := appendFact(t, e, "child-1", ledger.ActivityPrayerCompleted, 10, "prayer:fajr:2026-03-01")

	require.NoError(t, e.handler.Handle(event))

	var ids []string
	for _, raw := range e.pub.ofType(shared.EventAchievementEarned) {
		ids = append(ids, raw.(shared.AchievementEarnedEvent).DefinitionID)
	}
	assert.Contains(t, ids, "first_prayer")
	assert.NotContains(t, ids, "prayer_10")
}

func TestOnActivityRecorded_IgnoresForeignEvents(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.handler.Handle(shared.NewLevelUpEvent("child-1", 1, 2)))
	assert.Empty(t, e.pub.events)
}

func TestOnGoalCompleted_EarnsGoalBadge(t *testing.T) {
	e := newEnv(t, testChild(t, "child-1"))
	g, err := goal.NewGoal("goal-1", "child-1", goal.TypeStoryReading, "Read a story", 1, 0, nil, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, e.goalRepo.Create(context.Background(), g))
	_, _, err = e.goalRepo.AdvanceProgress(context.Background(), "goal-1", 1)
	require.NoError(t, err)
	completed, _, err := e.goalRepo.CompleteAndCredit(context.Background(), "goal-1", time.Now().UTC())
	require.NoError(t, err)
	require.True(t, completed)

	achievementRepo := memory.NewAchievementRepository()
	flow := saga.NewAchievementFlow(e.childRepo, e.ledgerRepo, e.goalRepo, achievementRepo, e.pub, nil)
	h := NewGoalCompletedHandler(flow, nil)

	require.NoError(t, h.Handle(shared.NewGoalCompletedEvent(
		"child-1", "goal-1", string(goal.TypeStoryReading), 0, time.Now().UTC(),
	)))

	var ids []string
	for _, raw := range e.pub.ofType(shared.EventAchievementEarned) {
		ids = append(ids, raw.(shared.AchievementEarnedEvent).DefinitionID)
	}
	assert.Contains(t, ids, "first_goal")
}
