package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deen-kids/deen-progress-engine/internal/application/command"
	"github.com/deen-kids/deen-progress-engine/internal/domain/child"
	"github.com/deen-kids/deen-progress-engine/internal/domain/ledger"
	"github.com/deen-kids/deen-progress-engine/internal/domain/shared"
	"github.com/deen-kids/deen-progress-engine/internal/infrastructure/persistence/memory"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// capturePublisher records published events for assertions.
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

func testChild(t *testing.T, id, timezone string) *child.Child {
	t.Helper()
	c, err := child.NewChild(id, child.FamilyID("fam-1"), "Amina", timezone, time.Now())
	require.NoError(t, err)
	return c
}

// appendFact writes one ledger fact anchored at the given instant.
func appendFact(t *testing.T, repo *memory.LedgerRepository, childID string, at time.Time, typ ledger.ActivityType, points int, key string) {
	t.Helper()
	a, err := ledger.NewActivity("act-"+key, childID, typ, points, at, ledger.DedupKey(key), time.Now())
	require.NoError(t, err)
	res, err := repo.Append(context.Background(), a)
	require.NoError(t, err)
	require.True(t, res.Accepted)
}

// localNoon anchors facts mid-day so date arithmetic cannot cross midnight.
func localNoon(loc *time.Location, daysAgo int) time.Time {
	now := time.Now().In(loc)
	return time.Date(now.Year(), now.Month(), now.Day(), 12, 0, 0, 0, loc).AddDate(0, 0, -daysAgo)
}

// ──────────────────────────────────────────────────────────────────────────────
// RecomputeStreaksJob
// ──────────────────────────────────────────────────────────────────────────────

func TestRecomputeStreaksJob_RefreshesStaleCounters(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Almaty")
	require.NoError(t, err)

	c := testChild(t, "child-1", "Asia/Almaty")
	childRepo := memory.NewChildRepository(c)
	ledgerRepo := memory.NewLedgerRepository(childRepo)
	pub := &capturePublisher{}

	// Ledger shows activity only yesterday; a stale counter of 5 survives
	// from before the gap.
	appendFact(t, ledgerRepo, "child-1", localNoon(loc, 1), ledger.ActivityPrayerCompleted, 10, "fajr-yesterday")
	require.NoError(t, childRepo.UpdateStreaks(context.Background(), "child-1", 5))

	job := NewRecomputeStreaksJob(childRepo, ledgerRepo, pub, discardLogger(), DefaultRecomputeStreaksConfig())
	require.NoError(t, job.Run(context.Background()))

	got, err := childRepo.GetByID(context.Background(), "child-1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.CurrentStreak)
	assert.Equal(t, 5, got.LongestStreak)

	stats := job.LastRunStats()
	require.NotNil(t, stats)
	assert.Equal(t, 1, stats.ChildrenScanned)
	assert.Equal(t, 1, stats.StreaksChanged)
	assert.Empty(t, stats.Errors)

	updates := pub.ofType(shared.EventStreakUpdated)
	require.Len(t, updates, 1)
}

func TestRecomputeStreaksJob_AccurateCounterIsQuiet(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Almaty")
	require.NoError(t, err)

	c := testChild(t, "child-1", "Asia/Almaty")
	childRepo := memory.NewChildRepository(c)
	ledgerRepo := memory.NewLedgerRepository(childRepo)
	pub := &capturePublisher{}

	appendFact(t, ledgerRepo, "child-1", localNoon(loc, 1), ledger.ActivityPrayerCompleted, 10, "fajr-yesterday")
	appendFact(t, ledgerRepo, "child-1", localNoon(loc, 0), ledger.ActivityPrayerCompleted, 10, "fajr-today")
	require.NoError(t, childRepo.UpdateStreaks(context.Background(), "child-1", 2))

	job := NewRecomputeStreaksJob(childRepo, ledgerRepo, pub, discardLogger(), DefaultRecomputeStreaksConfig())
	require.NoError(t, job.Run(context.Background()))

	stats := job.LastRunStats()
	require.NotNil(t, stats)
	assert.Equal(t, 0, stats.StreaksChanged)
	assert.Empty(t, pub.events)
}

func TestRecomputeStreaksJob_SkipsUnresolvableTimezone(t *testing.T) {
	broken := testChild(t, "child-broken", "Mars/Olympus")
	fine := testChild(t, "child-fine", "Asia/Almaty")
	childRepo := memory.NewChildRepository(broken, fine)
	ledgerRepo := memory.NewLedgerRepository(childRepo)

	loc, err := time.LoadLocation("Asia/Almaty")
	require.NoError(t, err)
	appendFact(t, ledgerRepo, "child-fine", localNoon(loc, 0), ledger.ActivityQuranRecited, 15, "surah-today")

	job := NewRecomputeStreaksJob(childRepo, ledgerRepo, nil, discardLogger(), DefaultRecomputeStreaksConfig())
	require.NoError(t, job.Run(context.Background()))

	stats := job.LastRunStats()
	require.NotNil(t, stats)
	assert.Equal(t, 2, stats.ChildrenScanned)
	assert.Equal(t, 1, stats.TimezonesSkipped)
	assert.Equal(t, 1, stats.StreaksChanged)

	got, err := childRepo.GetByID(context.Background(), "child-fine")
	require.NoError(t, err)
	assert.Equal(t, 1, got.CurrentStreak)
}

func TestRecomputeStreaksJob_NoStatsBeforeFirstRun(t *testing.T) {
	job := NewRecomputeStreaksJob(memory.NewChildRepository(), nil, nil, discardLogger(), DefaultRecomputeStreaksConfig())
	assert.Nil(t, job.LastRunStats())
	assert.Equal(t, "recompute_streaks", job.Name())
	assert.NotEmpty(t, job.Description())
}

// ──────────────────────────────────────────────────────────────────────────────
// ReconcileBalancesJob
// ──────────────────────────────────────────────────────────────────────────────

func reconcileEnv(t *testing.T, c *child.Child) (*memory.ChildRepository, *memory.LedgerRepository, *command.ReconcileBalanceHandler, *capturePublisher) {
	t.Helper()
	childRepo := memory.NewChildRepository(c)
	ledgerRepo := memory.NewLedgerRepository(childRepo)
	goalRepo := memory.NewGoalRepository(childRepo)
	rewardRepo := memory.NewRewardRepository(childRepo)
	pub := &capturePublisher{}
	handler := command.NewReconcileBalanceHandler(childRepo, ledgerRepo, goalRepo, rewardRepo, pub)
	return childRepo, ledgerRepo, handler, pub
}

func TestReconcileBalancesJob_ReportsDriftWithoutRepair(t *testing.T) {
	c := testChild(t, "child-1", "Asia/Almaty")
	childRepo, ledgerRepo, handler, pub := reconcileEnv(t, c)

	appendFact(t, ledgerRepo, "child-1", time.Now(), ledger.ActivityStoryFinished, 40, "story-1")
	// Corrupt the materialized balance.
	require.NoError(t, childRepo.SetBalance(context.Background(), "child-1", 100))

	job := NewReconcileBalancesJob(childRepo, handler, discardLogger(), DefaultReconcileBalancesConfig())
	require.NoError(t, job.Run(context.Background()))

	stats := job.LastRunStats()
	require.NotNil(t, stats)
	assert.Equal(t, 1, stats.ChildrenAudited)
	assert.Equal(t, 1, stats.DriftsFound)
	assert.Equal(t, 0, stats.Repaired)

	// Report-only mode leaves the stored balance untouched.
	got, err := childRepo.GetByID(context.Background(), "child-1")
	require.NoError(t, err)
	assert.Equal(t, child.Points(100), got.TotalPoints)

	require.Len(t, pub.ofType(shared.EventBalanceDriftDetected), 1)
}

func TestReconcileBalancesJob_RepairModeOverwrites(t *testing.T) {
	c := testChild(t, "child-1", "Asia/Almaty")
	childRepo, ledgerRepo, handler, _ := reconcileEnv(t, c)

	appendFact(t, ledgerRepo, "child-1", time.Now(), ledger.ActivityStoryFinished, 40, "story-1")
	require.NoError(t, childRepo.SetBalance(context.Background(), "child-1", 100))

	cfg := DefaultReconcileBalancesConfig()
	cfg.Repair = true
	job := NewReconcileBalancesJob(childRepo, handler, discardLogger(), cfg)
	require.NoError(t, job.Run(context.Background()))

	stats := job.LastRunStats()
	require.NotNil(t, stats)
	assert.Equal(t, 1, stats.DriftsFound)
	assert.Equal(t, 1, stats.Repaired)

	got, err := childRepo.GetByID(context.Background(), "child-1")
	require.NoError(t, err)
	assert.Equal(t, child.Points(40), got.TotalPoints)
}

func TestReconcileBalancesJob_ConsistentLedgerIsQuiet(t *testing.T) {
	c := testChild(t, "child-1", "Asia/Almaty")
	childRepo, ledgerRepo, handler, pub := reconcileEnv(t, c)

	// Append keeps the balance in step with the ledger, so nothing drifts.
	appendFact(t, ledgerRepo, "child-1", time.Now(), ledger.ActivityPrayerCompleted, 10, "fajr")
	appendFact(t, ledgerRepo, "child-1", time.Now(), ledger.ActivityDhikrCompleted, 5, "dhikr")

	job := NewReconcileBalancesJob(childRepo, handler, discardLogger(), DefaultReconcileBalancesConfig())
	require.NoError(t, job.Run(context.Background()))

	stats := job.LastRunStats()
	require.NotNil(t, stats)
	assert.Equal(t, 1, stats.ChildrenAudited)
	assert.Equal(t, 0, stats.DriftsFound)
	assert.Empty(t, pub.events)
}

// ──────────────────────────────────────────────────────────────────────────────
// RebuildLeaderboardJob
// ──────────────────────────────────────────────────────────────────────────────

// fakeRebuilder records Rebuild calls and can fail selected families.
type fakeRebuilder struct {
	mu      sync.Mutex
	scores  map[string]map[string]int
	failFor map[string]bool
}

func newFakeRebuilder() *fakeRebuilder {
	return &fakeRebuilder{
		scores:  make(map[string]map[string]int),
		failFor: make(map[string]bool),
	}
}

func (f *fakeRebuilder) Rebuild(_ context.Context, familyID string, scores map[string]int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[familyID] {
		return errors.New("redis unavailable")
	}
	f.scores[familyID] = scores
	return nil
}

func siblingIn(t *testing.T, id, family string, points int, repo *memory.ChildRepository) {
	t.Helper()
	c, err := child.NewChild(id, child.FamilyID(family), "Kid "+id, "Asia/Almaty", time.Now())
	require.NoError(t, err)
	require.NoError(t, repo.Create(context.Background(), c))
	require.NoError(t, repo.SetBalance(context.Background(), id, child.Points(points)))
}

func TestRebuildLeaderboardJob_GroupsScoresByFamily(t *testing.T) {
	childRepo := memory.NewChildRepository()
	siblingIn(t, "child-a", "fam-1", 120, childRepo)
	siblingIn(t, "child-b", "fam-1", 340, childRepo)
	siblingIn(t, "child-c", "fam-2", 50, childRepo)

	rebuilder := newFakeRebuilder()
	job := NewRebuildLeaderboardJob(childRepo, rebuilder, discardLogger(), DefaultRebuildLeaderboardConfig())
	require.NoError(t, job.Run(context.Background()))

	assert.Equal(t, map[string]int{"child-a": 120, "child-b": 340}, rebuilder.scores["fam-1"])
	assert.Equal(t, map[string]int{"child-c": 50}, rebuilder.scores["fam-2"])

	stats := job.LastRunStats()
	require.NotNil(t, stats)
	assert.Equal(t, 3, stats.TotalChildren)
	assert.Equal(t, 2, stats.FamiliesProcessed)
	assert.Empty(t, stats.Errors)
}

func TestRebuildLeaderboardJob_FamilyFailureDoesNotAbortSweep(t *testing.T) {
	childRepo := memory.NewChildRepository()
	siblingIn(t, "child-a", "fam-1", 120, childRepo)
	siblingIn(t, "child-c", "fam-2", 50, childRepo)

	rebuilder := newFakeRebuilder()
	rebuilder.failFor["fam-1"] = true

	job := NewRebuildLeaderboardJob(childRepo, rebuilder, discardLogger(), DefaultRebuildLeaderboardConfig())
	err := job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 errors")

	// The healthy family still got its rebuild.
	assert.Equal(t, map[string]int{"child-c": 50}, rebuilder.scores["fam-2"])

	stats := job.LastRunStats()
	require.NotNil(t, stats)
	assert.Equal(t, 1, stats.FamiliesProcessed)
	assert.Len(t, stats.Errors, 1)
}
