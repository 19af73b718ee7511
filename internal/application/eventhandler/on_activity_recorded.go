// Package eventhandler contains the subscribers that refresh derived state
// after ledger writes. Handlers are idempotent: every step is either a pure
// recomputation or a storage compare-and-set, so redelivery of the same event
// cannot double-credit anything.
package eventhandler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/deen-kids/deen-progress-engine/internal/application/saga"
	"github.com/deen-kids/deen-progress-engine/internal/domain/child"
	"github.com/deen-kids/deen-progress-engine/internal/domain/goal"
	"github.com/deen-kids/deen-progress-engine/internal/domain/ledger"
	"github.com/deen-kids/deen-progress-engine/internal/domain/shared"
	"github.com/deen-kids/deen-progress-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// ON ACTIVITY RECORDED
// Runs the full derived-state refresh after the ledger accepts a fact:
// streak recomputation, goal advancement (with one-time completion credit),
// then achievement evaluation.
// ══════════════════════════════════════════════════════════════════════════════

// ActivityRecordedHandler reacts to accepted ledger facts.
type ActivityRecordedHandler struct {
	childRepo       child.Repository
	ledgerRepo      ledger.Repository
	goalRepo        goal.Repository
	achievementFlow *saga.AchievementFlow
	eventPublisher  shared.EventPublisher
	logger          *slog.Logger
	timeout         time.Duration
}

// NewActivityRecordedHandler creates a new ActivityRecordedHandler.
func NewActivityRecordedHandler(
	childRepo child.Repository,
	ledgerRepo ledger.Repository,
	goalRepo goal.Repository,
	achievementFlow *saga.AchievementFlow,
	eventPublisher shared.EventPublisher,
	logger *slog.Logger,
) *ActivityRecordedHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ActivityRecordedHandler{
		childRepo:       childRepo,
		ledgerRepo:      ledgerRepo,
		goalRepo:        goalRepo,
		achievementFlow: achievementFlow,
		eventPublisher:  eventPublisher,
		logger:          logger,
		timeout:         30 * time.Second,
	}
}

// Handle implements shared.EventHandler.
func (h *ActivityRecordedHandler) Handle(event shared.Event) error {
	e, ok := event.(shared.ActivityRecordedEvent)
	if !ok {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	ch, err := h.childRepo.GetByID(ctx, e.ChildID)
	if err != nil {
		return fmt.Errorf("on_activity_recorded: load child: %w", err)
	}

	if err := h.refreshStreaks(ctx, ch); err != nil {
		return err
	}
	if err := h.advanceGoals(ctx, e); err != nil {
		return err
	}
	if _, err := h.achievementFlow.Refresh(ctx, e.ChildID); err != nil {
		return fmt.Errorf("on_activity_recorded: %w", err)
	}

	return nil
}

// refreshStreaks recomputes the streak counters from the ledger. An
// unresolvable timezone fails closed: the streak is left untouched rather
// than computed against the wrong calendar.
func (h *ActivityRecordedHandler) refreshStreaks(ctx context.Context, ch *child.Child) error {
	loc, err := timeutil.ResolveLocation(ch.Timezone)
	if err != nil {
		h.logger.Warn("streak refresh skipped, timezone unresolved",
			"child_id", ch.ID,
			"timezone", ch.Timezone,
		)
		return nil
	}

	days, err := h.ledgerRepo.CompleteDays(ctx, ch.ID, loc)
	if err != nil {
		return fmt.Errorf("on_activity_recorded: complete days: %w", err)
	}

	result := ledger.ComputeStreaks(days, time.Now().In(loc))
	if result.Current == ch.CurrentStreak && result.Longest <= ch.LongestStreak {
		return nil
	}

	if err := h.childRepo.UpdateStreaks(ctx, ch.ID, result.Current); err != nil {
		return fmt.Errorf("on_activity_recorded: update streaks: %w", err)
	}

	_ = h.eventPublisher.Publish(shared.NewStreakUpdatedEvent(
		ch.ID, result.Current, result.Longest, ch.CurrentStreak,
	))
	return nil
}

// advanceGoals re-derives every active goal's counter from the ledger facts
// since goal creation and completes the ones that reach their target. The
// counter is a function of ledger state, not of delivery counts, so a
// redelivered event recomputes the same value instead of re-applying a delta.
func (h *ActivityRecordedHandler) advanceGoals(ctx context.Context, e shared.ActivityRecordedEvent) error {
	active, err := h.goalRepo.ListActive(ctx, e.ChildID)
	if err != nil {
		return fmt.Errorf("on_activity_recorded: list goals: %w", err)
	}
	if len(active) == 0 {
		return nil
	}

	oldest := active[0].CreatedAt
	for _, g := range active[1:] {
		if g.CreatedAt.Before(oldest) {
			oldest = g.CreatedAt
		}
	}
	facts, err := h.ledgerRepo.ListSince(ctx, e.ChildID, oldest)
	if err != nil {
		return fmt.Errorf("on_activity_recorded: list facts: %w", err)
	}

	for _, g := range active {
		derived := deriveProgress(g, facts)
		if derived <= g.CurrentValue {
			continue
		}

		updated, applied, err := h.goalRepo.SetProgress(ctx, g.ID, derived)
		if err != nil {
			return fmt.Errorf("on_activity_recorded: advance goal %s: %w", g.ID, err)
		}
		if !applied || updated.CurrentValue < updated.TargetValue {
			continue
		}

		completedAt := time.Now().UTC()
		completed, newBalance, err := h.goalRepo.CompleteAndCredit(ctx, updated.ID, completedAt)
		if err != nil {
			return fmt.Errorf("on_activity_recorded: complete goal %s: %w", updated.ID, err)
		}
		if !completed {
			continue
		}

		h.logger.Info("goal completed",
			"child_id", e.ChildID,
			"goal_id", updated.ID,
			"reward_points", updated.RewardPoints,
		)
		_ = h.eventPublisher.Publish(shared.NewGoalCompletedEvent(
			e.ChildID, updated.ID, string(updated.Type), updated.RewardPoints, completedAt,
		))
		if updated.RewardPoints > 0 {
			_ = h.eventPublisher.Publish(shared.NewPointsCreditedEvent(
				e.ChildID, updated.RewardPoints, newBalance, "goal_reward", updated.ID,
			))
		}
	}

	return nil
}

// deriveProgress sums the goal's counting rule over the facts occurring at or
// after goal creation, clamped to the target.
func deriveProgress(g *goal.Goal, facts []*ledger.Activity) int {
	derived := 0
	for _, a := range facts {
		if a.OccurredAt.Before(g.CreatedAt) {
			continue
		}
		derived += g.Type.CountingDelta(a)
	}
	if derived > g.TargetValue {
		derived = g.TargetValue
	}
	return derived
}
