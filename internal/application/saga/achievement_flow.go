// Package saga contains multi-step application flows that span more than one
// aggregate.
package saga

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/deen-kids/deen-progress-engine/internal/domain/achievement"
	"github.com/deen-kids/deen-progress-engine/internal/domain/child"
	"github.com/deen-kids/deen-progress-engine/internal/domain/goal"
	"github.com/deen-kids/deen-progress-engine/internal/domain/ledger"
	"github.com/deen-kids/deen-progress-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT FLOW
// Assembles the aggregate state a badge requirement inspects, runs the
// evaluator, and persists the outcome. The one-time earn guarantee lives in
// the storage compare-and-set; this flow may run concurrently for the same
// child and at most one evaluator per badge observes earned=true.
// ══════════════════════════════════════════════════════════════════════════════

// AchievementFlow evaluates badge requirements after progress changes.
type AchievementFlow struct {
	childRepo       child.Repository
	ledgerRepo      ledger.Repository
	goalRepo        goal.Repository
	achievementRepo achievement.Repository
	eventPublisher  shared.EventPublisher
	logger          *slog.Logger
}

// NewAchievementFlow creates a new AchievementFlow.
func NewAchievementFlow(
	childRepo child.Repository,
	ledgerRepo ledger.Repository,
	goalRepo goal.Repository,
	achievementRepo achievement.Repository,
	eventPublisher shared.EventPublisher,
	logger *slog.Logger,
) *AchievementFlow {
	if logger == nil {
		logger = slog.Default()
	}
	return &AchievementFlow{
		childRepo:       childRepo,
		ledgerRepo:      ledgerRepo,
		goalRepo:        goalRepo,
		achievementRepo: achievementRepo,
		eventPublisher:  eventPublisher,
		logger:          logger,
	}
}

// EvaluationOutcome reports one flow run.
type EvaluationOutcome struct {
	// Evaluated is how many not-yet-earned definitions were checked.
	Evaluated int

	// NewlyEarned lists the definitions this run earned.
	NewlyEarned []achievement.Definition
}

// Refresh re-evaluates every not-yet-earned badge for the child.
func (f *AchievementFlow) Refresh(ctx context.Context, childID string) (*EvaluationOutcome, error) {
	state, err := f.gatherState(ctx, childID)
	if err != nil {
		return nil, err
	}

	earned, err := f.achievementRepo.EarnedIDs(ctx, childID)
	if err != nil {
		return nil, fmt.Errorf("achievement_flow: earned ids: %w", err)
	}

	outcome := &EvaluationOutcome{}
	now := time.Now().UTC()

	for _, eval := range achievement.Evaluate(state, earned) {
		outcome.Evaluated++

		if !eval.Satisfied {
			if err := f.achievementRepo.UpsertProgress(ctx, childID, eval.Definition.ID, eval.Progress); err != nil {
				return outcome, fmt.Errorf("achievement_flow: upsert progress: %w", err)
			}
			continue
		}

		won, err := f.achievementRepo.MarkEarned(ctx, childID, eval.Definition.ID, now)
		if err != nil {
			return outcome, fmt.Errorf("achievement_flow: mark earned: %w", err)
		}
		if !won {
			// Another evaluator earned it first; its event already went out.
			continue
		}

		outcome.NewlyEarned = append(outcome.NewlyEarned, eval.Definition)
		f.logger.Info("achievement earned",
			"child_id", childID,
			"definition_id", eval.Definition.ID,
		)
		_ = f.eventPublisher.Publish(shared.NewAchievementEarnedEvent(
			childID, eval.Definition.ID, eval.Definition.Name, now,
		))
	}

	return outcome, nil
}

// gatherState assembles the read model the evaluator inspects.
func (f *AchievementFlow) gatherState(ctx context.Context, childID string) (achievement.AggregateState, error) {
	var state achievement.AggregateState

	ch, err := f.childRepo.GetByID(ctx, childID)
	if err != nil {
		return state, fmt.Errorf("achievement_flow: load child: %w", err)
	}
	counts, err := f.ledgerRepo.CountByType(ctx, childID)
	if err != nil {
		return state, fmt.Errorf("achievement_flow: count activities: %w", err)
	}
	goalsCompleted, err := f.goalRepo.CountCompleted(ctx, childID)
	if err != nil {
		return state, fmt.Errorf("achievement_flow: count goals: %w", err)
	}

	return achievement.AggregateState{
		TotalPoints:    int(ch.TotalPoints),
		CurrentStreak:  ch.CurrentStreak,
		LongestStreak:  ch.LongestStreak,
		GoalsCompleted: goalsCompleted,
		ActivityCounts: counts,
	}, nil
}
