// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/deen-kids/deen-progress-engine/internal/domain/achievement"
	"github.com/deen-kids/deen-progress-engine/internal/domain/child"
	"github.com/deen-kids/deen-progress-engine/internal/domain/goal"
	"github.com/deen-kids/deen-progress-engine/internal/domain/ledger"
	"github.com/deen-kids/deen-progress-engine/internal/domain/reward"
	"github.com/deen-kids/deen-progress-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET PROGRESS SNAPSHOT QUERY
// The one-call read model behind the child dashboard: balance, level,
// streaks, goals, achievements, pending claims, and the recent daily
// summaries. Served from cache when fresh, assembled from PostgreSQL
// otherwise.
// ══════════════════════════════════════════════════════════════════════════════

// SnapshotStore caches assembled snapshots.
type SnapshotStore interface {
	Get(ctx context.Context, childID string, dest interface{}) error
	Set(ctx context.Context, childID string, snapshot interface{}) error
}

// GoalView is a goal as the dashboard shows it.
type GoalView struct {
	ID           string     `json:"id"`
	Type         string     `json:"type"`
	Title        string     `json:"title"`
	TargetValue  int        `json:"target_value"`
	CurrentValue int        `json:"current_value"`
	Percentage   int        `json:"percentage"`
	RewardPoints int        `json:"reward_points"`
	Deadline     *time.Time `json:"deadline,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// AchievementView is a badge instance as the dashboard shows it.
type AchievementView struct {
	DefinitionID      string     `json:"definition_id"`
	Name              string     `json:"name"`
	Description       string     `json:"description"`
	Emoji             string     `json:"emoji"`
	Progress          int        `json:"progress"`
	EarnedAt          *time.Time `json:"earned_at,omitempty"`
	CelebrationViewed bool       `json:"celebration_viewed"`
}

// ClaimView is a reward claim as the dashboard shows it.
type ClaimView struct {
	ID             string     `json:"id"`
	RewardID       string     `json:"reward_id"`
	Status         string     `json:"status"`
	PointsRequired int        `json:"points_required"`
	ClaimedAt      time.Time  `json:"claimed_at"`
	DecidedAt      *time.Time `json:"decided_at,omitempty"`
}

// ProgressSnapshot is the assembled dashboard read model.
type ProgressSnapshot struct {
	ChildID        string                `json:"child_id"`
	DisplayName    string                `json:"display_name"`
	TotalPoints    int                   `json:"total_points"`
	IslamicLevel   int                   `json:"islamic_level"`
	CurrentStreak  int                   `json:"current_streak"`
	LongestStreak  int                   `json:"longest_streak"`
	Goals          []GoalView            `json:"goals"`
	Achievements   []AchievementView     `json:"achievements"`
	PendingClaims  []ClaimView           `json:"pending_claims"`
	DailySummaries []ledger.DailySummary `json:"daily_summaries"`
	GeneratedAt    time.Time             `json:"generated_at"`
	FromCache      bool                  `json:"-"`
}

// GetProgressSnapshotHandler handles snapshot queries.
type GetProgressSnapshotHandler struct {
	childRepo       child.Repository
	ledgerRepo      ledger.Repository
	goalRepo        goal.Repository
	achievementRepo achievement.Repository
	rewardRepo      reward.Repository
	cache           SnapshotStore
	logger          *slog.Logger

	// summaryDays is how many trailing child-local days the snapshot carries.
	summaryDays int
}

// NewGetProgressSnapshotHandler creates a new GetProgressSnapshotHandler.
func NewGetProgressSnapshotHandler(
	childRepo child.Repository,
	ledgerRepo ledger.Repository,
	goalRepo goal.Repository,
	achievementRepo achievement.Repository,
	rewardRepo reward.Repository,
	cache SnapshotStore,
	logger *slog.Logger,
) *GetProgressSnapshotHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &GetProgressSnapshotHandler{
		childRepo:       childRepo,
		ledgerRepo:      ledgerRepo,
		goalRepo:        goalRepo,
		achievementRepo: achievementRepo,
		rewardRepo:      rewardRepo,
		cache:           cache,
		logger:          logger,
		summaryDays:     7,
	}
}

// Handle returns the child's progress snapshot.
func (h *GetProgressSnapshotHandler) Handle(ctx context.Context, childID string) (*ProgressSnapshot, error) {
	if childID == "" {
		return nil, errors.New("get_progress_snapshot: child_id is required")
	}

	if h.cache != nil {
		var cached ProgressSnapshot
		if err := h.cache.Get(ctx, childID, &cached); err == nil {
			cached.FromCache = true
			return &cached, nil
		}
	}

	snapshot, err := h.assemble(ctx, childID)
	if err != nil {
		return nil, err
	}

	if h.cache != nil {
		if err := h.cache.Set(ctx, childID, snapshot); err != nil {
			h.logger.Warn("snapshot cache write failed", "child_id", childID, "error", err)
		}
	}

	return snapshot, nil
}

func (h *GetProgressSnapshotHandler) assemble(ctx context.Context, childID string) (*ProgressSnapshot, error) {
	ch, err := h.childRepo.GetByID(ctx, childID)
	if err != nil {
		return nil, fmt.Errorf("get_progress_snapshot: load child: %w", err)
	}

	goals, err := h.goalRepo.ListByChild(ctx, childID)
	if err != nil {
		return nil, fmt.Errorf("get_progress_snapshot: list goals: %w", err)
	}
	instances, err := h.achievementRepo.ListByChild(ctx, childID)
	if err != nil {
		return nil, fmt.Errorf("get_progress_snapshot: list achievements: %w", err)
	}
	claims, err := h.rewardRepo.ListClaims(ctx, childID)
	if err != nil {
		return nil, fmt.Errorf("get_progress_snapshot: list claims: %w", err)
	}

	snapshot := &ProgressSnapshot{
		ChildID:       ch.ID,
		DisplayName:   ch.DisplayName,
		TotalPoints:   int(ch.TotalPoints),
		IslamicLevel:  int(ch.IslamicLevel),
		CurrentStreak: ch.CurrentStreak,
		LongestStreak: ch.LongestStreak,
		GeneratedAt:   time.Now().UTC(),
	}

	for _, g := range goals {
		snapshot.Goals = append(snapshot.Goals, GoalView{
			ID:           g.ID,
			Type:         string(g.Type),
			Title:        g.Title,
			TargetValue:  g.TargetValue,
			CurrentValue: g.CurrentValue,
			Percentage:   g.ProgressPercentage(),
			RewardPoints: g.RewardPoints,
			Deadline:     g.Deadline,
			CompletedAt:  g.CompletedAt,
		})
	}

	for _, a := range instances {
		def, ok := achievement.DefinitionByID(a.DefinitionID)
		if !ok {
			// Instance for a retired definition; skip rather than show a
			// nameless badge.
			continue
		}
		snapshot.Achievements = append(snapshot.Achievements, AchievementView{
			DefinitionID:      a.DefinitionID,
			Name:              def.Name,
			Description:       def.Description,
			Emoji:             def.Emoji,
			Progress:          a.ProgressPercentage,
			EarnedAt:          a.EarnedAt,
			CelebrationViewed: a.CelebrationViewed,
		})
	}

	for _, c := range claims {
		if c.Status != reward.StatusPending {
			continue
		}
		snapshot.PendingClaims = append(snapshot.PendingClaims, ClaimView{
			ID:             c.ID,
			RewardID:       c.RewardID,
			Status:         string(c.Status),
			PointsRequired: c.PointsRequired,
			ClaimedAt:      c.ClaimedAt,
			DecidedAt:      c.DecidedAt,
		})
	}

	if loc, err := timeutil.ResolveLocation(ch.Timezone); err == nil {
		summaries, err := h.ledgerRepo.DailySummaries(ctx, childID, loc, h.summaryDays)
		if err != nil {
			return nil, fmt.Errorf("get_progress_snapshot: daily summaries: %w", err)
		}
		snapshot.DailySummaries = summaries
	} else {
		h.logger.Warn("daily summaries skipped, timezone unresolved",
			"child_id", childID,
			"timezone", ch.Timezone,
		)
	}

	return snapshot, nil
}
