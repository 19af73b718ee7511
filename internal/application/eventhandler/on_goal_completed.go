package eventhandler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/deen-kids/deen-progress-engine/internal/application/saga"
	"github.com/deen-kids/deen-progress-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ON GOAL COMPLETED
// A completed goal moves the goals_completed metric, which several badges
// watch. The activity-driven path refreshes achievements anyway; this
// handler covers completions that arrive through the parent correction path.
// ══════════════════════════════════════════════════════════════════════════════

// GoalCompletedHandler re-evaluates achievements after goal completions.
type GoalCompletedHandler struct {
	achievementFlow *saga.AchievementFlow
	logger          *slog.Logger
	timeout         time.Duration
}

// NewGoalCompletedHandler creates a new GoalCompletedHandler.
func NewGoalCompletedHandler(achievementFlow *saga.AchievementFlow, logger *slog.Logger) *GoalCompletedHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &GoalCompletedHandler{
		achievementFlow: achievementFlow,
		logger:          logger,
		timeout:         30 * time.Second,
	}
}

// Handle implements shared.EventHandler.
func (h *GoalCompletedHandler) Handle(event shared.Event) error {
	e, ok := event.(shared.GoalCompletedEvent)
	if !ok {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	if _, err := h.achievementFlow.Refresh(ctx, e.ChildID); err != nil {
		return fmt.Errorf("on_goal_completed: %w", err)
	}
	return nil
}
