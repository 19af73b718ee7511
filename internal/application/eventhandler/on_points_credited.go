package eventhandler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/deen-kids/deen-progress-engine/internal/domain/child"
	"github.com/deen-kids/deen-progress-engine/internal/domain/shared"
	"github.com/deen-kids/deen-progress-engine/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// ON BALANCE CHANGED
// Keeps the read-side caches honest after any balance mutation: invalidates
// the child's snapshot and pushes the fresh score into the family
// leaderboard. Subscribed to points_credited, claim_decided, and
// balance_repaired, since all three move the balance.
// ══════════════════════════════════════════════════════════════════════════════

// SnapshotInvalidator invalidates a child's cached snapshot.
type SnapshotInvalidator interface {
	Invalidate(ctx context.Context, childID string) error
}

// LeaderboardScorer pushes a child's score into the family leaderboard.
type LeaderboardScorer interface {
	UpdateScore(ctx context.Context, familyID, childID string, points int) error
}

// BalanceChangedHandler refreshes caches after balance mutations.
type BalanceChangedHandler struct {
	childRepo   child.Repository
	snapshots   SnapshotInvalidator
	leaderboard LeaderboardScorer
	retrier     *retry.Retrier
	logger      *slog.Logger
	timeout     time.Duration
}

// NewBalanceChangedHandler creates a new BalanceChangedHandler.
func NewBalanceChangedHandler(
	childRepo child.Repository,
	snapshots SnapshotInvalidator,
	leaderboard LeaderboardScorer,
	logger *slog.Logger,
) *BalanceChangedHandler {
	if logger == nil {
		logger = slog.Default()
	}
	// Cache errors are treated as transient unless explicitly permanent.
	cfg := retry.DefaultConfig()
	cfg.RetryIf = func(err error) bool { return !retry.IsPermanent(err) }
	return &BalanceChangedHandler{
		childRepo:   childRepo,
		snapshots:   snapshots,
		leaderboard: leaderboard,
		retrier:     retry.New(cfg),
		logger:      logger,
		timeout:     10 * time.Second,
	}
}

// Handle implements shared.EventHandler. Cache failures are retried as
// transient; a cache that stays down only costs freshness, the database read
// path still serves correct data.
func (h *BalanceChangedHandler) Handle(event shared.Event) error {
	childID := childIDOf(event)
	if childID == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	ch, err := h.childRepo.GetByID(ctx, childID)
	if err != nil {
		return fmt.Errorf("on_balance_changed: load child: %w", err)
	}

	if h.snapshots != nil {
		if err := h.retrier.Do(ctx, func(ctx context.Context) error {
			return h.snapshots.Invalidate(ctx, childID)
		}); err != nil {
			h.logger.Warn("snapshot invalidation failed", "child_id", childID, "error", err)
		}
	}

	if h.leaderboard != nil {
		if err := h.retrier.Do(ctx, func(ctx context.Context) error {
			return h.leaderboard.UpdateScore(ctx, ch.FamilyID.String(), ch.ID, int(ch.TotalPoints))
		}); err != nil {
			h.logger.Warn("leaderboard update failed", "child_id", childID, "error", err)
		}
	}

	return nil
}

// childIDOf extracts the child behind a balance-moving event.
func childIDOf(event shared.Event) string {
	switch e := event.(type) {
	case shared.PointsCreditedEvent:
		return e.ChildID
	case shared.ClaimDecidedEvent:
		return e.ChildID
	case shared.BalanceDriftEvent:
		return e.ChildID
	case shared.StreakUpdatedEvent:
		return e.ChildID
	default:
		return ""
	}
}
