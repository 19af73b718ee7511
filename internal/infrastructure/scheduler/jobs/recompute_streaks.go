// Package jobs contains implementations of scheduled jobs for the progress
// engine.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/deen-kids/deen-progress-engine/internal/domain/child"
	"github.com/deen-kids/deen-progress-engine/internal/domain/ledger"
	"github.com/deen-kids/deen-progress-engine/internal/domain/shared"
	"github.com/deen-kids/deen-progress-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECOMPUTE STREAKS JOB
// ══════════════════════════════════════════════════════════════════════════════

// RecomputeStreaksJob walks every child and recomputes streak counters from
// the ledger. Streaks break by the passage of midnight, not by an event: a
// child who records nothing today produces no ledger write, so without this
// sweep the stale counter would survive until the next activity. The
// recomputation is a pure function of the ledger, so running it twice on the
// same state is a no-op.
type RecomputeStreaksJob struct {
	childRepo      child.Repository
	ledgerRepo     ledger.Repository
	eventPublisher shared.EventPublisher
	logger         *slog.Logger

	config RecomputeStreaksConfig

	lastRunStats atomic.Value // *RecomputeStreaksStats
}

// RecomputeStreaksConfig contains configuration for the streak sweep.
type RecomputeStreaksConfig struct {
	// Timeout is the maximum duration for one full sweep.
	Timeout time.Duration

	// PublishUpdates emits a StreakUpdatedEvent for each changed counter so
	// cached snapshots refresh.
	PublishUpdates bool
}

// DefaultRecomputeStreaksConfig returns sensible defaults.
func DefaultRecomputeStreaksConfig() RecomputeStreaksConfig {
	return RecomputeStreaksConfig{
		Timeout:        10 * time.Minute,
		PublishUpdates: true,
	}
}

// RecomputeStreaksStats contains statistics from a sweep run.
type RecomputeStreaksStats struct {
	StartedAt        time.Time
	CompletedAt      time.Time
	Duration         time.Duration
	ChildrenScanned  int
	StreaksChanged   int
	TimezonesSkipped int
	Errors           []error
}

// NewRecomputeStreaksJob creates a new streak recomputation job.
func NewRecomputeStreaksJob(
	childRepo child.Repository,
	ledgerRepo ledger.Repository,
	eventPublisher shared.EventPublisher,
	logger *slog.Logger,
	config RecomputeStreaksConfig,
) *RecomputeStreaksJob {
	if logger == nil {
		logger = slog.Default()
	}

	return &RecomputeStreaksJob{
		childRepo:      childRepo,
		ledgerRepo:     ledgerRepo,
		eventPublisher: eventPublisher,
		logger:         logger,
		config:         config,
	}
}

// Name returns the job name.
func (j *RecomputeStreaksJob) Name() string {
	return "recompute_streaks"
}

// Description returns a human-readable description.
func (j *RecomputeStreaksJob) Description() string {
	return "Recomputes daily-consistency streaks from the ledger for every child"
}

// Run executes the sweep.
func (j *RecomputeStreaksJob) Run(ctx context.Context) error {
	startedAt := time.Now()
	stats := &RecomputeStreaksStats{
		StartedAt: startedAt,
		Errors:    make([]error, 0),
	}

	j.logger.Info("starting recompute_streaks job")

	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	children, err := j.childRepo.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to list children: %w", err)
	}

	for _, c := range children {
		stats.ChildrenScanned++

		if err := j.recomputeChild(ctx, c, stats); err != nil {
			stats.Errors = append(stats.Errors, err)
			j.logger.Error("streak recomputation failed",
				"child_id", c.ID,
				"error", err,
			)
		}
	}

	stats.CompletedAt = time.Now()
	stats.Duration = stats.CompletedAt.Sub(startedAt)
	j.lastRunStats.Store(stats)

	j.logger.Info("recompute_streaks job completed",
		"duration", stats.Duration.String(),
		"children_scanned", stats.ChildrenScanned,
		"streaks_changed", stats.StreaksChanged,
		"timezones_skipped", stats.TimezonesSkipped,
	)

	if len(stats.Errors) > 0 {
		return fmt.Errorf("sweep completed with %d errors", len(stats.Errors))
	}

	return nil
}

// recomputeChild refreshes one child's counters. An unresolvable timezone
// skips the child rather than bucketing days in the wrong calendar.
func (j *RecomputeStreaksJob) recomputeChild(ctx context.Context, c *child.Child, stats *RecomputeStreaksStats) error {
	loc, err := timeutil.ResolveLocation(c.Timezone)
	if err != nil {
		stats.TimezonesSkipped++
		j.logger.Warn("skipping child with unresolvable timezone",
			"child_id", c.ID,
			"timezone", c.Timezone,
		)
		return nil
	}

	days, err := j.ledgerRepo.CompleteDays(ctx, c.ID, loc)
	if err != nil {
		return fmt.Errorf("complete days: %w", err)
	}

	result := ledger.ComputeStreaks(days, time.Now().In(loc))
	if result.Current == c.CurrentStreak && result.Longest <= c.LongestStreak {
		return nil
	}

	if err := j.childRepo.UpdateStreaks(ctx, c.ID, result.Current); err != nil {
		return fmt.Errorf("update streaks: %w", err)
	}
	stats.StreaksChanged++

	if j.config.PublishUpdates && j.eventPublisher != nil {
		event := shared.NewStreakUpdatedEvent(c.ID, result.Current, result.Longest, c.CurrentStreak)
		if err := j.eventPublisher.Publish(event); err != nil {
			j.logger.Warn("failed to publish streak update",
				"child_id", c.ID,
				"error", err,
			)
		}
	}

	return nil
}

// LastRunStats returns statistics from the last sweep.
func (j *RecomputeStreaksJob) LastRunStats() *RecomputeStreaksStats {
	stats := j.lastRunStats.Load()
	if stats == nil {
		return nil
	}
	return stats.(*RecomputeStreaksStats)
}
