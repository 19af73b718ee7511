package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/deen-kids/deen-progress-engine/internal/domain/child"
)

// ══════════════════════════════════════════════════════════════════════════════
// REBUILD LEADERBOARD JOB
// ══════════════════════════════════════════════════════════════════════════════

// LeaderboardRebuilder replaces a family's cached scoreboard wholesale.
type LeaderboardRebuilder interface {
	Rebuild(ctx context.Context, familyID string, scores map[string]int) error
}

// RebuildLeaderboardJob reseeds every family's cached leaderboard from the
// stored balances. The hot path keeps the cache fresh incrementally; this
// sweep heals entries lost to cache eviction or missed invalidations so the
// scoreboard converges on the database ordering.
type RebuildLeaderboardJob struct {
	childRepo   child.Repository
	leaderboard LeaderboardRebuilder
	logger      *slog.Logger

	config RebuildLeaderboardConfig

	lastRunStats atomic.Value // *RebuildLeaderboardStats
}

// RebuildLeaderboardConfig contains configuration for the rebuild job.
type RebuildLeaderboardConfig struct {
	// Timeout is the maximum duration for one full rebuild.
	Timeout time.Duration
}

// DefaultRebuildLeaderboardConfig returns sensible defaults.
func DefaultRebuildLeaderboardConfig() RebuildLeaderboardConfig {
	return RebuildLeaderboardConfig{
		Timeout: 5 * time.Minute,
	}
}

// RebuildLeaderboardStats contains statistics from a rebuild run.
type RebuildLeaderboardStats struct {
	StartedAt         time.Time
	CompletedAt       time.Time
	Duration          time.Duration
	TotalChildren     int
	FamiliesProcessed int
	Errors            []error
}

// NewRebuildLeaderboardJob creates a new rebuild leaderboard job.
func NewRebuildLeaderboardJob(
	childRepo child.Repository,
	leaderboard LeaderboardRebuilder,
	logger *slog.Logger,
	config RebuildLeaderboardConfig,
) *RebuildLeaderboardJob {
	if logger == nil {
		logger = slog.Default()
	}

	return &RebuildLeaderboardJob{
		childRepo:   childRepo,
		leaderboard: leaderboard,
		logger:      logger,
		config:      config,
	}
}

// Name returns the job name.
func (j *RebuildLeaderboardJob) Name() string {
	return "rebuild_leaderboard"
}

// Description returns a human-readable description.
func (j *RebuildLeaderboardJob) Description() string {
	return "Reseeds family leaderboard caches from stored point balances"
}

// Run executes the rebuild job.
func (j *RebuildLeaderboardJob) Run(ctx context.Context) error {
	startedAt := time.Now()
	stats := &RebuildLeaderboardStats{
		StartedAt: startedAt,
		Errors:    make([]error, 0),
	}

	j.logger.Info("starting rebuild_leaderboard job")

	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	children, err := j.childRepo.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to list children: %w", err)
	}
	stats.TotalChildren = len(children)

	// Group balances by family.
	byFamily := make(map[string]map[string]int)
	for _, c := range children {
		familyID := c.FamilyID.String()
		if byFamily[familyID] == nil {
			byFamily[familyID] = make(map[string]int)
		}
		byFamily[familyID][c.ID] = int(c.TotalPoints)
	}

	for familyID, scores := range byFamily {
		if err := j.leaderboard.Rebuild(ctx, familyID, scores); err != nil {
			stats.Errors = append(stats.Errors, err)
			j.logger.Error("failed to rebuild family leaderboard",
				"family_id", familyID,
				"error", err,
			)
			continue
		}
		stats.FamiliesProcessed++
	}

	stats.CompletedAt = time.Now()
	stats.Duration = stats.CompletedAt.Sub(startedAt)
	j.lastRunStats.Store(stats)

	j.logger.Info("rebuild_leaderboard job completed",
		"duration", stats.Duration.String(),
		"total_children", stats.TotalChildren,
		"families_processed", stats.FamiliesProcessed,
	)

	if len(stats.Errors) > 0 {
		return fmt.Errorf("rebuild completed with %d errors", len(stats.Errors))
	}

	return nil
}

// LastRunStats returns statistics from the last rebuild.
func (j *RebuildLeaderboardJob) LastRunStats() *RebuildLeaderboardStats {
	stats := j.lastRunStats.Load()
	if stats == nil {
		return nil
	}
	return stats.(*RebuildLeaderboardStats)
}
