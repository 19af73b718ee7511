package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/deen-kids/deen-progress-engine/internal/application/command"
	"github.com/deen-kids/deen-progress-engine/internal/domain/child"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECONCILE BALANCES JOB
// ══════════════════════════════════════════════════════════════════════════════

// ReconcileBalancesJob audits every child's materialized balance against the
// sum derived from the ledger, completed goal rewards, and approved claim
// costs. Drift means a bug or a partial write somewhere upstream, so the
// sweep reports every mismatch; repair is opt-in because overwriting a
// balance destroys the evidence.
type ReconcileBalancesJob struct {
	childRepo child.Repository
	reconcile *command.ReconcileBalanceHandler
	logger    *slog.Logger

	config ReconcileBalancesConfig

	lastRunStats atomic.Value // *ReconcileBalancesStats
}

// ReconcileBalancesConfig contains configuration for the audit sweep.
type ReconcileBalancesConfig struct {
	// Repair rewrites drifted balances to the derived value. Off by default:
	// the nightly sweep reports, a parent-triggered reconcile repairs.
	Repair bool

	// Timeout is the maximum duration for one full sweep.
	Timeout time.Duration
}

// DefaultReconcileBalancesConfig returns sensible defaults.
func DefaultReconcileBalancesConfig() ReconcileBalancesConfig {
	return ReconcileBalancesConfig{
		Repair:  false,
		Timeout: 15 * time.Minute,
	}
}

// ReconcileBalancesStats contains statistics from an audit run.
type ReconcileBalancesStats struct {
	StartedAt       time.Time
	CompletedAt     time.Time
	Duration        time.Duration
	ChildrenAudited int
	DriftsFound     int
	Repaired        int
	Errors          []error
}

// NewReconcileBalancesJob creates a new balance reconciliation job.
func NewReconcileBalancesJob(
	childRepo child.Repository,
	reconcile *command.ReconcileBalanceHandler,
	logger *slog.Logger,
	config ReconcileBalancesConfig,
) *ReconcileBalancesJob {
	if logger == nil {
		logger = slog.Default()
	}

	return &ReconcileBalancesJob{
		childRepo: childRepo,
		reconcile: reconcile,
		logger:    logger,
		config:    config,
	}
}

// Name returns the job name.
func (j *ReconcileBalancesJob) Name() string {
	return "reconcile_balances"
}

// Description returns a human-readable description.
func (j *ReconcileBalancesJob) Description() string {
	return "Audits stored point balances against the ledger-derived sums"
}

// Run executes the audit sweep.
func (j *ReconcileBalancesJob) Run(ctx context.Context) error {
	startedAt := time.Now()
	stats := &ReconcileBalancesStats{
		StartedAt: startedAt,
		Errors:    make([]error, 0),
	}

	j.logger.Info("starting reconcile_balances job", "repair", j.config.Repair)

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
		result, err := j.reconcile.Handle(ctx, command.ReconcileBalanceCommand{
			ChildID: c.ID,
			Repair:  j.config.Repair,
		})
		if err != nil {
			stats.Errors = append(stats.Errors, err)
			j.logger.Error("balance audit failed",
				"child_id", c.ID,
				"error", err,
			)
			continue
		}
		stats.ChildrenAudited++

		if !result.Consistent {
			stats.DriftsFound++
			j.logger.Warn("balance drift detected",
				"child_id", c.ID,
				"stored", result.StoredBalance,
				"derived", result.DerivedBalance,
				"repaired", result.Repaired,
			)
			if result.Repaired {
				stats.Repaired++
			}
		}
	}

	stats.CompletedAt = time.Now()
	stats.Duration = stats.CompletedAt.Sub(startedAt)
	j.lastRunStats.Store(stats)

	j.logger.Info("reconcile_balances job completed",
		"duration", stats.Duration.String(),
		"children_audited", stats.ChildrenAudited,
		"drifts_found", stats.DriftsFound,
		"repaired", stats.Repaired,
	)

	if len(stats.Errors) > 0 {
		return fmt.Errorf("audit completed with %d errors", len(stats.Errors))
	}

	return nil
}

// LastRunStats returns statistics from the last audit.
func (j *ReconcileBalancesJob) LastRunStats() *ReconcileBalancesStats {
	stats := j.lastRunStats.Load()
	if stats == nil {
		return nil
	}
	return stats.(*ReconcileBalancesStats)
}
