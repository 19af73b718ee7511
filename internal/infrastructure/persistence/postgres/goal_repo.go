// Package postgres implements the PostgreSQL persistence layer for the
// progress engine.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/deen-kids/deen-progress-engine/internal/domain/goal"
	"github.com/deen-kids/deen-progress-engine/internal/domain/shared"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// GOAL REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// GoalRepository implements goal.Repository for PostgreSQL. Every mutation
// of an open goal is guarded by completed_at IS NULL, so a terminal goal is
// immutable at the storage layer, not just by convention.
type GoalRepository struct {
	conn *Connection
}

// NewGoalRepository creates a new GoalRepository.
func NewGoalRepository(conn *Connection) *GoalRepository {
	return &GoalRepository{conn: conn}
}

// Create creates a new goal.
func (r *GoalRepository) Create(ctx context.Context, g *goal.Goal) error {
	query := `
		INSERT INTO goals (
			id, child_id, goal_type, title, target_value, current_value,
			deadline, reward_points, created_at, updated_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.conn.Exec(ctx, query,
		g.ID,
		g.ChildID,
		string(g.Type),
		g.Title,
		g.TargetValue,
		g.CurrentValue,
		g.Deadline,
		g.RewardPoints,
		g.CreatedAt,
		g.UpdatedAt,
		g.CompletedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create goal: %w", err)
	}

	return nil
}

// GetByID returns a goal by ID.
func (r *GoalRepository) GetByID(ctx context.Context, id string) (*goal.Goal, error) {
	row := r.conn.QueryRow(ctx, selectGoal+" WHERE id = $1", id)
	return scanGoal(row)
}

// ListActive returns a child's non-completed goals.
func (r *GoalRepository) ListActive(ctx context.Context, childID string) ([]*goal.Goal, error) {
	query := selectGoal + `
		WHERE child_id = $1 AND completed_at IS NULL
		ORDER BY created_at ASC
	`
	return r.queryGoals(ctx, query, childID)
}

// ListByChild returns all of a child's goals, active first.
func (r *GoalRepository) ListByChild(ctx context.Context, childID string) ([]*goal.Goal, error) {
	query := selectGoal + `
		WHERE child_id = $1
		ORDER BY (completed_at IS NULL) DESC, created_at ASC
	`
	return r.queryGoals(ctx, query, childID)
}

// AdvanceProgress adds delta to current_value, clamped to target_value.
// The completed_at IS NULL guard means a terminal goal silently stays put;
// the caller sees advanced=false and the unchanged goal.
func (r *GoalRepository) AdvanceProgress(ctx context.Context, goalID string, delta int) (*goal.Goal, bool, error) {
	if delta < 0 {
		return nil, false, goal.ErrNegativeDelta
	}

	query := `
		UPDATE goals
		SET current_value = LEAST(current_value + $2, target_value)
		WHERE id = $1 AND completed_at IS NULL
		RETURNING ` + goalColumns

	row := r.conn.QueryRow(ctx, query, goalID, delta)
	g, err := scanGoal(row)
	if err == nil {
		return g, true, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, false, err
	}

	// No row updated: either the goal is terminal or it does not exist.
	g, err = r.GetByID(ctx, goalID)
	if err != nil {
		return nil, false, err
	}
	return g, false, nil
}

// SetProgress raises current_value to the given value (parent correction
// path), clamped to target_value and guarded by completed_at IS NULL. A value
// below the stored counter leaves it unchanged: progress never decreases
// while the goal is open.
func (r *GoalRepository) SetProgress(ctx context.Context, goalID string, value int) (*goal.Goal, bool, error) {
	query := `
		UPDATE goals
		SET current_value = LEAST(GREATEST(current_value, $2), target_value)
		WHERE id = $1 AND completed_at IS NULL
		RETURNING ` + goalColumns

	row := r.conn.QueryRow(ctx, query, goalID, value)
	g, err := scanGoal(row)
	if err == nil {
		return g, true, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, false, err
	}

	g, err = r.GetByID(ctx, goalID)
	if err != nil {
		return nil, false, err
	}
	return g, false, nil
}

// CompleteAndCredit sets completed_at and credits the reward in one
// transaction. The compare-and-set on completed_at IS NULL means exactly one
// caller wins a completion race; the loser gets completed=false and no
// credit happens.
func (r *GoalRepository) CompleteAndCredit(ctx context.Context, goalID string, completedAt time.Time) (bool, int, error) {
	var completed bool
	var newBalance int

	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		var childID string
		var rewardPoints int
		err := tx.QueryRow(ctx, `
			UPDATE goals
			SET completed_at = $2
			WHERE id = $1 AND completed_at IS NULL
			RETURNING child_id, reward_points
		`, goalID, completedAt).Scan(&childID, &rewardPoints)
		if IsNoRows(err) {
			// Lost the race or unknown goal; distinguish for the caller.
			var exists bool
			if err := tx.QueryRow(ctx,
				"SELECT EXISTS(SELECT 1 FROM goals WHERE id = $1)", goalID,
			).Scan(&exists); err != nil {
				return fmt.Errorf("failed to check goal existence: %w", err)
			}
			if !exists {
				return shared.ErrGoalNotFound
			}
			completed = false
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to complete goal: %w", err)
		}

		balance, err := creditBalance(ctx, tx, childID, rewardPoints)
		if err != nil {
			return err
		}

		completed = true
		newBalance = balance
		return nil
	})
	if err != nil {
		return false, 0, err
	}

	return completed, newBalance, nil
}

// CountCompleted returns how many goals the child has completed.
func (r *GoalRepository) CountCompleted(ctx context.Context, childID string) (int, error) {
	var count int
	err := r.conn.QueryRow(ctx,
		"SELECT COUNT(*) FROM goals WHERE child_id = $1 AND completed_at IS NOT NULL",
		childID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count completed goals: %w", err)
	}
	return count, nil
}

// SumCompletedRewards returns the total reward points credited by completed
// goals. Audit path for the balance invariant.
func (r *GoalRepository) SumCompletedRewards(ctx context.Context, childID string) (int, error) {
	var sum int
	err := r.conn.QueryRow(ctx,
		"SELECT COALESCE(SUM(reward_points), 0) FROM goals WHERE child_id = $1 AND completed_at IS NOT NULL",
		childID,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("failed to sum completed goal rewards: %w", err)
	}
	return sum, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPER METHODS
// ══════════════════════════════════════════════════════════════════════════════

const goalColumns = `id, child_id, goal_type, title, target_value, current_value,
	   deadline, reward_points, created_at, updated_at, completed_at`

const selectGoal = "SELECT " + goalColumns + " FROM goals"

// scanGoal scans a single goal from a row.
func scanGoal(row pgx.Row) (*goal.Goal, error) {
	var g goal.Goal
	var goalType string

	err := row.Scan(
		&g.ID,
		&g.ChildID,
		&goalType,
		&g.Title,
		&g.TargetValue,
		&g.CurrentValue,
		&g.Deadline,
		&g.RewardPoints,
		&g.CreatedAt,
		&g.UpdatedAt,
		&g.CompletedAt,
	)

	if IsNoRows(err) {
		return nil, shared.ErrGoalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan goal: %w", err)
	}

	g.Type = goal.Type(goalType)
	return &g, nil
}

// queryGoals executes a goal list query.
func (r *GoalRepository) queryGoals(ctx context.Context, query string, args ...interface{}) ([]*goal.Goal, error) {
	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query goals: %w", err)
	}
	defer rows.Close()

	var goals []*goal.Goal
	for rows.Next() {
		var g goal.Goal
		var goalType string

		err := rows.Scan(
			&g.ID,
			&g.ChildID,
			&goalType,
			&g.Title,
			&g.TargetValue,
			&g.CurrentValue,
			&g.Deadline,
			&g.RewardPoints,
			&g.CreatedAt,
			&g.UpdatedAt,
			&g.CompletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan goal: %w", err)
		}

		g.Type = goal.Type(goalType)
		goals = append(goals, &g)
	}

	return goals, rows.Err()
}
