// Package postgres implements the PostgreSQL persistence layer for the
// progress engine.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/deen-kids/deen-progress-engine/internal/domain/achievement"
	"github.com/deen-kids/deen-progress-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// AchievementRepository implements achievement.Repository for PostgreSQL.
// Definitions live in the domain catalog; only per-child instance state is
// stored here.
type AchievementRepository struct {
	conn *Connection
}

// NewAchievementRepository creates a new AchievementRepository.
func NewAchievementRepository(conn *Connection) *AchievementRepository {
	return &AchievementRepository{conn: conn}
}

// ListByChild returns all of a child's achievement instances.
func (r *AchievementRepository) ListByChild(ctx context.Context, childID string) ([]*achievement.Achievement, error) {
	query := `
		SELECT child_id, achievement_id, progress, earned_at, celebration_viewed
		FROM child_achievements
		WHERE child_id = $1
		ORDER BY achievement_id ASC
	`

	rows, err := r.conn.Query(ctx, query, childID)
	if err != nil {
		return nil, fmt.Errorf("failed to query achievements: %w", err)
	}
	defer rows.Close()

	var achievements []*achievement.Achievement
	for rows.Next() {
		var a achievement.Achievement
		err := rows.Scan(
			&a.ChildID,
			&a.DefinitionID,
			&a.ProgressPercentage,
			&a.EarnedAt,
			&a.CelebrationViewed,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan achievement: %w", err)
		}
		achievements = append(achievements, &a)
	}

	return achievements, rows.Err()
}

// EarnedIDs returns the set of definition IDs the child already earned.
func (r *AchievementRepository) EarnedIDs(ctx context.Context, childID string) (map[string]bool, error) {
	query := `
		SELECT achievement_id
		FROM child_achievements
		WHERE child_id = $1 AND earned_at IS NOT NULL
	`

	rows, err := r.conn.Query(ctx, query, childID)
	if err != nil {
		return nil, fmt.Errorf("failed to query earned achievements: %w", err)
	}
	defer rows.Close()

	earned := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan achievement id: %w", err)
		}
		earned[id] = true
	}

	return earned, rows.Err()
}

// UpsertProgress stores the latest progress percentage for a not-yet-earned
// instance. An earned row is left untouched so progress can never appear to
// move after the badge landed.
func (r *AchievementRepository) UpsertProgress(ctx context.Context, childID, definitionID string, progress int) error {
	query := `
		INSERT INTO child_achievements (child_id, achievement_id, progress)
		VALUES ($1, $2, $3)
		ON CONFLICT (child_id, achievement_id) DO UPDATE
		SET progress = EXCLUDED.progress
		WHERE child_achievements.earned_at IS NULL
	`

	_, err := r.conn.Exec(ctx, query, childID, definitionID, progress)
	if err != nil {
		return fmt.Errorf("failed to upsert achievement progress: %w", err)
	}

	return nil
}

// MarkEarned sets earned_at, guarded by earned_at IS NULL. Of two racing
// evaluators exactly one sees earned=true; the badge is awarded once.
func (r *AchievementRepository) MarkEarned(ctx context.Context, childID, definitionID string, earnedAt time.Time) (bool, error) {
	query := `
		INSERT INTO child_achievements (child_id, achievement_id, progress, earned_at)
		VALUES ($1, $2, 100, $3)
		ON CONFLICT (child_id, achievement_id) DO UPDATE
		SET progress = 100, earned_at = EXCLUDED.earned_at
		WHERE child_achievements.earned_at IS NULL
	`

	tag, err := r.conn.Exec(ctx, query, childID, definitionID, earnedAt)
	if err != nil {
		return false, fmt.Errorf("failed to mark achievement earned: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// Acknowledge flips celebration_viewed false→true for an earned instance.
func (r *AchievementRepository) Acknowledge(ctx context.Context, childID, definitionID string) (bool, error) {
	query := `
		UPDATE child_achievements
		SET celebration_viewed = TRUE
		WHERE child_id = $1 AND achievement_id = $2
		  AND earned_at IS NOT NULL AND celebration_viewed = FALSE
	`

	tag, err := r.conn.Exec(ctx, query, childID, definitionID)
	if err != nil {
		return false, fmt.Errorf("failed to acknowledge achievement: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	// Nothing flipped: figure out why for the caller.
	a, err := r.GetByID(ctx, childID, definitionID)
	if err != nil {
		return false, err
	}
	if a.EarnedAt == nil {
		return false, shared.ErrAchievementNotEarned
	}
	return false, nil
}

// GetByID returns one instance.
func (r *AchievementRepository) GetByID(ctx context.Context, childID, definitionID string) (*achievement.Achievement, error) {
	query := `
		SELECT child_id, achievement_id, progress, earned_at, celebration_viewed
		FROM child_achievements
		WHERE child_id = $1 AND achievement_id = $2
	`

	var a achievement.Achievement
	err := r.conn.QueryRow(ctx, query, childID, definitionID).Scan(
		&a.ChildID,
		&a.DefinitionID,
		&a.ProgressPercentage,
		&a.EarnedAt,
		&a.CelebrationViewed,
	)
	if IsNoRows(err) {
		return nil, shared.ErrAchievementNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan achievement: %w", err)
	}

	return &a, nil
}
