// Package postgres implements the PostgreSQL persistence layer for the
// progress engine.
package postgres

import (
	"context"
	"fmt"

	"github.com/deen-kids/deen-progress-engine/internal/domain/child"
	"github.com/deen-kids/deen-progress-engine/internal/domain/shared"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// CHILD REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ChildRepository implements child.Repository for PostgreSQL.
type ChildRepository struct {
	conn *Connection
}

// NewChildRepository creates a new ChildRepository.
func NewChildRepository(conn *Connection) *ChildRepository {
	return &ChildRepository{conn: conn}
}

// Create creates a new child profile.
func (r *ChildRepository) Create(ctx context.Context, c *child.Child) error {
	query := `
		INSERT INTO children (
			id, family_id, display_name, timezone, total_points,
			current_streak, longest_streak, islamic_level, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.conn.Exec(ctx, query,
		c.ID,
		c.FamilyID.String(),
		c.DisplayName,
		c.Timezone,
		int(c.TotalPoints),
		c.CurrentStreak,
		c.LongestStreak,
		int(c.IslamicLevel),
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrChildAlreadyExists
		}
		return fmt.Errorf("failed to create child: %w", err)
	}

	return nil
}

// GetByID returns a child by internal ID.
func (r *ChildRepository) GetByID(ctx context.Context, id string) (*child.Child, error) {
	query := `
		SELECT id, family_id, display_name, timezone, total_points,
			   current_streak, longest_streak, islamic_level, created_at, updated_at
		FROM children
		WHERE id = $1
	`

	row := r.conn.QueryRow(ctx, query, id)
	return scanChild(row)
}

// GetByFamily returns all children of a family, ordered by total points
// descending.
func (r *ChildRepository) GetByFamily(ctx context.Context, familyID child.FamilyID) ([]*child.Child, error) {
	query := `
		SELECT id, family_id, display_name, timezone, total_points,
			   current_streak, longest_streak, islamic_level, created_at, updated_at
		FROM children
		WHERE family_id = $1
		ORDER BY total_points DESC, display_name ASC
	`

	rows, err := r.conn.Query(ctx, query, familyID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query children by family: %w", err)
	}
	defer rows.Close()

	var children []*child.Child
	for rows.Next() {
		c, err := scanChildFromRows(rows)
		if err != nil {
			return nil, err
		}
		children = append(children, c)
	}

	return children, rows.Err()
}

// ListAll returns every child profile, grouped by family for the background
// sweeps that walk the whole table.
func (r *ChildRepository) ListAll(ctx context.Context) ([]*child.Child, error) {
	query := `
		SELECT id, family_id, display_name, timezone, total_points,
			   current_streak, longest_streak, islamic_level, created_at, updated_at
		FROM children
		ORDER BY family_id, total_points DESC
	`

	rows, err := r.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query all children: %w", err)
	}
	defer rows.Close()

	var children []*child.Child
	for rows.Next() {
		c, err := scanChildFromRows(rows)
		if err != nil {
			return nil, err
		}
		children = append(children, c)
	}

	return children, rows.Err()
}

// UpdateStreaks overwrites the current streak and raises the longest streak
// in a single atomic statement. GREATEST keeps longest monotone even when
// two recomputations race.
func (r *ChildRepository) UpdateStreaks(ctx context.Context, id string, current int) error {
	query := `
		UPDATE children
		SET current_streak = $2,
			longest_streak = GREATEST(longest_streak, $2)
		WHERE id = $1
	`

	result, err := r.conn.Exec(ctx, query, id, current)
	if err != nil {
		return fmt.Errorf("failed to update streaks: %w", err)
	}

	if result.RowsAffected() == 0 {
		return shared.ErrChildNotFound
	}

	return nil
}

// SetBalance overwrites the stored balance and derived level. Reconciliation
// repair path only.
func (r *ChildRepository) SetBalance(ctx context.Context, id string, balance child.Points) error {
	query := `
		UPDATE children
		SET total_points = $2, islamic_level = $3
		WHERE id = $1
	`

	result, err := r.conn.Exec(ctx, query, id, int(balance), int(child.CalculateLevel(balance)))
	if err != nil {
		return fmt.Errorf("failed to set balance: %w", err)
	}

	if result.RowsAffected() == 0 {
		return shared.ErrChildNotFound
	}

	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// FAMILY REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// FamilyRepository implements child.FamilyRepository for PostgreSQL.
type FamilyRepository struct {
	conn *Connection
}

// NewFamilyRepository creates a new FamilyRepository.
func NewFamilyRepository(conn *Connection) *FamilyRepository {
	return &FamilyRepository{conn: conn}
}

// Create creates a new family.
func (r *FamilyRepository) Create(ctx context.Context, f *child.Family) error {
	query := `
		INSERT INTO families (id, name, parent_pin_hash, created_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := r.conn.Exec(ctx, query, f.ID, f.Name, f.ParentPINHash, f.CreatedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create family: %w", err)
	}

	return nil
}

// GetByID returns a family by ID.
func (r *FamilyRepository) GetByID(ctx context.Context, id string) (*child.Family, error) {
	query := `
		SELECT id, name, parent_pin_hash, created_at
		FROM families
		WHERE id = $1
	`

	var f child.Family
	err := r.conn.QueryRow(ctx, query, id).Scan(&f.ID, &f.Name, &f.ParentPINHash, &f.CreatedAt)
	if IsNoRows(err) {
		return nil, shared.ErrFamilyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan family: %w", err)
	}

	return &f, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPER METHODS
// ══════════════════════════════════════════════════════════════════════════════

// scanChild scans a single child from a row.
func scanChild(row pgx.Row) (*child.Child, error) {
	var c child.Child
	var familyID string
	var totalPoints, islamicLevel int

	err := row.Scan(
		&c.ID,
		&familyID,
		&c.DisplayName,
		&c.Timezone,
		&totalPoints,
		&c.CurrentStreak,
		&c.LongestStreak,
		&islamicLevel,
		&c.CreatedAt,
		&c.UpdatedAt,
	)

	if IsNoRows(err) {
		return nil, shared.ErrChildNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan child: %w", err)
	}

	c.FamilyID = child.FamilyID(familyID)
	c.TotalPoints = child.Points(totalPoints)
	c.IslamicLevel = child.IslamicLevel(islamicLevel)

	return &c, nil
}

// scanChildFromRows scans a child from rows.
func scanChildFromRows(rows pgx.Rows) (*child.Child, error) {
	var c child.Child
	var familyID string
	var totalPoints, islamicLevel int

	err := rows.Scan(
		&c.ID,
		&familyID,
		&c.DisplayName,
		&c.Timezone,
		&totalPoints,
		&c.CurrentStreak,
		&c.LongestStreak,
		&islamicLevel,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan child: %w", err)
	}

	c.FamilyID = child.FamilyID(familyID)
	c.TotalPoints = child.Points(totalPoints)
	c.IslamicLevel = child.IslamicLevel(islamicLevel)

	return &c, nil
}

// creditBalance atomically adds delta to the child's balance and refreshes
// the derived level, returning the new balance. Runs inside the caller's
// transaction so the credit commits or rolls back with its fact.
func creditBalance(ctx context.Context, q Querier, childID string, delta int) (int, error) {
	var balance int
	err := q.QueryRow(ctx, `
		UPDATE children
		SET total_points = total_points + $2
		WHERE id = $1
		RETURNING total_points
	`, childID, delta).Scan(&balance)
	if IsNoRows(err) {
		return 0, shared.ErrChildNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to credit balance: %w", err)
	}

	if err := syncLevel(ctx, q, childID, balance); err != nil {
		return 0, err
	}

	return balance, nil
}

// syncLevel refreshes islamic_level from the given balance.
func syncLevel(ctx context.Context, q Querier, childID string, balance int) error {
	level := int(child.CalculateLevel(child.Points(balance)))
	_, err := q.Exec(ctx, `
		UPDATE children
		SET islamic_level = $2
		WHERE id = $1 AND islamic_level <> $2
	`, childID, level)
	if err != nil {
		return fmt.Errorf("failed to sync level: %w", err)
	}
	return nil
}
