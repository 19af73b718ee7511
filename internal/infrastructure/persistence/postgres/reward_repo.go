// Package postgres implements the PostgreSQL persistence layer for the
// progress engine.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/deen-kids/deen-progress-engine/internal/domain/reward"
	"github.com/deen-kids/deen-progress-engine/internal/domain/shared"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// REWARD REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// RewardRepository implements reward.Repository for PostgreSQL. Claim
// decisions are compare-and-set on status='pending'; the approve path debits
// the balance in the same transaction with a guard on total_points >= cost.
type RewardRepository struct {
	conn *Connection
}

// NewRewardRepository creates a new RewardRepository.
func NewRewardRepository(conn *Connection) *RewardRepository {
	return &RewardRepository{conn: conn}
}

// ─────────────────────────────────────────────────────────────────────────────
// Catalog
// ─────────────────────────────────────────────────────────────────────────────

// CreateReward adds a catalog entry.
func (r *RewardRepository) CreateReward(ctx context.Context, rw *reward.Reward) error {
	query := `
		INSERT INTO rewards (id, family_id, title, points_required, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.conn.Exec(ctx, query,
		rw.ID,
		rw.FamilyID,
		rw.Title,
		rw.PointsRequired,
		rw.Active,
		rw.CreatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create reward: %w", err)
	}

	return nil
}

// GetReward returns a catalog entry.
func (r *RewardRepository) GetReward(ctx context.Context, id string) (*reward.Reward, error) {
	query := `
		SELECT id, family_id, title, points_required, active, created_at
		FROM rewards
		WHERE id = $1
	`

	var rw reward.Reward
	err := r.conn.QueryRow(ctx, query, id).Scan(
		&rw.ID,
		&rw.FamilyID,
		&rw.Title,
		&rw.PointsRequired,
		&rw.Active,
		&rw.CreatedAt,
	)
	if IsNoRows(err) {
		return nil, shared.ErrRewardNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan reward: %w", err)
	}

	return &rw, nil
}

// ListRewards returns a family's active catalog.
func (r *RewardRepository) ListRewards(ctx context.Context, familyID string) ([]*reward.Reward, error) {
	query := `
		SELECT id, family_id, title, points_required, active, created_at
		FROM rewards
		WHERE family_id = $1 AND active = TRUE
		ORDER BY points_required ASC
	`

	rows, err := r.conn.Query(ctx, query, familyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rewards: %w", err)
	}
	defer rows.Close()

	var rewards []*reward.Reward
	for rows.Next() {
		var rw reward.Reward
		err := rows.Scan(
			&rw.ID,
			&rw.FamilyID,
			&rw.Title,
			&rw.PointsRequired,
			&rw.Active,
			&rw.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reward: %w", err)
		}
		rewards = append(rewards, &rw)
	}

	return rewards, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Claims
// ─────────────────────────────────────────────────────────────────────────────

// CreateClaim stores a pending claim.
func (r *RewardRepository) CreateClaim(ctx context.Context, c *reward.Claim) error {
	query := `
		INSERT INTO reward_claims (
			id, reward_id, child_id, points_required, status, claimed_at, decided_at, decided_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.conn.Exec(ctx, query,
		c.ID,
		c.RewardID,
		c.ChildID,
		c.PointsRequired,
		string(c.Status),
		c.ClaimedAt,
		c.DecidedAt,
		c.DeciderID,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create claim: %w", err)
	}

	return nil
}

// GetClaim returns a claim.
func (r *RewardRepository) GetClaim(ctx context.Context, id string) (*reward.Claim, error) {
	query := `
		SELECT id, reward_id, child_id, points_required, status, claimed_at, decided_at, decided_by
		FROM reward_claims
		WHERE id = $1
	`

	row := r.conn.QueryRow(ctx, query, id)
	return scanClaim(row)
}

// ListClaims returns a child's claims, newest first.
func (r *RewardRepository) ListClaims(ctx context.Context, childID string) ([]*reward.Claim, error) {
	query := `
		SELECT id, reward_id, child_id, points_required, status, claimed_at, decided_at, decided_by
		FROM reward_claims
		WHERE child_id = $1
		ORDER BY claimed_at DESC
	`

	rows, err := r.conn.Query(ctx, query, childID)
	if err != nil {
		return nil, fmt.Errorf("failed to query claims: %w", err)
	}
	defer rows.Close()

	var claims []*reward.Claim
	for rows.Next() {
		var c reward.Claim
		var status string
		err := rows.Scan(
			&c.ID,
			&c.RewardID,
			&c.ChildID,
			&c.PointsRequired,
			&status,
			&c.ClaimedAt,
			&c.DecidedAt,
			&c.DeciderID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan claim: %w", err)
		}
		c.Status = reward.Status(status)
		claims = append(claims, &c)
	}

	return claims, rows.Err()
}

// Deny moves pending→denied with no balance effect.
func (r *RewardRepository) Deny(ctx context.Context, claimID, deciderID string, decidedAt time.Time) (bool, error) {
	query := `
		UPDATE reward_claims
		SET status = 'denied', decided_at = $2, decided_by = $3
		WHERE id = $1 AND status = 'pending'
	`

	tag, err := r.conn.Exec(ctx, query, claimID, decidedAt, deciderID)
	if err != nil {
		return false, fmt.Errorf("failed to deny claim: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	// Not pending anymore, or unknown claim.
	if _, err := r.GetClaim(ctx, claimID); err != nil {
		return false, err
	}
	return false, nil
}

// ApproveAndDebit moves pending→approved and debits the child's balance in
// one transaction. The debit statement requires total_points >= cost, so an
// under-funded approval rolls the whole transition back and returns
// shared.ErrBalanceTooLow with the claim still pending.
func (r *RewardRepository) ApproveAndDebit(ctx context.Context, claimID, deciderID string, decidedAt time.Time) (bool, int, error) {
	var decided bool
	var newBalance int

	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		var childID string
		var cost int
		err := tx.QueryRow(ctx, `
			UPDATE reward_claims
			SET status = 'approved', decided_at = $2, decided_by = $3
			WHERE id = $1 AND status = 'pending'
			RETURNING child_id, points_required
		`, claimID, decidedAt, deciderID).Scan(&childID, &cost)
		if IsNoRows(err) {
			var exists bool
			if err := tx.QueryRow(ctx,
				"SELECT EXISTS(SELECT 1 FROM reward_claims WHERE id = $1)", claimID,
			).Scan(&exists); err != nil {
				return fmt.Errorf("failed to check claim existence: %w", err)
			}
			if !exists {
				return shared.ErrClaimNotFound
			}
			decided = false
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to approve claim: %w", err)
		}

		// Balance is checked at decision time, against the live balance.
		var balance int
		err = tx.QueryRow(ctx, `
			UPDATE children
			SET total_points = total_points - $2
			WHERE id = $1 AND total_points >= $2
			RETURNING total_points
		`, childID, cost).Scan(&balance)
		if IsNoRows(err) {
			return shared.ErrBalanceTooLow
		}
		if err != nil {
			return fmt.Errorf("failed to debit balance: %w", err)
		}

		if err := syncLevel(ctx, tx, childID, balance); err != nil {
			return err
		}

		decided = true
		newBalance = balance
		return nil
	})
	if err != nil {
		return false, 0, err
	}

	return decided, newBalance, nil
}

// SumApprovedCosts returns the total points debited by approved claims.
// Audit path for the balance invariant.
func (r *RewardRepository) SumApprovedCosts(ctx context.Context, childID string) (int, error) {
	var sum int
	err := r.conn.QueryRow(ctx,
		"SELECT COALESCE(SUM(points_required), 0) FROM reward_claims WHERE child_id = $1 AND status = 'approved'",
		childID,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("failed to sum approved claim costs: %w", err)
	}
	return sum, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPER METHODS
// ══════════════════════════════════════════════════════════════════════════════

// scanClaim scans a single claim from a row.
func scanClaim(row pgx.Row) (*reward.Claim, error) {
	var c reward.Claim
	var status string

	err := row.Scan(
		&c.ID,
		&c.RewardID,
		&c.ChildID,
		&c.PointsRequired,
		&status,
		&c.ClaimedAt,
		&c.DecidedAt,
		&c.DeciderID,
	)

	if IsNoRows(err) {
		return nil, shared.ErrClaimNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan claim: %w", err)
	}

	c.Status = reward.Status(status)
	return &c, nil
}
