// Package postgres implements the PostgreSQL persistence layer for the
// progress engine.
package postgres

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/deen-kids/deen-progress-engine/internal/domain/ledger"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEDGER REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// LedgerRepository implements ledger.Repository for PostgreSQL.
type LedgerRepository struct {
	conn *Connection
}

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(conn *Connection) *LedgerRepository {
	return &LedgerRepository{conn: conn}
}

// Append atomically inserts the fact and credits the child's balance in one
// transaction. The insert uses ON CONFLICT DO NOTHING on the
// (child_id, dedup_key) unique pair: a duplicate leaves the ledger and the
// balance untouched and the result reports Accepted=false.
func (r *LedgerRepository) Append(ctx context.Context, a *ledger.Activity) (ledger.AppendResult, error) {
	var result ledger.AppendResult

	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		insert := `
			INSERT INTO activities (
				id, child_id, activity_type, points_value, occurred_at, dedup_key, recorded_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (child_id, dedup_key) DO NOTHING
		`

		tag, err := tx.Exec(ctx, insert,
			a.ID,
			a.ChildID,
			string(a.Type),
			a.PointsValue,
			a.OccurredAt,
			a.DedupKey.String(),
			a.RecordedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert activity: %w", err)
		}

		if tag.RowsAffected() == 0 {
			// Duplicate submission: report the unchanged balance.
			result.Accepted = false
			var balance int
			err := tx.QueryRow(ctx,
				"SELECT total_points FROM children WHERE id = $1", a.ChildID,
			).Scan(&balance)
			if err != nil {
				return fmt.Errorf("failed to read balance on duplicate: %w", err)
			}
			result.NewBalance = balance
			return nil
		}

		balance, err := creditBalance(ctx, tx, a.ChildID, a.PointsValue)
		if err != nil {
			return err
		}

		result.Accepted = true
		result.Activity = a
		result.NewBalance = balance
		return nil
	})
	if err != nil {
		return ledger.AppendResult{}, err
	}

	return result, nil
}

// ListByChild returns a child's facts, newest first.
func (r *LedgerRepository) ListByChild(ctx context.Context, childID string, limit int) ([]*ledger.Activity, error) {
	query := `
		SELECT id, child_id, activity_type, points_value, occurred_at, dedup_key, recorded_at
		FROM activities
		WHERE child_id = $1
		ORDER BY occurred_at DESC
		LIMIT $2
	`

	rows, err := r.conn.Query(ctx, query, childID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query activities: %w", err)
	}
	defer rows.Close()

	var activities []*ledger.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		activities = append(activities, a)
	}

	return activities, rows.Err()
}

// ListSince returns a child's facts occurring at or after since, oldest
// first.
func (r *LedgerRepository) ListSince(ctx context.Context, childID string, since time.Time) ([]*ledger.Activity, error) {
	query := `
		SELECT id, child_id, activity_type, points_value, occurred_at, dedup_key, recorded_at
		FROM activities
		WHERE child_id = $1 AND occurred_at >= $2
		ORDER BY occurred_at ASC
	`

	rows, err := r.conn.Query(ctx, query, childID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query activities since %s: %w", since.Format(time.RFC3339), err)
	}
	defer rows.Close()

	var activities []*ledger.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		activities = append(activities, a)
	}

	return activities, rows.Err()
}

// CompleteDays returns the set of child-local days containing at least one
// streak-qualifying activity. Timestamps are stored in UTC and bucketed here
// in the child's location, so a late-evening prayer lands on the right day.
func (r *LedgerRepository) CompleteDays(ctx context.Context, childID string, loc *time.Location) (map[ledger.DayKey]bool, error) {
	query := `
		SELECT occurred_at
		FROM activities
		WHERE child_id = $1 AND activity_type = ANY($2)
	`

	rows, err := r.conn.Query(ctx, query, childID, streakQualifyingTypeNames())
	if err != nil {
		return nil, fmt.Errorf("failed to query complete days: %w", err)
	}
	defer rows.Close()

	days := make(map[ledger.DayKey]bool)
	for rows.Next() {
		var occurredAt time.Time
		if err := rows.Scan(&occurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan occurred_at: %w", err)
		}
		days[ledger.DayKeyOf(occurredAt, loc)] = true
	}

	return days, rows.Err()
}

// SumPoints returns the full-ledger sum for a child. Audit path only.
func (r *LedgerRepository) SumPoints(ctx context.Context, childID string) (int, error) {
	var sum int
	err := r.conn.QueryRow(ctx,
		"SELECT COALESCE(SUM(points_value), 0) FROM activities WHERE child_id = $1",
		childID,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("failed to sum ledger points: %w", err)
	}
	return sum, nil
}

// CountByType returns per-type activity counts for a child.
func (r *LedgerRepository) CountByType(ctx context.Context, childID string) (map[ledger.ActivityType]int, error) {
	query := `
		SELECT activity_type, COUNT(*)
		FROM activities
		WHERE child_id = $1
		GROUP BY activity_type
	`

	rows, err := r.conn.Query(ctx, query, childID)
	if err != nil {
		return nil, fmt.Errorf("failed to count activities by type: %w", err)
	}
	defer rows.Close()

	counts := make(map[ledger.ActivityType]int)
	for rows.Next() {
		var activityType string
		var count int
		if err := rows.Scan(&activityType, &count); err != nil {
			return nil, fmt.Errorf("failed to scan activity count: %w", err)
		}
		counts[ledger.ActivityType(activityType)] = count
	}

	return counts, rows.Err()
}

// DailySummaries returns per-day aggregates for the last n child-local days,
// oldest first. Aggregation happens in Go because day boundaries depend on
// the child's timezone, not the server's.
func (r *LedgerRepository) DailySummaries(ctx context.Context, childID string, loc *time.Location, n int) ([]ledger.DailySummary, error) {
	if n <= 0 {
		return nil, nil
	}

	// Fetch a slightly wider window than n days to cover timezone offsets.
	since := time.Now().UTC().AddDate(0, 0, -(n + 1))

	query := `
		SELECT activity_type, points_value, occurred_at
		FROM activities
		WHERE child_id = $1 AND occurred_at >= $2
		ORDER BY occurred_at ASC
	`

	rows, err := r.conn.Query(ctx, query, childID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily summaries: %w", err)
	}
	defer rows.Close()

	byDay := make(map[ledger.DayKey]*ledger.DailySummary)
	for rows.Next() {
		var activityType string
		var points int
		var occurredAt time.Time
		if err := rows.Scan(&activityType, &points, &occurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}

		day := ledger.DayKeyOf(occurredAt, loc)
		s, ok := byDay[day]
		if !ok {
			s = &ledger.DailySummary{Day: day}
			byDay[day] = s
		}

		t := ledger.ActivityType(activityType)
		s.Activities++
		s.PointsEarned += points
		if t == ledger.ActivityPrayerCompleted {
			s.Prayers++
		}
		if t.IsStreakQualifying() {
			s.StreakQualifying = true
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	summaries := make([]ledger.DailySummary, 0, len(byDay))
	for _, s := range byDay {
		summaries = append(summaries, *s)
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Day < summaries[j].Day
	})

	if len(summaries) > n {
		summaries = summaries[len(summaries)-n:]
	}

	return summaries, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPER METHODS
// ══════════════════════════════════════════════════════════════════════════════

// scanActivity scans an activity from rows.
func scanActivity(rows pgx.Rows) (*ledger.Activity, error) {
	var a ledger.Activity
	var activityType, dedupKey string

	err := rows.Scan(
		&a.ID,
		&a.ChildID,
		&activityType,
		&a.PointsValue,
		&a.OccurredAt,
		&dedupKey,
		&a.RecordedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan activity: %w", err)
	}

	a.Type = ledger.ActivityType(activityType)
	a.DedupKey = ledger.DedupKey(dedupKey)

	return &a, nil
}

// streakQualifyingTypeNames returns the qualifying types as plain strings
// for the ANY($n) parameter.
func streakQualifyingTypeNames() []string {
	types := ledger.StreakQualifyingTypes()
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	return names
}
