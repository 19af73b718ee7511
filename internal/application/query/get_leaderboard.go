package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/deen-kids/deen-progress-engine/internal/domain/child"
	"github.com/deen-kids/deen-progress-engine/internal/infrastructure/persistence/redis"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET LEADERBOARD QUERY
// Sibling ranking within one family, ordered by total points. Served from
// the Redis sorted set when populated; rebuilt from PostgreSQL on a miss.
// ══════════════════════════════════════════════════════════════════════════════

// LeaderboardStore is the cached ranking the query reads through.
type LeaderboardStore interface {
	Top(ctx context.Context, familyID string, count int) ([]redis.RankedChild, error)
	Rebuild(ctx context.Context, familyID string, scores map[string]int) error
}

// LeaderboardEntry is one ranked child.
type LeaderboardEntry struct {
	Rank          int    `json:"rank"`
	ChildID       string `json:"child_id"`
	DisplayName   string `json:"display_name"`
	TotalPoints   int    `json:"total_points"`
	IslamicLevel  int    `json:"islamic_level"`
	CurrentStreak int    `json:"current_streak"`
}

// Leaderboard is the family ranking.
type Leaderboard struct {
	FamilyID  string             `json:"family_id"`
	Entries   []LeaderboardEntry `json:"entries"`
	FromCache bool               `json:"-"`
}

// GetLeaderboardHandler handles leaderboard queries.
type GetLeaderboardHandler struct {
	childRepo child.Repository
	cache     LeaderboardStore
	logger    *slog.Logger
}

// NewGetLeaderboardHandler creates a new GetLeaderboardHandler.
func NewGetLeaderboardHandler(childRepo child.Repository, cache LeaderboardStore, logger *slog.Logger) *GetLeaderboardHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &GetLeaderboardHandler{childRepo: childRepo, cache: cache, logger: logger}
}

// Handle returns the family leaderboard, largest balance first. Children are
// always loaded from PostgreSQL for their display fields; the cached sorted
// set contributes the ordering when present and is rebuilt when it is not.
func (h *GetLeaderboardHandler) Handle(ctx context.Context, familyID string) (*Leaderboard, error) {
	if familyID == "" {
		return nil, errors.New("get_leaderboard: family_id is required")
	}

	children, err := h.childRepo.GetByFamily(ctx, child.FamilyID(familyID))
	if err != nil {
		return nil, fmt.Errorf("get_leaderboard: load children: %w", err)
	}

	byID := make(map[string]*child.Child, len(children))
	for _, c := range children {
		byID[c.ID] = c
	}

	board := &Leaderboard{FamilyID: familyID}

	if h.cache != nil {
		ranked, err := h.cache.Top(ctx, familyID, len(children))
		if err == nil {
			for _, r := range ranked {
				c, ok := byID[r.ChildID]
				if !ok {
					continue
				}
				board.Entries = append(board.Entries, entryFor(r.Rank, c))
			}
			if len(board.Entries) == len(children) {
				board.FromCache = true
				return board, nil
			}
			// Stale membership; fall through and rebuild.
			board.Entries = board.Entries[:0]
		}
	}

	// GetByFamily already orders by points descending.
	scores := make(map[string]int, len(children))
	for i, c := range children {
		board.Entries = append(board.Entries, entryFor(i+1, c))
		scores[c.ID] = int(c.TotalPoints)
	}

	if h.cache != nil && len(scores) > 0 {
		if err := h.cache.Rebuild(ctx, familyID, scores); err != nil {
			h.logger.Warn("leaderboard rebuild failed", "family_id", familyID, "error", err)
		}
	}

	return board, nil
}

func entryFor(rank int, c *child.Child) LeaderboardEntry {
	return LeaderboardEntry{
		Rank:          rank,
		ChildID:       c.ID,
		DisplayName:   c.DisplayName,
		TotalPoints:   int(c.TotalPoints),
		IslamicLevel:  int(c.IslamicLevel),
		CurrentStreak: c.CurrentStreak,
	}
}
