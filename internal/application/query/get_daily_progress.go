package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/deen-kids/deen-progress-engine/internal/domain/child"
	"github.com/deen-kids/deen-progress-engine/internal/domain/ledger"
	"github.com/deen-kids/deen-progress-engine/internal/domain/shared"
	"github.com/deen-kids/deen-progress-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET DAILY PROGRESS QUERY
// Per-day activity aggregates over a trailing window, bucketed into the
// child's local calendar.
// ══════════════════════════════════════════════════════════════════════════════

// DailyProgress is the windowed view of a child's recent days.
type DailyProgress struct {
	ChildID  string                `json:"child_id"`
	Timezone string                `json:"timezone"`
	Days     []ledger.DailySummary `json:"days"`
}

// GetDailyProgressHandler handles daily progress queries.
type GetDailyProgressHandler struct {
	childRepo  child.Repository
	ledgerRepo ledger.Repository
}

// NewGetDailyProgressHandler creates a new GetDailyProgressHandler.
func NewGetDailyProgressHandler(childRepo child.Repository, ledgerRepo ledger.Repository) *GetDailyProgressHandler {
	return &GetDailyProgressHandler{childRepo: childRepo, ledgerRepo: ledgerRepo}
}

// Handle returns per-day aggregates for the last n child-local days.
func (h *GetDailyProgressHandler) Handle(ctx context.Context, childID string, days int) (*DailyProgress, error) {
	if childID == "" {
		return nil, errors.New("get_daily_progress: child_id is required")
	}
	if days <= 0 {
		days = 7
	}

	ch, err := h.childRepo.GetByID(ctx, childID)
	if err != nil {
		return nil, fmt.Errorf("get_daily_progress: load child: %w", err)
	}

	loc, err := timeutil.ResolveLocation(ch.Timezone)
	if err != nil {
		return nil, fmt.Errorf("get_daily_progress: %w: %q", shared.ErrTimezoneUnresolved, ch.Timezone)
	}

	summaries, err := h.ledgerRepo.DailySummaries(ctx, childID, loc, days)
	if err != nil {
		return nil, fmt.Errorf("get_daily_progress: summaries: %w", err)
	}

	return &DailyProgress{
		ChildID:  ch.ID,
		Timezone: ch.Timezone,
		Days:     summaries,
	}, nil
}
