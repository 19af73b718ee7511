package ledger

import (
	"sort"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// STREAK CALCULATOR
// Derives daily-consistency counters from the ledger. A day is "complete"
// when it has at least one streak-qualifying activity in the child-local
// calendar. The computation is a pure function of the ledger snapshot, so
// recomputing on the same state always yields the same counters.
// ══════════════════════════════════════════════════════════════════════════════

// StreakResult holds the outcome of a streak recomputation.
type StreakResult struct {
	// Current is the run of consecutive complete days ending today or
	// yesterday. Yesterday anchors too, so a child who has not acted yet
	// today does not look broken prematurely.
	Current int

	// Longest is the best run across the whole history, including the
	// current run.
	Longest int
}

// DayKey is a child-local calendar day in "2006-01-02" form.
type DayKey string

// DayKeyOf buckets a timestamp into the child-local calendar day.
func DayKeyOf(t time.Time, loc *time.Location) DayKey {
	return DayKey(t.In(loc).Format("2006-01-02"))
}

// ComputeStreaks walks the set of complete days and derives the counters.
// The "today" argument must already be in the child's location.
func ComputeStreaks(completeDays map[DayKey]bool, today time.Time) StreakResult {
	if len(completeDays) == 0 {
		return StreakResult{}
	}

	loc := today.Location()
	days := make([]time.Time, 0, len(completeDays))
	for key := range completeDays {
		d, err := time.ParseInLocation("2006-01-02", string(key), loc)
		if err != nil {
			continue
		}
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	// Longest run over the whole history.
	longest, run := 0, 0
	var prev time.Time
	for i, d := range days {
		if i > 0 && daysBetween(prev, d) == 1 {
			run++
		} else {
			run = 1
		}
		if run > longest {
			longest = run
		}
		prev = d
	}

	// Current run: walk backward from today; the anchor day may be today or
	// yesterday, and walking stops at the first incomplete day.
	todayStart := startOfDay(today)
	anchor := todayStart
	if !completeDays[DayKey(anchor.Format("2006-01-02"))] {
		anchor = anchor.AddDate(0, 0, -1)
	}

	current := 0
	for d := anchor; completeDays[DayKey(d.Format("2006-01-02"))]; d = d.AddDate(0, 0, -1) {
		current++
	}

	if current > longest {
		longest = current
	}
	return StreakResult{Current: current, Longest: longest}
}

// startOfDay truncates to midnight in t's location.
func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// daysBetween counts calendar days from a to b. Uses date arithmetic, not
// Sub(), so DST transitions cannot shift the count.
func daysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	aStart := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	bStart := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(bStart.Sub(aStart).Hours() / 24)
}
