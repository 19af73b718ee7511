// Package achievement contains badge definitions, requirement rules, and the
// evaluator that detects newly satisfied achievements exactly once.
// This is a pure domain layer with zero external dependencies.
package achievement

import (
	"errors"
	"sort"
	"time"

	"github.com/deen-kids/deen-progress-engine/internal/domain/ledger"
)

// Domain errors for the achievement package.
var (
	ErrInvalidDefinition = errors.New("achievement: invalid definition")
	ErrAlreadyEarned     = errors.New("achievement: already earned")
	ErrNotEarned         = errors.New("achievement: not yet earned")
)

// Metric names the aggregate quantity a requirement rule inspects.
type Metric string

const (
	// MetricTotalPoints - the child's current point balance.
	MetricTotalPoints Metric = "total_points"

	// MetricCurrentStreak - the current daily streak.
	MetricCurrentStreak Metric = "current_streak"

	// MetricLongestStreak - the best streak ever.
	MetricLongestStreak Metric = "longest_streak"

	// MetricGoalsCompleted - number of completed goals.
	MetricGoalsCompleted Metric = "goals_completed"

	// MetricPrayersLogged - total prayer_completed facts.
	MetricPrayersLogged Metric = "prayers_logged"

	// MetricStoriesFinished - total story_finished facts.
	MetricStoriesFinished Metric = "stories_finished"

	// MetricQuranRecitations - total quran_recited facts.
	MetricQuranRecitations Metric = "quran_recitations"
)

// AggregateState is the read model the evaluator inspects. It is assembled
// from the child row, the ledger, and the goal tracker.
type AggregateState struct {
	TotalPoints    int
	CurrentStreak  int
	LongestStreak  int
	GoalsCompleted int
	ActivityCounts map[ledger.ActivityType]int
}

// ValueOf returns the state's value for a metric.
func (s AggregateState) ValueOf(m Metric) int {
	switch m {
	case MetricTotalPoints:
		return s.TotalPoints
	case MetricCurrentStreak:
		return s.CurrentStreak
	case MetricLongestStreak:
		return s.LongestStreak
	case MetricGoalsCompleted:
		return s.GoalsCompleted
	case MetricPrayersLogged:
		return s.ActivityCounts[ledger.ActivityPrayerCompleted]
	case MetricStoriesFinished:
		return s.ActivityCounts[ledger.ActivityStoryFinished]
	case MetricQuranRecitations:
		return s.ActivityCounts[ledger.ActivityQuranRecited]
	default:
		return 0
	}
}

// Requirement is a threshold rule over one metric.
type Requirement struct {
	Metric    Metric `json:"metric"`
	Threshold int    `json:"threshold"`
}

// Satisfied reports whether the state meets the requirement.
func (r Requirement) Satisfied(s AggregateState) bool {
	return s.ValueOf(r.Metric) >= r.Threshold
}

// Progress returns completion progress in [0, 100].
func (r Requirement) Progress(s AggregateState) int {
	if r.Threshold <= 0 {
		return 100
	}
	pct := s.ValueOf(r.Metric) * 100 / r.Threshold
	if pct > 100 {
		pct = 100
	}
	return pct
}

// Definition describes one badge.
type Definition struct {
	ID          string
	Name        string
	Description string
	Emoji       string
	Requirement Requirement
}

// Definitions returns the badge catalog. Thresholds double roughly per tier
// so foundational badges come first in the emission order.
func Definitions() []Definition {
	return []Definition{
		{"first_prayer", "First Prayer", "Logged the first prayer", "🕌", Requirement{MetricPrayersLogged, 1}},
		{"prayer_10", "Prayer Apprentice", "Logged 10 prayers", "🤲", Requirement{MetricPrayersLogged, 10}},
		{"prayer_100", "Prayer Companion", "Logged 100 prayers", "🌙", Requirement{MetricPrayersLogged, 100}},
		{"first_story", "Story Explorer", "Finished the first story", "📖", Requirement{MetricStoriesFinished, 1}},
		{"story_25", "Story Collector", "Finished 25 stories", "📚", Requirement{MetricStoriesFinished, 25}},
		{"streak_3", "Three-Day Light", "3 days in a row", "✨", Requirement{MetricCurrentStreak, 3}},
		{"streak_7", "Week of Light", "7 days in a row", "🔥", Requirement{MetricCurrentStreak, 7}},
		{"streak_30", "Steadfast Heart", "30 days in a row", "💪", Requirement{MetricLongestStreak, 30}},
		{"points_500", "Rising Star", "Earned 500 points", "⭐", Requirement{MetricTotalPoints, 500}},
		{"points_2000", "Shining Star", "Earned 2000 points", "🌟", Requirement{MetricTotalPoints, 2000}},
		{"first_goal", "Goal Getter", "Completed the first goal", "🎯", Requirement{MetricGoalsCompleted, 1}},
		{"goals_5", "Goal Master", "Completed 5 goals", "🏆", Requirement{MetricGoalsCompleted, 5}},
		{"quran_10", "Quran Friend", "Logged 10 recitations", "📗", Requirement{MetricQuranRecitations, 10}},
	}
}

// DefinitionByID returns a definition from the catalog.
func DefinitionByID(id string) (Definition, bool) {
	for _, def := range Definitions() {
		if def.ID == id {
			return def, true
		}
	}
	return Definition{}, false
}

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT INSTANCE
// ══════════════════════════════════════════════════════════════════════════════

// Achievement is a child's progress against one definition. EarnedAt is set
// at most once; CelebrationViewed flips false→true exactly once and gates
// re-display on the consuming surface.
type Achievement struct {
	// ChildID is the child this instance belongs to.
	ChildID string

	// DefinitionID references the badge catalog.
	DefinitionID string

	// ProgressPercentage is the requirement progress in [0, 100].
	ProgressPercentage int

	// EarnedAt marks the one-time earn. Nil until satisfied.
	EarnedAt *time.Time

	// CelebrationViewed is flipped by an explicit acknowledgement.
	CelebrationViewed bool
}

// IsEarned reports whether the achievement has been earned.
func (a *Achievement) IsEarned() bool {
	return a.EarnedAt != nil
}

// ══════════════════════════════════════════════════════════════════════════════
// EVALUATOR
// ══════════════════════════════════════════════════════════════════════════════

// Evaluation is the outcome of one evaluator pass for a single definition.
type Evaluation struct {
	Definition Definition
	Progress   int
	Satisfied  bool
}

// Evaluate computes progress for every definition not yet earned and returns
// the satisfied ones ordered by ascending requirement strictness, so a child
// sees foundational badges before advanced ones. The ordering is cosmetic;
// the one-time earn guarantee comes from the compare-and-set on earned_at,
// not from this function.
func Evaluate(state AggregateState, alreadyEarned map[string]bool) []Evaluation {
	evals := make([]Evaluation, 0, len(Definitions()))
	for _, def := range Definitions() {
		if alreadyEarned[def.ID] {
			continue
		}
		evals = append(evals, Evaluation{
			Definition: def,
			Progress:   def.Requirement.Progress(state),
			Satisfied:  def.Requirement.Satisfied(state),
		})
	}

	sort.SliceStable(evals, func(i, j int) bool {
		return evals[i].Definition.Requirement.Threshold < evals[j].Definition.Requirement.Threshold
	})
	return evals
}
