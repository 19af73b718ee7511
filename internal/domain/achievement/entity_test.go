package achievement

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/deen-kids/deen-progress-engine/internal/domain/ledger"
)

func TestRequirement_Progress(t *testing.T) {
	state := AggregateState{
		TotalPoints:   250,
		CurrentStreak: 3,
		ActivityCounts: map[ledger.ActivityType]int{
			ledger.ActivityPrayerCompleted: 7,
		},
	}

	r := Requirement{MetricTotalPoints, 500}
	assert.Equal(t, 50, r.Progress(state))
	assert.False(t, r.Satisfied(state))

	r = Requirement{MetricPrayersLogged, 1}
	assert.Equal(t, 100, r.Progress(state))
	assert.True(t, r.Satisfied(state))

	// Progress is capped at 100 even when well beyond the threshold.
	r = Requirement{MetricPrayersLogged, 5}
	assert.Equal(t, 100, r.Progress(state))
}

func TestEvaluate_SkipsAlreadyEarned(t *testing.T) {
	state := AggregateState{
		ActivityCounts: map[ledger.ActivityType]int{
			ledger.ActivityPrayerCompleted: 12,
		},
	}

	evals := Evaluate(state, map[string]bool{"first_prayer": true})
	for _, e := range evals {
		assert.NotEqual(t, "first_prayer", e.Definition.ID)
	}
}

func TestEvaluate_OrderedByStrictness(t *testing.T) {
	state := AggregateState{
		TotalPoints:   3000,
		CurrentStreak: 10,
		LongestStreak: 10,
		ActivityCounts: map[ledger.ActivityType]int{
			ledger.ActivityPrayerCompleted: 150,
		},
	}

	evals := Evaluate(state, nil)
	last := -1
	for _, e := range evals {
		assert.GreaterOrEqual(t, e.Definition.Requirement.Threshold, last)
		last = e.Definition.Requirement.Threshold
	}

	// Foundational badges come before advanced ones.
	var satisfied []string
	for _, e := range evals {
		if e.Satisfied {
			satisfied = append(satisfied, e.Definition.ID)
		}
	}
	assert.Contains(t, satisfied, "first_prayer")
	assert.Contains(t, satisfied, "prayer_100")
	assert.Less(t, indexOf(satisfied, "first_prayer"), indexOf(satisfied, "prayer_100"))
}

func indexOf(s []string, v string) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}

func TestAggregateState_ValueOf(t *testing.T) {
	state := AggregateState{
		TotalPoints:    100,
		CurrentStreak:  4,
		LongestStreak:  9,
		GoalsCompleted: 2,
		ActivityCounts: map[ledger.ActivityType]int{
			ledger.ActivityStoryFinished: 6,
		},
	}

	assert.Equal(t, 100, state.ValueOf(MetricTotalPoints))
	assert.Equal(t, 4, state.ValueOf(MetricCurrentStreak))
	assert.Equal(t, 9, state.ValueOf(MetricLongestStreak))
	assert.Equal(t, 2, state.ValueOf(MetricGoalsCompleted))
	assert.Equal(t, 6, state.ValueOf(MetricStoriesFinished))
	assert.Equal(t, 0, state.ValueOf(MetricQuranRecitations))
}

func TestDefinitionByID(t *testing.T) {
	def, ok := DefinitionByID("streak_7")
	assert.True(t, ok)
	assert.Equal(t, MetricCurrentStreak, def.Requirement.Metric)
	assert.Equal(t, 7, def.Requirement.Threshold)

	_, ok = DefinitionByID("nonexistent")
	assert.False(t, ok)
}
