package scheduler

import (
	"fmt"
	"time"
)

// IntervalSchedule fires a fixed duration after each run. Unlike a cron
// expression it has no wall-clock anchor, so it suits sweeps where cadence
// matters but the exact minute does not, like the hourly leaderboard rebuild.
type IntervalSchedule struct {
	Interval time.Duration
}

// NewIntervalSchedule creates a schedule that fires every interval.
// Non-positive intervals are raised to one second so a misconfigured job
// cannot spin the scheduler loop.
func NewIntervalSchedule(interval time.Duration) *IntervalSchedule {
	if interval <= 0 {
		interval = time.Second
	}
	return &IntervalSchedule{Interval: interval}
}

// Next returns the time one interval after t.
func (s *IntervalSchedule) Next(t time.Time) time.Time {
	return t.Add(s.Interval)
}

// String renders the schedule in cron's @every notation.
func (s *IntervalSchedule) String() string {
	return fmt.Sprintf("@every %s", s.Interval.String())
}
