// Package timeutil provides child-local calendar utilities. Streak days are
// bucketed in the child's own timezone, so every helper here takes an
// explicit *time.Location instead of assuming a server zone.
// No external dependencies - uses only standard library.
package timeutil

import (
	"errors"
	"time"
)

// ErrUnresolvedTimezone is returned when a timezone name cannot be loaded.
// Callers are expected to fail closed: do not credit a streak day for a
// child whose local calendar cannot be determined.
var ErrUnresolvedTimezone = errors.New("timeutil: timezone cannot be resolved")

// ResolveLocation loads an IANA timezone name. An empty name is an error,
// never a silent fallback to UTC.
func ResolveLocation(name string) (*time.Location, error) {
	if name == "" {
		return nil, ErrUnresolvedTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, errors.Join(ErrUnresolvedTimezone, err)
	}
	return loc, nil
}

// StartOfDay returns midnight of t's calendar day in the given location.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// EndOfDay returns the last nanosecond of t's calendar day in the location.
func EndOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 23, 59, 59, 999999999, loc)
}

// SameDay reports whether a and b fall on the same calendar day in the
// location.
func SameDay(a, b time.Time, loc *time.Location) bool {
	al, bl := a.In(loc), b.In(loc)
	ay, am, ad := al.Date()
	by, bm, bd := bl.Date()
	return ay == by && am == bm && ad == bd
}

// DaysAgo returns midnight n days before t in the location.
func DaysAgo(t time.Time, n int, loc *time.Location) time.Time {
	return StartOfDay(t, loc).AddDate(0, 0, -n)
}

// FormatDay renders a time as its calendar day in the location.
func FormatDay(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}
