package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CronExpression is a parsed 5-field cron expression
// (minute hour day-of-month month day-of-week). It implements Schedule, so
// cron-timed jobs register on the same Scheduler as interval-timed ones.
// Examples:
//   - "*/5 * * * *"  - every 5 minutes
//   - "5 * * * *"    - five past every hour
//   - "30 3 * * *"   - every day at 03:30
//   - "0 0 * * 0"    - every Sunday at midnight
//
// Each field is a bitmask over its value range; bit v set means value v
// matches. Minutes fit in a uint64, the rest in far less.
type CronExpression struct {
	raw      string
	minutes  uint64 // bits 0-59
	hours    uint64 // bits 0-23
	days     uint64 // bits 1-31
	months   uint64 // bits 1-12
	weekdays uint64 // bits 0-6, 0 = Sunday
}

// ParseCronExpression parses "minute hour day-of-month month day-of-week".
// Each field accepts *, n, n-m, lists (n,m,o) and steps (*/s, n-m/s).
func ParseCronExpression(expr string) (*CronExpression, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("invalid cron expression: expected 5 fields, got %d", len(fields))
	}

	spec := []struct {
		name     string
		min, max int
		dst      *uint64
	}{
		{"minute", 0, 59, nil},
		{"hour", 0, 23, nil},
		{"day", 1, 31, nil},
		{"month", 1, 12, nil},
		{"weekday", 0, 6, nil},
	}

	ce := &CronExpression{raw: expr}
	spec[0].dst = &ce.minutes
	spec[1].dst = &ce.hours
	spec[2].dst = &ce.days
	spec[3].dst = &ce.months
	spec[4].dst = &ce.weekdays

	for i, f := range spec {
		mask, err := parseField(fields[i], f.min, f.max)
		if err != nil {
			return nil, fmt.Errorf("invalid %s field: %w", f.name, err)
		}
		*f.dst = mask
	}

	return ce, nil
}

// MustParseCronExpression parses a cron expression or panics.
// Use only for compile-time constants.
func MustParseCronExpression(expr string) *CronExpression {
	ce, err := ParseCronExpression(expr)
	if err != nil {
		panic(fmt.Sprintf("invalid cron expression %q: %v", expr, err))
	}
	return ce
}

// parseField turns one cron field into a bitmask over [min, max]. A comma
// list may mix any of the other forms. Values outside the range error for
// plain values and are dropped for ranges and steps.
func parseField(field string, min, max int) (uint64, error) {
	var mask uint64
	for _, part := range strings.Split(field, ",") {
		m, err := parseFieldPart(strings.TrimSpace(part), min, max)
		if err != nil {
			return 0, err
		}
		mask |= m
	}
	if mask == 0 {
		return 0, fmt.Errorf("empty field: %s", field)
	}
	return mask, nil
}

func parseFieldPart(part string, min, max int) (uint64, error) {
	step := 1
	if base, stepStr, ok := strings.Cut(part, "/"); ok {
		s, err := strconv.Atoi(stepStr)
		if err != nil || s <= 0 {
			return 0, fmt.Errorf("invalid step value: %s", stepStr)
		}
		step = s
		part = base
	}

	var lo, hi int
	switch {
	case part == "*":
		lo, hi = min, max
	case strings.Contains(part, "-"):
		loStr, hiStr, _ := strings.Cut(part, "-")
		var err error
		if lo, err = strconv.Atoi(loStr); err != nil {
			return 0, fmt.Errorf("invalid range start: %s", loStr)
		}
		if hi, err = strconv.Atoi(hiStr); err != nil {
			return 0, fmt.Errorf("invalid range end: %s", hiStr)
		}
	default:
		v, err := strconv.Atoi(part)
		if err != nil {
			return 0, fmt.Errorf("invalid value: %s", part)
		}
		if v < min || v > max {
			return 0, fmt.Errorf("value out of range [%d-%d]: %d", min, max, v)
		}
		if step == 1 {
			return 1 << v, nil
		}
		// "n/s" runs from n to the top of the range.
		lo, hi = v, max
	}

	var mask uint64
	for v := lo; v <= hi; v += step {
		if v >= min && v <= max {
			mask |= 1 << v
		}
	}
	return mask, nil
}

// String implements Schedule.
func (ce *CronExpression) String() string {
	return ce.raw
}

// Next implements Schedule. It returns the first matching minute strictly
// after the given time, evaluated in that time's location.
func (ce *CronExpression) Next(after time.Time) time.Time {
	t := after.Add(time.Minute).Truncate(time.Minute)

	// A valid expression matches within a year; bail out rather than spin
	// forever on an impossible day/month combination.
	limit := t.AddDate(1, 0, 1)
	for t.Before(limit) {
		if ce.matches(t) {
			return t
		}
		t = t.Add(time.Minute)
	}
	return time.Time{}
}

func (ce *CronExpression) matches(t time.Time) bool {
	return ce.minutes&(1<<t.Minute()) != 0 &&
		ce.hours&(1<<t.Hour()) != 0 &&
		ce.days&(1<<t.Day()) != 0 &&
		ce.months&(1<<int(t.Month())) != 0 &&
		ce.weekdays&(1<<int(t.Weekday())) != 0
}

// Common cron expression presets.
const (
	EveryMinute      = "* * * * *"
	Every5Minutes    = "*/5 * * * *"
	Every15Minutes   = "*/15 * * * *"
	Every30Minutes   = "*/30 * * * *"
	EveryHour        = "0 * * * *"
	EveryDayMidnight = "0 0 * * *"
	EverySunday      = "0 0 * * 0"
	FirstOfMonth     = "0 0 1 * *"
)
