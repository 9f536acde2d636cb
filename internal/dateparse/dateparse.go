// Package dateparse turns look-back expressions such as "3d" or "monday"
// into the instant they refer to, for filtering by update time.
package dateparse

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// Since parses a look-back expression relative to the current time.
//
// Supported formats:
//   - Timestamps: "2026-03-01T09:30:00Z"
//   - Dates: "2026-03-01" (midnight in the local zone)
//   - Relative: "12h", "3d", "2w", "1m" (hours, days, weeks, months ago)
//   - Day names: "monday", "tuesday", etc. (most recent, today included)
//   - Keywords: "today", "yesterday", "this-week", "this-month"
//   - Natural language: "3 days ago", "last friday"
func Since(input string) (time.Time, error) {
	return SinceFrom(input, time.Now())
}

// SinceFrom parses input relative to now. Date-granular results are the
// start of that day in now's location.
func SinceFrom(input string, now time.Time) (time.Time, error) {
	input = strings.TrimSpace(strings.ToLower(input))
	if input == "" {
		return time.Time{}, fmt.Errorf("empty date input")
	}

	if t, err := time.Parse(time.RFC3339, strings.ToUpper(input)); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", input, now.Location()); err == nil {
		return t, nil
	}

	today := startOfDay(now)
	switch input {
	case "today":
		return today, nil
	case "yesterday":
		return today.AddDate(0, 0, -1), nil
	case "this-week":
		back := (int(now.Weekday()) - int(time.Monday) + 7) % 7
		return today.AddDate(0, 0, -back), nil
	case "this-month":
		year, month, _ := now.Date()
		return time.Date(year, month, 1, 0, 0, 0, 0, now.Location()), nil
	}

	if len(input) >= 2 {
		unit := input[len(input)-1]
		if n, err := strconv.Atoi(input[:len(input)-1]); err == nil {
			if n < 0 {
				return time.Time{}, fmt.Errorf("negative offset in %q", input)
			}
			switch unit {
			case 'h':
				return now.Add(-time.Duration(n) * time.Hour), nil
			case 'd':
				return today.AddDate(0, 0, -n), nil
			case 'w':
				return today.AddDate(0, 0, -7*n), nil
			case 'm':
				return today.AddDate(0, -n, 0), nil
			default:
				return time.Time{}, fmt.Errorf("unknown relative unit %q in %q (use h, d, w or m)", string(unit), input)
			}
		}
	}

	if target, ok := weekdays[input]; ok {
		back := (int(now.Weekday()) - int(target) + 7) % 7
		return today.AddDate(0, 0, -back), nil
	}

	r, err := natural.Parse(input, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %q: %w", input, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("unrecognized date format: %q", input)
	}
	return r.Time, nil
}

var natural = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func startOfDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}
