package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Schedule is the subset of cron the billing jobs need: a fixed minute and
// hour, optionally restricted to one day of the month. Day 0 means daily.
type Schedule struct {
	Minute     int
	Hour       int
	DayOfMonth int
}

// ParseSchedule parses "minute hour day-of-month * *". Month and weekday
// must be "*"; day-of-month may be "*".
//
//	ParseSchedule("0 2 * * *")  // daily at 02:00
//	ParseSchedule("0 3 1 * *")  // on the first of the month at 03:00
func ParseSchedule(expr string) (Schedule, error) {
	parts := strings.Fields(expr)
	if len(parts) != 5 {
		return Schedule{}, fmt.Errorf("%w: %q needs 5 fields", ErrInvalidSchedule, expr)
	}
	if parts[3] != "*" || parts[4] != "*" {
		return Schedule{}, fmt.Errorf("%w: %q month and weekday must be *", ErrInvalidSchedule, expr)
	}

	minute, err := parseField(parts[0], 0, 59)
	if err != nil {
		return Schedule{}, fmt.Errorf("%w: minute: %v", ErrInvalidSchedule, err)
	}
	hour, err := parseField(parts[1], 0, 23)
	if err != nil {
		return Schedule{}, fmt.Errorf("%w: hour: %v", ErrInvalidSchedule, err)
	}
	day := 0
	if parts[2] != "*" {
		// Days past 28 are missing from some months
		if day, err = parseField(parts[2], 1, 28); err != nil {
			return Schedule{}, fmt.Errorf("%w: day of month: %v", ErrInvalidSchedule, err)
		}
	}
	return Schedule{Minute: minute, Hour: hour, DayOfMonth: day}, nil
}

// MustParseSchedule is ParseSchedule for compile-time constants
func MustParseSchedule(expr string) Schedule {
	s, err := ParseSchedule(expr)
	if err != nil {
		panic(err)
	}
	return s
}

func parseField(s string, lo, hi int) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", s)
	}
	if v < lo || v > hi {
		return 0, fmt.Errorf("%d outside %d-%d", v, lo, hi)
	}
	return v, nil
}

// Matches reports whether t falls in the scheduled minute
func (s Schedule) Matches(t time.Time) bool {
	if s.DayOfMonth != 0 && t.Day() != s.DayOfMonth {
		return false
	}
	return t.Hour() == s.Hour && t.Minute() == s.Minute
}

// Next returns the first scheduled minute strictly after t
func (s Schedule) Next(t time.Time) time.Time {
	next := time.Date(t.Year(), t.Month(), t.Day(), s.Hour, s.Minute, 0, 0, t.Location())
	if s.DayOfMonth == 0 {
		if !next.After(t) {
			next = next.AddDate(0, 0, 1)
		}
		return next
	}
	next = time.Date(t.Year(), t.Month(), s.DayOfMonth, s.Hour, s.Minute, 0, 0, t.Location())
	if !next.After(t) {
		next = next.AddDate(0, 1, 0)
	}
	return next
}

// String renders the schedule as a cron expression
func (s Schedule) String() string {
	day := "*"
	if s.DayOfMonth != 0 {
		day = strconv.Itoa(s.DayOfMonth)
	}
	return fmt.Sprintf("%d %d %s * *", s.Minute, s.Hour, day)
}
