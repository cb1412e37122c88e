// Package cycle resolves which authored day of a repeating plan applies to a date.
//
// Everything here works on calendar dates: a time.Time whose clock is midnight
// UTC. Instants are turned into dates with DateOf using the patient's zone
// before any arithmetic, so DST shifts and clock skew cannot move a day.
package cycle

import (
	"errors"
	"fmt"
	"time"
)

const DateLayout = "2006-01-02"

var (
	ErrPlanNotYetActive   = errors.New("plan not yet active")
	ErrInvalidCycleLength = errors.New("cycle length must be >= 1")
	ErrInvalidDate        = errors.New("invalid date format, expected YYYY-MM-DD")
)

// DateOf returns the calendar day of instant t as seen in loc.
func DateOf(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return Date(t.In(loc))
}

// Date drops the clock and zone of t, keeping its own year/month/day.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return t, nil
}

func FormatDate(t time.Time) string {
	return Date(t).Format(DateLayout)
}

// DaysBetween is the signed number of whole days from a to b.
func DaysBetween(a, b time.Time) int {
	// both at UTC midnight; Unix seconds avoid the ~292 year Duration limit
	return int((Date(b).Unix() - Date(a).Unix()) / 86400)
}

func AddDays(t time.Time, n int) time.Time {
	return Date(t).AddDate(0, 0, n)
}

// ResolveDayIndex returns the 1-based day of the cycle active on today.
func ResolveDayIndex(planStart time.Time, cycleLength int, today time.Time) (int, error) {
	if cycleLength < 1 {
		return 0, fmt.Errorf("%w: got %d", ErrInvalidCycleLength, cycleLength)
	}
	elapsed := DaysBetween(planStart, today)
	if elapsed < 0 {
		return 0, fmt.Errorf("%w: starts %s, asked for %s", ErrPlanNotYetActive, FormatDate(planStart), FormatDate(today))
	}
	return elapsed%cycleLength + 1, nil
}

// IsActive reports start <= today <= end, by calendar date.
func IsActive(start, end, today time.Time) bool {
	d := Date(today)
	return !d.Before(Date(start)) && !d.After(Date(end))
}

// Overlap intersects two inclusive date ranges. ok is false when they are disjoint.
func Overlap(aStart, aEnd, bStart, bEnd time.Time) (start, end time.Time, ok bool) {
	start, end = Date(aStart), Date(aEnd)
	if s := Date(bStart); s.After(start) {
		start = s
	}
	if e := Date(bEnd); e.Before(end) {
		end = e
	}
	return start, end, !start.After(end)
}

// Location resolves an IANA zone name, using fallback when it is empty or unknown.
func Location(name string, fallback *time.Location) *time.Location {
	if fallback == nil {
		fallback = time.UTC
	}
	if name == "" {
		return fallback
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return fallback
	}
	return loc
}
