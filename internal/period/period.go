// Package period defines reporting time buckets and their boundary math.
// All bucket arithmetic is timezone-aware: a daily bucket starts at local
// midnight in the owning workspace's zone, not the server's.
package period

import (
	"errors"
	"strings"
	"time"
)

// Type is the granularity of a reporting bucket.
type Type string

const (
	TypeDaily   Type = "DAILY"
	TypeWeekly  Type = "WEEKLY"
	TypeMonthly Type = "MONTHLY"
)

var ErrInvalidType = errors.New("invalid_period_type")

// Parse converts a raw string into a Type.
func Parse(raw string) (Type, error) {
	switch Type(strings.ToUpper(strings.TrimSpace(raw))) {
	case TypeDaily:
		return TypeDaily, nil
	case TypeWeekly:
		return TypeWeekly, nil
	case TypeMonthly:
		return TypeMonthly, nil
	default:
		return "", ErrInvalidType
	}
}

// Valid reports whether t is a known period type.
func (t Type) Valid() bool {
	switch t {
	case TypeDaily, TypeWeekly, TypeMonthly:
		return true
	}
	return false
}

// NormalizeStart floors ts to the start of its bucket in loc. Weekly
// buckets start on Monday.
func (t Type) NormalizeStart(ts time.Time, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	local := ts.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

	switch t {
	case TypeDaily:
		return midnight, nil
	case TypeWeekly:
		offset := (int(midnight.Weekday()) - int(time.Monday) + 7) % 7
		return midnight.AddDate(0, 0, -offset), nil
	case TypeMonthly:
		return time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc), nil
	default:
		return time.Time{}, ErrInvalidType
	}
}

// End returns the exclusive end of the bucket beginning at start.
func (t Type) End(start time.Time) time.Time {
	switch t {
	case TypeDaily:
		return start.AddDate(0, 0, 1)
	case TypeWeekly:
		return start.AddDate(0, 0, 7)
	case TypeMonthly:
		return start.AddDate(0, 1, 0)
	default:
		return start
	}
}

// Finer returns the granularity rolled up into t.
func (t Type) Finer() (Type, error) {
	switch t {
	case TypeWeekly, TypeMonthly:
		return TypeDaily, nil
	default:
		return "", ErrInvalidType
	}
}

// Contains reports whether the bucket [innerStart, innerEnd) of the finer
// type lies entirely inside the bucket starting at start.
func (t Type) Contains(start time.Time, fine Type, fineStart time.Time) bool {
	end := t.End(start)
	fineEnd := fine.End(fineStart)
	return !fineStart.Before(start) && !fineEnd.After(end)
}
