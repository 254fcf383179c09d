package domain

import (
	"time"

	"github.com/flowcoder2025/FlowReport-sub001/internal/period"
)

// ValidateRecurrence rejects invalid recurrence parameters at schedule
// creation time, not at calculation time.
func ValidateRecurrence(periodType period.Type, dayParam, hour int) error {
	switch periodType {
	case period.TypeWeekly:
		if dayParam < 0 || dayParam > 6 {
			return ErrInvalidDayParam
		}
	case period.TypeMonthly:
		if dayParam < 1 || dayParam > 31 {
			return ErrInvalidDayParam
		}
	default:
		return ErrInvalidSchedulePeriod
	}
	if hour < 0 || hour > 23 {
		return ErrInvalidHour
	}
	return nil
}

// NextRun computes the next trigger instant strictly after from.
//
// Weekly: the next occurrence of weekday dayParam at hour:00 in loc; when
// from lands exactly on that weekday and hour, the result advances a full
// week so a freshly computed schedule always points forward.
//
// Monthly: the next occurrence of day-of-month dayParam at hour:00 in
// loc. Day 29/30/31 clamps to the last valid day of short months, so a
// day-31 schedule fires on Feb 28 (29 in leap years), Apr 30 and so on.
//
// The function never reads the wall clock; callers pass the reference
// instant explicitly.
func NextRun(periodType period.Type, dayParam, hour int, loc *time.Location, from time.Time) (time.Time, error) {
	if err := ValidateRecurrence(periodType, dayParam, hour); err != nil {
		return time.Time{}, err
	}
	if loc == nil {
		loc = time.UTC
	}
	local := from.In(loc)

	switch periodType {
	case period.TypeWeekly:
		candidate := time.Date(local.Year(), local.Month(), local.Day(), hour, 0, 0, 0, loc)
		offset := (dayParam - int(candidate.Weekday()) + 7) % 7
		candidate = candidate.AddDate(0, 0, offset)
		if !candidate.After(from) {
			candidate = candidate.AddDate(0, 0, 7)
		}
		return candidate, nil

	case period.TypeMonthly:
		candidate := monthlyOccurrence(local.Year(), local.Month(), dayParam, hour, loc)
		if !candidate.After(from) {
			next := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc).AddDate(0, 1, 0)
			candidate = monthlyOccurrence(next.Year(), next.Month(), dayParam, hour, loc)
		}
		return candidate, nil

	default:
		return time.Time{}, ErrInvalidSchedulePeriod
	}
}

// ReportingPeriod resolves the previous full bucket relative to the
// trigger instant: the week or month that just closed is what the report
// covers.
func ReportingPeriod(periodType period.Type, now time.Time, loc *time.Location) (time.Time, time.Time, error) {
	currentStart, err := periodType.NormalizeStart(now, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	var previousStart time.Time
	switch periodType {
	case period.TypeWeekly:
		previousStart = currentStart.AddDate(0, 0, -7)
	case period.TypeMonthly:
		previousStart = currentStart.AddDate(0, -1, 0)
	default:
		return time.Time{}, time.Time{}, ErrInvalidSchedulePeriod
	}
	return previousStart, currentStart, nil
}

func monthlyOccurrence(year int, month time.Month, dayParam, hour int, loc *time.Location) time.Time {
	day := dayParam
	if last := daysIn(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day, hour, 0, 0, 0, loc)
}

func daysIn(year int, month time.Month) int {
	// Day zero of the next month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
