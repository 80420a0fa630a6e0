package sched

import "time"

// DayStart returns midnight of now's day, keeping now's location.
func DayStart(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}

// WeekStart returns Monday 00:00 of now's week, keeping now's location.
func WeekStart(now time.Time) time.Time {
	days := int(now.Weekday()-time.Monday+7) % 7
	return DayStart(now.AddDate(0, 0, -days))
}

// windowStart computes the start of the current recurrence period.
// ok is false for RecurNone: such steps have no window to satisfy.
func windowStart(r Recurrence, now time.Time) (start time.Time, ok bool) {
	switch r {
	case RecurDaily:
		return DayStart(now), true
	case RecurWeekly:
		return WeekStart(now), true
	default:
		return time.Time{}, false
	}
}
