package post

import "time"

// NextRunAfter returns the first occurrence of the schedule strictly after
// now, stepping from the previous scheduled time. Stepping repeatedly, rather
// than adding one interval, guarantees a future time even when the previous
// schedule is several intervals in the past (a worker that was down over a
// weekend, a monthly post created months ago).
func NextRunAfter(prev time.Time, r Recurrence, now time.Time) (time.Time, bool) {
	var step func(time.Time) time.Time
	switch r {
	case RecurrenceDaily:
		step = func(t time.Time) time.Time { return t.AddDate(0, 0, 1) }
	case RecurrenceWeekly:
		step = func(t time.Time) time.Time { return t.AddDate(0, 0, 7) }
	case RecurrenceMonthly:
		step = func(t time.Time) time.Time { return t.AddDate(0, 1, 0) }
	default:
		return time.Time{}, false
	}

	next := step(prev)
	for !next.After(now) {
		next = step(next)
	}
	return next, true
}
