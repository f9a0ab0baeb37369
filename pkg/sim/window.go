package sim

import (
	"fmt"
	"time"
)

// Window is the simulated time range, truncated to whole hours, both ends
// inclusive. Day-grained generators use the UTC days the hours fall on.
type Window struct {
	Start time.Time
	End   time.Time
}

// NewWindow truncates both bounds to the hour in UTC.
func NewWindow(start, end time.Time) Window {
	return Window{
		Start: start.UTC().Truncate(time.Hour),
		End:   end.UTC().Truncate(time.Hour),
	}
}

// IsEmpty reports a window with nothing to simulate (start after end).
func (w Window) IsEmpty() bool {
	return w.Start.After(w.End)
}

func (w Window) String() string {
	return fmt.Sprintf("%s..%s", w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
}

// Hours returns the inclusive hourly axis.
func (w Window) Hours() []time.Time {
	if w.IsEmpty() {
		return nil
	}
	n := int(w.End.Sub(w.Start)/time.Hour) + 1
	hours := make([]time.Time, 0, n)
	for ts := w.Start; !ts.After(w.End); ts = ts.Add(time.Hour) {
		hours = append(hours, ts)
	}
	return hours
}

// Days returns the inclusive UTC day axis as midnights.
func (w Window) Days() []time.Time {
	if w.IsEmpty() {
		return nil
	}
	first := Day(w.Start)
	last := Day(w.End)
	days := make([]time.Time, 0, int(last.Sub(first)/(24*time.Hour))+1)
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// DayBounds returns the first and last UTC days covered by the window.
func (w Window) DayBounds() (time.Time, time.Time) {
	return Day(w.Start), Day(w.End)
}

// Day truncates to the UTC midnight of t.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DayIndex counts whole days from epoch to day, the step counter behind
// cadence rules and degradation drift.
func DayIndex(epoch, day time.Time) int {
	return int(Day(day).Sub(Day(epoch)) / (24 * time.Hour))
}

// DateKey formats the UTC day as yyyy-mm-dd, the key persisted for DATE
// columns and hashed into per-day draw identities.
func DateKey(t time.Time) string {
	return Day(t).Format("2006-01-02")
}

// HourKey formats the UTC hour, the key hashed into per-hour draw identities.
func HourKey(t time.Time) string {
	return t.UTC().Truncate(time.Hour).Format("2006-01-02T15")
}
