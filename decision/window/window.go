// Package window provides the analysis window and the customer-month grid.
//
// A bill month is always represented by its first day at midnight UTC.
// Calendar truncation happens in the deployment's canonical location, so a
// usage timestamp late on the 31st in one zone may belong to the next month
// in another; callers pass the location they bill in.
package window

import (
	"fmt"
	"time"
)

// DefaultLookback is the number of months analyzed when none is configured.
const DefaultLookback = 12

// Window is an ordered, gap-free run of calendar months ending at the
// reference month.
type Window struct {
	months []time.Time
	index  map[time.Time]int
}

// New builds the window [asOfMonth-(lookback-1), asOfMonth].
func New(asOf time.Time, lookback int, loc *time.Location) (Window, error) {
	if lookback < 1 {
		return Window{}, fmt.Errorf("lookback must be at least 1 month, got %d", lookback)
	}

	last := MonthStart(asOf, loc)
	first := AddMonths(last, -(lookback - 1))

	months := make([]time.Time, lookback)
	index := make(map[time.Time]int, lookback)
	for i := range months {
		m := AddMonths(first, i)
		months[i] = m
		index[m] = i
	}

	return Window{months: months, index: index}, nil
}

// Months returns the months in ascending order.
func (w Window) Months() []time.Time {
	out := make([]time.Time, len(w.months))
	copy(out, w.months)
	return out
}

// Len returns the number of months in the window.
func (w Window) Len() int {
	return len(w.months)
}

// Start returns the first month of the window.
func (w Window) Start() time.Time {
	if len(w.months) == 0 {
		return time.Time{}
	}
	return w.months[0]
}

// Last returns the reference month.
func (w Window) Last() time.Time {
	if len(w.months) == 0 {
		return time.Time{}
	}
	return w.months[len(w.months)-1]
}

// End returns the exclusive upper bound: the first day after the last month.
func (w Window) End() time.Time {
	if len(w.months) == 0 {
		return time.Time{}
	}
	return AddMonths(w.Last(), 1)
}

// Contains reports whether month (already truncated) is in the window.
func (w Window) Contains(month time.Time) bool {
	_, ok := w.index[month]
	return ok
}

// Index returns the position of month in the window, or -1.
func (w Window) Index(month time.Time) int {
	if i, ok := w.index[month]; ok {
		return i
	}
	return -1
}

// MonthStart truncates t, read in loc, to the first day of its month.
func MonthStart(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// Date truncates t, read in loc, to its calendar day.
func Date(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

// AddMonths shifts a month start by n calendar months.
func AddMonths(month time.Time, n int) time.Time {
	return time.Date(month.Year(), month.Month()+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
}

// Days counts calendar days in [start, end). Both bounds must be UTC dates.
func Days(start, end time.Time) int {
	if !end.After(start) {
		return 0
	}
	return int(end.Sub(start).Hours() / 24)
}

// DaysInMonth returns the number of days in the month starting at month.
func DaysInMonth(month time.Time) int {
	return Days(month, AddMonths(month, 1))
}

// ParseMonth parses "2006-01" or "2006-01-02" into a month start.
func ParseMonth(s string) (time.Time, error) {
	for _, layout := range []string{"2006-01", time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return MonthStart(t, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid month %q: want YYYY-MM", s)
}
