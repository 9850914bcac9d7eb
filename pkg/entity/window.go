package entity

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Window filters a timeseries: Start is inclusive, End is exclusive and Limit
// caps the number of points kept after filtering. Zero values mean unbounded.
type Window struct {
	Start time.Time
	End   time.Time
	Limit int
}

// Contains reports whether t falls inside the window bounds.
func (w Window) Contains(t time.Time) bool {
	if !w.Start.IsZero() && t.Before(w.Start) {
		return false
	}
	if !w.End.IsZero() && !t.Before(w.End) {
		return false
	}
	return true
}

// Empty reports whether no point can ever match, e.g. start == end.
func (w Window) Empty() bool {
	return !w.Start.IsZero() && !w.End.IsZero() && !w.Start.Before(w.End)
}

// Apply returns the earliest points inside the window in ascending order.
// The input slice is not modified.
func (w Window) Apply(points []Point) []Point {
	out := make([]Point, 0, len(points))
	if w.Empty() {
		return out
	}
	for _, p := range points {
		if w.Contains(p.From) {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].From.Before(out[j].From) })
	if w.Limit > 0 && len(out) > w.Limit {
		out = out[:w.Limit]
	}
	return out
}

// ParseTime accepts RFC3339 timestamps, YYYY-MM-DD dates and bare years.
// Dates and years are interpreted as UTC midnight of their first day.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	if len(s) <= 4 {
		if year, err := strconv.Atoi(s); err == nil && year > 0 {
			return YearStart(year), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

// YearStart returns January 1st of year at UTC midnight.
func YearStart(year int) time.Time {
	return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
}
