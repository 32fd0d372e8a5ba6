package model

import "time"

// Window is a half-open time range [Start, End) bounding an aggregation or
// trend pass. A zero Start or End leaves that side unbounded; the zero Window
// admits every record. Passing the window explicitly keeps passes
// reproducible without wall-clock dependence.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// LastNDays returns the window covering the n days ending at now.
func LastNDays(now time.Time, n int) Window {
	now = now.UTC()
	return Window{Start: now.AddDate(0, 0, -n), End: now}
}

// Day returns the window covering the single UTC day containing t.
func Day(t time.Time) Window {
	start := t.UTC().Truncate(24 * time.Hour)
	return Window{Start: start, End: start.AddDate(0, 0, 1)}
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	if !w.Start.IsZero() && t.Before(w.Start) {
		return false
	}
	if !w.End.IsZero() && !t.Before(w.End) {
		return false
	}
	return true
}

// IsZero reports whether the window is unbounded on both sides.
func (w Window) IsZero() bool {
	return w.Start.IsZero() && w.End.IsZero()
}
