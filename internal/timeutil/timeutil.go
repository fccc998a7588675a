// Package timeutil normalizes heterogeneous timestamp representations
// into a single comparable form and answers time-window inclusion
// queries. It is stateless and safe to share across concurrent parses.
package timeutil

import (
	"fmt"
	"time"
)

// DefaultBuffer is the margin added around a requested window so files
// spanning the boundary (or with skewed clocks) are not excluded.
const DefaultBuffer = time.Hour

// stampLayouts are tried in order for zone-naive device timestamps.
// Naive values are produced directly in the target location so a naive
// and an aware value are never compared to each other.
var stampLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// zonedLayouts carry their own offset and are converted afterwards.
var zonedLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02 15:04:05 -0700",
}

// Location resolves a timezone name, defaulting to UTC for an empty
// name.
func Location(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", name, err)
	}
	return loc, nil
}

// Normalize expresses t in loc. Zero values pass through unchanged.
func Normalize(t time.Time, loc *time.Location) time.Time {
	if t.IsZero() {
		return t
	}
	return t.In(loc)
}

// ParseStamp parses a timestamp string that may or may not carry zone
// information. Zoned forms are converted to loc; naive forms are
// interpreted as already being in loc.
func ParseStamp(s string, loc *time.Location) (time.Time, error) {
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.In(loc), nil
		}
	}
	for _, layout := range stampLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp: %q", s)
}

// Window is an optional [Start, End] time range. A nil bound means
// unbounded on that side. Invariant: when both bounds are set,
// Start <= End after normalization.
type Window struct {
	Start  *time.Time
	End    *time.Time
	Buffer time.Duration
}

// NewWindow builds a window from optional bounds normalized to loc.
func NewWindow(start, end *time.Time, loc *time.Location) (Window, error) {
	w := Window{Buffer: DefaultBuffer}
	if start != nil {
		s := Normalize(*start, loc)
		w.Start = &s
	}
	if end != nil {
		e := Normalize(*end, loc)
		w.End = &e
	}
	if w.Start != nil && w.End != nil && w.Start.After(*w.End) {
		return Window{}, fmt.Errorf("window start %s is after end %s", w.Start, w.End)
	}
	return w, nil
}

// IsZero reports whether the window is unbounded on both sides.
func (w Window) IsZero() bool {
	return w.Start == nil && w.End == nil
}

// Contains reports whether t falls inside the window. Both bounds are
// inclusive; a nil bound is unbounded on that side.
func (w Window) Contains(t time.Time) bool {
	if w.Start != nil && t.Before(*w.Start) {
		return false
	}
	if w.End != nil && t.After(*w.End) {
		return false
	}
	return true
}

// Buffered returns the window expanded by Buffer on both ends.
func (w Window) Buffered() Window {
	buf := w.Buffer
	if buf == 0 {
		buf = DefaultBuffer
	}
	out := Window{Buffer: buf}
	if w.Start != nil {
		s := w.Start.Add(-buf)
		out.Start = &s
	}
	if w.End != nil {
		e := w.End.Add(buf)
		out.End = &e
	}
	return out
}
