// Package timerange provides the time-interval value type used to
// bound sensor recordings, plus overlap detection over ordered lists
// of intervals.
//
// A Range is a closed interval [Start, End] over instants. Ranges are
// produced by reading the first and last sample timestamp of a sensor
// export and are immutable once constructed.
package timerange

import (
	"errors"
	"fmt"
	"time"
)

// StampLayout is the fixed textual format for persisted timestamps.
// It matches the microsecond-resolution stamps written by the sensor
// exports themselves.
const StampLayout = "2006-01-02 15:04:05.000000"

// DayLayout is the fixed textual format for calendar days embedded in
// artifact filenames.
const DayLayout = "06-01-02"

// ErrInverted is returned when a range's start lies after its end.
// An inverted range is a fatal input error, never silently repaired.
var ErrInverted = errors.New("time range start is after end")

// Range is a closed time interval.
type Range struct {
	Start time.Time
	End   time.Time
}

// New constructs a Range, rejecting inverted intervals.
func New(start, end time.Time) (Range, error) {
	if start.After(end) {
		return Range{}, fmt.Errorf("%w: start=%s end=%s",
			ErrInverted, start.Format(StampLayout), end.Format(StampLayout))
	}
	return Range{Start: start, End: end}, nil
}

// Parse builds a Range from two StampLayout strings.
func Parse(start, end string) (Range, error) {
	s, err := time.Parse(StampLayout, start)
	if err != nil {
		return Range{}, fmt.Errorf("parse range start: %w", err)
	}
	e, err := time.Parse(StampLayout, end)
	if err != nil {
		return Range{}, fmt.Errorf("parse range end: %w", err)
	}
	return New(s, e)
}

// Valid reports whether the range satisfies Start <= End.
func (r Range) Valid() bool {
	return !r.Start.After(r.End)
}

// Overlaps reports whether r and o intersect. Two ranges intersect iff
// either endpoint of o lies within the closed interval r.
func (r Range) Overlaps(o Range) bool {
	return within(r, o.Start) || within(r, o.End)
}

func within(r Range, t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// CoversDay reports whether the range touches the calendar day of t.
// Comparison is by date, not by sub-day time: a range ending at
// 00:00:01 on a day still covers that day.
func (r Range) CoversDay(t time.Time) bool {
	day := Midnight(t)
	return !day.Before(Midnight(r.Start)) && !day.After(Midnight(r.End))
}

// Midnight truncates t to 00:00:00 of its calendar day, preserving
// the location.
func Midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// Overlapping identifies every intersecting pair in an ordered list of
// ranges. For each index i the result holds the indices j > i whose
// ranges intersect range i; a pair is reported once, under its earlier
// index. The input order is discovery order, not time order.
//
// Returns ErrInverted if any range has Start > End.
func Overlapping(ranges []Range) ([][]int, error) {
	for i, r := range ranges {
		if !r.Valid() {
			return nil, fmt.Errorf("range %d: %w", i, ErrInverted)
		}
	}

	out := make([][]int, len(ranges))
	for i := range ranges {
		for j := i + 1; j < len(ranges); j++ {
			if ranges[i].Overlaps(ranges[j]) {
				out[i] = append(out[i], j)
			}
		}
	}
	return out, nil
}
