// Package sched plans printer assignments: conflict resolution, blackout
// windows, and the scheduling engine that turns the backlog into committed
// slots.
package sched

import (
	"fmt"
	"time"

	"github.com/spoolworks/printfarm/errors"
	"github.com/spoolworks/printfarm/job"
)

// Blackout is a recurring daily window in which no job may be printing.
// The window may wrap midnight, e.g. 22:30 to 05:30.
type Blackout struct {
	startMin int // minutes from midnight
	endMin   int
	enabled  bool
}

// NewBlackout parses "HH:MM" bounds into a daily blackout window. Empty
// bounds disable the window.
func NewBlackout(start, end string) (Blackout, error) {
	if start == "" && end == "" {
		return Blackout{}, nil
	}
	startMin, err := parseClock(start)
	if err != nil {
		return Blackout{}, errors.Wrap(err, "invalid blackout start")
	}
	endMin, err := parseClock(end)
	if err != nil {
		return Blackout{}, errors.Wrap(err, "invalid blackout end")
	}
	if startMin == endMin {
		return Blackout{}, errors.Newf("blackout window is empty: %s to %s", start, end)
	}
	return Blackout{startMin: startMin, endMin: endMin, enabled: true}, nil
}

func parseClock(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, errors.Newf("expected HH:MM, got %q", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, errors.Newf("clock time out of range: %q", s)
	}
	return h*60 + m, nil
}

// spansFor returns the concrete blackout intervals that could intersect iv.
// A wrapping window contributes one span per day boundary it crosses.
func (b Blackout) spansFor(iv job.Interval) []job.Interval {
	if !b.enabled {
		return nil
	}

	var spans []job.Interval
	loc := iv.Start.Location()
	// walk day by day from the day before the interval starts, so a span
	// that began the previous evening is still considered
	day := time.Date(iv.Start.Year(), iv.Start.Month(), iv.Start.Day(), 0, 0, 0, 0, loc).
		AddDate(0, 0, -1)
	for !day.After(iv.End) {
		start := day.Add(time.Duration(b.startMin) * time.Minute)
		var end time.Time
		if b.endMin > b.startMin {
			end = day.Add(time.Duration(b.endMin) * time.Minute)
		} else {
			end = day.AddDate(0, 0, 1).Add(time.Duration(b.endMin) * time.Minute)
		}
		spans = append(spans, job.Interval{Start: start, End: end})
		day = day.AddDate(0, 0, 1)
	}
	return spans
}

// Violates reports whether the interval intersects any blackout span
func (b Blackout) Violates(iv job.Interval) bool {
	for _, span := range b.spansFor(iv) {
		if iv.Overlaps(span) {
			return true
		}
	}
	return false
}
