// Package quota enforces per-principal consumption limits over rolling
// calendar periods.
package quota

import (
	"sort"
	"time"

	"github.com/spoolworks/printfarm/errors"
)

// Period identifies the calendar window a limit applies to
type Period string

const (
	PeriodDaily    Period = "daily"
	PeriodWeekly   Period = "weekly"
	PeriodMonthly  Period = "monthly"
	PeriodSemester Period = "semester"
)

// IsValidPeriod returns true if the period string is a known Period
func IsValidPeriod(p string) bool {
	switch Period(p) {
	case PeriodDaily, PeriodWeekly, PeriodMonthly, PeriodSemester:
		return true
	default:
		return false
	}
}

// Window is the half-open [Start, End) span a quota period covers
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// WindowFor computes the period window containing now. Weekly windows start
// on Monday. Semester windows run between anchor months: the window starts
// on the first day of the latest anchor month at or before now and ends on
// the first day of the next one.
func WindowFor(period Period, now time.Time, anchorMonths []int) (Window, error) {
	loc := now.Location()

	switch period {
	case PeriodDaily:
		start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
		return Window{Start: start, End: start.AddDate(0, 0, 1)}, nil

	case PeriodWeekly:
		daysSinceMonday := (int(now.Weekday()) + 6) % 7
		start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc).
			AddDate(0, 0, -daysSinceMonday)
		return Window{Start: start, End: start.AddDate(0, 0, 7)}, nil

	case PeriodMonthly:
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
		return Window{Start: start, End: start.AddDate(0, 1, 0)}, nil

	case PeriodSemester:
		return semesterWindow(now, anchorMonths)

	default:
		return Window{}, errors.Newf("unknown quota period: %s", period)
	}
}

func semesterWindow(now time.Time, anchorMonths []int) (Window, error) {
	if len(anchorMonths) == 0 {
		return Window{}, errors.New("semester period requires at least one anchor month")
	}
	anchors := append([]int(nil), anchorMonths...)
	sort.Ints(anchors)
	for _, m := range anchors {
		if m < 1 || m > 12 {
			return Window{}, errors.Newf("invalid semester anchor month: %d", m)
		}
	}

	loc := now.Location()
	month := int(now.Month())

	// latest anchor at or before the current month; if none, wrap to the
	// last anchor of the previous year
	startYear, startMonth := now.Year(), 0
	for _, m := range anchors {
		if m <= month {
			startMonth = m
		}
	}
	if startMonth == 0 {
		startYear--
		startMonth = anchors[len(anchors)-1]
	}

	// next anchor strictly after the start
	endYear, endMonth := startYear, 0
	for _, m := range anchors {
		if m > startMonth {
			endMonth = m
			break
		}
	}
	if endMonth == 0 {
		endYear++
		endMonth = anchors[0]
	}

	return Window{
		Start: time.Date(startYear, time.Month(startMonth), 1, 0, 0, 0, 0, loc),
		End:   time.Date(endYear, time.Month(endMonth), 1, 0, 0, 0, 0, loc),
	}, nil
}
