package recurrence

import (
	"errors"
	"fmt"
	"time"
)

// Period is one canonical billing window. Start and End are both inclusive
// dates at midnight UTC.
type Period struct {
	Start time.Time
	End   time.Time
	Name  string
}

var ErrNotRecurring = errors.New("pattern_not_recurring")

// DateOf truncates a timestamp to its UTC calendar date.
func DateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// BoundsFor returns the canonical period containing the reference date.
// Weekly periods are 7-day blocks anchored on the reference date itself;
// month-based cadences align to the calendar unit containing it. Yearly
// periods align to the fiscal year starting at fyStartMonth (1 is a plain
// calendar year, 4 an April-start fiscal year).
func BoundsFor(ref time.Time, pattern Pattern, fyStartMonth int) (Period, error) {
	ref = DateOf(ref)
	if fyStartMonth < 1 || fyStartMonth > 12 {
		fyStartMonth = 1
	}

	switch pattern {
	case PatternWeekly:
		end := ref.AddDate(0, 0, 6)
		return Period{Start: ref, End: end, Name: weeklyName(ref, end)}, nil

	case PatternMonthly:
		start := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, time.UTC)
		end := start.AddDate(0, 1, -1)
		return Period{Start: start, End: end, Name: fmt.Sprintf("%s %d", start.Month(), start.Year())}, nil

	case PatternQuarterly:
		q := (int(ref.Month()) - 1) / 3
		start := time.Date(ref.Year(), time.Month(q*3+1), 1, 0, 0, 0, 0, time.UTC)
		end := start.AddDate(0, 3, -1)
		return Period{Start: start, End: end, Name: fmt.Sprintf("Q%d %d", q+1, start.Year())}, nil

	case PatternHalfYearly:
		h := (int(ref.Month()) - 1) / 6
		start := time.Date(ref.Year(), time.Month(h*6+1), 1, 0, 0, 0, 0, time.UTC)
		end := start.AddDate(0, 6, -1)
		return Period{Start: start, End: end, Name: fmt.Sprintf("H%d %d", h+1, start.Year())}, nil

	case PatternYearly:
		startYear := ref.Year()
		if int(ref.Month()) < fyStartMonth {
			startYear--
		}
		start := time.Date(startYear, time.Month(fyStartMonth), 1, 0, 0, 0, 0, time.UTC)
		end := start.AddDate(1, 0, -1)
		return Period{Start: start, End: end, Name: yearlyName(start, fyStartMonth)}, nil

	default:
		return Period{}, ErrNotRecurring
	}
}

// NextAfter derives the period following p by re-deriving bounds from the
// day after its end, never by naive arithmetic on the boundary itself.
func NextAfter(p Period, pattern Pattern, fyStartMonth int) (Period, error) {
	return BoundsFor(p.End.AddDate(0, 0, 1), pattern, fyStartMonth)
}

// MonthsOf returns the first day of each calendar month the period spans.
func MonthsOf(p Period) []time.Time {
	var months []time.Time
	cursor := time.Date(p.Start.Year(), p.Start.Month(), 1, 0, 0, 0, 0, time.UTC)
	for !cursor.After(p.End) {
		months = append(months, cursor)
		cursor = cursor.AddDate(0, 1, 0)
	}
	return months
}

// LastDayOfMonth returns the final calendar day of the month containing ref.
func LastDayOfMonth(ref time.Time) int {
	first := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, time.UTC)
	return first.AddDate(0, 1, -1).Day()
}

func weeklyName(start, end time.Time) string {
	if start.Year() == end.Year() {
		return fmt.Sprintf("%s – %s %d", start.Format("Jan 02"), end.Format("Jan 02"), end.Year())
	}
	return fmt.Sprintf("%s – %s", start.Format("Jan 02 2006"), end.Format("Jan 02 2006"))
}

func yearlyName(start time.Time, fyStartMonth int) string {
	if fyStartMonth == 1 {
		return fmt.Sprintf("%d", start.Year())
	}
	return fmt.Sprintf("FY %d-%02d", start.Year(), (start.Year()+1)%100)
}
