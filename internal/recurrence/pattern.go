// Package recurrence derives billing period bounds and task due dates from
// recurrence cadences. Everything in this package is pure calendar math.
package recurrence

import "strings"

// Pattern is the cadence at which an obligation produces periods.
type Pattern string

const (
	PatternNone       Pattern = "none"
	PatternWeekly     Pattern = "weekly"
	PatternMonthly    Pattern = "monthly"
	PatternQuarterly  Pattern = "quarterly"
	PatternHalfYearly Pattern = "half_yearly"
	PatternYearly     Pattern = "yearly"
)

// ParsePattern normalizes a raw cadence string. Malformed values fall back
// to monthly rather than failing the obligation.
func ParsePattern(raw string) Pattern {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "none", "one_time", "onetime":
		return PatternNone
	case "weekly":
		return PatternWeekly
	case "monthly":
		return PatternMonthly
	case "quarterly":
		return PatternQuarterly
	case "half_yearly", "halfyearly", "half-yearly", "semiannual":
		return PatternHalfYearly
	case "yearly", "annual", "annually":
		return PatternYearly
	default:
		return PatternMonthly
	}
}

// IsRecurring reports whether the pattern produces periods at all.
func (p Pattern) IsRecurring() bool { return p != PatternNone }

// MonthsSpanned returns the number of calendar months inside one period of
// the pattern, or 0 when the pattern is not month-aligned.
func (p Pattern) MonthsSpanned() int {
	switch p {
	case PatternMonthly:
		return 1
	case PatternQuarterly:
		return 3
	case PatternHalfYearly:
		return 6
	case PatternYearly:
		return 12
	default:
		return 0
	}
}
