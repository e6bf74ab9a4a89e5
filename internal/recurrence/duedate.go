package recurrence

import (
	"fmt"
	"time"
)

// DueRule selects how a task template's due date is derived.
type DueRule string

const (
	DueRuleExactDate    DueRule = "exact_date"
	DueRuleDayOfMonth   DueRule = "day_of_month"
	DueRuleOffsetDays   DueRule = "offset_days"
	DueRuleOffsetMonths DueRule = "offset_months"
)

// When no rule is configured the task falls due shortly after the period.
const defaultDueOffsetDays = 10

// TaskSpec is the due-date-relevant slice of a task template.
type TaskSpec struct {
	Title        string
	Granularity  Pattern
	Rule         DueRule
	ExactDate    *time.Time
	DayOfMonth   int
	OffsetDays   int
	OffsetMonths int
}

// TaskDue is one resolved task instance with its due date. MonthQualifier is
// set when the instance was expanded from a monthly template inside a longer
// period, and keys idempotent inserts.
type TaskDue struct {
	Title          string
	MonthQualifier string
	DueDate        time.Time
}

// ResolveDueDates expands a task template into its due instances for one
// period. A monthly-granularity template inside a quarterly or longer period
// yields one instance per calendar month spanned, each resolved against that
// month rather than the whole period.
func ResolveDueDates(spec TaskSpec, p Period) []TaskDue {
	if expandsMonthly(spec, p) {
		return resolvePerMonth(spec, p)
	}
	return []TaskDue{{Title: spec.Title, DueDate: resolveOne(spec, p.Start, p.End)}}
}

func expandsMonthly(spec TaskSpec, p Period) bool {
	if spec.Granularity != PatternMonthly {
		return false
	}
	if spec.Rule == DueRuleExactDate && spec.ExactDate != nil {
		return false
	}
	return len(MonthsOf(p)) > 1
}

func resolvePerMonth(spec TaskSpec, p Period) []TaskDue {
	months := MonthsOf(p)
	dues := make([]TaskDue, 0, len(months))
	for _, first := range months {
		last := first.AddDate(0, 1, -1)
		dues = append(dues, TaskDue{
			Title:          fmt.Sprintf("%s – %s", spec.Title, first.Month()),
			MonthQualifier: first.Format("2006-01"),
			DueDate:        resolveOne(spec, first, last),
		})
	}
	return dues
}

func resolveOne(spec TaskSpec, windowStart, windowEnd time.Time) time.Time {
	switch spec.Rule {
	case DueRuleExactDate:
		if spec.ExactDate != nil {
			return DateOf(*spec.ExactDate)
		}
	case DueRuleDayOfMonth:
		if spec.DayOfMonth > 0 {
			day := spec.DayOfMonth
			if last := LastDayOfMonth(windowStart); day > last {
				day = last
			}
			return time.Date(windowStart.Year(), windowStart.Month(), day, 0, 0, 0, 0, time.UTC)
		}
	case DueRuleOffsetDays:
		return windowEnd.AddDate(0, 0, spec.OffsetDays)
	case DueRuleOffsetMonths:
		return windowEnd.AddDate(0, spec.OffsetMonths, 0)
	}
	return windowEnd.AddDate(0, 0, defaultDueOffsetDays)
}
