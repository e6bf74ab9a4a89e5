package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cadencehq/cadence/internal/recurrence"
)

// CandidateTask is one resolved task instance proposed for a period.
type CandidateTask struct {
	TemplateID snowflake.ID
	Position   int
	recurrence.TaskDue
}

// Decision is the eligibility gate's answer for one candidate period.
type Decision struct {
	Materialize bool
	Eligible    []CandidateTask
}

// Evaluate decides whether a candidate period should exist yet. A period is
// materialized only once at least one of its tasks has a due date inside
// [obligationStart, today]; only those tasks are inserted. Tasks whose due
// date is still ahead are withheld and appended by a later run, so a period
// is never created with zero actionable tasks and never created before any
// obligation to act exists.
func Evaluate(obligationStart, today time.Time, candidates []CandidateTask) Decision {
	start := recurrence.DateOf(obligationStart)
	now := recurrence.DateOf(today)

	var eligible []CandidateTask
	for _, c := range candidates {
		due := recurrence.DateOf(c.DueDate)
		if due.Before(start) || due.After(now) {
			continue
		}
		eligible = append(eligible, c)
	}

	return Decision{
		Materialize: len(eligible) > 0,
		Eligible:    eligible,
	}
}
