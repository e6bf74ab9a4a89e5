package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cadencehq/cadence/internal/recurrence"
)

func candidate(title string, due time.Time) CandidateTask {
	return CandidateTask{TaskDue: recurrence.TaskDue{Title: title, DueDate: due}}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestEvaluate_DueInsideWindowMaterializes(t *testing.T) {
	start := day(2025, time.October, 7)
	today := day(2025, time.October, 13)

	decision := Evaluate(start, today, []CandidateTask{
		candidate("vat", day(2025, time.October, 10)),
	})

	assert.True(t, decision.Materialize)
	require.Len(t, decision.Eligible, 1)
	assert.Equal(t, "vat", decision.Eligible[0].Title)
}

func TestEvaluate_FutureDueTasksWithheld(t *testing.T) {
	start := day(2025, time.October, 7)
	today := day(2025, time.October, 13)

	decision := Evaluate(start, today, []CandidateTask{
		candidate("due now", day(2025, time.October, 10)),
		candidate("due later", day(2025, time.October, 25)),
	})

	assert.True(t, decision.Materialize)
	require.Len(t, decision.Eligible, 1)
	assert.Equal(t, "due now", decision.Eligible[0].Title)
}

func TestEvaluate_NothingDueYet(t *testing.T) {
	start := day(2025, time.October, 7)
	today := day(2025, time.October, 8)

	decision := Evaluate(start, today, []CandidateTask{
		candidate("vat", day(2025, time.October, 10)),
	})

	assert.False(t, decision.Materialize)
	assert.Empty(t, decision.Eligible)
}

func TestEvaluate_DueBeforeObligationStartExcluded(t *testing.T) {
	// A task that fell due before the engagement began never creates work.
	start := day(2025, time.October, 7)
	today := day(2025, time.November, 1)

	decision := Evaluate(start, today, []CandidateTask{
		candidate("stale", day(2025, time.October, 3)),
	})

	assert.False(t, decision.Materialize)
}

func TestEvaluate_BoundaryDatesInclusive(t *testing.T) {
	start := day(2025, time.October, 7)
	today := day(2025, time.October, 10)

	decision := Evaluate(start, today, []CandidateTask{
		candidate("on start", day(2025, time.October, 7)),
		candidate("on today", day(2025, time.October, 10)),
	})

	assert.True(t, decision.Materialize)
	assert.Len(t, decision.Eligible, 2)
}

func TestEvaluate_NoCandidates(t *testing.T) {
	decision := Evaluate(day(2025, time.October, 7), day(2025, time.December, 1), nil)
	assert.False(t, decision.Materialize)
}

// Once eligible, a period stays eligible at any later date: the window only
// grows on the today side.
func TestEvaluate_Monotonic(t *testing.T) {
	start := day(2025, time.October, 7)
	cands := []CandidateTask{candidate("vat", day(2025, time.October, 10))}

	first := Evaluate(start, day(2025, time.October, 13), cands)
	require.True(t, first.Materialize)

	later := Evaluate(start, day(2026, time.March, 1), cands)
	assert.True(t, later.Materialize)
	assert.GreaterOrEqual(t, len(later.Eligible), len(first.Eligible))
}
