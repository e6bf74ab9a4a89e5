package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	obligationdomain "github.com/cadencehq/cadence/internal/obligation/domain"
)

type ListPeriodRequest struct {
	ObligationID *snowflake.ID
	Status       *PeriodStatus
}

type ListPeriodResponse struct {
	Periods []Period `json:"periods"`
}

type Service interface {
	// Backfill materializes every eligible-but-missing period for the
	// obligation from its start date up to today and appends newly eligible
	// tasks to existing periods. Returns the number of periods created.
	Backfill(ctx context.Context, obligationID string) (int, error)
	// BackfillAll runs Backfill over every active recurring obligation,
	// joining per-obligation failures. Driven by the scheduler tick.
	BackfillAll(ctx context.Context) (int, error)
	List(ctx context.Context, req ListPeriodRequest) (ListPeriodResponse, error)
	ListTasks(ctx context.Context, periodID string) ([]PeriodTask, error)
	// SetTaskStatus mutates one period task and re-aggregates the period's
	// completion state; the transition into completed triggers billing.
	SetTaskStatus(ctx context.Context, taskID string, status obligationdomain.TaskStatus) error
	// RefreshOverdue flips pending periods with an elapsed unmet due date to
	// overdue. Driven by the scheduler tick.
	RefreshOverdue(ctx context.Context, orgID snowflake.ID) (int, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrObligationNotFound  = errors.New("obligation_not_found")
	ErrPeriodNotFound      = errors.New("period_not_found")
	ErrTaskNotFound        = errors.New("task_not_found")
	ErrNotRecurring        = errors.New("obligation_not_recurring")
	ErrInvalidPeriodID     = errors.New("invalid_period_id")
)
