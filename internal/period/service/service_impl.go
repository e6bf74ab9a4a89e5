package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	billingdomain "github.com/cadencehq/cadence/internal/billing/domain"
	"github.com/cadencehq/cadence/internal/clock"
	obligationdomain "github.com/cadencehq/cadence/internal/obligation/domain"
	"github.com/cadencehq/cadence/internal/orgcontext"
	perioddomain "github.com/cadencehq/cadence/internal/period/domain"
	"github.com/cadencehq/cadence/internal/recurrence"
	"github.com/cadencehq/cadence/pkg/db/option"
	"github.com/cadencehq/cadence/pkg/repository"
)

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Billing billingdomain.Automation
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	billing billingdomain.Automation

	periodrepo repository.Repository[perioddomain.Period]
	taskrepo   repository.Repository[perioddomain.PeriodTask]
}

func NewService(p ServiceParam) perioddomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("period.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		billing: p.Billing,

		periodrepo: repository.ProvideStore[perioddomain.Period](p.DB),
		taskrepo:   repository.ProvideStore[perioddomain.PeriodTask](p.DB),
	}
}

func (s *Service) BackfillAll(ctx context.Context) (int, error) {
	var rows []obligationRow
	err := s.db.WithContext(ctx).Raw(
		`SELECT id, org_id, customer_id, service_template_id, title, recurrence, start_date, anchor_type, status
		 FROM obligations
		 WHERE status <> ? AND recurrence <> ?
		 ORDER BY id`,
		obligationdomain.StatusCancelled,
		recurrence.PatternNone,
	).Scan(&rows).Error
	if err != nil {
		return 0, err
	}

	var errs []error
	created := 0
	for i := range rows {
		n, err := s.backfillObligation(ctx, &rows[i])
		created += n
		if err != nil {
			errs = append(errs, err)
			s.log.Error("backfill failed",
				zap.String("obligation_id", rows[i].ID.String()),
				zap.Error(err),
			)
		}
	}
	return created, errors.Join(errs...)
}

func (s *Service) List(ctx context.Context, req perioddomain.ListPeriodRequest) (perioddomain.ListPeriodResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return perioddomain.ListPeriodResponse{}, perioddomain.ErrInvalidOrganization
	}

	filter := perioddomain.Period{OrgID: orgID}
	if req.ObligationID != nil {
		filter.ObligationID = *req.ObligationID
	}
	if req.Status != nil {
		filter.Status = *req.Status
	}

	periods, err := s.periodrepo.Find(ctx, filter, option.WithOrder("period_start, id"))
	if err != nil {
		return perioddomain.ListPeriodResponse{}, err
	}
	return perioddomain.ListPeriodResponse{Periods: periods}, nil
}

func (s *Service) ListTasks(ctx context.Context, periodID string) ([]perioddomain.PeriodTask, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, perioddomain.ErrInvalidOrganization
	}
	id, err := snowflake.ParseString(periodID)
	if err != nil {
		return nil, perioddomain.ErrInvalidPeriodID
	}

	period, err := s.periodrepo.FindOne(ctx, perioddomain.Period{ID: id, OrgID: orgID})
	if err != nil {
		return nil, err
	}
	if period == nil {
		return nil, perioddomain.ErrPeriodNotFound
	}
	return s.taskrepo.Find(ctx,
		perioddomain.PeriodTask{OrgID: orgID, PeriodID: period.ID},
		option.WithOrder("position, due_date, id"),
	)
}

func (s *Service) SetTaskStatus(ctx context.Context, taskID string, status obligationdomain.TaskStatus) error {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return perioddomain.ErrInvalidOrganization
	}
	if status != obligationdomain.TaskStatusPending && status != obligationdomain.TaskStatusCompleted {
		return obligationdomain.ErrInvalidTaskStatus
	}
	id, err := snowflake.ParseString(taskID)
	if err != nil {
		return perioddomain.ErrTaskNotFound
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		task, err := s.taskrepo.WithTrx(tx).FindOne(ctx, perioddomain.PeriodTask{ID: id, OrgID: orgID})
		if err != nil {
			return err
		}
		if task == nil {
			return perioddomain.ErrTaskNotFound
		}

		now := s.clock.Now()
		var completedAt *time.Time
		if status == obligationdomain.TaskStatusCompleted {
			completedAt = &now
		}
		if err := tx.Exec(
			`UPDATE period_tasks SET status = ?, completed_at = ?, updated_at = ? WHERE org_id = ? AND id = ?`,
			status, completedAt, now, orgID, task.ID,
		).Error; err != nil {
			return err
		}

		completed, err := s.refreshPeriod(ctx, tx, orgID, task.PeriodID, recurrence.DateOf(now), now)
		if err != nil {
			return err
		}

		if completed {
			// Billing failure never blocks task completion.
			tx.SavePoint("autobill")
			if _, err := s.billing.AutoBillPeriod(ctx, tx, task.PeriodID); err != nil {
				tx.RollbackTo("autobill")
				s.log.Warn("auto billing failed",
					zap.String("period_id", task.PeriodID.String()),
					zap.Error(err),
				)
			}
		}
		return nil
	})
}

// refreshPeriod re-aggregates task counters and derives the period status.
// Returns whether the period just became fully complete.
func (s *Service) refreshPeriod(ctx context.Context, tx *gorm.DB, orgID, periodID snowflake.ID, today time.Time, now time.Time) (bool, error) {
	var counts struct {
		Total     int
		Completed int
		Overdue   int
	}
	err := tx.WithContext(ctx).Raw(
		`SELECT COUNT(1) AS total,
		        COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS completed,
		        COALESCE(SUM(CASE WHEN status = ? AND due_date < ? THEN 1 ELSE 0 END), 0) AS overdue
		 FROM period_tasks
		 WHERE org_id = ? AND period_id = ?`,
		obligationdomain.TaskStatusCompleted,
		obligationdomain.TaskStatusPending,
		today,
		orgID,
		periodID,
	).Scan(&counts).Error
	if err != nil {
		return false, err
	}

	allDone := counts.Total > 0 && counts.Completed == counts.Total
	status := perioddomain.PeriodStatusPending
	switch {
	case allDone:
		status = perioddomain.PeriodStatusCompleted
	case counts.Overdue > 0:
		status = perioddomain.PeriodStatusOverdue
	}

	res := tx.WithContext(ctx).Exec(
		`UPDATE periods
		 SET total_tasks = ?, completed_tasks = ?, all_completed = ?, status = ?, updated_at = ?
		 WHERE org_id = ? AND id = ?`,
		counts.Total, counts.Completed, allDone, status, now, orgID, periodID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return allDone, nil
}

func (s *Service) RefreshOverdue(ctx context.Context, orgID snowflake.ID) (int, error) {
	today := recurrence.DateOf(s.clock.Now())
	res := s.db.WithContext(ctx).Exec(
		`UPDATE periods SET status = ?, updated_at = ?
		 WHERE org_id = ? AND status = ?
		   AND EXISTS (
			SELECT 1 FROM period_tasks pt
			WHERE pt.period_id = periods.id AND pt.status = ? AND pt.due_date < ?
		   )`,
		perioddomain.PeriodStatusOverdue,
		s.clock.Now(),
		orgID,
		perioddomain.PeriodStatusPending,
		obligationdomain.TaskStatusPending,
		today,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	return int(res.RowsAffected), nil
}
