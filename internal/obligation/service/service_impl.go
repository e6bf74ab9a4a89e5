package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	billingdomain "github.com/cadencehq/cadence/internal/billing/domain"
	catalogdomain "github.com/cadencehq/cadence/internal/catalog/domain"
	"github.com/cadencehq/cadence/internal/clock"
	customerdomain "github.com/cadencehq/cadence/internal/customer/domain"
	obligationdomain "github.com/cadencehq/cadence/internal/obligation/domain"
	"github.com/cadencehq/cadence/internal/orgcontext"
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

	obligationrepo repository.Repository[obligationdomain.Obligation]
	taskrepo       repository.Repository[obligationdomain.ObligationTask]
	templaterepo   repository.Repository[catalogdomain.ServiceTemplate]
	customerrepo   repository.Repository[customerdomain.Customer]
}

func NewService(p ServiceParam) obligationdomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("obligation.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		billing: p.Billing,

		obligationrepo: repository.ProvideStore[obligationdomain.Obligation](p.DB),
		taskrepo:       repository.ProvideStore[obligationdomain.ObligationTask](p.DB),
		templaterepo:   repository.ProvideStore[catalogdomain.ServiceTemplate](p.DB),
		customerrepo:   repository.ProvideStore[customerdomain.Customer](p.DB),
	}
}

func (s *Service) Create(ctx context.Context, req obligationdomain.CreateObligationRequest) (obligationdomain.Obligation, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return obligationdomain.Obligation{}, obligationdomain.ErrInvalidOrganization
	}

	customerID, err := snowflake.ParseString(req.CustomerID)
	if err != nil {
		return obligationdomain.Obligation{}, obligationdomain.ErrMissingCatalogRecord
	}
	templateID, err := snowflake.ParseString(req.ServiceTemplateID)
	if err != nil {
		return obligationdomain.Obligation{}, obligationdomain.ErrMissingCatalogRecord
	}

	customer, err := s.customerrepo.FindOne(ctx, customerdomain.Customer{ID: customerID, OrgID: orgID})
	if err != nil {
		return obligationdomain.Obligation{}, err
	}
	if customer == nil {
		return obligationdomain.Obligation{}, obligationdomain.ErrMissingCatalogRecord
	}

	var template catalogdomain.ServiceTemplate
	err = s.db.WithContext(ctx).
		Preload("TaskTemplates", func(db *gorm.DB) *gorm.DB { return db.Order("position, id") }).
		Where("org_id = ? AND id = ?", orgID, templateID).
		First(&template).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return obligationdomain.Obligation{}, obligationdomain.ErrMissingCatalogRecord
		}
		return obligationdomain.Obligation{}, err
	}

	pattern := recurrence.ParsePattern(req.Recurrence)
	anchor := req.AnchorType
	if anchor == "" {
		anchor = obligationdomain.AnchorCurrent
	}
	autoBill := true
	if req.AutoBill != nil {
		autoBill = *req.AutoBill
	}

	now := s.clock.Now()
	obligation := obligationdomain.Obligation{
		ID:                s.genID.Generate(),
		OrgID:             orgID,
		CustomerID:        customerID,
		ServiceTemplateID: templateID,
		Title:             req.Title,
		Recurrence:        string(pattern),
		StartDate:         recurrence.DateOf(req.StartDate),
		AnchorType:        anchor,
		PriceOverride:     req.PriceOverride,
		AutoBill:          autoBill,
		Status:            obligationdomain.StatusPending,
		BillingStatus:     obligationdomain.BillingStatusNotBilled,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if !pattern.IsRecurring() {
			tasks := s.instantiateTasks(&obligation, template.TaskTemplates, now)
			obligation.TotalTasks = len(tasks)
			if err := tx.Create(&obligation).Error; err != nil {
				return err
			}
			if len(tasks) > 0 {
				if err := tx.Create(&tasks).Error; err != nil {
					return err
				}
			}
		} else {
			if err := tx.Create(&obligation).Error; err != nil {
				return err
			}
		}

		for _, name := range req.Documents {
			doc := obligationdomain.ObligationDocument{
				ID:           s.genID.Generate(),
				OrgID:        orgID,
				ObligationID: obligation.ID,
				Name:         name,
				CreatedAt:    now,
			}
			if err := tx.Create(&doc).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return obligationdomain.Obligation{}, err
	}

	s.log.Info("obligation created",
		zap.String("obligation_id", obligation.ID.String()),
		zap.String("recurrence", obligation.Recurrence),
		zap.String("customer_id", customerID.String()),
	)
	return obligation, nil
}

// instantiateTasks expands the template checklist for a one-off
// obligation, anchoring every due rule on the start date.
func (s *Service) instantiateTasks(obligation *obligationdomain.Obligation, templates []catalogdomain.TaskTemplate, now time.Time) []obligationdomain.ObligationTask {
	window := recurrence.Period{Start: obligation.StartDate, End: obligation.StartDate}
	tasks := make([]obligationdomain.ObligationTask, 0, len(templates))
	for _, tpl := range templates {
		tplID := tpl.ID
		for _, due := range recurrence.ResolveDueDates(tpl.TaskSpec(), window) {
			tasks = append(tasks, obligationdomain.ObligationTask{
				ID:           s.genID.Generate(),
				OrgID:        obligation.OrgID,
				ObligationID: obligation.ID,
				TemplateID:   &tplID,
				Title:        due.Title,
				DueDate:      due.DueDate,
				Status:       obligationdomain.TaskStatusPending,
				Position:     tpl.Position,
				CreatedAt:    now,
				UpdatedAt:    now,
			})
		}
	}
	return tasks
}

func (s *Service) List(ctx context.Context, req obligationdomain.ListObligationRequest) (obligationdomain.ListObligationResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return obligationdomain.ListObligationResponse{}, obligationdomain.ErrInvalidOrganization
	}

	filter := obligationdomain.Obligation{OrgID: orgID}
	if req.Status != nil {
		filter.Status = *req.Status
	}
	if req.CustomerID != nil {
		filter.CustomerID = *req.CustomerID
	}

	obligations, err := s.obligationrepo.Find(ctx, filter, option.WithOrder("start_date DESC, id DESC"))
	if err != nil {
		return obligationdomain.ListObligationResponse{}, err
	}
	return obligationdomain.ListObligationResponse{Obligations: obligations}, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (obligationdomain.Obligation, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return obligationdomain.Obligation{}, obligationdomain.ErrInvalidOrganization
	}
	obligationID, err := snowflake.ParseString(id)
	if err != nil {
		return obligationdomain.Obligation{}, obligationdomain.ErrInvalidObligationID
	}

	obligation, err := s.obligationrepo.FindOne(ctx, obligationdomain.Obligation{ID: obligationID, OrgID: orgID})
	if err != nil {
		return obligationdomain.Obligation{}, err
	}
	if obligation == nil {
		return obligationdomain.Obligation{}, obligationdomain.ErrObligationNotFound
	}
	return *obligation, nil
}

func (s *Service) ListTasks(ctx context.Context, obligationID string) ([]obligationdomain.ObligationTask, error) {
	obligation, err := s.GetByID(ctx, obligationID)
	if err != nil {
		return nil, err
	}
	return s.taskrepo.Find(ctx,
		obligationdomain.ObligationTask{OrgID: obligation.OrgID, ObligationID: obligation.ID},
		option.WithOrder("position, due_date, id"),
	)
}

func (s *Service) SetTaskStatus(ctx context.Context, taskID string, status obligationdomain.TaskStatus) error {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return obligationdomain.ErrInvalidOrganization
	}
	if status != obligationdomain.TaskStatusPending && status != obligationdomain.TaskStatusCompleted {
		return obligationdomain.ErrInvalidTaskStatus
	}
	id, err := snowflake.ParseString(taskID)
	if err != nil {
		return obligationdomain.ErrTaskNotFound
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		task, err := s.taskrepo.WithTrx(tx).FindOne(ctx, obligationdomain.ObligationTask{ID: id, OrgID: orgID})
		if err != nil {
			return err
		}
		if task == nil {
			return obligationdomain.ErrTaskNotFound
		}

		obligation, err := s.obligationrepo.WithTrx(tx).FindOne(ctx, obligationdomain.Obligation{ID: task.ObligationID, OrgID: orgID})
		if err != nil {
			return err
		}
		if obligation == nil {
			return obligationdomain.ErrObligationNotFound
		}
		if obligation.Status == obligationdomain.StatusCancelled {
			return obligationdomain.ErrObligationCancelled
		}

		now := s.clock.Now()
		var completedAt *time.Time
		if status == obligationdomain.TaskStatusCompleted {
			completedAt = &now
		}
		if err := tx.Exec(
			`UPDATE obligation_tasks SET status = ?, completed_at = ?, updated_at = ? WHERE org_id = ? AND id = ?`,
			status, completedAt, now, orgID, task.ID,
		).Error; err != nil {
			return err
		}

		allDone, err := s.refreshCounters(ctx, tx, obligation, now)
		if err != nil {
			return err
		}

		if allDone && obligation.BillingStatus == obligationdomain.BillingStatusNotBilled {
			// Billing failure never blocks task completion.
			tx.SavePoint("autobill")
			if _, err := s.billing.AutoBillObligation(ctx, tx, obligation.ID); err != nil {
				tx.RollbackTo("autobill")
				s.log.Warn("auto billing failed",
					zap.String("obligation_id", obligation.ID.String()),
					zap.Error(err),
				)
			}
		}
		return nil
	})
}

// refreshCounters re-aggregates task completion and derives the
// obligation status. Returns whether every task is complete.
func (s *Service) refreshCounters(ctx context.Context, tx *gorm.DB, obligation *obligationdomain.Obligation, now time.Time) (bool, error) {
	var counts struct {
		Total     int
		Completed int
	}
	err := tx.WithContext(ctx).Raw(
		`SELECT COUNT(1) AS total,
		        COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS completed
		 FROM obligation_tasks
		 WHERE org_id = ? AND obligation_id = ?`,
		obligationdomain.TaskStatusCompleted,
		obligation.OrgID,
		obligation.ID,
	).Scan(&counts).Error
	if err != nil {
		return false, err
	}

	allDone := counts.Total > 0 && counts.Completed == counts.Total
	status := obligationdomain.StatusPending
	switch {
	case allDone:
		status = obligationdomain.StatusCompleted
	case counts.Completed > 0:
		status = obligationdomain.StatusInProgress
	}

	err = tx.WithContext(ctx).Exec(
		`UPDATE obligations SET total_tasks = ?, completed_tasks = ?, status = ?, updated_at = ? WHERE org_id = ? AND id = ?`,
		counts.Total, counts.Completed, status, now, obligation.OrgID, obligation.ID,
	).Error
	if err != nil {
		return false, err
	}
	obligation.TotalTasks = counts.Total
	obligation.CompletedTasks = counts.Completed
	obligation.Status = status
	return allDone, nil
}

func (s *Service) Cancel(ctx context.Context, id string) error {
	obligation, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if obligation.Status == obligationdomain.StatusCancelled {
		return nil
	}

	now := s.clock.Now()
	return s.db.WithContext(ctx).Exec(
		`UPDATE obligations SET status = ?, updated_at = ? WHERE org_id = ? AND id = ?`,
		obligationdomain.StatusCancelled, now, obligation.OrgID, obligation.ID,
	).Error
}
