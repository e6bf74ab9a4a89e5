package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/gorm"

	catalogdomain "github.com/cadencehq/cadence/internal/catalog/domain"
	obligationdomain "github.com/cadencehq/cadence/internal/obligation/domain"
	perioddomain "github.com/cadencehq/cadence/internal/period/domain"
	"github.com/cadencehq/cadence/internal/recurrence"
)

// Generation walks forward one period at a time; the cap only guards
// against a runaway pattern, weekly backfill over a decade stays under it.
const maxPeriodsPerRun = 600

type obligationRow struct {
	ID                snowflake.ID
	OrgID             snowflake.ID
	CustomerID        snowflake.ID
	ServiceTemplateID snowflake.ID
	Title             string
	Recurrence        string
	StartDate         time.Time
	AnchorType        obligationdomain.AnchorType
	Status            obligationdomain.Status
}

func (s *Service) Backfill(ctx context.Context, obligationID string) (int, error) {
	id, err := snowflake.ParseString(obligationID)
	if err != nil {
		return 0, perioddomain.ErrObligationNotFound
	}

	obligation, err := s.findObligation(ctx, id)
	if err != nil {
		return 0, err
	}
	if obligation == nil {
		return 0, perioddomain.ErrObligationNotFound
	}
	return s.backfillObligation(ctx, obligation)
}

func (s *Service) backfillObligation(ctx context.Context, obligation *obligationRow) (int, error) {
	if obligation.Status == obligationdomain.StatusCancelled {
		return 0, nil
	}
	pattern := recurrence.ParsePattern(obligation.Recurrence)
	if !pattern.IsRecurring() {
		return 0, perioddomain.ErrNotRecurring
	}

	fiscalMonth, err := s.fiscalYearStartMonth(ctx, obligation.OrgID)
	if err != nil {
		return 0, err
	}
	templates, err := s.findTaskTemplates(ctx, obligation.OrgID, obligation.ServiceTemplateID)
	if err != nil {
		return 0, err
	}
	documents, err := s.findDocuments(ctx, obligation.OrgID, obligation.ID)
	if err != nil {
		return 0, err
	}

	period, err := s.firstPeriod(obligation, pattern, fiscalMonth)
	if err != nil {
		return 0, err
	}

	today := recurrence.DateOf(s.clock.Now())
	created := 0
	prevEligible := false
loop:
	for i := 0; i < maxPeriodsPerRun; i++ {
		candidates := resolveCandidates(templates, period)
		decision := perioddomain.Evaluate(obligation.StartDate, today, candidates)
		switch {
		case decision.Materialize:
			wasNew, err := s.materialize(ctx, obligation, period, decision.Eligible, documents, today)
			if err != nil {
				return created, err
			}
			if wasNew {
				created++
			}
			prevEligible = true
		case prevEligible:
			// One window past the last due work stays materialized with its
			// full task list, all still pending.
			wasNew, err := s.materialize(ctx, obligation, period, candidates, documents, today)
			if err != nil {
				return created, err
			}
			if wasNew {
				created++
			}
			break loop
		default:
			if period.Start.After(today) {
				break loop
			}
		}
		period, err = recurrence.NextAfter(period, pattern, fiscalMonth)
		if err != nil {
			return created, err
		}
	}

	if created > 0 {
		s.log.Info("periods materialized",
			zap.String("obligation_id", obligation.ID.String()),
			zap.Int("created", created),
		)
	}
	return created, nil
}

// firstPeriod anchors generation: an obligation can cover the window it
// starts in, the one before it, or the one after.
func (s *Service) firstPeriod(obligation *obligationRow, pattern recurrence.Pattern, fiscalMonth int) (recurrence.Period, error) {
	base, err := recurrence.BoundsFor(obligation.StartDate, pattern, fiscalMonth)
	if err != nil {
		return recurrence.Period{}, err
	}
	switch obligation.AnchorType {
	case obligationdomain.AnchorPrevious:
		return recurrence.BoundsFor(base.Start.AddDate(0, 0, -1), pattern, fiscalMonth)
	case obligationdomain.AnchorNext:
		return recurrence.NextAfter(base, pattern, fiscalMonth)
	default:
		return base, nil
	}
}

func resolveCandidates(templates []catalogdomain.TaskTemplate, period recurrence.Period) []perioddomain.CandidateTask {
	var candidates []perioddomain.CandidateTask
	for _, tpl := range templates {
		for _, due := range recurrence.ResolveDueDates(tpl.TaskSpec(), period) {
			candidates = append(candidates, perioddomain.CandidateTask{
				TemplateID: tpl.ID,
				Position:   tpl.Position,
				TaskDue:    due,
			})
		}
	}
	return candidates
}

// materialize creates the period row if absent and appends any eligible
// tasks and documents that are not yet present. Safe to run repeatedly;
// the unique keys make every insert idempotent.
func (s *Service) materialize(ctx context.Context, obligation *obligationRow, window recurrence.Period, eligible []perioddomain.CandidateTask, documents []obligationdomain.ObligationDocument, today time.Time) (bool, error) {
	var wasNew bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now()

		res := tx.Exec(
			`INSERT INTO periods (id, org_id, obligation_id, period_start, period_end, name, status, total_tasks, completed_tasks, all_completed, billed, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, 0, 0, FALSE, FALSE, ?, ?)
			 ON CONFLICT (obligation_id, period_start) DO NOTHING`,
			s.genID.Generate(),
			obligation.OrgID,
			obligation.ID,
			window.Start,
			window.End,
			window.Name,
			perioddomain.PeriodStatusPending,
			now,
			now,
		)
		if res.Error != nil {
			return res.Error
		}
		wasNew = res.RowsAffected > 0

		var periodID snowflake.ID
		if err := tx.Raw(
			`SELECT id FROM periods WHERE obligation_id = ? AND period_start = ?`,
			obligation.ID,
			window.Start,
		).Scan(&periodID).Error; err != nil {
			return err
		}
		if periodID == 0 {
			return perioddomain.ErrPeriodNotFound
		}

		for _, c := range eligible {
			if err := tx.Exec(
				`INSERT INTO period_tasks (id, org_id, period_id, template_id, title, month_qualifier, due_date, status, position, created_at, updated_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				 ON CONFLICT (period_id, template_id, month_qualifier) DO NOTHING`,
				s.genID.Generate(),
				obligation.OrgID,
				periodID,
				c.TemplateID,
				c.Title,
				c.MonthQualifier,
				c.DueDate,
				obligationdomain.TaskStatusPending,
				c.Position,
				now,
				now,
			).Error; err != nil {
				return err
			}
		}

		for _, doc := range documents {
			if err := tx.Exec(
				`INSERT INTO period_documents (id, org_id, period_id, document_id, name, created_at)
				 VALUES (?, ?, ?, ?, ?, ?)
				 ON CONFLICT (period_id, document_id) DO NOTHING`,
				s.genID.Generate(),
				obligation.OrgID,
				periodID,
				doc.ID,
				doc.Name,
				now,
			).Error; err != nil {
				return err
			}
		}

		_, err := s.refreshPeriod(ctx, tx, obligation.OrgID, periodID, today, now)
		return err
	})
	return wasNew, err
}

func (s *Service) findObligation(ctx context.Context, id snowflake.ID) (*obligationRow, error) {
	var obligation obligationRow
	err := s.db.WithContext(ctx).Raw(
		`SELECT id, org_id, customer_id, service_template_id, title, recurrence, start_date, anchor_type, status
		 FROM obligations
		 WHERE id = ?`,
		id,
	).Scan(&obligation).Error
	if err != nil {
		return nil, err
	}
	if obligation.ID == 0 {
		return nil, nil
	}
	return &obligation, nil
}

func (s *Service) fiscalYearStartMonth(ctx context.Context, orgID snowflake.ID) (int, error) {
	var month int
	err := s.db.WithContext(ctx).Raw(
		`SELECT fiscal_year_start_month FROM tenants WHERE id = ?`,
		orgID,
	).Scan(&month).Error
	if err != nil {
		return 0, err
	}
	if month < 1 || month > 12 {
		month = 1
	}
	return month, nil
}

func (s *Service) findTaskTemplates(ctx context.Context, orgID, templateID snowflake.ID) ([]catalogdomain.TaskTemplate, error) {
	var templates []catalogdomain.TaskTemplate
	err := s.db.WithContext(ctx).
		Where("org_id = ? AND service_template_id = ?", orgID, templateID).
		Order("position, id").
		Find(&templates).Error
	if err != nil {
		return nil, err
	}
	return templates, nil
}

func (s *Service) findDocuments(ctx context.Context, orgID, obligationID snowflake.ID) ([]obligationdomain.ObligationDocument, error) {
	var documents []obligationdomain.ObligationDocument
	err := s.db.WithContext(ctx).
		Where("org_id = ? AND obligation_id = ?", orgID, obligationID).
		Order("id").
		Find(&documents).Error
	if err != nil {
		return nil, err
	}
	return documents, nil
}
