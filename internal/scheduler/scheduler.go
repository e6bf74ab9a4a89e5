// Package scheduler drives the periodic jobs: materializing billing
// periods, flipping overdue work, and aging sent invoices.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cadencehq/cadence/internal/clock"
	invoicedomain "github.com/cadencehq/cadence/internal/invoice/domain"
	obsmetrics "github.com/cadencehq/cadence/internal/observability/metrics"
	perioddomain "github.com/cadencehq/cadence/internal/period/domain"
)

var ErrInvalidConfig = errors.New("scheduler: invalid configuration")

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	PeriodSvc  perioddomain.Service
	InvoiceSvc invoicedomain.Service
	Clock      clock.Clock
	Config     Config `optional:"true"`
}

type Scheduler struct {
	db         *gorm.DB
	log        *zap.Logger
	cfg        Config
	clock      clock.Clock
	periodSvc  perioddomain.Service
	invoiceSvc invoicedomain.Service
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.PeriodSvc == nil || p.InvoiceSvc == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:         p.DB,
		log:        p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:        p.Config.withDefaults(),
		clock:      p.Clock,
		periodSvc:  p.PeriodSvc,
		invoiceSvc: p.InvoiceSvc,
	}, nil
}

func (s *Scheduler) runJob(parent context.Context, name string, timeout time.Duration, fn func(ctx context.Context) error) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, time.Since(start))
	if err == nil {
		return nil
	}

	schedMetrics.IncJobError(name)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.log.Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error
	err = errors.Join(err, s.runJob(parent, "backfill_periods", s.cfg.JobTimeout, s.BackfillPeriodsJob))
	err = errors.Join(err, s.runJob(parent, "refresh_overdue", s.cfg.JobTimeout, s.RefreshOverdueJob))
	err = errors.Join(err, s.runJob(parent, "age_invoices", s.cfg.JobTimeout, s.AgeInvoicesJob))
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		if lag := time.Since(nextRun); lag > 0 {
			schedMetrics.ObserveRunLoopLag(lag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// BackfillPeriodsJob materializes eligible periods for every active
// recurring obligation.
func (s *Scheduler) BackfillPeriodsJob(ctx context.Context) error {
	created, err := s.periodSvc.BackfillAll(ctx)
	obsmetrics.Scheduler().AddPeriodsMaterialized(created)
	if created > 0 {
		s.log.Info("backfill pass complete", zap.Int("periods_created", created))
	}
	return err
}

// RefreshOverdueJob flips pending periods with elapsed unmet due dates,
// one organization at a time.
func (s *Scheduler) RefreshOverdueJob(ctx context.Context) error {
	orgs, err := s.listOrgIDs(ctx)
	if err != nil {
		return err
	}

	var jobErr error
	flipped := 0
	for _, orgID := range orgs {
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}
		n, err := s.periodSvc.RefreshOverdue(ctx, orgID)
		flipped += n
		if err != nil {
			jobErr = errors.Join(jobErr, err)
			s.log.Error("overdue refresh failed",
				zap.String("org_id", orgID.String()),
				zap.Error(err),
			)
		}
	}
	obsmetrics.Scheduler().AddPeriodsOverdue(flipped)
	return jobErr
}

// AgeInvoicesJob moves sent invoices past their due date to overdue.
func (s *Scheduler) AgeInvoicesJob(ctx context.Context) error {
	n, err := s.invoiceSvc.MarkOverdue(ctx)
	if n > 0 {
		s.log.Info("invoices aged to overdue", zap.Int64("count", n))
	}
	return err
}

func (s *Scheduler) listOrgIDs(ctx context.Context) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := s.db.WithContext(ctx).Raw(`SELECT id FROM tenants ORDER BY id`).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
