package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	billingdomain "github.com/cadencehq/cadence/internal/billing/domain"
	catalogdomain "github.com/cadencehq/cadence/internal/catalog/domain"
	"github.com/cadencehq/cadence/internal/clock"
	customerdomain "github.com/cadencehq/cadence/internal/customer/domain"
	obligationdomain "github.com/cadencehq/cadence/internal/obligation/domain"
	"github.com/cadencehq/cadence/internal/orgcontext"
	perioddomain "github.com/cadencehq/cadence/internal/period/domain"
	tenantdomain "github.com/cadencehq/cadence/internal/tenant/domain"
)

func orgContext(orgID snowflake.ID) context.Context {
	return orgcontext.WithOrgID(context.Background(), int64(orgID))
}

type billingStub struct {
	periodCalls     []snowflake.ID
	obligationCalls []snowflake.ID
	err             error
}

func (b *billingStub) AutoBillPeriod(ctx context.Context, tx *gorm.DB, periodID snowflake.ID) (*billingdomain.Result, error) {
	b.periodCalls = append(b.periodCalls, periodID)
	if b.err != nil {
		return nil, b.err
	}
	return &billingdomain.Result{}, nil
}

func (b *billingStub) AutoBillObligation(ctx context.Context, tx *gorm.DB, obligationID snowflake.ID) (*billingdomain.Result, error) {
	b.obligationCalls = append(b.obligationCalls, obligationID)
	if b.err != nil {
		return nil, b.err
	}
	return &billingdomain.Result{}, nil
}

func (b *billingStub) GenerateForPeriod(ctx context.Context, periodID string) (*billingdomain.Result, error) {
	return &billingdomain.Result{}, nil
}

func (b *billingStub) GenerateForObligation(ctx context.Context, obligationID string) (*billingdomain.Result, error) {
	return &billingdomain.Result{}, nil
}

type fixture struct {
	db      *gorm.DB
	svc     perioddomain.Service
	node    *snowflake.Node
	clk     *clock.FakeClock
	billing *billingStub
	orgID   snowflake.ID
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func setupPeriodService(t *testing.T, now time.Time) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&tenantdomain.Tenant{},
		&customerdomain.Customer{},
		&catalogdomain.ServiceTemplate{},
		&catalogdomain.TaskTemplate{},
		&obligationdomain.Obligation{},
		&obligationdomain.ObligationDocument{},
		&perioddomain.Period{},
		&perioddomain.PeriodTask{},
		&perioddomain.PeriodDocument{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(now)
	billing := &billingStub{}

	svc := NewService(ServiceParam{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   node,
		Clock:   clk,
		Billing: billing,
	})

	orgID := node.Generate()
	require.NoError(t, db.Create(&tenantdomain.Tenant{
		ID:                   orgID,
		Name:                 "Test Firm",
		Slug:                 "test-firm",
		FiscalYearStartMonth: 1,
		AllowUnmappedLedger:  true,
		Metadata:             datatypes.JSONMap{},
	}).Error)

	return &fixture{db: db, svc: svc, node: node, clk: clk, billing: billing, orgID: orgID}
}

type taskTemplateSpec struct {
	title        string
	granularity  string
	dueRule      string
	dayOfMonth   int
	offsetDays   int
	offsetMonths int
}

func (f *fixture) seedEngagement(t *testing.T, cadence string, startDate time.Time, tasks []taskTemplateSpec) obligationdomain.Obligation {
	t.Helper()

	customer := customerdomain.Customer{
		ID:       f.node.Generate(),
		OrgID:    f.orgID,
		Name:     "Acme Pty Ltd",
		Metadata: datatypes.JSONMap{},
	}
	require.NoError(t, f.db.Create(&customer).Error)

	template := catalogdomain.ServiceTemplate{
		ID:           f.node.Generate(),
		OrgID:        f.orgID,
		Name:         "Bookkeeping",
		DefaultPrice: 25000,
	}
	require.NoError(t, f.db.Create(&template).Error)

	for i, spec := range tasks {
		row := catalogdomain.TaskTemplate{
			ID:                f.node.Generate(),
			OrgID:             f.orgID,
			ServiceTemplateID: template.ID,
			Title:             spec.title,
			Position:          i,
			Granularity:       spec.granularity,
			DueRule:           spec.dueRule,
		}
		if spec.dayOfMonth > 0 {
			row.DueDayOfMonth = &spec.dayOfMonth
		}
		if spec.offsetDays != 0 {
			row.DueOffsetDays = &spec.offsetDays
		}
		if spec.offsetMonths != 0 {
			row.DueOffsetMonths = &spec.offsetMonths
		}
		require.NoError(t, f.db.Create(&row).Error)
	}

	obligation := obligationdomain.Obligation{
		ID:                f.node.Generate(),
		OrgID:             f.orgID,
		CustomerID:        customer.ID,
		ServiceTemplateID: template.ID,
		Title:             "Bookkeeping engagement",
		Recurrence:        cadence,
		StartDate:         startDate,
		AnchorType:        obligationdomain.AnchorCurrent,
		AutoBill:          true,
		Status:            obligationdomain.StatusPending,
		BillingStatus:     obligationdomain.BillingStatusNotBilled,
		Metadata:          datatypes.JSONMap{},
	}
	require.NoError(t, f.db.Create(&obligation).Error)
	return obligation
}

func (f *fixture) periods(t *testing.T, obligationID snowflake.ID) []perioddomain.Period {
	t.Helper()
	var periods []perioddomain.Period
	require.NoError(t, f.db.Where("obligation_id = ?", obligationID).Order("period_start").Find(&periods).Error)
	return periods
}

func (f *fixture) tasks(t *testing.T, periodID snowflake.ID) []perioddomain.PeriodTask {
	t.Helper()
	var tasks []perioddomain.PeriodTask
	require.NoError(t, f.db.Where("period_id = ?", periodID).Order("due_date, position").Find(&tasks).Error)
	return tasks
}

// Monthly engagement started 2025-10-07 with a due-day-10 task, observed on
// 2025-10-13: October is due work (already overdue), November is the one
// upcoming window, and nothing further exists yet.
func TestBackfill_MonthlyDueDayTen(t *testing.T) {
	f := setupPeriodService(t, day(2025, time.October, 13))
	obligation := f.seedEngagement(t, "monthly", day(2025, time.October, 7), []taskTemplateSpec{
		{title: "File VAT return", dueRule: "day_of_month", dayOfMonth: 10},
	})

	created, err := f.svc.Backfill(context.Background(), obligation.ID.String())
	require.NoError(t, err)
	assert.Equal(t, 2, created)

	periods := f.periods(t, obligation.ID)
	require.Len(t, periods, 2)

	october := periods[0]
	assert.Equal(t, "October 2025", october.Name)
	assert.Equal(t, perioddomain.PeriodStatusOverdue, october.Status)
	assert.Equal(t, 1, october.TotalTasks)

	octoberTasks := f.tasks(t, october.ID)
	require.Len(t, octoberTasks, 1)
	assert.Equal(t, "2025-10-10", octoberTasks[0].DueDate.UTC().Format("2006-01-02"))

	november := periods[1]
	assert.Equal(t, "November 2025", november.Name)
	assert.Equal(t, perioddomain.PeriodStatusPending, november.Status)

	novemberTasks := f.tasks(t, november.ID)
	require.Len(t, novemberTasks, 1)
	assert.Equal(t, "2025-11-10", novemberTasks[0].DueDate.UTC().Format("2006-01-02"))
	assert.Equal(t, obligationdomain.TaskStatusPending, novemberTasks[0].Status)
}

func TestBackfill_Idempotent(t *testing.T) {
	f := setupPeriodService(t, day(2025, time.October, 13))
	obligation := f.seedEngagement(t, "monthly", day(2025, time.October, 7), []taskTemplateSpec{
		{title: "File VAT return", dueRule: "day_of_month", dayOfMonth: 10},
	})

	created, err := f.svc.Backfill(context.Background(), obligation.ID.String())
	require.NoError(t, err)
	require.Equal(t, 2, created)

	created, err = f.svc.Backfill(context.Background(), obligation.ID.String())
	require.NoError(t, err)
	assert.Equal(t, 0, created)

	assert.Len(t, f.periods(t, obligation.ID), 2)

	var taskCount int64
	require.NoError(t, f.db.Model(&perioddomain.PeriodTask{}).Where("org_id = ?", f.orgID).Count(&taskCount).Error)
	assert.EqualValues(t, 2, taskCount)
}

func TestBackfill_NothingDueYet(t *testing.T) {
	// Observed before the first due date: no period exists at all.
	f := setupPeriodService(t, day(2025, time.October, 8))
	obligation := f.seedEngagement(t, "monthly", day(2025, time.October, 7), []taskTemplateSpec{
		{title: "File VAT return", dueRule: "day_of_month", dayOfMonth: 10},
	})

	created, err := f.svc.Backfill(context.Background(), obligation.ID.String())
	require.NoError(t, err)
	assert.Equal(t, 0, created)
	assert.Empty(t, f.periods(t, obligation.ID))
}

// Quarterly engagement with a monthly payroll task (due day 21) and a
// quarterly filing due 10 days after the quarter ends, observed 2025-11-21.
func TestBackfill_QuarterlyWithMonthlySubTasks(t *testing.T) {
	f := setupPeriodService(t, day(2025, time.November, 21))
	obligation := f.seedEngagement(t, "quarterly", day(2025, time.July, 1), []taskTemplateSpec{
		{title: "Payroll run", granularity: "monthly", dueRule: "day_of_month", dayOfMonth: 21},
		{title: "Quarterly filing", dueRule: "offset_days", offsetDays: 10},
	})

	created, err := f.svc.Backfill(context.Background(), obligation.ID.String())
	require.NoError(t, err)
	assert.Equal(t, 3, created)

	periods := f.periods(t, obligation.ID)
	require.Len(t, periods, 3)
	assert.Equal(t, "Q3 2025", periods[0].Name)
	assert.Equal(t, "Q4 2025", periods[1].Name)
	assert.Equal(t, "Q1 2026", periods[2].Name)

	// Q3 carries all three monthly instances plus the quarterly filing,
	// every one of them due on or before 2025-11-21.
	q3Tasks := f.tasks(t, periods[0].ID)
	require.Len(t, q3Tasks, 4)
	assert.Equal(t, "Payroll run – July", q3Tasks[0].Title)
	assert.Equal(t, "2025-07", q3Tasks[0].MonthQualifier)
	assert.Equal(t, "2025-07-21", q3Tasks[0].DueDate.UTC().Format("2006-01-02"))
	assert.Equal(t, "Payroll run – August", q3Tasks[1].Title)
	assert.Equal(t, "Payroll run – September", q3Tasks[2].Title)
	assert.Equal(t, "Quarterly filing", q3Tasks[3].Title)
	assert.Equal(t, "2025-10-10", q3Tasks[3].DueDate.UTC().Format("2006-01-02"))

	// Q4 only has the October and November payroll runs so far: December's
	// instance and the quarterly filing are not yet due.
	q4Tasks := f.tasks(t, periods[1].ID)
	require.Len(t, q4Tasks, 2)
	assert.Equal(t, "2025-10-21", q4Tasks[0].DueDate.UTC().Format("2006-01-02"))
	assert.Equal(t, "2025-11-21", q4Tasks[1].DueDate.UTC().Format("2006-01-02"))

	// The upcoming quarter is fully populated and still pending.
	q1Tasks := f.tasks(t, periods[2].ID)
	assert.Len(t, q1Tasks, 4)
	assert.Equal(t, perioddomain.PeriodStatusPending, periods[2].Status)
}

func TestBackfill_AppendsNewlyDueTasks(t *testing.T) {
	f := setupPeriodService(t, day(2025, time.November, 21))
	obligation := f.seedEngagement(t, "quarterly", day(2025, time.July, 1), []taskTemplateSpec{
		{title: "Payroll run", granularity: "monthly", dueRule: "day_of_month", dayOfMonth: 21},
		{title: "Quarterly filing", dueRule: "offset_days", offsetDays: 10},
	})

	_, err := f.svc.Backfill(context.Background(), obligation.ID.String())
	require.NoError(t, err)

	// A month later December's payroll run has fallen due. The period set
	// does not grow, the existing Q4 period does.
	f.clk.Set(day(2025, time.December, 22))
	created, err := f.svc.Backfill(context.Background(), obligation.ID.String())
	require.NoError(t, err)
	assert.Equal(t, 0, created)

	periods := f.periods(t, obligation.ID)
	require.Len(t, periods, 3)
	q4Tasks := f.tasks(t, periods[1].ID)
	assert.Len(t, q4Tasks, 3)
}

// A completed period that gains a newly due task reverts out of completed.
func TestBackfill_NewTaskReopensCompletedPeriod(t *testing.T) {
	f := setupPeriodService(t, day(2025, time.November, 21))
	obligation := f.seedEngagement(t, "quarterly", day(2025, time.July, 1), []taskTemplateSpec{
		{title: "Payroll run", granularity: "monthly", dueRule: "day_of_month", dayOfMonth: 21},
	})

	_, err := f.svc.Backfill(context.Background(), obligation.ID.String())
	require.NoError(t, err)

	periods := f.periods(t, obligation.ID)
	require.Len(t, periods, 3)
	q4 := periods[1]
	require.Equal(t, "Q4 2025", q4.Name)

	ctx := orgContext(f.orgID)
	for _, task := range f.tasks(t, q4.ID) {
		require.NoError(t, f.svc.SetTaskStatus(ctx, task.ID.String(), obligationdomain.TaskStatusCompleted))
	}
	require.NoError(t, f.db.First(&q4, "id = ?", q4.ID).Error)
	require.Equal(t, perioddomain.PeriodStatusCompleted, q4.Status)

	f.clk.Set(day(2025, time.December, 22))
	_, err = f.svc.Backfill(context.Background(), obligation.ID.String())
	require.NoError(t, err)

	require.NoError(t, f.db.First(&q4, "id = ?", q4.ID).Error)
	assert.NotEqual(t, perioddomain.PeriodStatusCompleted, q4.Status)
	assert.False(t, q4.AllCompleted)
	assert.Equal(t, 3, q4.TotalTasks)
	assert.Equal(t, 2, q4.CompletedTasks)
}

func TestBackfill_AnchorPreviousSkipsPreStartWork(t *testing.T) {
	f := setupPeriodService(t, day(2025, time.October, 13))
	obligation := f.seedEngagement(t, "monthly", day(2025, time.October, 7), []taskTemplateSpec{
		{title: "File VAT return", dueRule: "day_of_month", dayOfMonth: 10},
	})
	require.NoError(t, f.db.Model(&obligationdomain.Obligation{}).
		Where("id = ?", obligation.ID).
		Update("anchor_type", obligationdomain.AnchorPrevious).Error)

	created, err := f.svc.Backfill(context.Background(), obligation.ID.String())
	require.NoError(t, err)

	// September's task fell due before the engagement started, so the
	// walk still begins producing work in October.
	assert.Equal(t, 2, created)
	periods := f.periods(t, obligation.ID)
	require.Len(t, periods, 2)
	assert.Equal(t, "October 2025", periods[0].Name)
	assert.Equal(t, "November 2025", periods[1].Name)
}

func TestBackfill_CopiesObligationDocuments(t *testing.T) {
	f := setupPeriodService(t, day(2025, time.October, 13))
	obligation := f.seedEngagement(t, "monthly", day(2025, time.October, 7), []taskTemplateSpec{
		{title: "File VAT return", dueRule: "day_of_month", dayOfMonth: 10},
	})
	doc := obligationdomain.ObligationDocument{
		ID:           f.node.Generate(),
		OrgID:        f.orgID,
		ObligationID: obligation.ID,
		Name:         "Bank statements",
	}
	require.NoError(t, f.db.Create(&doc).Error)

	_, err := f.svc.Backfill(context.Background(), obligation.ID.String())
	require.NoError(t, err)

	periods := f.periods(t, obligation.ID)
	require.Len(t, periods, 2)

	for _, period := range periods {
		var docs []perioddomain.PeriodDocument
		require.NoError(t, f.db.Where("period_id = ?", period.ID).Find(&docs).Error)
		require.Len(t, docs, 1)
		assert.Equal(t, doc.ID, docs[0].DocumentID)
		assert.Equal(t, "Bank statements", docs[0].Name)
	}

	// Re-running never duplicates document entries.
	_, err = f.svc.Backfill(context.Background(), obligation.ID.String())
	require.NoError(t, err)
	var docCount int64
	require.NoError(t, f.db.Model(&perioddomain.PeriodDocument{}).Where("org_id = ?", f.orgID).Count(&docCount).Error)
	assert.EqualValues(t, 2, docCount)
}

func TestBackfill_CancelledObligationProducesNothing(t *testing.T) {
	f := setupPeriodService(t, day(2025, time.October, 13))
	obligation := f.seedEngagement(t, "monthly", day(2025, time.October, 7), []taskTemplateSpec{
		{title: "File VAT return", dueRule: "day_of_month", dayOfMonth: 10},
	})
	require.NoError(t, f.db.Model(&obligationdomain.Obligation{}).
		Where("id = ?", obligation.ID).
		Update("status", obligationdomain.StatusCancelled).Error)

	created, err := f.svc.Backfill(context.Background(), obligation.ID.String())
	require.NoError(t, err)
	assert.Equal(t, 0, created)
	assert.Empty(t, f.periods(t, obligation.ID))
}

func TestBackfill_NonRecurringRejected(t *testing.T) {
	f := setupPeriodService(t, day(2025, time.October, 13))
	obligation := f.seedEngagement(t, "none", day(2025, time.October, 7), []taskTemplateSpec{
		{title: "One-off cleanup", dueRule: "day_of_month", dayOfMonth: 10},
	})

	_, err := f.svc.Backfill(context.Background(), obligation.ID.String())
	assert.ErrorIs(t, err, perioddomain.ErrNotRecurring)
}

func TestBackfill_UnknownObligation(t *testing.T) {
	f := setupPeriodService(t, day(2025, time.October, 13))

	_, err := f.svc.Backfill(context.Background(), f.node.Generate().String())
	assert.ErrorIs(t, err, perioddomain.ErrObligationNotFound)

	_, err = f.svc.Backfill(context.Background(), "not-an-id")
	assert.ErrorIs(t, err, perioddomain.ErrObligationNotFound)
}

func TestBackfill_NoFutureLeakBeyondUpcomingWindow(t *testing.T) {
	f := setupPeriodService(t, day(2026, time.February, 2))
	obligation := f.seedEngagement(t, "monthly", day(2025, time.July, 1), []taskTemplateSpec{
		{title: "File VAT return", dueRule: "day_of_month", dayOfMonth: 10},
	})

	_, err := f.svc.Backfill(context.Background(), obligation.ID.String())
	require.NoError(t, err)

	periods := f.periods(t, obligation.ID)
	require.NotEmpty(t, periods)
	latest := periods[len(periods)-1]
	assert.Equal(t, "February 2026", latest.Name)
	for _, p := range periods[:len(periods)-1] {
		assert.False(t, p.PeriodStart.UTC().After(day(2026, time.February, 2)), "period %s", p.Name)
	}
}
