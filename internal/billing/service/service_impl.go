package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	billingdomain "github.com/cadencehq/cadence/internal/billing/domain"
	"github.com/cadencehq/cadence/internal/clock"
	invoicedomain "github.com/cadencehq/cadence/internal/invoice/domain"
	ledgerdomain "github.com/cadencehq/cadence/internal/ledger/domain"
	obligationdomain "github.com/cadencehq/cadence/internal/obligation/domain"
)

type ServiceParam struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Ledger ledgerdomain.Service
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	clock  clock.Clock
	ledger ledgerdomain.Service
}

func NewService(p ServiceParam) billingdomain.Automation {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("billing.service"),
		genID:  p.GenID,
		clock:  p.Clock,
		ledger: p.Ledger,
	}
}

type periodRow struct {
	ID           snowflake.ID
	OrgID        snowflake.ID
	ObligationID snowflake.ID
	PeriodStart  time.Time
	PeriodEnd    time.Time
	Name         string
	AllCompleted bool
	Billed       bool
}

type obligationRow struct {
	ID                snowflake.ID
	OrgID             snowflake.ID
	CustomerID        snowflake.ID
	ServiceTemplateID snowflake.ID
	Title             string
	Recurrence        string
	AutoBill          bool
	PriceOverride     *int64
	Status            obligationdomain.Status
	BillingStatus     obligationdomain.BillingStatus
	TotalTasks        int
	CompletedTasks    int
}

type templateRow struct {
	ID               snowflake.ID
	Name             string
	DefaultPrice     int64
	TaxRateBps       int64
	PaymentTermsDays int
	IncomeAccountID  *snowflake.ID
}

type tenantRow struct {
	ID                     snowflake.ID
	AllowUnmappedLedger    bool
	DefaultIncomeAccountID *snowflake.ID
}

type customerRow struct {
	ID                  snowflake.ID
	Name                string
	ReceivableAccountID *snowflake.ID
}

func (s *Service) AutoBillPeriod(ctx context.Context, tx *gorm.DB, periodID snowflake.ID) (*billingdomain.Result, error) {
	return s.billPeriod(ctx, tx, periodID, false)
}

func (s *Service) AutoBillObligation(ctx context.Context, tx *gorm.DB, obligationID snowflake.ID) (*billingdomain.Result, error) {
	return s.billObligation(ctx, tx, obligationID, false)
}

func (s *Service) GenerateForPeriod(ctx context.Context, periodID string) (*billingdomain.Result, error) {
	id, err := snowflake.ParseString(periodID)
	if err != nil {
		return nil, billingdomain.ErrSourceNotFound
	}
	var result *billingdomain.Result
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		result, txErr = s.billPeriod(ctx, tx, id, true)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) GenerateForObligation(ctx context.Context, obligationID string) (*billingdomain.Result, error) {
	id, err := snowflake.ParseString(obligationID)
	if err != nil {
		return nil, billingdomain.ErrSourceNotFound
	}
	var result *billingdomain.Result
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		result, txErr = s.billObligation(ctx, tx, id, true)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) billPeriod(ctx context.Context, tx *gorm.DB, periodID snowflake.ID, manual bool) (*billingdomain.Result, error) {
	period, err := s.findPeriod(ctx, tx, periodID)
	if err != nil {
		return nil, err
	}
	if period == nil {
		return nil, billingdomain.ErrSourceNotFound
	}
	if period.Billed {
		return &billingdomain.Result{Skipped: billingdomain.SkipAlreadyBilled}, nil
	}
	if !period.AllCompleted {
		return nil, billingdomain.ErrNotCompleted
	}

	obligation, err := s.findObligation(ctx, tx, period.OrgID, period.ObligationID)
	if err != nil {
		return nil, err
	}
	if obligation == nil {
		return nil, billingdomain.ErrSourceNotFound
	}
	if !manual && !obligation.AutoBill {
		return &billingdomain.Result{Skipped: billingdomain.SkipAutoBillDisabled}, nil
	}

	invoice, skip, err := s.generateInvoice(ctx, tx, obligation, period)
	if err != nil {
		return nil, err
	}
	if skip != billingdomain.SkipNone {
		return &billingdomain.Result{Skipped: skip}, nil
	}

	now := s.clock.Now()
	if err := tx.WithContext(ctx).Exec(
		`UPDATE periods SET billed = TRUE, invoice_id = ?, updated_at = ? WHERE org_id = ? AND id = ?`,
		invoice.ID, now, period.OrgID, period.ID,
	).Error; err != nil {
		return nil, err
	}
	if err := s.markObligationBilled(ctx, tx, obligation, now); err != nil {
		return nil, err
	}

	s.log.Info("period billed",
		zap.String("period_id", period.ID.String()),
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("invoice_number", invoice.InvoiceNumber),
	)
	return &billingdomain.Result{Invoice: invoice}, nil
}

func (s *Service) billObligation(ctx context.Context, tx *gorm.DB, obligationID snowflake.ID, manual bool) (*billingdomain.Result, error) {
	obligation, err := s.findObligationAnyOrg(ctx, tx, obligationID)
	if err != nil {
		return nil, err
	}
	if obligation == nil {
		return nil, billingdomain.ErrSourceNotFound
	}
	if obligation.BillingStatus != obligationdomain.BillingStatusNotBilled {
		return &billingdomain.Result{Skipped: billingdomain.SkipAlreadyBilled}, nil
	}
	if obligation.TotalTasks == 0 || obligation.CompletedTasks < obligation.TotalTasks {
		return nil, billingdomain.ErrNotCompleted
	}
	if !manual && !obligation.AutoBill {
		return &billingdomain.Result{Skipped: billingdomain.SkipAutoBillDisabled}, nil
	}

	invoice, skip, err := s.generateInvoice(ctx, tx, obligation, nil)
	if err != nil {
		return nil, err
	}
	if skip != billingdomain.SkipNone {
		return &billingdomain.Result{Skipped: skip}, nil
	}

	if err := s.markObligationBilled(ctx, tx, obligation, s.clock.Now()); err != nil {
		return nil, err
	}

	s.log.Info("obligation billed",
		zap.String("obligation_id", obligation.ID.String()),
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("invoice_number", invoice.InvoiceNumber),
	)
	return &billingdomain.Result{Invoice: invoice}, nil
}

// generateInvoice builds the draft invoice for an obligation, scoped to a
// period when one is given. Policy outcomes come back as a skip reason.
func (s *Service) generateInvoice(ctx context.Context, tx *gorm.DB, obligation *obligationRow, period *periodRow) (*invoicedomain.Invoice, billingdomain.SkipReason, error) {
	template, err := s.findTemplate(ctx, tx, obligation.OrgID, obligation.ServiceTemplateID)
	if err != nil {
		return nil, billingdomain.SkipNone, err
	}
	if template == nil {
		return nil, billingdomain.SkipNone, billingdomain.ErrSourceNotFound
	}
	tenant, err := s.findTenant(ctx, tx, obligation.OrgID)
	if err != nil {
		return nil, billingdomain.SkipNone, err
	}
	if tenant == nil {
		return nil, billingdomain.SkipNone, billingdomain.ErrInvalidOrganization
	}
	customer, err := s.findCustomer(ctx, tx, obligation.OrgID, obligation.CustomerID)
	if err != nil {
		return nil, billingdomain.SkipNone, err
	}
	if customer == nil {
		return nil, billingdomain.SkipNone, billingdomain.ErrSourceNotFound
	}

	price, err := s.resolvePrice(ctx, tx, obligation, template)
	if err != nil {
		return nil, billingdomain.SkipNone, err
	}
	if price <= 0 {
		return nil, billingdomain.SkipZeroPrice, nil
	}

	tax := price * template.TaxRateBps / 10000
	total := price + tax

	incomeAccountID := template.IncomeAccountID
	if incomeAccountID == nil {
		incomeAccountID = tenant.DefaultIncomeAccountID
	}

	if incomeAccountID == nil && !tenant.AllowUnmappedLedger {
		return nil, billingdomain.SkipLedgerUnmapped, nil
	}

	// The customer's receivable account is provisioned even when the income
	// side is still unmapped, so the invoice posts as soon as it is mapped.
	account, err := s.resolveReceivable(ctx, tx, obligation.OrgID, customer)
	if err != nil {
		return nil, billingdomain.SkipNone, err
	}
	receivableID := &account.ID

	now := s.clock.Now()
	issueDate := now
	dueDate := issueDate.AddDate(0, 0, template.PaymentTermsDays)

	number, err := s.allocateInvoiceNumber(ctx, tx, obligation.OrgID, now)
	if err != nil {
		return nil, billingdomain.SkipNone, err
	}

	invoice := &invoicedomain.Invoice{
		ID:                  s.genID.Generate(),
		OrgID:               obligation.OrgID,
		CustomerID:          obligation.CustomerID,
		ObligationID:        &obligation.ID,
		InvoiceNumber:       number,
		IssueDate:           issueDate,
		DueDate:             dueDate,
		SubtotalAmount:      price,
		TaxAmount:           tax,
		TotalAmount:         total,
		Status:              invoicedomain.InvoiceStatusDraft,
		IncomeAccountID:     incomeAccountID,
		ReceivableAccountID: receivableID,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	description := obligation.Title
	if period != nil {
		invoice.PeriodID = &period.ID
		description = fmt.Sprintf("%s – %s", obligation.Title, period.Name)
	}

	if err := tx.WithContext(ctx).Exec(
		`INSERT INTO invoices (
			id, org_id, customer_id, obligation_id, period_id, invoice_number,
			issue_date, due_date, subtotal_amount, tax_amount, total_amount,
			status, income_account_id, receivable_account_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		invoice.ID,
		invoice.OrgID,
		invoice.CustomerID,
		invoice.ObligationID,
		invoice.PeriodID,
		invoice.InvoiceNumber,
		invoice.IssueDate,
		invoice.DueDate,
		invoice.SubtotalAmount,
		invoice.TaxAmount,
		invoice.TotalAmount,
		invoice.Status,
		invoice.IncomeAccountID,
		invoice.ReceivableAccountID,
		invoice.CreatedAt,
		invoice.UpdatedAt,
	).Error; err != nil {
		return nil, billingdomain.SkipNone, err
	}

	if err := tx.WithContext(ctx).Exec(
		`INSERT INTO invoice_lines (id, org_id, invoice_id, description, quantity, unit_price, amount, created_at)
		 VALUES (?, ?, ?, ?, 1, ?, ?, ?)`,
		s.genID.Generate(),
		invoice.OrgID,
		invoice.ID,
		description,
		price,
		price,
		now,
	).Error; err != nil {
		return nil, billingdomain.SkipNone, err
	}

	return invoice, billingdomain.SkipNone, nil
}

// resolvePrice walks the precedence ladder: obligation override, then a
// customer-specific catalog price, then the template default.
func (s *Service) resolvePrice(ctx context.Context, tx *gorm.DB, obligation *obligationRow, template *templateRow) (int64, error) {
	if obligation.PriceOverride != nil {
		return *obligation.PriceOverride, nil
	}

	var row struct {
		ID    snowflake.ID
		Price int64
	}
	err := tx.WithContext(ctx).Raw(
		`SELECT id, price
		 FROM customer_prices
		 WHERE org_id = ? AND customer_id = ? AND service_template_id = ?`,
		obligation.OrgID,
		obligation.CustomerID,
		obligation.ServiceTemplateID,
	).Scan(&row).Error
	if err != nil {
		return 0, err
	}
	if row.ID != 0 {
		return row.Price, nil
	}
	return template.DefaultPrice, nil
}

// resolveReceivable prefers the customer's pinned receivable account and
// otherwise provisions a per-customer AR sub-account, pinning it for
// subsequent invoices.
func (s *Service) resolveReceivable(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, customer *customerRow) (*ledgerdomain.LedgerAccount, error) {
	if customer.ReceivableAccountID != nil {
		return &ledgerdomain.LedgerAccount{ID: *customer.ReceivableAccountID}, nil
	}

	account, err := s.ledger.EnsureCustomerReceivable(ctx, tx, orgID, customer.ID, customer.Name)
	if err != nil {
		return nil, err
	}
	if err := tx.WithContext(ctx).Exec(
		`UPDATE customers SET receivable_account_id = ?, updated_at = ? WHERE org_id = ? AND id = ?`,
		account.ID, s.clock.Now(), orgID, customer.ID,
	).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (s *Service) markObligationBilled(ctx context.Context, tx *gorm.DB, obligation *obligationRow, now time.Time) error {
	return tx.WithContext(ctx).Exec(
		`UPDATE obligations SET billing_status = ?, updated_at = ? WHERE org_id = ? AND id = ?`,
		obligationdomain.BillingStatusBilled,
		now,
		obligation.OrgID,
		obligation.ID,
	).Error
}

func (s *Service) findPeriod(ctx context.Context, tx *gorm.DB, periodID snowflake.ID) (*periodRow, error) {
	var period periodRow
	err := tx.WithContext(ctx).Raw(
		`SELECT id, org_id, obligation_id, period_start, period_end, name, all_completed, billed
		 FROM periods
		 WHERE id = ?`,
		periodID,
	).Scan(&period).Error
	if err != nil {
		return nil, err
	}
	if period.ID == 0 {
		return nil, nil
	}
	return &period, nil
}

func (s *Service) findObligation(ctx context.Context, tx *gorm.DB, orgID, obligationID snowflake.ID) (*obligationRow, error) {
	var obligation obligationRow
	err := tx.WithContext(ctx).Raw(
		`SELECT id, org_id, customer_id, service_template_id, title, recurrence, auto_bill,
		        price_override, status, billing_status, total_tasks, completed_tasks
		 FROM obligations
		 WHERE org_id = ? AND id = ?`,
		orgID,
		obligationID,
	).Scan(&obligation).Error
	if err != nil {
		return nil, err
	}
	if obligation.ID == 0 {
		return nil, nil
	}
	return &obligation, nil
}

func (s *Service) findObligationAnyOrg(ctx context.Context, tx *gorm.DB, obligationID snowflake.ID) (*obligationRow, error) {
	var obligation obligationRow
	err := tx.WithContext(ctx).Raw(
		`SELECT id, org_id, customer_id, service_template_id, title, recurrence, auto_bill,
		        price_override, status, billing_status, total_tasks, completed_tasks
		 FROM obligations
		 WHERE id = ?`,
		obligationID,
	).Scan(&obligation).Error
	if err != nil {
		return nil, err
	}
	if obligation.ID == 0 {
		return nil, nil
	}
	return &obligation, nil
}

func (s *Service) findTemplate(ctx context.Context, tx *gorm.DB, orgID, templateID snowflake.ID) (*templateRow, error) {
	var template templateRow
	err := tx.WithContext(ctx).Raw(
		`SELECT id, name, default_price, tax_rate_bps, payment_terms_days, income_account_id
		 FROM service_templates
		 WHERE org_id = ? AND id = ?`,
		orgID,
		templateID,
	).Scan(&template).Error
	if err != nil {
		return nil, err
	}
	if template.ID == 0 {
		return nil, nil
	}
	return &template, nil
}

func (s *Service) findTenant(ctx context.Context, tx *gorm.DB, orgID snowflake.ID) (*tenantRow, error) {
	var tenant tenantRow
	err := tx.WithContext(ctx).Raw(
		`SELECT id, allow_unmapped_ledger, default_income_account_id
		 FROM tenants
		 WHERE id = ?`,
		orgID,
	).Scan(&tenant).Error
	if err != nil {
		return nil, err
	}
	if tenant.ID == 0 {
		return nil, nil
	}
	return &tenant, nil
}

func (s *Service) findCustomer(ctx context.Context, tx *gorm.DB, orgID, customerID snowflake.ID) (*customerRow, error) {
	var customer customerRow
	err := tx.WithContext(ctx).Raw(
		`SELECT id, name, receivable_account_id
		 FROM customers
		 WHERE org_id = ? AND id = ?`,
		orgID,
		customerID,
	).Scan(&customer).Error
	if err != nil {
		return nil, err
	}
	if customer.ID == 0 {
		return nil, nil
	}
	return &customer, nil
}
