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

	"github.com/cadencehq/cadence/internal/clock"
	invoicedomain "github.com/cadencehq/cadence/internal/invoice/domain"
	ledgerdomain "github.com/cadencehq/cadence/internal/ledger/domain"
	ledgerservice "github.com/cadencehq/cadence/internal/ledger/service"
	obligationdomain "github.com/cadencehq/cadence/internal/obligation/domain"
	"github.com/cadencehq/cadence/internal/orgcontext"
)

type invoiceFixture struct {
	db           *gorm.DB
	svc          invoicedomain.Service
	node         *snowflake.Node
	clk          *clock.FakeClock
	orgID        snowflake.ID
	incomeID     snowflake.ID
	receivableID snowflake.ID
}

func setupInvoiceService(t *testing.T) *invoiceFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&obligationdomain.Obligation{},
		&invoicedomain.Invoice{},
		&invoicedomain.InvoiceLine{},
		&ledgerdomain.LedgerAccount{},
		&ledgerdomain.Voucher{},
		&ledgerdomain.VoucherLine{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2025, time.November, 3, 9, 0, 0, 0, time.UTC))
	log := zap.NewNop()

	ledger := ledgerservice.NewService(ledgerservice.ServiceParam{DB: db, Log: log, GenID: node, Clock: clk})
	svc := NewService(ServiceParam{DB: db, Log: log, Clock: clk, Ledger: ledger})

	f := &invoiceFixture{db: db, svc: svc, node: node, clk: clk, orgID: node.Generate()}

	income, err := ledger.EnsureChartOfAccounts(context.Background(), db, f.orgID)
	require.NoError(t, err)
	f.incomeID = income.ID

	receivable, err := ledger.EnsureCustomerReceivable(context.Background(), db, f.orgID, node.Generate(), "Acme")
	require.NoError(t, err)
	f.receivableID = receivable.ID
	return f
}

func (f *invoiceFixture) ctx() context.Context {
	return orgcontext.WithOrgID(context.Background(), int64(f.orgID))
}

// seedInvoice inserts a draft invoice wired to the org's ledger accounts.
// mutate runs before the insert.
func (f *invoiceFixture) seedInvoice(t *testing.T, mutate func(*invoicedomain.Invoice)) invoicedomain.Invoice {
	t.Helper()

	now := f.clk.Now()
	invoice := invoicedomain.Invoice{
		ID:                  f.node.Generate(),
		OrgID:               f.orgID,
		CustomerID:          f.node.Generate(),
		InvoiceNumber:       "INV-" + f.node.Generate().String(),
		IssueDate:           now,
		DueDate:             now.AddDate(0, 0, 14),
		SubtotalAmount:      10000,
		TaxAmount:           1000,
		TotalAmount:         11000,
		Status:              invoicedomain.InvoiceStatusDraft,
		IncomeAccountID:     &f.incomeID,
		ReceivableAccountID: &f.receivableID,
		Metadata:            datatypes.JSONMap{},
	}
	if mutate != nil {
		mutate(&invoice)
	}
	require.NoError(t, f.db.Create(&invoice).Error)
	return invoice
}

func (f *invoiceFixture) balance(t *testing.T, accountID snowflake.ID) int64 {
	t.Helper()
	var account ledgerdomain.LedgerAccount
	require.NoError(t, f.db.First(&account, "id = ?", accountID).Error)
	return account.Balance
}

func (f *invoiceFixture) voucherCount(t *testing.T) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.db.Model(&ledgerdomain.Voucher{}).Where("org_id = ?", f.orgID).Count(&count).Error)
	return count
}

func TestSetStatus_SendPostsToLedger(t *testing.T) {
	f := setupInvoiceService(t)
	invoice := f.seedInvoice(t, nil)

	updated, err := f.svc.SetStatus(f.ctx(), invoice.ID.String(), invoicedomain.InvoiceStatusSent)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusSent, updated.Status)

	assert.EqualValues(t, 1, f.voucherCount(t))
	assert.EqualValues(t, 11000, f.balance(t, f.receivableID))
	assert.EqualValues(t, -10000, f.balance(t, f.incomeID))
}

func TestSetStatus_UnmappedInvoiceStaysUnposted(t *testing.T) {
	f := setupInvoiceService(t)
	invoice := f.seedInvoice(t, func(inv *invoicedomain.Invoice) {
		inv.IncomeAccountID = nil
		inv.ReceivableAccountID = nil
	})

	updated, err := f.svc.SetStatus(f.ctx(), invoice.ID.String(), invoicedomain.InvoiceStatusSent)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusSent, updated.Status)
	assert.Zero(t, f.voucherCount(t))
}

func TestSetStatus_CancelPostedInvoiceReversesLedger(t *testing.T) {
	f := setupInvoiceService(t)
	invoice := f.seedInvoice(t, nil)

	_, err := f.svc.SetStatus(f.ctx(), invoice.ID.String(), invoicedomain.InvoiceStatusSent)
	require.NoError(t, err)
	require.EqualValues(t, 11000, f.balance(t, f.receivableID))

	_, err = f.svc.SetStatus(f.ctx(), invoice.ID.String(), invoicedomain.InvoiceStatusCancelled)
	require.NoError(t, err)

	assert.Zero(t, f.balance(t, f.receivableID))
	assert.Zero(t, f.balance(t, f.incomeID))
	assert.EqualValues(t, 2, f.voucherCount(t))
}

func TestSetStatus_CancelDraftTouchesNoLedger(t *testing.T) {
	f := setupInvoiceService(t)
	invoice := f.seedInvoice(t, nil)

	_, err := f.svc.SetStatus(f.ctx(), invoice.ID.String(), invoicedomain.InvoiceStatusCancelled)
	require.NoError(t, err)
	assert.Zero(t, f.voucherCount(t))
}

func TestSetStatus_PaidMarksObligation(t *testing.T) {
	f := setupInvoiceService(t)
	obligation := obligationdomain.Obligation{
		ID:                f.node.Generate(),
		OrgID:             f.orgID,
		CustomerID:        f.node.Generate(),
		ServiceTemplateID: f.node.Generate(),
		Title:             "Bookkeeping engagement",
		Recurrence:        "monthly",
		StartDate:         f.clk.Now(),
		BillingStatus:     obligationdomain.BillingStatusBilled,
		Status:            obligationdomain.StatusInProgress,
		Metadata:          datatypes.JSONMap{},
	}
	require.NoError(t, f.db.Create(&obligation).Error)

	invoice := f.seedInvoice(t, func(inv *invoicedomain.Invoice) {
		inv.ObligationID = &obligation.ID
	})

	_, err := f.svc.SetStatus(f.ctx(), invoice.ID.String(), invoicedomain.InvoiceStatusSent)
	require.NoError(t, err)
	_, err = f.svc.SetStatus(f.ctx(), invoice.ID.String(), invoicedomain.InvoiceStatusPaid)
	require.NoError(t, err)

	var reloaded obligationdomain.Obligation
	require.NoError(t, f.db.First(&reloaded, "id = ?", obligation.ID).Error)
	assert.Equal(t, obligationdomain.BillingStatusPaid, reloaded.BillingStatus)
}

func TestSetStatus_RejectsInvalidTransitions(t *testing.T) {
	f := setupInvoiceService(t)
	invoice := f.seedInvoice(t, nil)

	_, err := f.svc.SetStatus(f.ctx(), invoice.ID.String(), invoicedomain.InvoiceStatusPaid)
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidTransition)

	_, err = f.svc.SetStatus(f.ctx(), invoice.ID.String(), "archived")
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidStatus)

	// Setting the current status is a no-op, not an error.
	same, err := f.svc.SetStatus(f.ctx(), invoice.ID.String(), invoicedomain.InvoiceStatusDraft)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusDraft, same.Status)
	assert.Zero(t, f.voucherCount(t))
}

func TestSetStatus_UnknownInvoice(t *testing.T) {
	f := setupInvoiceService(t)

	_, err := f.svc.SetStatus(f.ctx(), f.node.Generate().String(), invoicedomain.InvoiceStatusSent)
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceNotFound)

	_, err = f.svc.SetStatus(f.ctx(), "bogus", invoicedomain.InvoiceStatusSent)
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidInvoiceID)
}

func TestMarkOverdue(t *testing.T) {
	f := setupInvoiceService(t)

	pastDue := f.seedInvoice(t, func(inv *invoicedomain.Invoice) {
		inv.Status = invoicedomain.InvoiceStatusSent
		inv.DueDate = f.clk.Now().AddDate(0, 0, -1)
	})
	notDue := f.seedInvoice(t, func(inv *invoicedomain.Invoice) {
		inv.Status = invoicedomain.InvoiceStatusSent
		inv.DueDate = f.clk.Now().AddDate(0, 0, 7)
	})
	draft := f.seedInvoice(t, func(inv *invoicedomain.Invoice) {
		inv.DueDate = f.clk.Now().AddDate(0, 0, -10)
	})

	flipped, err := f.svc.MarkOverdue(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, flipped)

	var gotPastDue, gotNotDue, gotDraft invoicedomain.Invoice
	require.NoError(t, f.db.First(&gotPastDue, "id = ?", pastDue.ID).Error)
	assert.Equal(t, invoicedomain.InvoiceStatusOverdue, gotPastDue.Status)

	require.NoError(t, f.db.First(&gotNotDue, "id = ?", notDue.ID).Error)
	assert.Equal(t, invoicedomain.InvoiceStatusSent, gotNotDue.Status)

	require.NoError(t, f.db.First(&gotDraft, "id = ?", draft.ID).Error)
	assert.Equal(t, invoicedomain.InvoiceStatusDraft, gotDraft.Status)

	flipped, err = f.svc.MarkOverdue(context.Background())
	require.NoError(t, err)
	assert.Zero(t, flipped)
}

func TestListInvoices_FiltersAndScoping(t *testing.T) {
	f := setupInvoiceService(t)
	customerID := f.node.Generate()

	mine := f.seedInvoice(t, func(inv *invoicedomain.Invoice) {
		inv.CustomerID = customerID
	})
	f.seedInvoice(t, nil)
	f.seedInvoice(t, func(inv *invoicedomain.Invoice) {
		inv.OrgID = f.node.Generate()
	})

	resp, err := f.svc.List(f.ctx(), invoicedomain.ListInvoiceRequest{})
	require.NoError(t, err)
	assert.Len(t, resp.Data, 2)

	resp, err = f.svc.List(f.ctx(), invoicedomain.ListInvoiceRequest{CustomerID: customerID.String()})
	require.NoError(t, err)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, mine.ID, resp.Data[0].ID)

	_, err = f.svc.List(context.Background(), invoicedomain.ListInvoiceRequest{})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidOrganization)
}

func TestGetByID_ScopedToOrganization(t *testing.T) {
	f := setupInvoiceService(t)
	other := f.seedInvoice(t, func(inv *invoicedomain.Invoice) {
		inv.OrgID = f.node.Generate()
	})

	_, err := f.svc.GetByID(f.ctx(), other.ID.String())
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceNotFound)
}
