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
	"gorm.io/gorm"

	"github.com/cadencehq/cadence/internal/clock"
	ledgerdomain "github.com/cadencehq/cadence/internal/ledger/domain"
	"github.com/cadencehq/cadence/internal/orgcontext"
)

type ledgerFixture struct {
	db    *gorm.DB
	svc   ledgerdomain.Service
	node  *snowflake.Node
	clk   *clock.FakeClock
	orgID snowflake.ID
}

func setupLedger(t *testing.T) *ledgerFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&ledgerdomain.LedgerAccount{},
		&ledgerdomain.Voucher{},
		&ledgerdomain.VoucherLine{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2025, time.October, 13, 9, 0, 0, 0, time.UTC))

	svc := NewService(ServiceParam{DB: db, Log: zap.NewNop(), GenID: node, Clock: clk})
	return &ledgerFixture{db: db, svc: svc, node: node, clk: clk, orgID: node.Generate()}
}

func (f *ledgerFixture) chart(t *testing.T) (income, receivable, tax ledgerdomain.LedgerAccount) {
	t.Helper()
	incomeAcct, err := f.svc.EnsureChartOfAccounts(context.Background(), f.db, f.orgID)
	require.NoError(t, err)

	var accounts []ledgerdomain.LedgerAccount
	require.NoError(t, f.db.Where("org_id = ?", f.orgID).Find(&accounts).Error)
	for _, a := range accounts {
		switch a.Code {
		case ledgerdomain.AccountCodeAccountsReceivable:
			receivable = a
		case ledgerdomain.AccountCodeTaxPayable:
			tax = a
		}
	}
	return incomeAcct, receivable, tax
}

func (f *ledgerFixture) balance(t *testing.T, accountID snowflake.ID) int64 {
	t.Helper()
	var account ledgerdomain.LedgerAccount
	require.NoError(t, f.db.First(&account, "id = ?", accountID).Error)
	return account.Balance
}

func TestEnsureChartOfAccounts(t *testing.T) {
	f := setupLedger(t)

	income, err := f.svc.EnsureChartOfAccounts(context.Background(), f.db, f.orgID)
	require.NoError(t, err)
	assert.Equal(t, ledgerdomain.AccountCodeServiceIncome, income.Code)
	assert.Equal(t, ledgerdomain.AccountTypeIncome, income.Type)

	again, err := f.svc.EnsureChartOfAccounts(context.Background(), f.db, f.orgID)
	require.NoError(t, err)
	assert.Equal(t, income.ID, again.ID)

	var count int64
	require.NoError(t, f.db.Model(&ledgerdomain.LedgerAccount{}).Where("org_id = ?", f.orgID).Count(&count).Error)
	assert.EqualValues(t, 4, count)
}

func TestEnsureCustomerReceivable(t *testing.T) {
	f := setupLedger(t)
	customerID := f.node.Generate()

	account, err := f.svc.EnsureCustomerReceivable(context.Background(), f.db, f.orgID, customerID, "Acme Pty Ltd")
	require.NoError(t, err)
	assert.Equal(t, ledgerdomain.AccountCodeAccountsReceivable, account.Code)
	assert.Equal(t, ledgerdomain.AccountTypeAsset, account.Type)
	require.NotNil(t, account.CustomerID)
	assert.Equal(t, customerID, *account.CustomerID)
	assert.Contains(t, account.Name, "Acme Pty Ltd")

	again, err := f.svc.EnsureCustomerReceivable(context.Background(), f.db, f.orgID, customerID, "Acme Pty Ltd")
	require.NoError(t, err)
	assert.Equal(t, account.ID, again.ID)
}

func TestPostInvoice_WritesBalancedVoucher(t *testing.T) {
	f := setupLedger(t)
	income, _, tax := f.chart(t)
	receivable, err := f.svc.EnsureCustomerReceivable(context.Background(), f.db, f.orgID, f.node.Generate(), "Acme")
	require.NoError(t, err)

	invoiceID := f.node.Generate()
	posting := ledgerdomain.InvoicePosting{
		OrgID:               f.orgID,
		InvoiceID:           invoiceID,
		ReceivableAccountID: receivable.ID,
		IncomeAccountID:     income.ID,
		Subtotal:            10000,
		Tax:                 1000,
		Total:               11000,
		Date:                f.clk.Now(),
	}
	require.NoError(t, f.svc.PostInvoice(context.Background(), f.db, posting))

	assert.EqualValues(t, 11000, f.balance(t, receivable.ID))
	assert.EqualValues(t, -10000, f.balance(t, income.ID))
	assert.EqualValues(t, -1000, f.balance(t, tax.ID))

	var lines []ledgerdomain.VoucherLine
	require.NoError(t, f.db.Where("org_id = ?", f.orgID).Find(&lines).Error)
	require.Len(t, lines, 3)
	assert.NoError(t, ledgerdomain.ValidateBalanced(lines))

	// Posting the same invoice again is a no-op.
	require.NoError(t, f.svc.PostInvoice(context.Background(), f.db, posting))
	assert.EqualValues(t, 11000, f.balance(t, receivable.ID))

	var voucherCount int64
	require.NoError(t, f.db.Model(&ledgerdomain.Voucher{}).Where("org_id = ?", f.orgID).Count(&voucherCount).Error)
	assert.EqualValues(t, 1, voucherCount)
}

func TestPostInvoice_NoTaxLineWhenTaxZero(t *testing.T) {
	f := setupLedger(t)
	income, _, _ := f.chart(t)
	receivable, err := f.svc.EnsureCustomerReceivable(context.Background(), f.db, f.orgID, f.node.Generate(), "Acme")
	require.NoError(t, err)

	require.NoError(t, f.svc.PostInvoice(context.Background(), f.db, ledgerdomain.InvoicePosting{
		OrgID:               f.orgID,
		InvoiceID:           f.node.Generate(),
		ReceivableAccountID: receivable.ID,
		IncomeAccountID:     income.ID,
		Subtotal:            5000,
		Total:               5000,
		Date:                f.clk.Now(),
	}))

	var lines []ledgerdomain.VoucherLine
	require.NoError(t, f.db.Where("org_id = ?", f.orgID).Find(&lines).Error)
	assert.Len(t, lines, 2)
}

func TestPostInvoice_RejectsMismatchedTotals(t *testing.T) {
	f := setupLedger(t)
	err := f.svc.PostInvoice(context.Background(), f.db, ledgerdomain.InvoicePosting{
		OrgID:     f.orgID,
		InvoiceID: f.node.Generate(),
		Subtotal:  10000,
		Tax:       1000,
		Total:     10000,
	})
	assert.ErrorIs(t, err, ledgerdomain.ErrUnbalancedVoucher)
}

func TestPostInvoice_ZeroTotalIsNoop(t *testing.T) {
	f := setupLedger(t)
	require.NoError(t, f.svc.PostInvoice(context.Background(), f.db, ledgerdomain.InvoicePosting{
		OrgID:     f.orgID,
		InvoiceID: f.node.Generate(),
	}))

	var voucherCount int64
	require.NoError(t, f.db.Model(&ledgerdomain.Voucher{}).Count(&voucherCount).Error)
	assert.Zero(t, voucherCount)
}

func TestReverseInvoice_RestoresBalances(t *testing.T) {
	f := setupLedger(t)
	income, _, tax := f.chart(t)
	receivable, err := f.svc.EnsureCustomerReceivable(context.Background(), f.db, f.orgID, f.node.Generate(), "Acme")
	require.NoError(t, err)

	invoiceID := f.node.Generate()
	require.NoError(t, f.svc.PostInvoice(context.Background(), f.db, ledgerdomain.InvoicePosting{
		OrgID:               f.orgID,
		InvoiceID:           invoiceID,
		ReceivableAccountID: receivable.ID,
		IncomeAccountID:     income.ID,
		Subtotal:            10000,
		Tax:                 1000,
		Total:               11000,
		Date:                f.clk.Now(),
	}))

	require.NoError(t, f.svc.ReverseInvoice(context.Background(), f.db, f.orgID, invoiceID))

	assert.Zero(t, f.balance(t, receivable.ID))
	assert.Zero(t, f.balance(t, income.ID))
	assert.Zero(t, f.balance(t, tax.ID))

	var voucherCount int64
	require.NoError(t, f.db.Model(&ledgerdomain.Voucher{}).Where("org_id = ?", f.orgID).Count(&voucherCount).Error)
	assert.EqualValues(t, 2, voucherCount)

	// A second reversal finds its voucher already present and stops.
	require.NoError(t, f.svc.ReverseInvoice(context.Background(), f.db, f.orgID, invoiceID))
	assert.Zero(t, f.balance(t, receivable.ID))
	require.NoError(t, f.db.Model(&ledgerdomain.Voucher{}).Where("org_id = ?", f.orgID).Count(&voucherCount).Error)
	assert.EqualValues(t, 2, voucherCount)
}

func TestReverseInvoice_NothingPosted(t *testing.T) {
	f := setupLedger(t)
	assert.NoError(t, f.svc.ReverseInvoice(context.Background(), f.db, f.orgID, f.node.Generate()))
}

func TestPostVoucher_Manual(t *testing.T) {
	f := setupLedger(t)
	income, receivable, _ := f.chart(t)
	ctx := orgcontext.WithOrgID(context.Background(), int64(f.orgID))

	voucher, err := f.svc.PostVoucher(ctx, ledgerdomain.PostVoucherRequest{
		Memo: "Opening adjustment",
		Lines: []ledgerdomain.VoucherLineInput{
			{AccountID: receivable.ID.String(), Debit: 2500},
			{AccountID: income.ID.String(), Credit: 2500},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, ledgerdomain.SourceTypeManual, voucher.SourceType)
	assert.EqualValues(t, 2500, voucher.TotalAmount)
	assert.Equal(t, "Opening adjustment", voucher.Description)

	assert.EqualValues(t, 2500, f.balance(t, receivable.ID))
	assert.EqualValues(t, -2500, f.balance(t, income.ID))
}

func TestPostVoucher_DuplicateSource(t *testing.T) {
	f := setupLedger(t)
	income, receivable, _ := f.chart(t)
	ctx := orgcontext.WithOrgID(context.Background(), int64(f.orgID))

	sourceID := f.node.Generate().String()
	req := ledgerdomain.PostVoucherRequest{
		SourceType: ledgerdomain.SourceTypePayment,
		SourceID:   sourceID,
		Lines: []ledgerdomain.VoucherLineInput{
			{AccountID: receivable.ID.String(), Debit: 100},
			{AccountID: income.ID.String(), Credit: 100},
		},
	}
	_, err := f.svc.PostVoucher(ctx, req)
	require.NoError(t, err)

	_, err = f.svc.PostVoucher(ctx, req)
	assert.ErrorIs(t, err, ledgerdomain.ErrDuplicateVoucher)
}

func TestPostVoucher_Validation(t *testing.T) {
	f := setupLedger(t)
	income, receivable, _ := f.chart(t)
	ctx := orgcontext.WithOrgID(context.Background(), int64(f.orgID))

	_, err := f.svc.PostVoucher(ctx, ledgerdomain.PostVoucherRequest{
		Lines: []ledgerdomain.VoucherLineInput{
			{AccountID: receivable.ID.String(), Debit: 100},
			{AccountID: income.ID.String(), Credit: 50},
		},
	})
	assert.ErrorIs(t, err, ledgerdomain.ErrUnbalancedVoucher)

	_, err = f.svc.PostVoucher(ctx, ledgerdomain.PostVoucherRequest{
		Lines: []ledgerdomain.VoucherLineInput{
			{AccountID: f.node.Generate().String(), Debit: 100},
			{AccountID: income.ID.String(), Credit: 100},
		},
	})
	assert.ErrorIs(t, err, ledgerdomain.ErrAccountNotFound)

	_, err = f.svc.PostVoucher(context.Background(), ledgerdomain.PostVoucherRequest{
		Lines: []ledgerdomain.VoucherLineInput{
			{AccountID: receivable.ID.String(), Debit: 100},
			{AccountID: income.ID.String(), Credit: 100},
		},
	})
	assert.ErrorIs(t, err, ledgerdomain.ErrInvalidOrganization)

	_, err = f.svc.PostVoucher(ctx, ledgerdomain.PostVoucherRequest{
		Lines: []ledgerdomain.VoucherLineInput{
			{AccountID: "bogus", Debit: 100},
			{AccountID: income.ID.String(), Credit: 100},
		},
	})
	assert.ErrorIs(t, err, ledgerdomain.ErrInvalidAccount)
}
