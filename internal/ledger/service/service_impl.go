package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cadencehq/cadence/internal/clock"
	ledgerdomain "github.com/cadencehq/cadence/internal/ledger/domain"
	"github.com/cadencehq/cadence/internal/orgcontext"
	"github.com/cadencehq/cadence/pkg/db"
)

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
}

func NewService(p ServiceParam) ledgerdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("ledger.service"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

type accountRow struct {
	ID         snowflake.ID
	OrgID      snowflake.ID
	Code       ledgerdomain.AccountCode
	Name       string
	Type       ledgerdomain.AccountType
	CustomerID *snowflake.ID
	Balance    int64
}

func (s *Service) PostInvoice(ctx context.Context, tx *gorm.DB, p ledgerdomain.InvoicePosting) error {
	if p.Total != p.Subtotal+p.Tax {
		return ledgerdomain.ErrUnbalancedVoucher
	}
	if p.Total <= 0 {
		return nil
	}

	now := s.clock.Now()
	voucherID := s.genID.Generate()

	res := tx.WithContext(ctx).Exec(
		`INSERT INTO vouchers (id, org_id, source_type, source_id, voucher_date, description, total_amount, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (org_id, source_type, source_id) DO NOTHING`,
		voucherID,
		p.OrgID,
		ledgerdomain.SourceTypeInvoice,
		p.InvoiceID,
		p.Date,
		fmt.Sprintf("Invoice %s", p.InvoiceID),
		p.Total,
		now,
		now,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// Already posted for this source; keep the operation idempotent.
		return nil
	}

	lines := []ledgerdomain.VoucherLine{
		{AccountID: p.ReceivableAccountID, Debit: p.Total},
		{AccountID: p.IncomeAccountID, Credit: p.Subtotal},
	}
	if p.Tax > 0 {
		taxAccount, err := s.findOrgAccount(ctx, tx, p.OrgID, ledgerdomain.AccountCodeTaxPayable)
		if err != nil {
			return err
		}
		if taxAccount == nil {
			return ledgerdomain.ErrAccountNotFound
		}
		lines = append(lines, ledgerdomain.VoucherLine{AccountID: taxAccount.ID, Credit: p.Tax})
	}
	if err := ledgerdomain.ValidateBalanced(lines); err != nil {
		return err
	}

	return s.insertLines(ctx, tx, p.OrgID, voucherID, lines, now)
}

func (s *Service) ReverseInvoice(ctx context.Context, tx *gorm.DB, orgID, invoiceID snowflake.ID) error {
	var voucher struct {
		ID          snowflake.ID
		TotalAmount int64
	}
	err := tx.WithContext(ctx).Raw(
		`SELECT id, total_amount
		 FROM vouchers
		 WHERE org_id = ? AND source_type = ? AND source_id = ?`,
		orgID,
		ledgerdomain.SourceTypeInvoice,
		invoiceID,
	).Scan(&voucher).Error
	if err != nil {
		return err
	}
	if voucher.ID == 0 {
		// Nothing posted for this invoice; nothing to reverse.
		return nil
	}

	var lines []ledgerdomain.VoucherLine
	if err := tx.WithContext(ctx).Raw(
		`SELECT id, org_id, voucher_id, account_id, debit, credit
		 FROM voucher_lines
		 WHERE org_id = ? AND voucher_id = ?
		 ORDER BY id`,
		orgID,
		voucher.ID,
	).Scan(&lines).Error; err != nil {
		return err
	}

	// Keyed on the invoice so a second reversal is a no-op.
	now := s.clock.Now()
	reversalID := s.genID.Generate()
	res := tx.WithContext(ctx).Exec(
		`INSERT INTO vouchers (id, org_id, source_type, source_id, voucher_date, description, total_amount, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (org_id, source_type, source_id) DO NOTHING`,
		reversalID,
		orgID,
		ledgerdomain.SourceTypeReversal,
		invoiceID,
		now,
		fmt.Sprintf("Reversal of invoice %s", invoiceID),
		voucher.TotalAmount,
		now,
		now,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return nil
	}

	reversed := make([]ledgerdomain.VoucherLine, 0, len(lines))
	for _, line := range lines {
		reversed = append(reversed, ledgerdomain.VoucherLine{
			AccountID: line.AccountID,
			Debit:     line.Credit,
			Credit:    line.Debit,
		})
	}
	return s.insertLines(ctx, tx, orgID, reversalID, reversed, now)
}

func (s *Service) PostVoucher(ctx context.Context, req ledgerdomain.PostVoucherRequest) (ledgerdomain.Voucher, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return ledgerdomain.Voucher{}, ledgerdomain.ErrInvalidOrganization
	}

	lines := make([]ledgerdomain.VoucherLine, 0, len(req.Lines))
	var total int64
	for _, in := range req.Lines {
		accountID, err := snowflake.ParseString(in.AccountID)
		if err != nil {
			return ledgerdomain.Voucher{}, ledgerdomain.ErrInvalidAccount
		}
		lines = append(lines, ledgerdomain.VoucherLine{
			AccountID: accountID,
			Debit:     in.Debit,
			Credit:    in.Credit,
		})
		total += in.Debit
	}
	if err := ledgerdomain.ValidateBalanced(lines); err != nil {
		return ledgerdomain.Voucher{}, err
	}

	now := s.clock.Now()
	voucherDate := req.VoucherDate
	if voucherDate.IsZero() {
		voucherDate = now
	}
	sourceType := req.SourceType
	if sourceType == "" {
		sourceType = ledgerdomain.SourceTypeManual
	}

	voucher := ledgerdomain.Voucher{
		ID:          s.genID.Generate(),
		OrgID:       orgID,
		SourceType:  sourceType,
		VoucherDate: voucherDate,
		Description: req.Memo,
		TotalAmount: total,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	voucher.SourceID = voucher.ID
	if req.SourceID != "" {
		sourceID, err := snowflake.ParseString(req.SourceID)
		if err != nil {
			return ledgerdomain.Voucher{}, ledgerdomain.ErrInvalidVoucherLines
		}
		voucher.SourceID = sourceID
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, line := range lines {
			account, err := s.findAccountByID(ctx, tx, orgID, line.AccountID)
			if err != nil {
				return err
			}
			if account == nil {
				return ledgerdomain.ErrAccountNotFound
			}
		}
		if err := tx.Exec(
			`INSERT INTO vouchers (id, org_id, source_type, source_id, voucher_date, description, total_amount, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			voucher.ID,
			voucher.OrgID,
			voucher.SourceType,
			voucher.SourceID,
			voucher.VoucherDate,
			voucher.Description,
			voucher.TotalAmount,
			voucher.CreatedAt,
			voucher.UpdatedAt,
		).Error; err != nil {
			if db.IsDuplicateKeyErr(err) {
				return ledgerdomain.ErrDuplicateVoucher
			}
			return err
		}
		return s.insertLines(ctx, tx, orgID, voucher.ID, lines, now)
	})
	if err != nil {
		return ledgerdomain.Voucher{}, err
	}

	s.log.Info("voucher posted",
		zap.String("voucher_id", voucher.ID.String()),
		zap.String("source_type", string(voucher.SourceType)),
		zap.Int64("total_amount", total),
	)
	return voucher, nil
}

func (s *Service) EnsureCustomerReceivable(ctx context.Context, tx *gorm.DB, orgID, customerID snowflake.ID, customerName string) (ledgerdomain.LedgerAccount, error) {
	existing, err := s.findCustomerAccount(ctx, tx, orgID, customerID, ledgerdomain.AccountCodeAccountsReceivable)
	if err != nil {
		return ledgerdomain.LedgerAccount{}, err
	}
	if existing != nil {
		return toAccount(existing), nil
	}

	now := s.clock.Now()
	account := ledgerdomain.LedgerAccount{
		ID:         s.genID.Generate(),
		OrgID:      orgID,
		Code:       ledgerdomain.AccountCodeAccountsReceivable,
		Name:       fmt.Sprintf("Accounts Receivable – %s", customerName),
		Type:       ledgerdomain.AccountTypeAsset,
		CustomerID: &customerID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	res := tx.WithContext(ctx).Exec(
		`INSERT INTO ledger_accounts (id, org_id, code, name, type, customer_id, opening_balance, balance, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, 0, 0, ?, ?)
		 ON CONFLICT DO NOTHING`,
		account.ID,
		account.OrgID,
		account.Code,
		account.Name,
		account.Type,
		customerID,
		now,
		now,
	)
	if res.Error != nil {
		return ledgerdomain.LedgerAccount{}, res.Error
	}
	if res.RowsAffected == 0 {
		// Lost a race with a concurrent creator; read the winner.
		existing, err = s.findCustomerAccount(ctx, tx, orgID, customerID, ledgerdomain.AccountCodeAccountsReceivable)
		if err != nil {
			return ledgerdomain.LedgerAccount{}, err
		}
		if existing == nil {
			return ledgerdomain.LedgerAccount{}, ledgerdomain.ErrAccountNotFound
		}
		return toAccount(existing), nil
	}
	return account, nil
}

var baseAccounts = []struct {
	Code ledgerdomain.AccountCode
	Name string
	Type ledgerdomain.AccountType
}{
	{ledgerdomain.AccountCodeAccountsReceivable, "Accounts Receivable", ledgerdomain.AccountTypeAsset},
	{ledgerdomain.AccountCodeCash, "Cash", ledgerdomain.AccountTypeAsset},
	{ledgerdomain.AccountCodeServiceIncome, "Service Income", ledgerdomain.AccountTypeIncome},
	{ledgerdomain.AccountCodeTaxPayable, "Tax Payable", ledgerdomain.AccountTypeLiability},
}

func (s *Service) EnsureChartOfAccounts(ctx context.Context, tx *gorm.DB, orgID snowflake.ID) (ledgerdomain.LedgerAccount, error) {
	now := s.clock.Now()
	for _, base := range baseAccounts {
		existing, err := s.findOrgAccount(ctx, tx, orgID, base.Code)
		if err != nil {
			return ledgerdomain.LedgerAccount{}, err
		}
		if existing != nil {
			continue
		}
		if err := tx.WithContext(ctx).Exec(
			`INSERT INTO ledger_accounts (id, org_id, code, name, type, customer_id, opening_balance, balance, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, NULL, 0, 0, ?, ?)`,
			s.genID.Generate(),
			orgID,
			base.Code,
			base.Name,
			base.Type,
			now,
			now,
		).Error; err != nil {
			return ledgerdomain.LedgerAccount{}, err
		}
	}

	income, err := s.findOrgAccount(ctx, tx, orgID, ledgerdomain.AccountCodeServiceIncome)
	if err != nil {
		return ledgerdomain.LedgerAccount{}, err
	}
	if income == nil {
		return ledgerdomain.LedgerAccount{}, ledgerdomain.ErrAccountNotFound
	}
	return toAccount(income), nil
}

func (s *Service) ListAccounts(ctx context.Context) ([]ledgerdomain.LedgerAccount, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, ledgerdomain.ErrInvalidOrganization
	}

	var accounts []ledgerdomain.LedgerAccount
	err := s.db.WithContext(ctx).
		Where("org_id = ?", orgID).
		Order("code, id").
		Find(&accounts).Error
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

func (s *Service) insertLines(ctx context.Context, tx *gorm.DB, orgID, voucherID snowflake.ID, lines []ledgerdomain.VoucherLine, now time.Time) error {
	for _, line := range lines {
		if err := tx.WithContext(ctx).Exec(
			`INSERT INTO voucher_lines (id, org_id, voucher_id, account_id, debit, credit, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			s.genID.Generate(),
			orgID,
			voucherID,
			line.AccountID,
			line.Debit,
			line.Credit,
			now,
		).Error; err != nil {
			return err
		}
		if err := tx.WithContext(ctx).Exec(
			`UPDATE ledger_accounts
			 SET balance = balance + ?, updated_at = ?
			 WHERE org_id = ? AND id = ?`,
			line.Debit-line.Credit,
			now,
			orgID,
			line.AccountID,
		).Error; err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) findOrgAccount(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, code ledgerdomain.AccountCode) (*accountRow, error) {
	var account accountRow
	err := tx.WithContext(ctx).Raw(
		`SELECT id, org_id, code, name, type, customer_id, balance
		 FROM ledger_accounts
		 WHERE org_id = ? AND code = ? AND customer_id IS NULL`,
		orgID,
		code,
	).Scan(&account).Error
	if err != nil {
		return nil, err
	}
	if account.ID == 0 {
		return nil, nil
	}
	return &account, nil
}

func (s *Service) findCustomerAccount(ctx context.Context, tx *gorm.DB, orgID, customerID snowflake.ID, code ledgerdomain.AccountCode) (*accountRow, error) {
	var account accountRow
	err := tx.WithContext(ctx).Raw(
		`SELECT id, org_id, code, name, type, customer_id, balance
		 FROM ledger_accounts
		 WHERE org_id = ? AND code = ? AND customer_id = ?`,
		orgID,
		code,
		customerID,
	).Scan(&account).Error
	if err != nil {
		return nil, err
	}
	if account.ID == 0 {
		return nil, nil
	}
	return &account, nil
}

func (s *Service) findAccountByID(ctx context.Context, tx *gorm.DB, orgID, accountID snowflake.ID) (*accountRow, error) {
	var account accountRow
	err := tx.WithContext(ctx).Raw(
		`SELECT id, org_id, code, name, type, customer_id, balance
		 FROM ledger_accounts
		 WHERE org_id = ? AND id = ?`,
		orgID,
		accountID,
	).Scan(&account).Error
	if err != nil {
		return nil, err
	}
	if account.ID == 0 {
		return nil, nil
	}
	return &account, nil
}

func toAccount(row *accountRow) ledgerdomain.LedgerAccount {
	return ledgerdomain.LedgerAccount{
		ID:         row.ID,
		OrgID:      row.OrgID,
		Code:       row.Code,
		Name:       row.Name,
		Type:       row.Type,
		CustomerID: row.CustomerID,
		Balance:    row.Balance,
	}
}
