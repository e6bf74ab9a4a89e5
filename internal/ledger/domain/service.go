package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// InvoicePosting is the snapshot of an invoice the poster needs. Keeping it
// flat avoids a dependency on the invoice package.
type InvoicePosting struct {
	OrgID               snowflake.ID
	InvoiceID           snowflake.ID
	ReceivableAccountID snowflake.ID
	IncomeAccountID     snowflake.ID
	Subtotal            int64
	Tax                 int64
	Total               int64
	Date                time.Time
}

// VoucherLineInput is one requested debit or credit.
type VoucherLineInput struct {
	AccountID string `json:"account_id" binding:"required"`
	Debit     int64  `json:"debit"`
	Credit    int64  `json:"credit"`
}

type PostVoucherRequest struct {
	SourceType  SourceType         `json:"source_type"`
	SourceID    string             `json:"source_id"`
	VoucherDate time.Time          `json:"voucher_date"`
	Memo        string             `json:"memo"`
	Lines       []VoucherLineInput `json:"lines" binding:"required"`
}

type Service interface {
	// PostInvoice writes the balanced debit/credit pair for an invoice
	// leaving draft status and updates running balances. Idempotent on the
	// voucher source key. Must run inside the caller's transaction.
	PostInvoice(ctx context.Context, tx *gorm.DB, p InvoicePosting) error
	// ReverseInvoice removes an invoice's voucher and restores balances.
	ReverseInvoice(ctx context.Context, tx *gorm.DB, orgID, invoiceID snowflake.ID) error
	// PostVoucher validates and posts a manual/payment/receipt voucher.
	PostVoucher(ctx context.Context, req PostVoucherRequest) (Voucher, error)
	// EnsureCustomerReceivable returns the customer's receivable
	// sub-account, creating it under accounts receivable if absent.
	EnsureCustomerReceivable(ctx context.Context, tx *gorm.DB, orgID, customerID snowflake.ID, customerName string) (LedgerAccount, error)
	// EnsureChartOfAccounts provisions the org-level base accounts. Safe to
	// call repeatedly. Returns the service income account.
	EnsureChartOfAccounts(ctx context.Context, tx *gorm.DB, orgID snowflake.ID) (LedgerAccount, error)
	ListAccounts(ctx context.Context) ([]LedgerAccount, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrUnbalancedVoucher   = errors.New("unbalanced_voucher")
	ErrInvalidVoucherLines = errors.New("invalid_voucher_lines")
	ErrInvalidAccount      = errors.New("invalid_account")
	ErrAccountNotFound     = errors.New("account_not_found")
	ErrInvalidLineAmount   = errors.New("invalid_line_amount")
	ErrDuplicateVoucher    = errors.New("duplicate_voucher")
)

// ValidateBalanced checks the double-entry invariant: at least two lines,
// non-negative amounts, exactly one side per line, debits equal credits.
func ValidateBalanced(lines []VoucherLine) error {
	if len(lines) < 2 {
		return ErrInvalidVoucherLines
	}
	var debits, credits int64
	for _, line := range lines {
		if line.Debit < 0 || line.Credit < 0 {
			return ErrInvalidLineAmount
		}
		if (line.Debit == 0) == (line.Credit == 0) {
			return ErrInvalidLineAmount
		}
		debits += line.Debit
		credits += line.Credit
	}
	if debits != credits {
		return ErrUnbalancedVoucher
	}
	return nil
}
