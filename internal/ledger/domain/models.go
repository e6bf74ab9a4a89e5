// Package domain contains the chart of accounts and double-entry voucher
// models.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// AccountType classifies a ledger account.
type AccountType string

const (
	AccountTypeAsset     AccountType = "asset"
	AccountTypeLiability AccountType = "liability"
	AccountTypeIncome    AccountType = "income"
	AccountTypeExpense   AccountType = "expense"
	AccountTypeEquity    AccountType = "equity"
)

// AccountCode identifies the well-known accounts the engine posts to.
type AccountCode string

const (
	AccountCodeAccountsReceivable AccountCode = "accounts_receivable"
	AccountCodeCash               AccountCode = "cash"
	AccountCodeServiceIncome      AccountCode = "service_income"
	AccountCodeTaxPayable         AccountCode = "tax_payable"
)

// SourceType tags what produced a voucher.
type SourceType string

const (
	SourceTypeInvoice SourceType = "invoice"
	SourceTypePayment SourceType = "payment"
	SourceTypeReceipt SourceType = "receipt"
	SourceTypeManual  SourceType = "manual"

	// SourceTypeReversal vouchers undo a posted invoice; source_id is the
	// reversed invoice ID so a reversal happens at most once.
	SourceTypeReversal SourceType = "invoice_reversal"
)

// LedgerAccount is a chart-of-accounts entry. CustomerID is set on the
// auto-created receivable sub-accounts. Balance is the running balance:
// opening balance plus debits minus credits over all posted lines.
type LedgerAccount struct {
	ID             snowflake.ID  `gorm:"primaryKey" json:"id"`
	OrgID          snowflake.ID  `gorm:"not null;index" json:"organization_id"`
	Code           AccountCode   `gorm:"type:text;not null" json:"code"`
	Name           string        `gorm:"not null" json:"name"`
	Type           AccountType   `gorm:"type:text;not null" json:"type"`
	CustomerID     *snowflake.ID `gorm:"" json:"customer_id,omitempty"`
	OpeningBalance int64         `gorm:"not null;default:0" json:"opening_balance"`
	Balance        int64         `gorm:"not null;default:0" json:"balance"`
	CreatedAt      time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (LedgerAccount) TableName() string { return "ledger_accounts" }

// Voucher groups the debit/credit lines of one financial event. The
// (org, source type, source id) key makes posting idempotent.
type Voucher struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID       snowflake.ID `gorm:"not null;index;uniqueIndex:ux_vouchers_source,priority:1" json:"organization_id"`
	SourceType  SourceType   `gorm:"type:text;not null;uniqueIndex:ux_vouchers_source,priority:2" json:"source_type"`
	SourceID    snowflake.ID `gorm:"not null;uniqueIndex:ux_vouchers_source,priority:3" json:"source_id"`
	VoucherDate time.Time    `gorm:"not null" json:"voucher_date"`
	Description string       `gorm:"not null;default:''" json:"description"`
	TotalAmount int64        `gorm:"not null;default:0" json:"total_amount"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Voucher) TableName() string { return "vouchers" }

// VoucherLine is a single debit or credit posting.
type VoucherLine struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID     snowflake.ID `gorm:"not null;index" json:"organization_id"`
	VoucherID snowflake.ID `gorm:"not null;index" json:"voucher_id"`
	AccountID snowflake.ID `gorm:"not null;index" json:"account_id"`
	Debit     int64        `gorm:"not null;default:0" json:"debit"`
	Credit    int64        `gorm:"not null;default:0" json:"credit"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (VoucherLine) TableName() string { return "voucher_lines" }
