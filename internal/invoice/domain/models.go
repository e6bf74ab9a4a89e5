// Package domain contains persistence models for invoicing.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// InvoiceStatus represents invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "draft"
	InvoiceStatusSent      InvoiceStatus = "sent"
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusOverdue   InvoiceStatus = "overdue"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
)

// Invoice is a billing document attributable to a period and/or obligation.
// IncomeAccountID may be nil when the tenant permits unmapped-ledger
// invoices; such invoices stay out of the ledger until mapped.
type Invoice struct {
	ID           snowflake.ID  `gorm:"primaryKey" json:"id"`
	OrgID        snowflake.ID  `gorm:"not null;index;uniqueIndex:ux_invoices_org_number,priority:1" json:"organization_id"`
	CustomerID   snowflake.ID  `gorm:"not null;index" json:"customer_id"`
	ObligationID *snowflake.ID `gorm:"index" json:"obligation_id,omitempty"`
	PeriodID     *snowflake.ID `gorm:"index" json:"period_id,omitempty"`

	InvoiceNumber string    `gorm:"not null;uniqueIndex:ux_invoices_org_number,priority:2" json:"invoice_number"`
	IssueDate     time.Time `gorm:"not null" json:"issue_date"`
	DueDate       time.Time `gorm:"not null" json:"due_date"`

	SubtotalAmount int64 `gorm:"not null;default:0" json:"subtotal_amount"`
	TaxAmount      int64 `gorm:"not null;default:0" json:"tax_amount"`
	TotalAmount    int64 `gorm:"not null;default:0" json:"total_amount"`

	Status              InvoiceStatus `gorm:"type:text;not null;default:'draft'" json:"status"`
	IncomeAccountID     *snowflake.ID `gorm:"" json:"income_account_id,omitempty"`
	ReceivableAccountID *snowflake.ID `gorm:"" json:"receivable_account_id,omitempty"`

	Metadata  datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata,omitempty"`
	CreatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// InvoiceLine is a line on an invoice.
type InvoiceLine struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID       snowflake.ID `gorm:"not null;index" json:"organization_id"`
	InvoiceID   snowflake.ID `gorm:"not null;index" json:"invoice_id"`
	Description string       `gorm:"not null" json:"description"`
	Quantity    int64        `gorm:"not null;default:1" json:"quantity"`
	UnitPrice   int64        `gorm:"not null;default:0" json:"unit_price"`
	Amount      int64        `gorm:"not null;default:0" json:"amount"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (InvoiceLine) TableName() string { return "invoice_lines" }
