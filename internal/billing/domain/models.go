// Package domain contains billing automation types.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// SkipReason explains why automated billing declined to generate an invoice.
type SkipReason string

const (
	SkipNone             SkipReason = ""
	SkipAutoBillDisabled SkipReason = "auto_bill_disabled"
	SkipZeroPrice        SkipReason = "zero_price"
	SkipAlreadyBilled    SkipReason = "already_billed"
	SkipLedgerUnmapped   SkipReason = "ledger_unmapped"
)

// InvoiceSequence holds per-tenant invoice numbering state. One row per
// organization; next_number is advanced atomically on allocation.
type InvoiceSequence struct {
	OrgID      snowflake.ID `gorm:"primaryKey" json:"organization_id"`
	Prefix     string       `gorm:"not null;default:'INV-'" json:"prefix"`
	Suffix     string       `gorm:"not null;default:''" json:"suffix"`
	Width      int          `gorm:"not null;default:5" json:"width"`
	ZeroPad    bool         `gorm:"not null" json:"zero_pad"`
	NextNumber int64        `gorm:"not null;default:1" json:"next_number"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (InvoiceSequence) TableName() string { return "invoice_sequences" }
