// Package domain contains persistence models for tenant configuration.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Tenant is one billing firm. Invoice numbering, ledger defaults and fiscal
// conventions are tenant-scoped and passed explicitly into operations.
type Tenant struct {
	ID   snowflake.ID `gorm:"primaryKey" json:"id"`
	Name string       `gorm:"not null" json:"name"`
	Slug string       `gorm:"not null;uniqueIndex" json:"slug"`

	// FiscalYearStartMonth controls yearly period alignment: 1 is a plain
	// calendar year, 4 an April-start fiscal year.
	FiscalYearStartMonth int `gorm:"not null;default:1" json:"fiscal_year_start_month"`

	// AllowUnmappedLedger lets automation create invoices with no income
	// account mapped; when false such invoices are skipped instead.
	// No gorm default tag: GORM would drop an explicit false from the
	// INSERT and the column default would win.
	AllowUnmappedLedger    bool          `gorm:"not null" json:"allow_unmapped_ledger"`
	DefaultIncomeAccountID *snowflake.ID `gorm:"" json:"default_income_account_id,omitempty"`

	Metadata  datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata,omitempty"`
	CreatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Tenant) TableName() string { return "tenants" }
