// Package domain contains the service catalog: what a firm sells and the
// checklist each engagement carries.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cadencehq/cadence/internal/recurrence"
)

// ServiceTemplate is a catalog definition: default price, tax, terms,
// ledger mapping and an ordered set of task templates.
type ServiceTemplate struct {
	ID               snowflake.ID  `gorm:"primaryKey" json:"id"`
	OrgID            snowflake.ID  `gorm:"not null;index" json:"organization_id"`
	Name             string        `gorm:"not null" json:"name"`
	DefaultPrice     int64         `gorm:"not null;default:0" json:"default_price"`
	TaxRateBps       int64         `gorm:"not null;default:0" json:"tax_rate_bps"`
	PaymentTermsDays int           `gorm:"not null;default:0" json:"payment_terms_days"`
	IncomeAccountID  *snowflake.ID `gorm:"" json:"income_account_id,omitempty"`
	CreatedAt        time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt        time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`

	TaskTemplates []TaskTemplate `gorm:"foreignKey:ServiceTemplateID" json:"task_templates,omitempty"`
}

// TableName sets the database table name.
func (ServiceTemplate) TableName() string { return "service_templates" }

// TaskTemplate is one checklist item with its own due-date rule and
// recurrence granularity, which may be finer than the obligation's.
type TaskTemplate struct {
	ID                snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID             snowflake.ID `gorm:"not null;index" json:"organization_id"`
	ServiceTemplateID snowflake.ID `gorm:"not null;index" json:"service_template_id"`
	Title             string       `gorm:"not null" json:"title"`
	Position          int          `gorm:"not null;default:0" json:"position"`
	Granularity       string       `gorm:"not null;default:'inherit'" json:"granularity"`
	DueRule           string       `gorm:"not null;default:''" json:"due_rule"`
	DueExactDate      *time.Time   `gorm:"" json:"due_exact_date,omitempty"`
	DueDayOfMonth     *int         `gorm:"" json:"due_day_of_month,omitempty"`
	DueOffsetDays     *int         `gorm:"" json:"due_offset_days,omitempty"`
	DueOffsetMonths   *int         `gorm:"" json:"due_offset_months,omitempty"`
	CreatedAt         time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (TaskTemplate) TableName() string { return "task_templates" }

// TaskSpec maps the template onto the due-date resolver's input.
func (t TaskTemplate) TaskSpec() recurrence.TaskSpec {
	spec := recurrence.TaskSpec{
		Title:       t.Title,
		Granularity: recurrence.Pattern(t.Granularity),
		Rule:        recurrence.DueRule(t.DueRule),
		ExactDate:   t.DueExactDate,
	}
	if t.DueDayOfMonth != nil {
		spec.DayOfMonth = *t.DueDayOfMonth
	}
	if t.DueOffsetDays != nil {
		spec.OffsetDays = *t.DueOffsetDays
	}
	if t.DueOffsetMonths != nil {
		spec.OffsetMonths = *t.DueOffsetMonths
	}
	return spec
}

// CustomerPrice is a catalog-linked price for one customer, the middle rung
// of the price precedence ladder.
type CustomerPrice struct {
	ID                snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID             snowflake.ID `gorm:"not null;index;uniqueIndex:ux_customer_prices,priority:1" json:"organization_id"`
	CustomerID        snowflake.ID `gorm:"not null;uniqueIndex:ux_customer_prices,priority:2" json:"customer_id"`
	ServiceTemplateID snowflake.ID `gorm:"not null;uniqueIndex:ux_customer_prices,priority:3" json:"service_template_id"`
	Price             int64        `gorm:"not null" json:"price"`
	CreatedAt         time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (CustomerPrice) TableName() string { return "customer_prices" }
