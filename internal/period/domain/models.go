// Package domain contains persistence models for materialized billing
// periods and their task instances.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	obligationdomain "github.com/cadencehq/cadence/internal/obligation/domain"
)

// PeriodStatus is the period lifecycle.
type PeriodStatus string

const (
	PeriodStatusPending   PeriodStatus = "pending"
	PeriodStatusOverdue   PeriodStatus = "overdue"
	PeriodStatusCompleted PeriodStatus = "completed"
)

// Period is one materialized billing/reporting window of a recurring
// obligation. At most one period exists per (obligation, period start);
// existing periods are never regenerated.
type Period struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID        snowflake.ID `gorm:"not null;index" json:"organization_id"`
	ObligationID snowflake.ID `gorm:"not null;index;uniqueIndex:ux_periods_obligation_start,priority:1" json:"obligation_id"`
	PeriodStart  time.Time    `gorm:"not null;uniqueIndex:ux_periods_obligation_start,priority:2" json:"period_start"`
	PeriodEnd    time.Time    `gorm:"not null" json:"period_end"`
	Name         string       `gorm:"not null" json:"name"`
	Status       PeriodStatus `gorm:"type:text;not null;default:'pending'" json:"status"`

	TotalTasks     int  `gorm:"not null;default:0" json:"total_tasks"`
	CompletedTasks int  `gorm:"not null;default:0" json:"completed_tasks"`
	AllCompleted   bool `gorm:"not null;default:false" json:"all_completed"`

	Billed    bool          `gorm:"not null;default:false" json:"billed"`
	InvoiceID *snowflake.ID `gorm:"" json:"invoice_id,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Period) TableName() string { return "periods" }

// PeriodTask is one task instance inside a period. MonthQualifier is set
// when the task was expanded from a monthly template inside a longer period
// and keys idempotent inserts together with the template reference.
type PeriodTask struct {
	ID             snowflake.ID                `gorm:"primaryKey" json:"id"`
	OrgID          snowflake.ID                `gorm:"not null;index" json:"organization_id"`
	PeriodID       snowflake.ID                `gorm:"not null;index;uniqueIndex:ux_period_tasks_template,priority:1" json:"period_id"`
	TemplateID     *snowflake.ID               `gorm:"uniqueIndex:ux_period_tasks_template,priority:2" json:"template_id,omitempty"`
	Title          string                      `gorm:"not null" json:"title"`
	MonthQualifier string                      `gorm:"not null;default:'';uniqueIndex:ux_period_tasks_template,priority:3" json:"month_qualifier"`
	DueDate        time.Time                   `gorm:"not null" json:"due_date"`
	Status         obligationdomain.TaskStatus `gorm:"type:text;not null;default:'pending'" json:"status"`
	Position       int                         `gorm:"not null;default:0" json:"position"`
	CompletedAt    *time.Time                  `gorm:"" json:"completed_at,omitempty"`
	CreatedAt      time.Time                   `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time                   `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (PeriodTask) TableName() string { return "period_tasks" }

// PeriodDocument is a supporting-document checklist entry copied from the
// obligation, idempotent on (period, document).
type PeriodDocument struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID      snowflake.ID `gorm:"not null;index" json:"organization_id"`
	PeriodID   snowflake.ID `gorm:"not null;index;uniqueIndex:ux_period_documents,priority:1" json:"period_id"`
	DocumentID snowflake.ID `gorm:"not null;uniqueIndex:ux_period_documents,priority:2" json:"document_id"`
	Name       string       `gorm:"not null" json:"name"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (PeriodDocument) TableName() string { return "period_documents" }
