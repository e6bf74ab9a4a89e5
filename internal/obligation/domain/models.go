// Package domain contains persistence models for obligations: the recurring
// or one-off units of service the engine schedules and bills.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Status is the obligation lifecycle.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// BillingStatus tracks whether the obligation has produced revenue.
type BillingStatus string

const (
	BillingStatusNotBilled BillingStatus = "not_billed"
	BillingStatusBilled    BillingStatus = "billed"
	BillingStatusPaid      BillingStatus = "paid"
)

// AnchorType shifts the first generated period relative to the start date.
type AnchorType string

const (
	AnchorPrevious AnchorType = "previous"
	AnchorCurrent  AnchorType = "current"
	AnchorNext     AnchorType = "next"
)

// TaskStatus is shared by obligation tasks and period tasks.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusCompleted TaskStatus = "completed"
)

// Obligation is one engagement for one customer. Recurrence is "none" iff
// the obligation is one-off.
type Obligation struct {
	ID                snowflake.ID  `gorm:"primaryKey" json:"id"`
	OrgID             snowflake.ID  `gorm:"not null;index" json:"organization_id"`
	CustomerID        snowflake.ID  `gorm:"not null;index" json:"customer_id"`
	ServiceTemplateID snowflake.ID  `gorm:"not null" json:"service_template_id"`
	Title             string        `gorm:"not null" json:"title"`
	Recurrence        string        `gorm:"not null;default:'none'" json:"recurrence"`
	StartDate         time.Time     `gorm:"not null" json:"start_date"`
	AnchorType        AnchorType    `gorm:"not null;default:'current'" json:"anchor_type"`
	AssigneeID        *snowflake.ID `gorm:"" json:"assignee_id,omitempty"`
	PriceOverride     *int64        `gorm:"" json:"price_override,omitempty"`
	// No gorm default tag: GORM would drop an explicit false from the
	// INSERT and the column default would win.
	AutoBill bool `gorm:"not null" json:"auto_bill"`
	Status            Status        `gorm:"type:text;not null;default:'pending'" json:"status"`
	BillingStatus     BillingStatus `gorm:"type:text;not null;default:'not_billed'" json:"billing_status"`

	// Task counters drive completion aggregation for one-off obligations;
	// recurring ones aggregate per period instead.
	TotalTasks     int `gorm:"not null;default:0" json:"total_tasks"`
	CompletedTasks int `gorm:"not null;default:0" json:"completed_tasks"`

	Metadata  datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata,omitempty"`
	CreatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Obligation) TableName() string { return "obligations" }

// ObligationTask is a checklist item attached directly to a one-off
// obligation. TemplateID is nil for ad-hoc tasks.
type ObligationTask struct {
	ID           snowflake.ID  `gorm:"primaryKey" json:"id"`
	OrgID        snowflake.ID  `gorm:"not null;index" json:"organization_id"`
	ObligationID snowflake.ID  `gorm:"not null;index" json:"obligation_id"`
	TemplateID   *snowflake.ID `gorm:"" json:"template_id,omitempty"`
	Title        string        `gorm:"not null" json:"title"`
	DueDate      time.Time     `gorm:"not null" json:"due_date"`
	Status       TaskStatus    `gorm:"type:text;not null;default:'pending'" json:"status"`
	Position     int           `gorm:"not null;default:0" json:"position"`
	CompletedAt  *time.Time    `gorm:"" json:"completed_at,omitempty"`
	CreatedAt    time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt    time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (ObligationTask) TableName() string { return "obligation_tasks" }

// ObligationDocument is a supporting-document checklist entry copied to
// every materialized period.
type ObligationDocument struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID        snowflake.ID `gorm:"not null;index" json:"organization_id"`
	ObligationID snowflake.ID `gorm:"not null;index" json:"obligation_id"`
	Name         string       `gorm:"not null" json:"name"`
	CreatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (ObligationDocument) TableName() string { return "obligation_documents" }
