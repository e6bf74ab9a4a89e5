package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type CreateObligationRequest struct {
	CustomerID        string     `json:"customer_id" binding:"required"`
	ServiceTemplateID string     `json:"service_template_id" binding:"required"`
	Title             string     `json:"title" binding:"required"`
	Recurrence        string     `json:"recurrence"`
	StartDate         time.Time  `json:"start_date" binding:"required"`
	AnchorType        AnchorType `json:"anchor_type"`
	PriceOverride     *int64     `json:"price_override"`
	AutoBill          *bool      `json:"auto_bill"`
	Documents         []string   `json:"documents"`
}

type ListObligationRequest struct {
	Status     *Status
	CustomerID *snowflake.ID
}

type ListObligationResponse struct {
	Obligations []Obligation `json:"obligations"`
}

type Service interface {
	Create(ctx context.Context, req CreateObligationRequest) (Obligation, error)
	List(ctx context.Context, req ListObligationRequest) (ListObligationResponse, error)
	GetByID(ctx context.Context, id string) (Obligation, error)
	ListTasks(ctx context.Context, obligationID string) ([]ObligationTask, error)
	// SetTaskStatus mutates a one-off obligation's task and re-aggregates
	// completion; completing the last task triggers billing automation.
	SetTaskStatus(ctx context.Context, taskID string, status TaskStatus) error
	Cancel(ctx context.Context, id string) error
}

var (
	ErrInvalidOrganization  = errors.New("invalid_organization")
	ErrObligationNotFound   = errors.New("obligation_not_found")
	ErrTaskNotFound         = errors.New("task_not_found")
	ErrInvalidTaskStatus    = errors.New("invalid_task_status")
	ErrInvalidObligationID  = errors.New("invalid_obligation_id")
	ErrRecurrenceMismatch   = errors.New("recurrence_mismatch")
	ErrObligationCancelled  = errors.New("obligation_cancelled")
	ErrMissingCatalogRecord = errors.New("missing_catalog_record")
)
