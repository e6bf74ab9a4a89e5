package domain

import (
	"context"
	"errors"
	"time"
)

type CreateTaskTemplateRequest struct {
	Title           string     `json:"title" binding:"required"`
	Position        int        `json:"position"`
	Granularity     string     `json:"granularity"`
	DueRule         string     `json:"due_rule"`
	DueExactDate    *time.Time `json:"due_exact_date"`
	DueDayOfMonth   *int       `json:"due_day_of_month"`
	DueOffsetDays   *int       `json:"due_offset_days"`
	DueOffsetMonths *int       `json:"due_offset_months"`
}

type CreateServiceTemplateRequest struct {
	Name             string                      `json:"name" binding:"required"`
	DefaultPrice     int64                       `json:"default_price"`
	TaxRateBps       int64                       `json:"tax_rate_bps"`
	PaymentTermsDays int                         `json:"payment_terms_days"`
	IncomeAccountID  *string                     `json:"income_account_id"`
	Tasks            []CreateTaskTemplateRequest `json:"tasks"`
}

type SetCustomerPriceRequest struct {
	CustomerID        string `json:"customer_id" binding:"required"`
	ServiceTemplateID string `json:"service_template_id" binding:"required"`
	Price             int64  `json:"price" binding:"required"`
}

type Service interface {
	CreateTemplate(ctx context.Context, req CreateServiceTemplateRequest) (ServiceTemplate, error)
	GetTemplate(ctx context.Context, id string) (ServiceTemplate, error)
	ListTemplates(ctx context.Context) ([]ServiceTemplate, error)
	// SetCustomerPrice upserts the customer-specific rung of the price
	// precedence ladder.
	SetCustomerPrice(ctx context.Context, req SetCustomerPriceRequest) (CustomerPrice, error)
	ListCustomerPrices(ctx context.Context, customerID string) ([]CustomerPrice, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrTemplateNotFound    = errors.New("service_template_not_found")
	ErrInvalidTemplateID   = errors.New("invalid_service_template_id")
	ErrInvalidPrice        = errors.New("invalid_price")
	ErrInvalidAccountID    = errors.New("invalid_account_id")
)
