package domain

import (
	"context"
	"errors"
)

type CreateTenantRequest struct {
	Name                 string `json:"name" binding:"required"`
	Slug                 string `json:"slug" binding:"required"`
	FiscalYearStartMonth int    `json:"fiscal_year_start_month"`
	AllowUnmappedLedger  *bool  `json:"allow_unmapped_ledger"`
}

type UpdateTenantSettingsRequest struct {
	FiscalYearStartMonth *int  `json:"fiscal_year_start_month"`
	AllowUnmappedLedger  *bool `json:"allow_unmapped_ledger"`
}

type Service interface {
	// Create provisions the tenant together with its chart of accounts and
	// invoice number sequence.
	Create(ctx context.Context, req CreateTenantRequest) (Tenant, error)
	GetByID(ctx context.Context, id string) (Tenant, error)
	List(ctx context.Context) ([]Tenant, error)
	UpdateSettings(ctx context.Context, id string, req UpdateTenantSettingsRequest) (Tenant, error)
}

var (
	ErrTenantNotFound     = errors.New("tenant_not_found")
	ErrInvalidTenantID    = errors.New("invalid_tenant_id")
	ErrSlugTaken          = errors.New("tenant_slug_taken")
	ErrInvalidFiscalMonth = errors.New("invalid_fiscal_year_start_month")
)
