package domain

import (
	"context"
	"errors"
)

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvoiceNotFound     = errors.New("invoice_not_found")
	ErrInvalidInvoiceID    = errors.New("invalid_invoice_id")
	ErrInvalidStatus       = errors.New("invalid_invoice_status")
	ErrInvalidTransition   = errors.New("invalid_status_transition")
)

// ListInvoiceRequest carries filters for listing invoices.
type ListInvoiceRequest struct {
	CustomerID   string `form:"customer_id"`
	ObligationID string `form:"obligation_id"`
	PeriodID     string `form:"period_id"`
	Status       string `form:"status"`
	Limit        int    `form:"limit"`
}

// ListInvoiceResponse wraps a page of invoices.
type ListInvoiceResponse struct {
	Data []Invoice `json:"data"`
}

// SetStatusRequest updates an invoice lifecycle state.
type SetStatusRequest struct {
	Status InvoiceStatus `json:"status" binding:"required"`
}

// Service exposes invoice lifecycle operations. Ledger postings happen
// as a side effect of transitions: leaving draft posts the invoice,
// cancelling a posted invoice reverses it.
type Service interface {
	List(ctx context.Context, req ListInvoiceRequest) (*ListInvoiceResponse, error)
	GetByID(ctx context.Context, id string) (*Invoice, error)
	ListLines(ctx context.Context, id string) ([]InvoiceLine, error)
	SetStatus(ctx context.Context, id string, status InvoiceStatus) (*Invoice, error)

	// MarkOverdue flips sent invoices whose due date has passed to
	// overdue, across all organizations. Returns the affected count.
	MarkOverdue(ctx context.Context) (int64, error)
}

// validTransitions encodes the allowed status graph.
var validTransitions = map[InvoiceStatus][]InvoiceStatus{
	InvoiceStatusDraft:     {InvoiceStatusSent, InvoiceStatusCancelled},
	InvoiceStatusSent:      {InvoiceStatusPaid, InvoiceStatusOverdue, InvoiceStatusCancelled},
	InvoiceStatusOverdue:   {InvoiceStatusPaid, InvoiceStatusCancelled},
	InvoiceStatusPaid:      {},
	InvoiceStatusCancelled: {},
}

// CanTransition reports whether moving from one status to another is allowed.
func CanTransition(from, to InvoiceStatus) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsPosted reports whether an invoice in the given status has been
// posted to the ledger.
func IsPosted(s InvoiceStatus) bool {
	return s == InvoiceStatusSent || s == InvoiceStatusPaid || s == InvoiceStatusOverdue
}
