package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	invoicedomain "github.com/cadencehq/cadence/internal/invoice/domain"
)

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrSourceNotFound      = errors.New("billing_source_not_found")
	ErrAlreadyBilled       = errors.New("already_billed")
	ErrNotCompleted        = errors.New("source_not_completed")
	ErrSequenceMissing     = errors.New("invoice_sequence_missing")
	ErrLedgerUnmapped      = errors.New("ledger_unmapped")
)

// Result reports the outcome of one billing attempt. When Skipped is
// non-empty no invoice was produced and Invoice is nil.
type Result struct {
	Invoice *invoicedomain.Invoice `json:"invoice,omitempty"`
	Skipped SkipReason             `json:"skipped,omitempty"`
}

// Automation generates invoices from completed periods and one-off
// obligations. The tx-scoped variants run inside a caller-owned
// transaction so completion and billing commit together.
type Automation interface {
	// AutoBillPeriod bills a fully completed period if its obligation has
	// auto-billing enabled. Returns a skip result rather than an error for
	// policy outcomes.
	AutoBillPeriod(ctx context.Context, tx *gorm.DB, periodID snowflake.ID) (*Result, error)

	// AutoBillObligation bills a completed non-recurring obligation.
	AutoBillObligation(ctx context.Context, tx *gorm.DB, obligationID snowflake.ID) (*Result, error)

	// GenerateForPeriod creates an invoice for a period on explicit request,
	// ignoring the auto_bill flag but still refusing double billing.
	GenerateForPeriod(ctx context.Context, periodID string) (*Result, error)

	// GenerateForObligation creates an invoice for a non-recurring
	// obligation on explicit request.
	GenerateForObligation(ctx context.Context, obligationID string) (*Result, error)
}
