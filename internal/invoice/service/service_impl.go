package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cadencehq/cadence/internal/clock"
	invoicedomain "github.com/cadencehq/cadence/internal/invoice/domain"
	ledgerdomain "github.com/cadencehq/cadence/internal/ledger/domain"
	obligationdomain "github.com/cadencehq/cadence/internal/obligation/domain"
	"github.com/cadencehq/cadence/internal/orgcontext"
	"github.com/cadencehq/cadence/pkg/db/option"
	"github.com/cadencehq/cadence/pkg/repository"
)

type ServiceParam struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Clock  clock.Clock
	Ledger ledgerdomain.Service
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	clock  clock.Clock
	ledger ledgerdomain.Service

	invoicerepo repository.Repository[invoicedomain.Invoice]
	linerepo    repository.Repository[invoicedomain.InvoiceLine]
}

func NewService(p ServiceParam) invoicedomain.Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("invoice.service"),
		clock:  p.Clock,
		ledger: p.Ledger,

		invoicerepo: repository.ProvideStore[invoicedomain.Invoice](p.DB),
		linerepo:    repository.ProvideStore[invoicedomain.InvoiceLine](p.DB),
	}
}

func (s *Service) List(ctx context.Context, req invoicedomain.ListInvoiceRequest) (*invoicedomain.ListInvoiceResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, invoicedomain.ErrInvalidOrganization
	}

	filter := invoicedomain.Invoice{OrgID: orgID}
	if req.CustomerID != "" {
		customerID, err := snowflake.ParseString(req.CustomerID)
		if err != nil {
			return nil, invoicedomain.ErrInvalidInvoiceID
		}
		filter.CustomerID = customerID
	}
	if req.Status != "" {
		filter.Status = invoicedomain.InvoiceStatus(req.Status)
	}
	if req.ObligationID != "" {
		obligationID, err := snowflake.ParseString(req.ObligationID)
		if err != nil {
			return nil, invoicedomain.ErrInvalidInvoiceID
		}
		filter.ObligationID = &obligationID
	}
	if req.PeriodID != "" {
		periodID, err := snowflake.ParseString(req.PeriodID)
		if err != nil {
			return nil, invoicedomain.ErrInvalidInvoiceID
		}
		filter.PeriodID = &periodID
	}

	limit := req.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	invoices, err := s.invoicerepo.Find(ctx, filter,
		option.WithOrder("issue_date DESC, id DESC"),
		option.WithLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	return &invoicedomain.ListInvoiceResponse{Data: invoices}, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*invoicedomain.Invoice, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, invoicedomain.ErrInvalidOrganization
	}
	invoiceID, err := snowflake.ParseString(id)
	if err != nil {
		return nil, invoicedomain.ErrInvalidInvoiceID
	}

	invoice, err := s.invoicerepo.FindOne(ctx, invoicedomain.Invoice{ID: invoiceID, OrgID: orgID})
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, invoicedomain.ErrInvoiceNotFound
	}
	return invoice, nil
}

func (s *Service) ListLines(ctx context.Context, id string) ([]invoicedomain.InvoiceLine, error) {
	invoice, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.linerepo.Find(ctx,
		invoicedomain.InvoiceLine{OrgID: invoice.OrgID, InvoiceID: invoice.ID},
		option.WithOrder("id"),
	)
}

func (s *Service) SetStatus(ctx context.Context, id string, status invoicedomain.InvoiceStatus) (*invoicedomain.Invoice, error) {
	switch status {
	case invoicedomain.InvoiceStatusDraft,
		invoicedomain.InvoiceStatusSent,
		invoicedomain.InvoiceStatusPaid,
		invoicedomain.InvoiceStatusOverdue,
		invoicedomain.InvoiceStatusCancelled:
	default:
		return nil, invoicedomain.ErrInvalidStatus
	}

	invoice, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if invoice.Status == status {
		return invoice, nil
	}
	if !invoicedomain.CanTransition(invoice.Status, status) {
		return nil, invoicedomain.ErrInvalidTransition
	}

	prev := invoice.Status
	now := s.clock.Now()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(
			`UPDATE invoices SET status = ?, updated_at = ? WHERE org_id = ? AND id = ?`,
			status, now, invoice.OrgID, invoice.ID,
		).Error; err != nil {
			return err
		}

		if prev == invoicedomain.InvoiceStatusDraft && invoicedomain.IsPosted(status) {
			if err := s.postOnSend(ctx, tx, invoice); err != nil {
				return err
			}
		}
		if status == invoicedomain.InvoiceStatusCancelled {
			if invoicedomain.IsPosted(prev) {
				if err := s.ledger.ReverseInvoice(ctx, tx, invoice.OrgID, invoice.ID); err != nil {
					return err
				}
			}
			if err := s.releaseSource(ctx, tx, invoice, now); err != nil {
				return err
			}
		}
		if status == invoicedomain.InvoiceStatusPaid {
			if err := s.markSourcePaid(ctx, tx, invoice, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	invoice.Status = status
	invoice.UpdatedAt = now
	s.log.Info("invoice status changed",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("from", string(prev)),
		zap.String("to", string(status)),
	)
	return invoice, nil
}

// postOnSend writes the ledger voucher for an invoice leaving draft.
// Invoices generated without ledger mapping stay unposted.
func (s *Service) postOnSend(ctx context.Context, tx *gorm.DB, invoice *invoicedomain.Invoice) error {
	if invoice.ReceivableAccountID == nil || invoice.IncomeAccountID == nil {
		s.log.Warn("invoice sent without ledger mapping, skipping posting",
			zap.String("invoice_id", invoice.ID.String()),
		)
		return nil
	}
	return s.ledger.PostInvoice(ctx, tx, ledgerdomain.InvoicePosting{
		OrgID:               invoice.OrgID,
		InvoiceID:           invoice.ID,
		ReceivableAccountID: *invoice.ReceivableAccountID,
		IncomeAccountID:     *invoice.IncomeAccountID,
		Subtotal:            invoice.SubtotalAmount,
		Tax:                 invoice.TaxAmount,
		Total:               invoice.TotalAmount,
		Date:                invoice.IssueDate,
	})
}

// releaseSource reopens the billed source when its invoice is cancelled,
// so a replacement invoice can be generated. The obligation only drops
// back to not_billed when no other live invoice references it.
func (s *Service) releaseSource(ctx context.Context, tx *gorm.DB, invoice *invoicedomain.Invoice, now time.Time) error {
	if invoice.PeriodID != nil {
		if err := tx.WithContext(ctx).Exec(
			`UPDATE periods SET billed = FALSE, invoice_id = NULL, updated_at = ? WHERE org_id = ? AND id = ? AND invoice_id = ?`,
			now, invoice.OrgID, *invoice.PeriodID, invoice.ID,
		).Error; err != nil {
			return err
		}
	}
	if invoice.ObligationID == nil {
		return nil
	}
	return tx.WithContext(ctx).Exec(
		`UPDATE obligations SET billing_status = ?, updated_at = ?
		 WHERE org_id = ? AND id = ?
		   AND NOT EXISTS (
		       SELECT 1 FROM invoices
		       WHERE invoices.org_id = obligations.org_id
		         AND invoices.obligation_id = obligations.id
		         AND invoices.status != ?
		   )`,
		obligationdomain.BillingStatusNotBilled,
		now,
		invoice.OrgID,
		*invoice.ObligationID,
		invoicedomain.InvoiceStatusCancelled,
	).Error
}

func (s *Service) markSourcePaid(ctx context.Context, tx *gorm.DB, invoice *invoicedomain.Invoice, now time.Time) error {
	if invoice.ObligationID == nil {
		return nil
	}
	return tx.WithContext(ctx).Exec(
		`UPDATE obligations SET billing_status = ?, updated_at = ? WHERE org_id = ? AND id = ?`,
		obligationdomain.BillingStatusPaid,
		now,
		invoice.OrgID,
		*invoice.ObligationID,
	).Error
}

func (s *Service) MarkOverdue(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Exec(
		`UPDATE invoices SET status = ?, updated_at = ? WHERE status = ? AND due_date < ?`,
		invoicedomain.InvoiceStatusOverdue,
		s.clock.Now(),
		invoicedomain.InvoiceStatusSent,
		s.clock.Now(),
	)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
