package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type sequenceRow struct {
	OrgID      snowflake.ID
	Prefix     string
	Suffix     string
	Width      int
	ZeroPad    bool
	NextNumber int64
}

// allocateInvoiceNumber hands out the next invoice number for an org.
// The increment-then-read keeps allocation atomic without row locks, so
// it behaves the same on postgres and the sqlite test driver. Gaps from
// rolled-back transactions are acceptable.
func (s *Service) allocateInvoiceNumber(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, now time.Time) (string, error) {
	if err := tx.WithContext(ctx).Exec(
		`INSERT INTO invoice_sequences (org_id, prefix, suffix, width, zero_pad, next_number, created_at, updated_at)
		 VALUES (?, 'INV-', '', 5, TRUE, 1, ?, ?)
		 ON CONFLICT (org_id) DO NOTHING`,
		orgID, now, now,
	).Error; err != nil {
		return "", err
	}

	if err := tx.WithContext(ctx).Exec(
		`UPDATE invoice_sequences
		 SET next_number = next_number + 1, updated_at = ?
		 WHERE org_id = ?`,
		now, orgID,
	).Error; err != nil {
		return "", err
	}

	var seq sequenceRow
	if err := tx.WithContext(ctx).Raw(
		`SELECT org_id, prefix, suffix, width, zero_pad, next_number
		 FROM invoice_sequences
		 WHERE org_id = ?`,
		orgID,
	).Scan(&seq).Error; err != nil {
		return "", err
	}

	allocated := seq.NextNumber - 1
	return formatInvoiceNumber(seq, allocated), nil
}

func formatInvoiceNumber(seq sequenceRow, n int64) string {
	if seq.ZeroPad && seq.Width > 0 {
		return fmt.Sprintf("%s%0*d%s", seq.Prefix, seq.Width, n, seq.Suffix)
	}
	return fmt.Sprintf("%s%d%s", seq.Prefix, n, seq.Suffix)
}
