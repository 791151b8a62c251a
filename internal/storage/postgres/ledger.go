package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/example/slotledger/internal/ledger"
)

// ledger_entries is append-only. The partial unique index
// ledger_entries_grant_invoice_key over (user_id, service_type, invoice_id)
// WHERE kind = 'grant' is what makes billing-event grants idempotent.
//
// The duplicate grant is absorbed with ON CONFLICT DO NOTHING rather than
// mapped from a 23505: a raised unique violation would abort the caller's
// enclosing transaction (the webhook runs dedupe and effect in one tx), and
// the later commit would fail even though the handler treated the duplicate
// as success.

func (s *Store) InsertEntry(ctx context.Context, e ledger.Entry) error {
	tag, err := s.q(ctx).Exec(ctx, `
		INSERT INTO ledger_entries (user_id, service_type, quantity, kind, invoice_id, booking_id, valid_from, valid_until, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id, service_type, invoice_id) WHERE kind = 'grant' DO NOTHING
	`, e.UserID, e.ServiceType, e.Quantity, string(e.Kind), nullIfEmpty(e.InvoiceID), nullIfEmpty(e.BookingID),
		e.ValidFrom, e.ValidUntil, e.CreatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: invoice %s", ledger.ErrInvoiceProcessed, e.InvoiceID)
	}
	return nil
}

func (s *Store) SumActive(ctx context.Context, userID, serviceType string, now time.Time) (int, error) {
	var sum int
	err := s.q(ctx).QueryRow(ctx, `
		SELECT COALESCE(SUM(quantity), 0)
		FROM ledger_entries
		WHERE user_id = $1
			AND service_type = $2
			AND valid_from <= $3
			AND (valid_until IS NULL OR valid_until > $3)
	`, userID, serviceType, now).Scan(&sum)
	return sum, err
}

func (s *Store) SumGrants(ctx context.Context, userID, serviceType, invoiceID string) (int, error) {
	var sum int
	err := s.q(ctx).QueryRow(ctx, `
		SELECT COALESCE(SUM(quantity), 0)
		FROM ledger_entries
		WHERE user_id = $1
			AND service_type = $2
			AND invoice_id = $3
			AND kind = 'grant'
	`, userID, serviceType, invoiceID).Scan(&sum)
	return sum, err
}

// SumUsage counts debits in the billing period plus adjusts tied to the
// invoice regardless of when they were written, so a replayed revocation
// always sees its own earlier adjust.
func (s *Store) SumUsage(ctx context.Context, userID, serviceType, invoiceID string, from, to time.Time) (int, error) {
	var sum int
	err := s.q(ctx).QueryRow(ctx, `
		SELECT COALESCE(SUM(quantity), 0)
		FROM ledger_entries
		WHERE user_id = $1
			AND service_type = $2
			AND (
				(kind = 'debit' AND created_at >= $4 AND created_at <= $5)
				OR (kind = 'adjust' AND invoice_id = $3)
			)
	`, userID, serviceType, invoiceID, from, to).Scan(&sum)
	return sum, err
}
