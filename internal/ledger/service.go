package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/slotledger/internal/clock"
)

// EventSink records a domain event inside the calling transaction. Nil-safe
// via NopSink for stores without an outbox.
type EventSink interface {
	Record(ctx context.Context, aggregateType, aggregateID, eventType string, payload []byte) error
}

type NopSink struct{}

func (NopSink) Record(context.Context, string, string, string, []byte) error { return nil }

type Service struct {
	store  Store
	events EventSink
	clock  clock.Clock
	logger *slog.Logger
}

func NewService(store Store, events EventSink, clk clock.Clock, logger *slog.Logger) *Service {
	if events == nil {
		events = NopSink{}
	}
	return &Service{store: store, events: events, clock: clk, logger: logger}
}

// Balance is the live sum of non-expired entries. Absence of rows is zero,
// never an error.
func (s *Service) Balance(ctx context.Context, userID, serviceType string) (int, error) {
	return s.store.SumActive(ctx, userID, serviceType, s.clock.Now())
}

// Grant appends one positive entry for an invoice. Replayed invoices are
// absorbed: the storage uniqueness constraint on (user, service type,
// invoice) decides, and the duplicate outcome is returned as
// ErrInvoiceProcessed for callers that want to log it.
func (s *Service) Grant(ctx context.Context, userID, serviceType string, quantity int, invoiceID string, validFrom time.Time, validUntil *time.Time) error {
	if quantity <= 0 {
		return fmt.Errorf("%w: grant quantity %d", ErrInvalidEntry, quantity)
	}
	if userID == "" || serviceType == "" || invoiceID == "" {
		return fmt.Errorf("%w: user, service type, and invoice required", ErrInvalidEntry)
	}

	entry := Entry{
		UserID:      userID,
		ServiceType: serviceType,
		Quantity:    quantity,
		Kind:        KindGrant,
		InvoiceID:   invoiceID,
		ValidFrom:   validFrom.UTC(),
		ValidUntil:  validUntil,
		CreatedAt:   s.clock.Now(),
	}

	return s.store.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.store.InsertEntry(txCtx, entry); err != nil {
			return err
		}
		payload, err := json.Marshal(map[string]any{
			"user_id":      userID,
			"service_type": serviceType,
			"quantity":     quantity,
			"invoice_id":   invoiceID,
			"valid_from":   entry.ValidFrom.Format(time.RFC3339),
		})
		if err != nil {
			return err
		}
		return s.events.Record(txCtx, "credit", userID, "credits.granted.v1", payload)
	})
}

// Debit appends one negative entry tied to a booking. The caller is expected
// to have verified the balance inside the same transaction; the ledger does
// not reject overdrafts.
func (s *Service) Debit(ctx context.Context, userID, serviceType string, quantity int, bookingID string) error {
	if quantity <= 0 {
		return fmt.Errorf("%w: debit quantity %d", ErrInvalidEntry, quantity)
	}
	return s.store.InsertEntry(ctx, Entry{
		UserID:      userID,
		ServiceType: serviceType,
		Quantity:    -quantity,
		Kind:        KindDebit,
		BookingID:   bookingID,
		ValidFrom:   s.clock.Now(),
		CreatedAt:   s.clock.Now(),
	})
}

// RevokeUnused handles a refund: it computes granted-minus-used for the
// invoice and appends one compensating adjust for the unused remainder. The
// read and the compensating write share one transaction, so a concurrent
// debit cannot slip between them. Re-running is a no-op because the first
// adjust counts as usage.
func (s *Service) RevokeUnused(ctx context.Context, userID, serviceType, invoiceID string, periodStart, periodEnd time.Time) error {
	if userID == "" || serviceType == "" || invoiceID == "" {
		return fmt.Errorf("%w: user, service type, and invoice required", ErrInvalidEntry)
	}

	return s.store.WithTx(ctx, func(txCtx context.Context) error {
		granted, err := s.store.SumGrants(txCtx, userID, serviceType, invoiceID)
		if err != nil {
			return err
		}
		usage, err := s.store.SumUsage(txCtx, userID, serviceType, invoiceID, periodStart, periodEnd)
		if err != nil {
			return err
		}

		used := -usage
		remainder := granted - used
		if remainder <= 0 {
			s.logger.Info("refund revocation found no unused credits",
				"invoice_id", invoiceID, "granted", granted, "used", used)
			return nil
		}

		now := s.clock.Now()
		if err := s.store.InsertEntry(txCtx, Entry{
			UserID:      userID,
			ServiceType: serviceType,
			Quantity:    -remainder,
			Kind:        KindAdjust,
			InvoiceID:   invoiceID,
			ValidFrom:   now,
			CreatedAt:   now,
		}); err != nil {
			return err
		}

		payload, err := json.Marshal(map[string]any{
			"user_id":      userID,
			"service_type": serviceType,
			"quantity":     -remainder,
			"invoice_id":   invoiceID,
		})
		if err != nil {
			return err
		}
		return s.events.Record(txCtx, "credit", userID, "credits.revoked.v1", payload)
	})
}
