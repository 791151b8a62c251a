package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/slotledger/internal/clock"
	"github.com/example/slotledger/internal/ledger"
)

// ErrNoSlots means a promotion found neither live holds tagged with the
// external ref nor caller-supplied slots.
var ErrNoSlots = errors.New("nothing to promote")

// EventSink records a domain event inside the calling transaction.
type EventSink interface {
	Record(ctx context.Context, aggregateType, aggregateID, eventType string, payload []byte) error
}

type nopSink struct{}

func (nopSink) Record(context.Context, string, string, string, []byte) error { return nil }

// CreditLedger is the slice of the ledger the promoter needs for
// pay-with-credits promotions.
type CreditLedger interface {
	Balance(ctx context.Context, userID, serviceType string) (int, error)
	Debit(ctx context.Context, userID, serviceType string, quantity int, bookingID string) error
}

// CreditSpend asks the promoter to pay for the promoted slots with prepaid
// credits, one credit per slot.
type CreditSpend struct {
	UserID      string
	ServiceType string
}

type PromoteInput struct {
	ExternalRef string
	ServiceKey  string
	Addons      []string
	Customer    CustomerInfo
	// Slots backs the credit-only path where checkout never placed a hold.
	// Ignored when live holds carry the external ref.
	Slots  []Slot
	Credit *CreditSpend
}

// Promoter converts the holds of one external transaction into durable
// bookings, exactly once per external ref.
type Promoter struct {
	store   ClaimStore
	credits CreditLedger
	events  EventSink
	clock   clock.Clock
	logger  *slog.Logger
}

func NewPromoter(store ClaimStore, credits CreditLedger, events EventSink, clk clock.Clock, logger *slog.Logger) *Promoter {
	if events == nil {
		events = nopSink{}
	}
	return &Promoter{store: store, credits: credits, events: events, clock: clk, logger: logger}
}

// Promote runs as one atomic transaction: existence check, hold cleanup,
// booking inserts, optional credit debit, outbox event. The consumed holds
// must be deleted before the inserts because holds and bookings share the
// (start, end) uniqueness constraint; a foreign claim on the slot still
// rejects the insert. A replayed billing event observes "already booked" and
// writes nothing.
func (p *Promoter) Promote(ctx context.Context, in PromoteInput) error {
	if in.ExternalRef == "" {
		return fmt.Errorf("%w: external ref required", ErrInvalidSlot)
	}
	now := p.clock.Now()

	return p.store.WithTx(ctx, func(txCtx context.Context) error {
		exists, err := p.store.BookingExistsForRef(txCtx, in.ExternalRef)
		if err != nil {
			return err
		}
		if exists {
			p.logger.Info("promotion replay ignored", "external_ref", in.ExternalRef)
			return nil
		}

		holds, err := p.store.ListHoldsByRef(txCtx, in.ExternalRef, now)
		if err != nil {
			return err
		}

		slots := make([]Slot, 0, len(holds))
		for _, h := range holds {
			slots = append(slots, h.Slot)
		}
		if len(slots) == 0 {
			for _, s := range in.Slots {
				if !s.Valid() {
					return fmt.Errorf("%w: start %s end %s", ErrInvalidSlot, s.Start, s.End)
				}
				slots = append(slots, Slot{Start: s.Start.UTC(), End: s.End.UTC()})
			}
		}
		if len(slots) == 0 {
			return fmt.Errorf("%w: external ref %s", ErrNoSlots, in.ExternalRef)
		}

		if in.Credit != nil {
			bal, err := p.credits.Balance(txCtx, in.Credit.UserID, in.Credit.ServiceType)
			if err != nil {
				return err
			}
			if bal < len(slots) {
				return fmt.Errorf("%w: have %d, need %d", ledger.ErrInsufficientCredit, bal, len(slots))
			}
		}

		for _, h := range holds {
			if err := p.store.DeleteHold(txCtx, h.Key); err != nil {
				return err
			}
		}

		bookingIDs := make([]string, 0, len(slots))
		for _, slot := range slots {
			id, err := p.store.InsertBooking(txCtx, Booking{
				ExternalRef: in.ExternalRef,
				ServiceKey:  in.ServiceKey,
				Addons:      in.Addons,
				Slot:        slot,
				Customer:    in.Customer,
				CreatedAt:   now,
			})
			if err != nil {
				return err
			}
			bookingIDs = append(bookingIDs, id)

			if in.Credit != nil {
				if err := p.credits.Debit(txCtx, in.Credit.UserID, in.Credit.ServiceType, 1, id); err != nil {
					return err
				}
			}
		}

		payload, err := promotedPayload(in, slots, bookingIDs, now)
		if err != nil {
			return err
		}
		return p.events.Record(txCtx, "booking", in.ExternalRef, "booking.confirmed.v1", payload)
	})
}

func promotedPayload(in PromoteInput, slots []Slot, bookingIDs []string, now time.Time) ([]byte, error) {
	slotItems := make([]map[string]string, 0, len(slots))
	for _, s := range slots {
		slotItems = append(slotItems, map[string]string{
			"start": s.Start.UTC().Format(time.RFC3339),
			"end":   s.End.UTC().Format(time.RFC3339),
		})
	}
	return json.Marshal(map[string]any{
		"external_ref": in.ExternalRef,
		"service_key":  in.ServiceKey,
		"addons":       in.Addons,
		"booking_ids":  bookingIDs,
		"slots":        slotItems,
		"confirmed_at": now.UTC().Format(time.RFC3339),
	})
}
