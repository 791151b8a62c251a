package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/example/slotledger/internal/clock"
)

const DefaultHoldTTL = 15 * time.Minute

// HoldService places, touches, and expires short-lived exclusive reservations
// on slots. All exclusion is delegated to the store's uniqueness constraint;
// the service itself holds no locks across I/O.
type HoldService struct {
	store ClaimStore
	clock clock.Clock
	ttl   time.Duration
}

type HoldServiceOption func(*HoldService)

// WithHoldTTL overrides the default TTL for new holds.
func WithHoldTTL(d time.Duration) HoldServiceOption {
	return func(s *HoldService) {
		if d > 0 {
			s.ttl = d
		}
	}
}

func NewHoldService(store ClaimStore, clk clock.Clock, opts ...HoldServiceOption) *HoldService {
	s := &HoldService{store: store, clock: clk, ttl: DefaultHoldTTL}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Place claims the slot for the caller. Expired holds on the slot are swept
// first so a stale claim cannot shadow a free window; the insert itself is
// what decides the race, so concurrent callers for the same slot see exactly
// one success and one ErrSlotConflict.
func (s *HoldService) Place(ctx context.Context, slot Slot, holdKey, externalRef string) (Hold, error) {
	if !slot.Valid() {
		return Hold{}, fmt.Errorf("%w: start %s end %s", ErrInvalidSlot, slot.Start, slot.End)
	}
	if holdKey == "" {
		holdKey = uuid.NewString()
	}

	now := s.clock.Now()
	hold := Hold{
		Key:         holdKey,
		Slot:        Slot{Start: slot.Start.UTC(), End: slot.End.UTC()},
		ExternalRef: externalRef,
		ExpiresAt:   now.Add(s.ttl),
		CreatedAt:   now,
	}

	err := s.store.WithTx(ctx, func(txCtx context.Context) error {
		if _, err := s.store.DeleteExpiredHolds(txCtx, now); err != nil {
			return err
		}

		// Re-placing the same key on the same slot is a touch: the TTL
		// restarts instead of the caller losing its own claim.
		existing, err := s.store.GetHold(txCtx, holdKey)
		if err == nil {
			if !existing.Slot.Start.Equal(hold.Slot.Start) || !existing.Slot.End.Equal(hold.Slot.End) {
				return fmt.Errorf("%w: hold key %s already claims another slot", ErrSlotConflict, holdKey)
			}
			hold.CreatedAt = existing.CreatedAt
			if hold.ExternalRef == "" {
				hold.ExternalRef = existing.ExternalRef
			}
			return s.store.TouchHold(txCtx, holdKey, hold.ExpiresAt)
		}
		if !errors.Is(err, ErrHoldNotFound) {
			return err
		}
		return s.store.InsertHold(txCtx, hold)
	})
	if err != nil {
		return Hold{}, err
	}
	return hold, nil
}

// AttachRef tags a hold with the external transaction that is paying for it,
// so a later billing callback can find and promote it.
func (s *HoldService) AttachRef(ctx context.Context, holdKey, externalRef string) error {
	if holdKey == "" || externalRef == "" {
		return fmt.Errorf("%w: hold key and external ref required", ErrInvalidSlot)
	}
	return s.store.AttachHoldRef(ctx, holdKey, externalRef)
}

// Release explicitly frees a hold, e.g. when the customer abandons checkout.
// Releasing an unknown (or already swept) hold is a no-op.
func (s *HoldService) Release(ctx context.Context, holdKey string) error {
	return s.store.DeleteHold(ctx, holdKey)
}

// SweepExpired removes every hold whose TTL has passed. Runs lazily before
// availability reads and on a timer; idempotent and safe to run concurrently
// with itself and with Place.
func (s *HoldService) SweepExpired(ctx context.Context) (int64, error) {
	return s.store.DeleteExpiredHolds(ctx, s.clock.Now())
}
