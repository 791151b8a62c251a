package booking

import (
	"context"
	"time"
)

// ClaimStore is the durable-store surface the booking services need. Holds and
// bookings share one uniqueness namespace on (slot_start, slot_end): the
// check "is this slot free" and the act "claim it" are a single constrained
// insert, never a read followed by a write.
//
// WithTx runs fn inside one atomic transaction; nested calls join the
// enclosing transaction. Implementations: postgres (production) and memory
// (dev/tests, same atomicity).
type ClaimStore interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	// InsertHold claims the slot. Returns ErrSlotConflict when a live claim
	// already occupies (start, end).
	InsertHold(ctx context.Context, h Hold) error
	GetHold(ctx context.Context, key string) (Hold, error)
	// TouchHold extends an existing hold's TTL.
	TouchHold(ctx context.Context, key string, expiresAt time.Time) error
	AttachHoldRef(ctx context.Context, key, externalRef string) error
	DeleteHold(ctx context.Context, key string) error
	ListHoldsByRef(ctx context.Context, externalRef string, now time.Time) ([]Hold, error)
	// DeleteExpiredHolds removes holds with expires_at <= cutoff and reports
	// how many were removed. Idempotent and safe to run concurrently.
	DeleteExpiredHolds(ctx context.Context, cutoff time.Time) (int64, error)

	// InsertBooking promotes a claim. Returns ErrSlotConflict when (start,
	// end) is occupied by a different live claim.
	InsertBooking(ctx context.Context, b Booking) (string, error)
	BookingExistsForRef(ctx context.Context, externalRef string) (bool, error)

	// ListClaims returns every live claim overlapping [from, to): bookings
	// plus holds that have not expired as of now. One batched call serves a
	// whole availability range.
	ListClaims(ctx context.Context, from, to, now time.Time) ([]Claim, error)
}
