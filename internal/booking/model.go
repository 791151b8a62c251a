package booking

import (
	"errors"
	"time"
)

var (
	// ErrSlotConflict means the (start, end) window is already claimed by a
	// live hold or a booking. Expected and recoverable: the caller should
	// re-fetch availability.
	ErrSlotConflict = errors.New("slot already claimed")
	ErrHoldNotFound = errors.New("hold not found")
	ErrInvalidSlot  = errors.New("invalid slot")
)

// Slot is a half-open [start, end) appointment window.
type Slot struct {
	Start time.Time
	End   time.Time
}

func (s Slot) Valid() bool {
	return !s.Start.IsZero() && s.End.After(s.Start)
}

func (s Slot) Minutes() int {
	return int(s.End.Sub(s.Start) / time.Minute)
}

// Overlaps reports whether two half-open windows intersect.
func (s Slot) Overlaps(start, end time.Time) bool {
	return s.Start.Before(end) && start.Before(s.End)
}

// Hold is a short-lived exclusive claim on a slot, closing the gap between
// "shown as available" and "paid for".
type Hold struct {
	Key         string
	Slot        Slot
	ExternalRef string
	ExpiresAt   time.Time
	CreatedAt   time.Time
}

func (h Hold) Live(now time.Time) bool {
	return h.ExpiresAt.After(now)
}

type CustomerInfo struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// Booking is a durable, promoted claim. Immutable after creation.
type Booking struct {
	ID          string
	ExternalRef string
	ServiceKey  string
	Addons      []string
	Slot        Slot
	Customer    CustomerInfo
	CreatedAt   time.Time
}

type ClaimKind string

const (
	KindHold    ClaimKind = "hold"
	KindBooking ClaimKind = "booking"
)

// Claim is the busy-set view over the shared hold/booking namespace.
type Claim struct {
	Kind ClaimKind
	Slot Slot
}
