// Package memory is a process-local store with the same atomicity contract
// as the Postgres store: one transaction at a time, snapshot rollback, and
// exact (start, end) exclusivity across holds and bookings. Meant for local
// runs and tests; selected once at startup, never as a runtime fallback.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/example/slotledger/internal/booking"
	"github.com/example/slotledger/internal/ledger"
)

type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

type state struct {
	holds    map[string]booking.Hold
	bookings map[string]booking.Booking
	entries  []ledger.Entry
	provider map[string]struct{}
	inbox    map[string]struct{}
	events   []Event
	nextID   int
}

func (st *state) clone() state {
	cp := state{
		holds:    make(map[string]booking.Hold, len(st.holds)),
		bookings: make(map[string]booking.Booking, len(st.bookings)),
		entries:  append([]ledger.Entry(nil), st.entries...),
		provider: make(map[string]struct{}, len(st.provider)),
		inbox:    make(map[string]struct{}, len(st.inbox)),
		events:   append([]Event(nil), st.events...),
		nextID:   st.nextID,
	}
	for k, v := range st.holds {
		cp.holds[k] = v
	}
	for k, v := range st.bookings {
		cp.bookings[k] = v
	}
	for k := range st.provider {
		cp.provider[k] = struct{}{}
	}
	for k := range st.inbox {
		cp.inbox[k] = struct{}{}
	}
	return cp
}

type Store struct {
	mu sync.Mutex
	st state
}

func NewStore() *Store {
	return &Store{st: state{
		holds:    map[string]booking.Hold{},
		bookings: map[string]booking.Booking{},
		provider: map[string]struct{}{},
		inbox:    map[string]struct{}{},
		nextID:   1,
	}}
}

type txKey struct{}

func inTx(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(bool)
	return ok
}

// WithTx serializes on the store mutex and restores a snapshot when fn
// fails, so partial writes never become visible. Nested calls join the
// enclosing transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

// locked runs fn under the mutex unless the context already carries the
// transaction, which holds the mutex for its whole extent.
func (s *Store) locked(ctx context.Context, fn func() error) error {
	if inTx(ctx) {
		return fn()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

func slotTaken(st *state, slot booking.Slot) bool {
	for _, h := range st.holds {
		if h.Slot.Start.Equal(slot.Start) && h.Slot.End.Equal(slot.End) {
			return true
		}
	}
	for _, b := range st.bookings {
		if b.Slot.Start.Equal(slot.Start) && b.Slot.End.Equal(slot.End) {
			return true
		}
	}
	return false
}

func (s *Store) InsertHold(ctx context.Context, h booking.Hold) error {
	return s.locked(ctx, func() error {
		if _, ok := s.st.holds[h.Key]; ok {
			return fmt.Errorf("%w: hold key %s", booking.ErrSlotConflict, h.Key)
		}
		if slotTaken(&s.st, h.Slot) {
			return fmt.Errorf("%w: %s to %s", booking.ErrSlotConflict, h.Slot.Start, h.Slot.End)
		}
		s.st.holds[h.Key] = h
		return nil
	})
}

func (s *Store) GetHold(ctx context.Context, key string) (booking.Hold, error) {
	var h booking.Hold
	err := s.locked(ctx, func() error {
		got, ok := s.st.holds[key]
		if !ok {
			return fmt.Errorf("%w: %s", booking.ErrHoldNotFound, key)
		}
		h = got
		return nil
	})
	return h, err
}

func (s *Store) TouchHold(ctx context.Context, key string, expiresAt time.Time) error {
	return s.locked(ctx, func() error {
		h, ok := s.st.holds[key]
		if !ok {
			return fmt.Errorf("%w: %s", booking.ErrHoldNotFound, key)
		}
		h.ExpiresAt = expiresAt
		s.st.holds[key] = h
		return nil
	})
}

func (s *Store) AttachHoldRef(ctx context.Context, key, externalRef string) error {
	return s.locked(ctx, func() error {
		h, ok := s.st.holds[key]
		if !ok {
			return fmt.Errorf("%w: %s", booking.ErrHoldNotFound, key)
		}
		h.ExternalRef = externalRef
		s.st.holds[key] = h
		return nil
	})
}

func (s *Store) DeleteHold(ctx context.Context, key string) error {
	return s.locked(ctx, func() error {
		delete(s.st.holds, key)
		return nil
	})
}

func (s *Store) ListHoldsByRef(ctx context.Context, externalRef string, now time.Time) ([]booking.Hold, error) {
	var holds []booking.Hold
	err := s.locked(ctx, func() error {
		for _, h := range s.st.holds {
			if h.ExternalRef == externalRef && h.ExpiresAt.After(now) {
				holds = append(holds, h)
			}
		}
		sort.Slice(holds, func(i, j int) bool { return holds[i].Slot.Start.Before(holds[j].Slot.Start) })
		return nil
	})
	return holds, err
}

func (s *Store) DeleteExpiredHolds(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	err := s.locked(ctx, func() error {
		for key, h := range s.st.holds {
			if !h.ExpiresAt.After(cutoff) {
				delete(s.st.holds, key)
				n++
			}
		}
		return nil
	})
	return n, err
}

func (s *Store) InsertBooking(ctx context.Context, b booking.Booking) (string, error) {
	var id string
	err := s.locked(ctx, func() error {
		if slotTaken(&s.st, b.Slot) {
			return fmt.Errorf("%w: %s to %s", booking.ErrSlotConflict, b.Slot.Start, b.Slot.End)
		}
		id = strconv.Itoa(s.st.nextID)
		s.st.nextID++
		b.ID = id
		s.st.bookings[id] = b
		return nil
	})
	return id, err
}

func (s *Store) BookingExistsForRef(ctx context.Context, externalRef string) (bool, error) {
	var exists bool
	err := s.locked(ctx, func() error {
		for _, b := range s.st.bookings {
			if b.ExternalRef == externalRef {
				exists = true
				return nil
			}
		}
		return nil
	})
	return exists, err
}

func (s *Store) ListClaims(ctx context.Context, from, to, now time.Time) ([]booking.Claim, error) {
	var claims []booking.Claim
	err := s.locked(ctx, func() error {
		for _, h := range s.st.holds {
			if h.ExpiresAt.After(now) && h.Slot.Start.Before(to) && from.Before(h.Slot.End) {
				claims = append(claims, booking.Claim{Kind: booking.KindHold, Slot: h.Slot})
			}
		}
		for _, b := range s.st.bookings {
			if b.Slot.Start.Before(to) && from.Before(b.Slot.End) {
				claims = append(claims, booking.Claim{Kind: booking.KindBooking, Slot: b.Slot})
			}
		}
		sort.Slice(claims, func(i, j int) bool { return claims[i].Slot.Start.Before(claims[j].Slot.Start) })
		return nil
	})
	return claims, err
}

func (s *Store) InsertEntry(ctx context.Context, e ledger.Entry) error {
	return s.locked(ctx, func() error {
		if e.Kind == ledger.KindGrant {
			for _, prev := range s.st.entries {
				if prev.Kind == ledger.KindGrant && prev.UserID == e.UserID &&
					prev.ServiceType == e.ServiceType && prev.InvoiceID == e.InvoiceID {
					return fmt.Errorf("%w: invoice %s", ledger.ErrInvoiceProcessed, e.InvoiceID)
				}
			}
		}
		e.ID = strconv.Itoa(s.st.nextID)
		s.st.nextID++
		s.st.entries = append(s.st.entries, e)
		return nil
	})
}

func (s *Store) SumActive(ctx context.Context, userID, serviceType string, now time.Time) (int, error) {
	var sum int
	err := s.locked(ctx, func() error {
		for _, e := range s.st.entries {
			if e.UserID != userID || e.ServiceType != serviceType {
				continue
			}
			if e.ValidFrom.After(now) {
				continue
			}
			if e.ValidUntil != nil && !e.ValidUntil.After(now) {
				continue
			}
			sum += e.Quantity
		}
		return nil
	})
	return sum, err
}

func (s *Store) SumGrants(ctx context.Context, userID, serviceType, invoiceID string) (int, error) {
	var sum int
	err := s.locked(ctx, func() error {
		for _, e := range s.st.entries {
			if e.Kind == ledger.KindGrant && e.UserID == userID &&
				e.ServiceType == serviceType && e.InvoiceID == invoiceID {
				sum += e.Quantity
			}
		}
		return nil
	})
	return sum, err
}

func (s *Store) SumUsage(ctx context.Context, userID, serviceType, invoiceID string, from, to time.Time) (int, error) {
	var sum int
	err := s.locked(ctx, func() error {
		for _, e := range s.st.entries {
			if e.UserID != userID || e.ServiceType != serviceType {
				continue
			}
			switch {
			case e.Kind == ledger.KindDebit && !e.CreatedAt.Before(from) && !e.CreatedAt.After(to):
				sum += e.Quantity
			case e.Kind == ledger.KindAdjust && e.InvoiceID == invoiceID:
				sum += e.Quantity
			}
		}
		return nil
	})
	return sum, err
}

// Record captures domain events in memory; Events exposes them for tests.
func (s *Store) Record(ctx context.Context, aggregateType, aggregateID, eventType string, payload []byte) error {
	return s.locked(ctx, func() error {
		s.st.events = append(s.st.events, Event{
			AggregateType: aggregateType,
			AggregateID:   aggregateID,
			EventType:     eventType,
			Payload:       payload,
		})
		return nil
	})
}

func (s *Store) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.st.events...)
}

func (s *Store) RecordInboxEvent(ctx context.Context, eventID, eventType string) (bool, error) {
	var fresh bool
	err := s.locked(ctx, func() error {
		if _, ok := s.st.inbox[eventID]; ok {
			return nil
		}
		s.st.inbox[eventID] = struct{}{}
		fresh = true
		return nil
	})
	return fresh, err
}

func (s *Store) RecordProviderEvent(ctx context.Context, provider, providerEventID, eventType string, payload []byte) (bool, error) {
	key := provider + "|" + providerEventID
	var fresh bool
	err := s.locked(ctx, func() error {
		if _, ok := s.st.provider[key]; ok {
			return nil
		}
		s.st.provider[key] = struct{}{}
		fresh = true
		return nil
	})
	return fresh, err
}
