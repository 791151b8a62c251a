package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/example/slotledger/internal/booking"
)

// Holds and bookings share the slot_claims table; the slot_claims_slot_key
// uniqueness constraint over (slot_start, slot_end) is what makes a slot
// exclusive across both kinds at once.

func (s *Store) InsertHold(ctx context.Context, h booking.Hold) error {
	_, err := s.q(ctx).Exec(ctx, `
		INSERT INTO slot_claims (claim_type, slot_start, slot_end, hold_key, external_ref, expires_at, created_at)
		VALUES ('hold', $1, $2, $3, $4, $5, $6)
	`, h.Slot.Start, h.Slot.End, h.Key, nullIfEmpty(h.ExternalRef), h.ExpiresAt, h.CreatedAt)
	if isUniqueViolation(err, "slot_claims_slot_key") {
		return fmt.Errorf("%w: %s to %s", booking.ErrSlotConflict, h.Slot.Start, h.Slot.End)
	}
	return err
}

func (s *Store) GetHold(ctx context.Context, key string) (booking.Hold, error) {
	var h booking.Hold
	var ref *string
	err := s.q(ctx).QueryRow(ctx, `
		SELECT hold_key, slot_start, slot_end, external_ref, expires_at, created_at
		FROM slot_claims
		WHERE claim_type = 'hold' AND hold_key = $1
	`, key).Scan(&h.Key, &h.Slot.Start, &h.Slot.End, &ref, &h.ExpiresAt, &h.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return booking.Hold{}, fmt.Errorf("%w: %s", booking.ErrHoldNotFound, key)
	}
	if err != nil {
		return booking.Hold{}, err
	}
	if ref != nil {
		h.ExternalRef = *ref
	}
	return h, nil
}

func (s *Store) TouchHold(ctx context.Context, key string, expiresAt time.Time) error {
	tag, err := s.q(ctx).Exec(ctx, `
		UPDATE slot_claims
		SET expires_at = $2
		WHERE claim_type = 'hold' AND hold_key = $1
	`, key, expiresAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", booking.ErrHoldNotFound, key)
	}
	return nil
}

func (s *Store) AttachHoldRef(ctx context.Context, key, externalRef string) error {
	tag, err := s.q(ctx).Exec(ctx, `
		UPDATE slot_claims
		SET external_ref = $2
		WHERE claim_type = 'hold' AND hold_key = $1
	`, key, externalRef)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", booking.ErrHoldNotFound, key)
	}
	return nil
}

// DeleteHold is idempotent: deleting an unknown or already-removed hold is
// not an error.
func (s *Store) DeleteHold(ctx context.Context, key string) error {
	_, err := s.q(ctx).Exec(ctx, `
		DELETE FROM slot_claims
		WHERE claim_type = 'hold' AND hold_key = $1
	`, key)
	return err
}

func (s *Store) ListHoldsByRef(ctx context.Context, externalRef string, now time.Time) ([]booking.Hold, error) {
	rows, err := s.q(ctx).Query(ctx, `
		SELECT hold_key, slot_start, slot_end, expires_at, created_at
		FROM slot_claims
		WHERE claim_type = 'hold' AND external_ref = $1 AND expires_at > $2
		ORDER BY slot_start
	`, externalRef, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var holds []booking.Hold
	for rows.Next() {
		h := booking.Hold{ExternalRef: externalRef}
		if err := rows.Scan(&h.Key, &h.Slot.Start, &h.Slot.End, &h.ExpiresAt, &h.CreatedAt); err != nil {
			return nil, err
		}
		holds = append(holds, h)
	}
	return holds, rows.Err()
}

func (s *Store) DeleteExpiredHolds(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.q(ctx).Exec(ctx, `
		DELETE FROM slot_claims
		WHERE claim_type = 'hold' AND expires_at <= $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *Store) InsertBooking(ctx context.Context, b booking.Booking) (string, error) {
	addons, err := json.Marshal(b.Addons)
	if err != nil {
		return "", err
	}
	customer, err := json.Marshal(b.Customer)
	if err != nil {
		return "", err
	}

	var id string
	err = s.q(ctx).QueryRow(ctx, `
		INSERT INTO slot_claims (claim_type, slot_start, slot_end, external_ref, service_key, addons, customer, created_at)
		VALUES ('booking', $1, $2, $3, $4, $5, $6, $7)
		RETURNING id::text
	`, b.Slot.Start, b.Slot.End, b.ExternalRef, b.ServiceKey, addons, customer, b.CreatedAt).Scan(&id)
	if isUniqueViolation(err, "slot_claims_slot_key") {
		return "", fmt.Errorf("%w: %s to %s", booking.ErrSlotConflict, b.Slot.Start, b.Slot.End)
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) BookingExistsForRef(ctx context.Context, externalRef string) (bool, error) {
	var exists bool
	err := s.q(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM slot_claims
			WHERE claim_type = 'booking' AND external_ref = $1
		)
	`, externalRef).Scan(&exists)
	return exists, err
}

// ListClaims returns every claim overlapping [from, to): all bookings plus
// holds that are still live at now.
func (s *Store) ListClaims(ctx context.Context, from, to, now time.Time) ([]booking.Claim, error) {
	rows, err := s.q(ctx).Query(ctx, `
		SELECT claim_type, slot_start, slot_end
		FROM slot_claims
		WHERE slot_start < $2
			AND slot_end > $1
			AND (claim_type = 'booking' OR expires_at > $3)
		ORDER BY slot_start
	`, from, to, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var claims []booking.Claim
	for rows.Next() {
		var c booking.Claim
		var kind string
		if err := rows.Scan(&kind, &c.Slot.Start, &c.Slot.End); err != nil {
			return nil, err
		}
		c.Kind = booking.ClaimKind(kind)
		claims = append(claims, c)
	}
	return claims, rows.Err()
}
