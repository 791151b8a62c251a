// Package ledger tracks prepaid service credits as an append-only entry log.
// Balance is always the live sum of non-expired entries; there is no mutable
// counter to drift out of sync. Corrections are compensating entries, never
// updates or deletes.
package ledger

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInvoiceProcessed is the idempotent-grant outcome: a grant entry for
	// this (user, service type, invoice) already exists. Callers treat it as
	// success.
	ErrInvoiceProcessed = errors.New("invoice already processed")

	// ErrInsufficientCredit is a caller-level precondition failure, not a
	// ledger fault: the ledger itself never enforces non-negative balances.
	ErrInsufficientCredit = errors.New("insufficient credit")

	ErrInvalidEntry = errors.New("invalid ledger entry")
)

type Kind string

const (
	KindGrant  Kind = "grant"
	KindDebit  Kind = "debit"
	KindAdjust Kind = "adjust"
)

// Entry is one append-only ledger row. Quantity is signed: grants positive,
// debits and compensating adjusts negative.
type Entry struct {
	ID          string
	UserID      string
	ServiceType string
	Quantity    int
	Kind        Kind
	InvoiceID   string
	BookingID   string
	ValidFrom   time.Time
	ValidUntil  *time.Time
	CreatedAt   time.Time
}

// Store is the durable surface for ledger entries. InsertEntry must enforce
// at most one grant per (user_id, service_type, invoice_id) at the storage
// level and return ErrInvoiceProcessed on the duplicate, never rely on a
// pre-check.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	InsertEntry(ctx context.Context, e Entry) error
	// SumActive returns the signed sum of entries whose valid_until is null
	// or after now.
	SumActive(ctx context.Context, userID, serviceType string, now time.Time) (int, error)
	// SumGrants returns the summed grant quantity recorded for one invoice.
	SumGrants(ctx context.Context, userID, serviceType, invoiceID string) (int, error)
	// SumUsage returns the signed sum of debit entries created inside
	// [from, to] plus adjust entries tied to the invoice. Counting the
	// invoice's own adjusts makes a replayed revocation a no-op even when it
	// lands after the period closed.
	SumUsage(ctx context.Context, userID, serviceType, invoiceID string, from, to time.Time) (int, error)
}
