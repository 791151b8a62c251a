package ledger_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/example/slotledger/internal/clock"
	"github.com/example/slotledger/internal/ledger"
	"github.com/example/slotledger/internal/storage/memory"
)

type stepClock struct{ now time.Time }

func (c *stepClock) Now() time.Time { return c.now }

var _ clock.Clock = (*stepClock)(nil)

func newService(t *testing.T, clk clock.Clock) (*ledger.Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	return ledger.NewService(store, store, clk, slog.Default()), store
}

func TestGrant_IdempotentPerInvoice(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := newService(t, clock.NewFixed(now))

	if err := svc.Grant(ctx, "u1", "exterior", 2, "inv_1", now, nil); err != nil {
		t.Fatalf("grant: %v", err)
	}
	err := svc.Grant(ctx, "u1", "exterior", 2, "inv_1", now, nil)
	if !errors.Is(err, ledger.ErrInvoiceProcessed) {
		t.Fatalf("expected ErrInvoiceProcessed, got %v", err)
	}

	bal, err := svc.Balance(ctx, "u1", "exterior")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal != 2 {
		t.Fatalf("replayed grant must not double credits: balance %d", bal)
	}
}

func TestBalance_GrantMinusDebit(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := newService(t, clock.NewFixed(now))

	if err := svc.Grant(ctx, "u1", "exterior", 2, "inv_1", now, nil); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if err := svc.Debit(ctx, "u1", "exterior", 1, "booking_A"); err != nil {
		t.Fatalf("debit: %v", err)
	}

	bal, err := svc.Balance(ctx, "u1", "exterior")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal != 1 {
		t.Fatalf("expected balance 1, got %d", bal)
	}
}

func TestBalance_ExpiredGrantExcluded(t *testing.T) {
	ctx := context.Background()
	clk := &stepClock{now: time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)}
	svc, _ := newService(t, clk)

	until := clk.now.AddDate(0, 1, 0)
	if err := svc.Grant(ctx, "u1", "exterior", 4, "inv_1", clk.now, &until); err != nil {
		t.Fatalf("grant: %v", err)
	}

	bal, _ := svc.Balance(ctx, "u1", "exterior")
	if bal != 4 {
		t.Fatalf("expected 4 before expiry, got %d", bal)
	}

	clk.now = until.Add(time.Minute)
	bal, _ = svc.Balance(ctx, "u1", "exterior")
	if bal != 0 {
		t.Fatalf("expected 0 after expiry, got %d", bal)
	}
}

func TestBalance_ZeroWithoutRows(t *testing.T) {
	svc, _ := newService(t, clock.NewFixed(time.Now()))
	bal, err := svc.Balance(context.Background(), "nobody", "exterior")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal != 0 {
		t.Fatalf("expected 0, got %d", bal)
	}
}

func TestRevokeUnused_PartialUse(t *testing.T) {
	ctx := context.Background()
	periodStart := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	periodEnd := periodStart.AddDate(0, 1, 0)
	clk := &stepClock{now: periodStart.Add(time.Hour)}
	svc, _ := newService(t, clk)

	if err := svc.Grant(ctx, "u1", "exterior", 2, "inv_2", periodStart, nil); err != nil {
		t.Fatalf("grant: %v", err)
	}
	clk.now = periodStart.AddDate(0, 0, 10)
	if err := svc.Debit(ctx, "u1", "exterior", 1, "booking_A"); err != nil {
		t.Fatalf("debit: %v", err)
	}

	clk.now = periodStart.AddDate(0, 0, 20)
	if err := svc.RevokeUnused(ctx, "u1", "exterior", "inv_2", periodStart, periodEnd); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	bal, err := svc.Balance(ctx, "u1", "exterior")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal != 0 {
		t.Fatalf("post-revoke balance should be 0 (2 - 1 debit - 1 adjust), got %d", bal)
	}
}

func TestRevokeUnused_ReplayIsNoOp(t *testing.T) {
	ctx := context.Background()
	periodStart := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	periodEnd := periodStart.AddDate(0, 1, 0)
	clk := &stepClock{now: periodStart.Add(time.Hour)}
	svc, _ := newService(t, clk)

	if err := svc.Grant(ctx, "u1", "exterior", 2, "inv_3", periodStart, nil); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if err := svc.RevokeUnused(ctx, "u1", "exterior", "inv_3", periodStart, periodEnd); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	// Even after the period ends, a redelivered refund must not adjust again:
	// the first adjust counts as usage for its invoice.
	clk.now = periodEnd.AddDate(0, 0, 3)
	if err := svc.RevokeUnused(ctx, "u1", "exterior", "inv_3", periodStart, periodEnd); err != nil {
		t.Fatalf("revoke replay: %v", err)
	}

	bal, _ := svc.Balance(ctx, "u1", "exterior")
	if bal != 0 {
		t.Fatalf("expected 0 after single full revocation, got %d", bal)
	}
}

func TestRevokeUnused_FullyUsedWritesNothing(t *testing.T) {
	ctx := context.Background()
	periodStart := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	periodEnd := periodStart.AddDate(0, 1, 0)
	clk := &stepClock{now: periodStart.Add(time.Hour)}
	svc, _ := newService(t, clk)

	if err := svc.Grant(ctx, "u1", "exterior", 1, "inv_4", periodStart, nil); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if err := svc.Debit(ctx, "u1", "exterior", 1, "booking_A"); err != nil {
		t.Fatalf("debit: %v", err)
	}
	if err := svc.RevokeUnused(ctx, "u1", "exterior", "inv_4", periodStart, periodEnd); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	bal, _ := svc.Balance(ctx, "u1", "exterior")
	if bal != 0 {
		t.Fatalf("expected 0, got %d", bal)
	}
}

func TestGrant_RejectsInvalidInput(t *testing.T) {
	svc, _ := newService(t, clock.NewFixed(time.Now()))
	if err := svc.Grant(context.Background(), "u1", "exterior", 0, "inv", time.Now(), nil); !errors.Is(err, ledger.ErrInvalidEntry) {
		t.Fatalf("expected ErrInvalidEntry for zero quantity, got %v", err)
	}
	if err := svc.Grant(context.Background(), "", "exterior", 1, "inv", time.Now(), nil); !errors.Is(err, ledger.ErrInvalidEntry) {
		t.Fatalf("expected ErrInvalidEntry for empty user, got %v", err)
	}
}
