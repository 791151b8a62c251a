package availability_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/example/slotledger/internal/availability"
	"github.com/example/slotledger/internal/booking"
	"github.com/example/slotledger/internal/catalog"
	"github.com/example/slotledger/internal/clock"
)

type fakeClaims struct {
	claims []booking.Claim
	err    error
}

func (f *fakeClaims) ListClaims(_ context.Context, _, _, _ time.Time) ([]booking.Claim, error) {
	return f.claims, f.err
}

type fakeBusy struct {
	intervals []availability.Interval
	err       error
}

func (f *fakeBusy) Name() string { return "fake" }

func (f *fakeBusy) ListBusy(context.Context, time.Time, time.Time) ([]availability.Interval, error) {
	return f.intervals, f.err
}

func nyc(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return loc
}

// 2026-09-09 is a Wednesday; with now pinned to 2026-09-07 09:00 local and a
// 24h lead, every slot on the 9th is bookable.
func newComputer(t *testing.T, claims *fakeClaims, sources []availability.BusySource, policy availability.Policy) *availability.Computer {
	t.Helper()
	loc := nyc(t)
	now := time.Date(2026, 9, 7, 9, 0, 0, 0, loc)
	return availability.NewComputer(catalog.Default(), loc, claims, sources, clock.NewFixed(now), policy, slog.Default())
}

func TestCompute_FullDayForService(t *testing.T) {
	c := newComputer(t, &fakeClaims{}, nil, availability.DefaultPolicy())

	res, err := c.Compute(context.Background(), "exterior", nil, "2026-09-09", "2026-09-09")
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	slots := res.Days["2026-09-09"]
	if len(slots) != 8 {
		t.Fatalf("expected 8 open 75m weekday starts, got %d", len(slots))
	}
	if res.EarliestKey != "2026-09-09" || res.LatestKey != "2026-09-09" {
		t.Fatalf("unexpected keys: %s..%s", res.EarliestKey, res.LatestKey)
	}
	for _, s := range slots {
		if s.End.Sub(s.Start) != 75*time.Minute {
			t.Fatalf("slot duration mismatch: %s", s.End.Sub(s.Start))
		}
	}
}

func TestCompute_UnknownService(t *testing.T) {
	c := newComputer(t, &fakeClaims{}, nil, availability.DefaultPolicy())
	_, err := c.Compute(context.Background(), "boat-wash", nil, "2026-09-09", "2026-09-09")
	if !errors.Is(err, catalog.ErrUnknownService) {
		t.Fatalf("expected ErrUnknownService, got %v", err)
	}
}

func TestCompute_LeadTimeBoundary(t *testing.T) {
	loc := nyc(t)
	// Lead 24h, now 2026-09-08 09:00 local: the 09:00 slot on the 9th starts
	// exactly at now+lead and must be included; anything earlier that day is
	// excluded. With a 25h lead the 09:00 start falls inside the window and
	// disappears.
	now := time.Date(2026, 9, 8, 9, 0, 0, 0, loc)
	cat := catalog.Default()

	c := availability.NewComputer(cat, loc, &fakeClaims{}, nil, clock.NewFixed(now),
		availability.Policy{Lead: 24 * time.Hour, Horizon: 30 * 24 * time.Hour}, slog.Default())
	res, err := c.Compute(context.Background(), "exterior", nil, "2026-09-09", "2026-09-09")
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if len(res.Days["2026-09-09"]) != 8 {
		t.Fatalf("expected all 8 starts with boundary inclusive, got %d", len(res.Days["2026-09-09"]))
	}
	first := res.Days["2026-09-09"][0].Start
	if !first.Equal(now.Add(24 * time.Hour)) {
		t.Fatalf("first slot should start exactly at now+lead, got %s", first)
	}

	c = availability.NewComputer(cat, loc, &fakeClaims{}, nil, clock.NewFixed(now),
		availability.Policy{Lead: 25 * time.Hour, Horizon: 30 * 24 * time.Hour}, slog.Default())
	res, err = c.Compute(context.Background(), "exterior", nil, "2026-09-09", "2026-09-09")
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if len(res.Days["2026-09-09"]) != 7 {
		t.Fatalf("expected 09:00 excluded under 25h lead, got %d slots", len(res.Days["2026-09-09"]))
	}
}

func TestCompute_HorizonCutoff(t *testing.T) {
	c := newComputer(t, &fakeClaims{}, nil,
		availability.Policy{Lead: 24 * time.Hour, Horizon: 48 * time.Hour})

	res, err := c.Compute(context.Background(), "exterior", nil, "2026-09-09", "2026-09-20")
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	// now is the 7th 09:00; horizon 48h reaches into the 9th only.
	if _, ok := res.Days["2026-09-10"]; ok {
		t.Fatalf("slots past the horizon must not be advertised")
	}
	if len(res.Days["2026-09-09"]) == 0 {
		t.Fatalf("expected slots inside the horizon")
	}
}

func TestCompute_BusyOverlapRemoved(t *testing.T) {
	loc := nyc(t)
	// Booked claim at 09:00-10:15 local on the 9th.
	claimStart := time.Date(2026, 9, 9, 9, 0, 0, 0, loc)
	claims := &fakeClaims{claims: []booking.Claim{
		{Kind: booking.KindBooking, Slot: booking.Slot{Start: claimStart, End: claimStart.Add(75 * time.Minute)}},
	}}
	c := newComputer(t, claims, nil, availability.DefaultPolicy())

	res, err := c.Compute(context.Background(), "exterior", nil, "2026-09-09", "2026-09-09")
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	for _, s := range res.Days["2026-09-09"] {
		if s.Start.Before(claimStart.Add(75*time.Minute)) && claimStart.Before(s.End) {
			t.Fatalf("slot %s overlaps the booked claim", s.Start)
		}
	}
}

func TestCompute_FamilyLock(t *testing.T) {
	loc := nyc(t)
	// Live 120m hold at 09:00 on the 9th: day is locked to wd-120x3 and
	// wd-split. 75m work then only fits the wd-split starts.
	claimStart := time.Date(2026, 9, 9, 9, 0, 0, 0, loc)
	claims := &fakeClaims{claims: []booking.Claim{
		{Kind: booking.KindHold, Slot: booking.Slot{Start: claimStart, End: claimStart.Add(120 * time.Minute)}},
	}}
	c := newComputer(t, claims, nil, availability.DefaultPolicy())

	res, err := c.Compute(context.Background(), "exterior", nil, "2026-09-09", "2026-09-09")
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	slots := res.Days["2026-09-09"]
	want := []string{"11:30", "13:00", "14:30"}
	if len(slots) != len(want) {
		t.Fatalf("expected the wd-split 75m starts %v, got %d slots", want, len(slots))
	}
	for i, s := range slots {
		local := s.Start.In(loc)
		got := local.Format("15:04")
		if got != want[i] {
			t.Fatalf("slot %d: expected %s, got %s", i, want[i], got)
		}
	}
}

func TestCompute_ExternalSourceFailureDegradesToEmpty(t *testing.T) {
	sources := []availability.BusySource{&fakeBusy{err: errors.New("calendar down")}}
	c := newComputer(t, &fakeClaims{}, sources, availability.DefaultPolicy())

	res, err := c.Compute(context.Background(), "exterior", nil, "2026-09-09", "2026-09-09")
	if err != nil {
		t.Fatalf("source failure must not fail the computation: %v", err)
	}
	if len(res.Days["2026-09-09"]) != 8 {
		t.Fatalf("expected full availability when the source degrades, got %d", len(res.Days["2026-09-09"]))
	}
}

func TestCompute_ExternalBusyIntervalsApply(t *testing.T) {
	loc := nyc(t)
	busyStart := time.Date(2026, 9, 9, 9, 0, 0, 0, loc)
	sources := []availability.BusySource{&fakeBusy{intervals: []availability.Interval{
		{Start: busyStart, End: busyStart.Add(time.Hour)},
	}}}
	c := newComputer(t, &fakeClaims{}, sources, availability.DefaultPolicy())

	res, err := c.Compute(context.Background(), "exterior", nil, "2026-09-09", "2026-09-09")
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	for _, s := range res.Days["2026-09-09"] {
		if s.Start.In(loc).Format("15:04") == "09:00" {
			t.Fatalf("externally busy slot must be removed")
		}
	}
}

func TestCompute_StoreFailureSurfaces(t *testing.T) {
	claims := &fakeClaims{err: errors.New("store down")}
	c := newComputer(t, claims, nil, availability.DefaultPolicy())

	if _, err := c.Compute(context.Background(), "exterior", nil, "2026-09-09", "2026-09-09"); err == nil {
		t.Fatalf("store failure must surface, not degrade")
	}
}

func TestCompute_HalfOpenAdjacencyAllowed(t *testing.T) {
	loc := nyc(t)
	// Busy exactly [07:45, 09:00): a slot starting 09:00 does not overlap.
	busyStart := time.Date(2026, 9, 9, 7, 45, 0, 0, loc)
	sources := []availability.BusySource{&fakeBusy{intervals: []availability.Interval{
		{Start: busyStart, End: busyStart.Add(75 * time.Minute)},
	}}}
	c := newComputer(t, &fakeClaims{}, sources, availability.DefaultPolicy())

	res, err := c.Compute(context.Background(), "exterior", nil, "2026-09-09", "2026-09-09")
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	found := false
	for _, s := range res.Days["2026-09-09"] {
		if s.Start.In(loc).Format("15:04") == "09:00" {
			found = true
		}
	}
	if !found {
		t.Fatalf("slot adjacent to a busy interval must remain available")
	}
}
