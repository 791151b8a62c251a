package catalog

import (
	"errors"
	"testing"

	"github.com/example/slotledger/internal/timewindow"
)

func TestDuration_ServicePlusAddons(t *testing.T) {
	c := Default()

	minutes, err := c.Duration("exterior", nil)
	if err != nil {
		t.Fatalf("duration: %v", err)
	}
	if minutes != 75 {
		t.Fatalf("expected 75, got %d", minutes)
	}

	minutes, err = c.Duration("exterior", []string{"pet-hair", "engine-bay"})
	if err != nil {
		t.Fatalf("duration with addons: %v", err)
	}
	if minutes != 105 {
		t.Fatalf("expected 105, got %d", minutes)
	}
}

func TestDuration_MembershipResolvesPerVisit(t *testing.T) {
	c := Default()
	minutes, err := c.Duration("exterior-monthly", []string{"sealant"})
	if err != nil {
		t.Fatalf("duration: %v", err)
	}
	if minutes != 105 {
		t.Fatalf("membership visit should use exterior's 75 + 30, got %d", minutes)
	}
}

func TestDuration_UnknownInputs(t *testing.T) {
	c := Default()
	if _, err := c.Duration("boat-wash", nil); !errors.Is(err, ErrUnknownService) {
		t.Fatalf("expected ErrUnknownService, got %v", err)
	}
	if _, err := c.Duration("exterior", []string{"gold-plating"}); !errors.Is(err, ErrUnknownAddon) {
		t.Fatalf("expected ErrUnknownAddon, got %v", err)
	}
}

func TestStartsFor_OrderedDeduplicatedUnion(t *testing.T) {
	c := Default()

	// 75-minute weekday starts come from wd-75x5 and wd-split; 09:00 repeats
	// nowhere for 75 but several families share starts for other durations.
	starts := c.StartsFor(75, timewindow.Weekday)
	want := []string{"09:00", "10:30", "11:30", "12:00", "13:00", "13:30", "14:30", "15:00"}
	if len(starts) != len(want) {
		t.Fatalf("expected %d starts, got %d (%v)", len(want), len(starts), starts)
	}
	for i, w := range want {
		if starts[i].String() != w {
			t.Fatalf("start %d: expected %s, got %s", i, w, starts[i])
		}
	}

	// 120-minute weekday starts: wd-120x3 and wd-split both open at 09:00 —
	// the union must not repeat it.
	starts = c.StartsFor(120, timewindow.Weekday)
	want = []string{"09:00", "11:15", "13:30"}
	if len(starts) != len(want) {
		t.Fatalf("expected %d starts, got %d (%v)", len(want), len(starts), starts)
	}
}

func TestStartsFor_NoFamilyForDuration(t *testing.T) {
	c := Default()
	if starts := c.StartsFor(60, timewindow.Weekday); len(starts) != 0 {
		t.Fatalf("expected no starts for 60m, got %v", starts)
	}
}

func TestFamiliesContaining(t *testing.T) {
	c := Default()

	names := c.FamiliesContaining(timewindow.Weekday, mustLT(t, "09:00"), 120)
	if len(names) != 2 {
		t.Fatalf("expected wd-120x3 and wd-split, got %v", names)
	}

	names = c.FamiliesContaining(timewindow.Weekday, mustLT(t, "11:15"), 120)
	if len(names) != 1 || names[0] != "wd-120x3" {
		t.Fatalf("expected only wd-120x3, got %v", names)
	}

	if names := c.FamiliesContaining(timewindow.Weekday, mustLT(t, "08:00"), 120); len(names) != 0 {
		t.Fatalf("expected no family, got %v", names)
	}
}

func TestJobInFamilies(t *testing.T) {
	c := Default()

	// With a 120 at 09:00 claimed, 75-minute work fits only via wd-split.
	locked := []string{"wd-split"}
	if !c.JobInFamilies(locked, mustLT(t, "11:30"), 75) {
		t.Fatalf("11:30/75 should fit wd-split")
	}
	if c.JobInFamilies(locked, mustLT(t, "10:30"), 75) {
		t.Fatalf("10:30/75 belongs to wd-75x5, not wd-split")
	}
}

func mustLT(t *testing.T, s string) timewindow.LocalTime {
	t.Helper()
	v, err := timewindow.ParseLocalTime(s)
	if err != nil {
		t.Fatalf("parse %s: %v", s, err)
	}
	return v
}
