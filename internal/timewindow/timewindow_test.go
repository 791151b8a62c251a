package timewindow

import (
	"errors"
	"testing"
	"time"
)

func mustLoc(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("load location %s: %v", name, err)
	}
	return loc
}

func TestToInstant_UsesOffsetOfTargetDate(t *testing.T) {
	loc := mustLoc(t, "America/New_York")

	// 2026-03-08 is the spring-forward date: EST before, EDT after.
	winter := ToInstant(loc, "2026-03-07", LocalTime{Hour: 9, Minute: 0})
	summer := ToInstant(loc, "2026-03-09", LocalTime{Hour: 9, Minute: 0})

	if got := winter.UTC().Hour(); got != 14 {
		t.Fatalf("expected 09:00 EST = 14:00 UTC, got %02d:00", got)
	}
	if got := summer.UTC().Hour(); got != 13 {
		t.Fatalf("expected 09:00 EDT = 13:00 UTC, got %02d:00", got)
	}
}

func TestToDayKey_RoundTrip(t *testing.T) {
	loc := mustLoc(t, "America/New_York")
	key := DayKey("2026-11-01") // fall-back date

	instant := ToInstant(loc, key, LocalTime{Hour: 15, Minute: 0})
	if got := ToDayKey(instant, loc); got != key {
		t.Fatalf("round trip changed day: %s -> %s", key, got)
	}
	// The same instant viewed from UTC is a different calendar day question;
	// the key must always be the business-local one.
	if got := ToDayKey(instant.UTC(), loc); got != key {
		t.Fatalf("UTC input changed day: %s -> %s", key, got)
	}
}

func TestDayTypeOfKey(t *testing.T) {
	loc := mustLoc(t, "America/New_York")
	if got := DayTypeOfKey("2026-08-24", loc); got != Weekday { // Monday
		t.Fatalf("expected weekday, got %s", got)
	}
	if got := DayTypeOfKey("2026-08-29", loc); got != Weekend { // Saturday
		t.Fatalf("expected weekend, got %s", got)
	}
}

func TestDays_InclusiveRange(t *testing.T) {
	days, err := Days("2026-08-30", "2026-09-02")
	if err != nil {
		t.Fatalf("days: %v", err)
	}
	want := []DayKey{"2026-08-30", "2026-08-31", "2026-09-01", "2026-09-02"}
	if len(days) != len(want) {
		t.Fatalf("expected %d days, got %d", len(want), len(days))
	}
	for i := range want {
		if days[i] != want[i] {
			t.Fatalf("day %d: expected %s, got %s", i, want[i], days[i])
		}
	}
}

func TestDays_RejectsReversedRange(t *testing.T) {
	if _, err := Days("2026-09-02", "2026-09-01"); !errors.Is(err, ErrMalformedTime) {
		t.Fatalf("expected ErrMalformedTime, got %v", err)
	}
}

func TestParseLocalTime(t *testing.T) {
	lt, err := ParseLocalTime("13:30")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if lt.Hour != 13 || lt.Minute != 30 {
		t.Fatalf("unexpected local time %+v", lt)
	}
	if _, err := ParseLocalTime("25:00"); !errors.Is(err, ErrMalformedTime) {
		t.Fatalf("expected ErrMalformedTime, got %v", err)
	}
}

func TestDayBounds_HalfOpen(t *testing.T) {
	loc := mustLoc(t, "America/New_York")
	start, end := DayBounds(loc, "2026-03-08") // 23-hour day

	if got := end.Sub(start); got != 23*time.Hour {
		t.Fatalf("expected 23h on spring-forward day, got %s", got)
	}
	if ToDayKey(start, loc) != "2026-03-08" {
		t.Fatalf("start not on its own day")
	}
	if ToDayKey(end, loc) != "2026-03-09" {
		t.Fatalf("end must be the next day's midnight")
	}
}
