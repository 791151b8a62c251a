// Package availability turns the slot-template catalog and the busy set into
// the public per-day slot listing.
package availability

import (
	"context"
	"log/slog"
	"time"

	"github.com/example/slotledger/internal/booking"
	"github.com/example/slotledger/internal/catalog"
	"github.com/example/slotledger/internal/clock"
	"github.com/example/slotledger/internal/timewindow"
)

// Interval is a half-open [start, end) busy window.
type Interval struct {
	Start time.Time
	End   time.Time
}

// BusySource supplies busy intervals from an external system. A source that
// fails is treated as empty: availability may be optimistic, never
// pessimistic-by-outage. Store-backed claims do not go through this
// interface because store failures must surface.
type BusySource interface {
	Name() string
	ListBusy(ctx context.Context, from, to time.Time) ([]Interval, error)
}

// ClaimSource is the store slice the computer reads: one batched call per
// range, covering live holds and bookings.
type ClaimSource interface {
	ListClaims(ctx context.Context, from, to, now time.Time) ([]booking.Claim, error)
}

type Policy struct {
	Lead    time.Duration // minimum notice before a slot start
	Horizon time.Duration // furthest advertised slot start
	BusyPad time.Duration // extra buffer around busy intervals
}

func DefaultPolicy() Policy {
	return Policy{Lead: 24 * time.Hour, Horizon: 30 * 24 * time.Hour}
}

type Computer struct {
	catalog *catalog.Catalog
	loc     *time.Location
	claims  ClaimSource
	sources []BusySource
	clock   clock.Clock
	policy  Policy
	logger  *slog.Logger
}

func NewComputer(cat *catalog.Catalog, loc *time.Location, claims ClaimSource, sources []BusySource, clk clock.Clock, policy Policy, logger *slog.Logger) *Computer {
	return &Computer{
		catalog: cat,
		loc:     loc,
		claims:  claims,
		sources: sources,
		clock:   clk,
		policy:  policy,
		logger:  logger,
	}
}

type Result struct {
	Days        map[timewindow.DayKey][]booking.Slot
	EarliestKey timewindow.DayKey
	LatestKey   timewindow.DayKey
}

// Compute lists the open slots per business-local day in [from, to].
//
// Days already carrying a live claim are family-locked: only slots from the
// layouts containing the claimed job are advertised, so two mutually
// exclusive day layouts can never both be offered once one is committed.
func (c *Computer) Compute(ctx context.Context, serviceKey string, addons []string, from, to timewindow.DayKey) (Result, error) {
	minutes, err := c.catalog.Duration(serviceKey, addons)
	if err != nil {
		return Result{}, err
	}
	days, err := timewindow.Days(from, to)
	if err != nil {
		return Result{}, err
	}

	rangeStart, _ := timewindow.DayBounds(c.loc, days[0])
	_, rangeEnd := timewindow.DayBounds(c.loc, days[len(days)-1])
	now := c.clock.Now()

	claims, err := c.claims.ListClaims(ctx, rangeStart, rangeEnd, now)
	if err != nil {
		return Result{}, err
	}

	busy := make([]Interval, 0, len(claims))
	for _, cl := range claims {
		busy = append(busy, Interval{Start: cl.Slot.Start, End: cl.Slot.End})
	}
	for _, src := range c.sources {
		intervals, err := src.ListBusy(ctx, rangeStart, rangeEnd)
		if err != nil {
			c.logger.Warn("busy source unavailable; treating as empty", "source", src.Name(), "err", err)
			continue
		}
		busy = append(busy, intervals...)
	}
	if pad := c.policy.BusyPad; pad > 0 {
		for i := range busy {
			busy[i].Start = busy[i].Start.Add(-pad)
			busy[i].End = busy[i].End.Add(pad)
		}
	}

	leadCutoff := now.Add(c.policy.Lead)
	horizonCutoff := now.Add(c.policy.Horizon)

	result := Result{Days: map[timewindow.DayKey][]booking.Slot{}}
	for _, day := range days {
		dayType := timewindow.DayTypeOfKey(day, c.loc)
		allowed, locked := c.lockedFamilies(day, dayType, claims)
		if locked && len(allowed) == 0 {
			continue
		}

		var slots []booking.Slot
		for _, start := range c.catalog.StartsFor(minutes, dayType) {
			if locked && !c.catalog.JobInFamilies(allowed, start, minutes) {
				continue
			}

			slotStart := timewindow.ToInstant(c.loc, day, start)
			slotEnd := slotStart.Add(time.Duration(minutes) * time.Minute)

			// A start exactly at now+lead is the earliest bookable slot.
			if slotStart.Before(leadCutoff) || slotStart.After(horizonCutoff) {
				continue
			}
			if overlapsAny(slotStart, slotEnd, busy) {
				continue
			}
			slots = append(slots, booking.Slot{Start: slotStart, End: slotEnd})
		}
		if len(slots) == 0 {
			continue
		}

		result.Days[day] = slots
		if result.EarliestKey == "" || day < result.EarliestKey {
			result.EarliestKey = day
		}
		if day > result.LatestKey {
			result.LatestKey = day
		}
	}
	return result, nil
}

// lockedFamilies intersects the family sets of every claim on the day that
// matches a catalog job. Claims that match no known layout (manual blocks,
// legacy rows) do not lock anything.
func (c *Computer) lockedFamilies(day timewindow.DayKey, dayType timewindow.DayType, claims []booking.Claim) ([]string, bool) {
	var allowed map[string]struct{}
	for _, cl := range claims {
		if timewindow.ToDayKey(cl.Slot.Start, c.loc) != day {
			continue
		}
		local := cl.Slot.Start.In(c.loc)
		start := timewindow.LocalTime{Hour: local.Hour(), Minute: local.Minute()}
		fams := c.catalog.FamiliesContaining(dayType, start, cl.Slot.Minutes())
		if len(fams) == 0 {
			continue
		}

		set := make(map[string]struct{}, len(fams))
		for _, f := range fams {
			set[f] = struct{}{}
		}
		if allowed == nil {
			allowed = set
			continue
		}
		for name := range allowed {
			if _, ok := set[name]; !ok {
				delete(allowed, name)
			}
		}
	}
	if allowed == nil {
		return nil, false
	}

	names := make([]string, 0, len(allowed))
	for name := range allowed {
		names = append(names, name)
	}
	return names, true
}

func overlapsAny(start, end time.Time, busy []Interval) bool {
	for _, b := range busy {
		// Half-open intervals: [start,end) overlaps [b.Start,b.End) iff
		// start < b.End && b.Start < end.
		if start.Before(b.End) && b.Start.Before(end) {
			return true
		}
	}
	return false
}
