// Package catalog holds the static service definitions and the slot-template
// families. Slot placement is a lookup over pre-defined day layouts, not a
// search: picking any start time implicitly fixes the rest of that day's
// layout to the family the start came from.
package catalog

import (
	"errors"
	"fmt"
	"sort"

	"github.com/example/slotledger/internal/timewindow"
)

var (
	ErrUnknownService = errors.New("unknown service")
	ErrUnknownAddon   = errors.New("unknown addon")
)

// Service is a bookable offering. A membership service (Visits > 1) resolves
// its slot duration through the underlying per-visit service.
type Service struct {
	Key        string
	Name       string
	Minutes    int
	Visits     int
	PerVisit   string // service key backing each visit of a membership
	CreditType string // ledger service type consumed per visit
}

// Addon optionally extends the job duration. ExtraMinutes may be zero for
// addons that affect price but not time.
type Addon struct {
	Key          string
	Name         string
	ExtraMinutes int
}

// Job is one appointment within a family layout.
type Job struct {
	Start   timewindow.LocalTime
	Minutes int
}

// Family is a fixed ordered set of same-day jobs for one day type. Jobs
// within a family already embed the inter-job buffer.
type Family struct {
	Name string
	Day  timewindow.DayType
	Jobs []Job
}

type Catalog struct {
	services map[string]Service
	addons   map[string]Addon
	families []Family
}

func New(services []Service, addons []Addon, families []Family) *Catalog {
	c := &Catalog{
		services: make(map[string]Service, len(services)),
		addons:   make(map[string]Addon, len(addons)),
		families: families,
	}
	for _, s := range services {
		c.services[s.Key] = s
	}
	for _, a := range addons {
		c.addons[a.Key] = a
	}
	return c
}

func (c *Catalog) Service(key string) (Service, error) {
	s, ok := c.services[key]
	if !ok {
		return Service{}, fmt.Errorf("%w: %q", ErrUnknownService, key)
	}
	return s, nil
}

// Duration resolves the effective job duration in minutes for a service plus
// addons. Memberships resolve through their per-visit service first.
func (c *Catalog) Duration(serviceKey string, addonKeys []string) (int, error) {
	s, err := c.Service(serviceKey)
	if err != nil {
		return 0, err
	}
	if s.Visits > 1 && s.PerVisit != "" {
		s, err = c.Service(s.PerVisit)
		if err != nil {
			return 0, err
		}
	}

	minutes := s.Minutes
	for _, key := range addonKeys {
		a, ok := c.addons[key]
		if !ok {
			return 0, fmt.Errorf("%w: %q", ErrUnknownAddon, key)
		}
		minutes += a.ExtraMinutes
	}
	return minutes, nil
}

// StartsFor returns the ordered, de-duplicated local start times for jobs of
// the given duration across all families of the day type. A duration with no
// family yields an empty list.
func (c *Catalog) StartsFor(minutes int, day timewindow.DayType) []timewindow.LocalTime {
	seen := map[int]timewindow.LocalTime{}
	for _, f := range c.families {
		if f.Day != day {
			continue
		}
		for _, j := range f.Jobs {
			if j.Minutes == minutes {
				seen[j.Start.MinuteOfDay()] = j.Start
			}
		}
	}

	starts := make([]timewindow.LocalTime, 0, len(seen))
	for _, lt := range seen {
		starts = append(starts, lt)
	}
	sort.Slice(starts, func(i, j int) bool {
		return starts[i].MinuteOfDay() < starts[j].MinuteOfDay()
	})
	return starts
}

// FamiliesContaining returns the names of families on the day type that
// include a job at exactly (start, minutes). Used to lock a day's remaining
// slots to layouts compatible with an existing claim.
func (c *Catalog) FamiliesContaining(day timewindow.DayType, start timewindow.LocalTime, minutes int) []string {
	var names []string
	for _, f := range c.families {
		if f.Day != day {
			continue
		}
		for _, j := range f.Jobs {
			if j.Minutes == minutes && j.Start == start {
				names = append(names, f.Name)
				break
			}
		}
	}
	return names
}

// JobInFamilies reports whether (start, minutes) is a job of at least one of
// the named families.
func (c *Catalog) JobInFamilies(names []string, start timewindow.LocalTime, minutes int) bool {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	for _, f := range c.families {
		if _, ok := set[f.Name]; !ok {
			continue
		}
		for _, j := range f.Jobs {
			if j.Minutes == minutes && j.Start == start {
				return true
			}
		}
	}
	return false
}
