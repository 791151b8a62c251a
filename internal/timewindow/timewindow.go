package timewindow

import (
	"errors"
	"fmt"
	"time"
)

// ErrMalformedTime is returned for inputs that do not parse as a day key or
// a local wall-clock time.
var ErrMalformedTime = errors.New("malformed time input")

// DayKey identifies one business-local calendar day ("2006-01-02").
type DayKey string

const dayKeyLayout = "2006-01-02"

func ParseDayKey(s string) (DayKey, error) {
	if _, err := time.Parse(dayKeyLayout, s); err != nil {
		return "", fmt.Errorf("%w: day key %q", ErrMalformedTime, s)
	}
	return DayKey(s), nil
}

func (k DayKey) String() string { return string(k) }

// LocalTime is a wall-clock time of day in the business timezone.
type LocalTime struct {
	Hour   int
	Minute int
}

func ParseLocalTime(s string) (LocalTime, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return LocalTime{}, fmt.Errorf("%w: local time %q", ErrMalformedTime, s)
	}
	return LocalTime{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (lt LocalTime) String() string {
	return fmt.Sprintf("%02d:%02d", lt.Hour, lt.Minute)
}

func (lt LocalTime) MinuteOfDay() int { return lt.Hour*60 + lt.Minute }

// DayType classifies a calendar day for slot-template selection.
type DayType int

const (
	Weekday DayType = iota
	Weekend
)

func (d DayType) String() string {
	if d == Weekend {
		return "weekend"
	}
	return "weekday"
}

// ToInstant maps a local wall-clock time on a given calendar day to an
// absolute instant. The UTC offset is derived from the target date itself via
// time.Date in the location, so DST transitions on other dates are irrelevant.
func ToInstant(loc *time.Location, key DayKey, lt LocalTime) time.Time {
	day, _ := time.ParseInLocation(dayKeyLayout, string(key), loc)
	return time.Date(day.Year(), day.Month(), day.Day(), lt.Hour, lt.Minute, 0, 0, loc)
}

// ToDayKey returns the business-local calendar day containing the instant.
// Round-trips with ToInstant for any wall-clock time outside a DST gap.
func ToDayKey(t time.Time, loc *time.Location) DayKey {
	return DayKey(t.In(loc).Format(dayKeyLayout))
}

// DayTypeOf classifies the business-local day containing the instant.
func DayTypeOf(t time.Time, loc *time.Location) DayType {
	switch t.In(loc).Weekday() {
	case time.Saturday, time.Sunday:
		return Weekend
	default:
		return Weekday
	}
}

// DayTypeOfKey classifies a calendar day directly.
func DayTypeOfKey(key DayKey, loc *time.Location) DayType {
	day, _ := time.ParseInLocation(dayKeyLayout, string(key), loc)
	switch day.Weekday() {
	case time.Saturday, time.Sunday:
		return Weekend
	default:
		return Weekday
	}
}

// Days enumerates the calendar days from one key through another, inclusive.
func Days(from, to DayKey) ([]DayKey, error) {
	start, err := time.Parse(dayKeyLayout, string(from))
	if err != nil {
		return nil, fmt.Errorf("%w: day key %q", ErrMalformedTime, from)
	}
	end, err := time.Parse(dayKeyLayout, string(to))
	if err != nil {
		return nil, fmt.Errorf("%w: day key %q", ErrMalformedTime, to)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("%w: range %s..%s", ErrMalformedTime, from, to)
	}

	var keys []DayKey
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		keys = append(keys, DayKey(d.Format(dayKeyLayout)))
	}
	return keys, nil
}

// DayBounds returns the [start, end) instants of a business-local calendar day.
func DayBounds(loc *time.Location, key DayKey) (time.Time, time.Time) {
	day, _ := time.ParseInLocation(dayKeyLayout, string(key), loc)
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}
