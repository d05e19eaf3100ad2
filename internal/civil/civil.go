// Package civil resolves wall-clock dates and times of day against IANA
// timezones. Availability rules are authored as wall-clock times in the
// owner's zone and must track DST; bookings are stored as UTC instants.
package civil

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Date is a calendar date with no time-of-day and no zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// TimeOfDay is minutes since midnight, 0..1440. 1440 denotes end-of-day and
// is only meaningful as a range end.
type TimeOfDay int

const EndOfDay TimeOfDay = 24 * 60

func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// ParseTimeOfDay parses "HH:MM" (24h clock). The whole string must be the
// time; trailing characters are rejected.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	hh, mm, found := strings.Cut(s, ":")
	if !found {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	if h < 0 || h > 24 || m < 0 || m > 59 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	return TimeOfDay(h*60 + m), nil
}

// ParseDate parses "YYYY-MM-DD".
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q", s)
	}
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

func (d Date) Weekday() time.Weekday {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC).Weekday()
}

// AddDays returns the date n days later, normalized by the calendar.
func (d Date) AddDays(n int) Date {
	t := time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

func (d Date) Before(other Date) bool {
	if d.Year != other.Year {
		return d.Year < other.Year
	}
	if d.Month != other.Month {
		return d.Month < other.Month
	}
	return d.Day < other.Day
}

func (d Date) After(other Date) bool {
	return other.Before(d)
}

// DateOf extracts the calendar date of an instant in the given zone.
func DateOf(t time.Time, loc *time.Location) Date {
	local := t.In(loc)
	return Date{Year: local.Year(), Month: local.Month(), Day: local.Day()}
}

// ToInstant converts a civil date + time of day in loc to an absolute
// instant. DST transitions are resolved by a fixed, documented policy:
//
//   - fold (the wall clock repeats): the earlier instant wins;
//   - gap (the wall clock skips): shift forward to the first valid instant,
//     i.e. the transition moment itself.
//
// EndOfDay resolves to midnight of the following date.
func ToInstant(d Date, tod TimeOfDay, loc *time.Location) time.Time {
	if tod >= EndOfDay {
		return ToInstant(d.AddDays(1), 0, loc)
	}

	t := time.Date(d.Year, d.Month, d.Day, tod.Hour(), tod.Minute(), 0, 0, loc)
	if wallMatches(t, d, tod) {
		// Possibly a fold: an earlier instant may map to the same wall
		// clock. Real zones shift by 1h or 30m.
		for _, back := range []time.Duration{time.Hour, 30 * time.Minute} {
			if earlier := t.Add(-back); wallMatches(earlier, d, tod) {
				return earlier
			}
		}
		return t
	}

	// Gap: the requested wall clock does not exist. time.Date lands on one
	// side of the transition, but which side is unspecified; do not assume.
	return firstInstantAtOrAfter(t, d, tod, loc)
}

func wallMatches(t time.Time, d Date, tod TimeOfDay) bool {
	return t.Year() == d.Year && t.Month() == d.Month && t.Day() == d.Day &&
		t.Hour() == tod.Hour() && t.Minute() == tod.Minute()
}

// firstInstantAtOrAfter finds the transition instant closing a DST gap: the
// first instant whose wall clock in loc has reached the requested civil
// time. Inside a bracket holding a single forward transition that predicate
// is monotone, so it binary-searches. near is the instant time.Date
// returned; the transition lies within a few hours of it on either side.
func firstInstantAtOrAfter(near time.Time, d Date, tod TimeOfDay, loc *time.Location) time.Time {
	target := time.Date(d.Year, d.Month, d.Day, tod.Hour(), tod.Minute(), 0, 0, time.UTC)
	wall := func(x time.Time) time.Time {
		lx := x.In(loc)
		return time.Date(lx.Year(), lx.Month(), lx.Day(), lx.Hour(), lx.Minute(), lx.Second(), 0, time.UTC)
	}

	lo := near.Add(-6 * time.Hour)
	hi := near.Add(6 * time.Hour)
	for hi.Sub(lo) > time.Second {
		mid := lo.Add(hi.Sub(lo) / 2)
		if wall(mid).Before(target) {
			lo = mid
		} else {
			hi = mid
		}
	}
	return hi.Truncate(time.Second)
}

// Project renders an instant as wall-clock components in loc. Display only;
// instants are the stored representation.
func Project(t time.Time, loc *time.Location) (Date, TimeOfDay) {
	local := t.In(loc)
	d := Date{Year: local.Year(), Month: local.Month(), Day: local.Day()}
	return d, TimeOfDay(local.Hour()*60 + local.Minute())
}

// LoadZone wraps time.LoadLocation with a friendlier error for API input.
func LoadZone(name string) (*time.Location, error) {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q", name)
	}
	return loc, nil
}
