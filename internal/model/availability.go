package model

import (
	"time"

	"github.com/bookloop/bookloop/internal/civil"
)

// AvailabilityRule is one weekly recurring window. A schedule holds at most
// one rule per weekday; the window is wall-clock time in the schedule's zone.
type AvailabilityRule struct {
	DayOfWeek time.Weekday
	StartTime civil.TimeOfDay
	EndTime   civil.TimeOfDay
}

// AvailabilitySchedule is a named set of weekly rules. Exactly one schedule
// per owner is the default; booking links without an explicit schedule fall
// back to it.
type AvailabilitySchedule struct {
	ID        string
	OwnerID   string
	Name      string
	IsDefault bool
	Timezone  string
	Rules     []AvailabilityRule
}

// RuleFor returns the rule for a weekday, if any.
func (s *AvailabilitySchedule) RuleFor(day time.Weekday) (AvailabilityRule, bool) {
	for _, r := range s.Rules {
		if r.DayOfWeek == day {
			return r, true
		}
	}
	return AvailabilityRule{}, false
}

// DateOverride replaces the rule-derived window for a single date. With
// IsAvailable false the whole date is blacked out; with true, StartTime and
// EndTime substitute the day's hours. Owner-global: applies to every link.
type DateOverride struct {
	ID          string
	OwnerID     string
	Date        civil.Date
	IsAvailable bool
	StartTime   civil.TimeOfDay
	EndTime     civil.TimeOfDay
	Label       string
}

type BlockType string

const (
	BlockVacation BlockType = "vacation"
	BlockHoliday  BlockType = "holiday"
	BlockPersonal BlockType = "personal"
	BlockCustom   BlockType = "custom"
)

type Recurrence string

const (
	RecurNone    Recurrence = "none"
	RecurDaily   Recurrence = "daily"
	RecurWeekly  Recurrence = "weekly"
	RecurMonthly Recurrence = "monthly"
	RecurYearly  Recurrence = "yearly"
)

func ValidBlockType(t BlockType) bool {
	switch t {
	case BlockVacation, BlockHoliday, BlockPersonal, BlockCustom:
		return true
	}
	return false
}

func ValidRecurrence(r Recurrence) bool {
	switch r {
	case RecurNone, RecurDaily, RecurWeekly, RecurMonthly, RecurYearly:
		return true
	}
	return false
}

// TimeBlock is an owner-authored blackout range, independent of any link.
// StartDate/EndDate are inclusive civil dates; when AllDay is false the
// StartTime/EndTime bound the blocked hours on each covered date. With a
// recurrence other than none the span recurs indefinitely, re-anchored to
// the recurrence unit.
type TimeBlock struct {
	ID         string
	OwnerID    string
	Title      string
	StartDate  civil.Date
	EndDate    civil.Date
	AllDay     bool
	StartTime  civil.TimeOfDay
	EndTime    civil.TimeOfDay
	BlockType  BlockType
	Recurrence Recurrence
	Notes      string
}

// SpanDays returns the number of calendar days the block covers, inclusive.
func (b *TimeBlock) SpanDays() int {
	days := 0
	for d := b.StartDate; !d.After(b.EndDate); d = d.AddDays(1) {
		days++
	}
	return days
}

// OccursOn reports whether any occurrence of the block covers the given
// date, and if so at which day offset within the occurrence's span. The
// expansion is a predicate, never a materialized list: recurrence has no
// stored end, so occurrences are unbounded.
func (b *TimeBlock) OccursOn(date civil.Date) (dayOffset int, ok bool) {
	if date.Before(b.StartDate) {
		return 0, false
	}
	span := b.SpanDays()

	switch b.Recurrence {
	case RecurNone, "":
		if date.After(b.EndDate) {
			return 0, false
		}
		return daysBetween(b.StartDate, date), true

	case RecurDaily:
		// Every day from the anchor onward is day zero of some occurrence.
		return 0, true

	case RecurWeekly:
		offset := daysBetween(b.StartDate, date) % 7
		if offset < span {
			return offset, true
		}
		return 0, false

	case RecurMonthly:
		// Re-anchored to the start day-of-month; months without that day
		// (e.g. the 31st) have no occurrence.
		for off := 0; off < span; off++ {
			anchor := date.AddDays(-off)
			if anchor.Day == b.StartDate.Day && !anchor.Before(b.StartDate) {
				return off, true
			}
		}
		return 0, false

	case RecurYearly:
		for off := 0; off < span; off++ {
			anchor := date.AddDays(-off)
			if anchor.Day == b.StartDate.Day && anchor.Month == b.StartDate.Month && !anchor.Before(b.StartDate) {
				return off, true
			}
		}
		return 0, false
	}
	return 0, false
}

// BlockedWindowOn returns the blocked wall-clock window on a date covered by
// the block, or ok=false when the date is clear.
func (b *TimeBlock) BlockedWindowOn(date civil.Date) (start, end civil.TimeOfDay, ok bool) {
	offset, ok := b.OccursOn(date)
	if !ok {
		return 0, 0, false
	}
	if b.AllDay {
		return 0, civil.EndOfDay, true
	}

	span := b.SpanDays()
	// Daily recurrence of a multi-day span: occurrences start every day, so
	// each covered date is simultaneously a first, middle and last day of
	// overlapping occurrences. Their union blocks the whole day.
	if b.Recurrence == RecurDaily && span > 1 {
		return 0, civil.EndOfDay, true
	}
	start, end = 0, civil.EndOfDay
	if offset == 0 {
		start = b.StartTime
	}
	if offset == span-1 {
		end = b.EndTime
	}
	if end <= start {
		return 0, 0, false
	}
	return start, end, true
}

func daysBetween(from, to civil.Date) int {
	a := time.Date(from.Year, from.Month, from.Day, 0, 0, 0, 0, time.UTC)
	b := time.Date(to.Year, to.Month, to.Day, 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a) / (24 * time.Hour))
}
