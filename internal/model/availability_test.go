package model

import (
	"testing"
	"time"

	"github.com/bookloop/bookloop/internal/civil"
)

func date(y int, m time.Month, d int) civil.Date {
	return civil.Date{Year: y, Month: m, Day: d}
}

func TestTimeBlock_OccursOn_None(t *testing.T) {
	b := TimeBlock{
		StartDate: date(2026, time.July, 10), EndDate: date(2026, time.July, 12),
		AllDay: true, Recurrence: RecurNone,
	}
	if _, ok := b.OccursOn(date(2026, time.July, 9)); ok {
		t.Fatal("day before span should be clear")
	}
	for i, d := range []civil.Date{date(2026, time.July, 10), date(2026, time.July, 11), date(2026, time.July, 12)} {
		off, ok := b.OccursOn(d)
		if !ok || off != i {
			t.Fatalf("%s: expected offset %d, got %d ok=%v", d, i, off, ok)
		}
	}
	if _, ok := b.OccursOn(date(2026, time.July, 13)); ok {
		t.Fatal("day after span should be clear")
	}
}

func TestTimeBlock_OccursOn_Monthly(t *testing.T) {
	b := TimeBlock{
		StartDate: date(2026, time.January, 31), EndDate: date(2026, time.January, 31),
		AllDay: true, Recurrence: RecurMonthly,
	}
	if _, ok := b.OccursOn(date(2026, time.March, 31)); !ok {
		t.Fatal("monthly block should recur on the 31st")
	}
	// February has no 31st: no occurrence that month.
	for d := date(2026, time.February, 1); d.Month == time.February; d = d.AddDays(1) {
		if _, ok := b.OccursOn(d); ok {
			t.Fatalf("unexpected occurrence on %s", d)
		}
	}
}

func TestTimeBlock_OccursOn_Yearly(t *testing.T) {
	b := TimeBlock{
		StartDate: date(2026, time.December, 24), EndDate: date(2026, time.December, 26),
		AllDay: true, Recurrence: RecurYearly,
	}
	off, ok := b.OccursOn(date(2030, time.December, 25))
	if !ok || off != 1 {
		t.Fatalf("expected day 1 of the 2030 occurrence, got %d ok=%v", off, ok)
	}
	if _, ok := b.OccursOn(date(2025, time.December, 25)); ok {
		t.Fatal("occurrences before the anchor date should not exist")
	}
}

func TestTimeBlock_BlockedWindowOn_MultiDayPartial(t *testing.T) {
	// 3-day block 22:00 (day 0) through 06:00 (day 2): the middle day is
	// fully covered, the edge days partially.
	b := TimeBlock{
		StartDate: date(2026, time.July, 10), EndDate: date(2026, time.July, 12),
		StartTime: 1320, EndTime: 360, Recurrence: RecurNone,
	}
	s, e, ok := b.BlockedWindowOn(date(2026, time.July, 10))
	if !ok || s != 1320 || e != civil.EndOfDay {
		t.Fatalf("first day: got %s-%s ok=%v", s, e, ok)
	}
	s, e, ok = b.BlockedWindowOn(date(2026, time.July, 11))
	if !ok || s != 0 || e != civil.EndOfDay {
		t.Fatalf("middle day should be fully blocked: got %s-%s ok=%v", s, e, ok)
	}
	s, e, ok = b.BlockedWindowOn(date(2026, time.July, 12))
	if !ok || s != 0 || e != 360 {
		t.Fatalf("last day: got %s-%s ok=%v", s, e, ok)
	}
}

func TestTimeBlock_BlockedWindowOn_DailyMultiDaySpan(t *testing.T) {
	// A 3-day 22:00-06:00 block recurring daily: every date from the anchor
	// onward belongs to several overlapping occurrences at once, and their
	// union leaves no hour open.
	b := TimeBlock{
		StartDate: date(2026, time.July, 10), EndDate: date(2026, time.July, 12),
		StartTime: 1320, EndTime: 360, Recurrence: RecurDaily,
	}
	for _, d := range []civil.Date{
		date(2026, time.July, 10),
		date(2026, time.July, 11),
		date(2026, time.August, 20),
	} {
		s, e, ok := b.BlockedWindowOn(d)
		if !ok || s != 0 || e != civil.EndOfDay {
			t.Fatalf("%s should be fully blocked: got %s-%s ok=%v", d, s, e, ok)
		}
	}
	if _, _, ok := b.BlockedWindowOn(date(2026, time.July, 9)); ok {
		t.Fatal("dates before the anchor should not block")
	}
}

func TestTimeBlock_BlockedWindowOn_SingleDayInverted(t *testing.T) {
	// A one-day block whose end does not follow its start blocks nothing.
	b := TimeBlock{
		StartDate: date(2026, time.July, 10), EndDate: date(2026, time.July, 10),
		StartTime: 600, EndTime: 600, Recurrence: RecurNone,
	}
	if _, _, ok := b.BlockedWindowOn(date(2026, time.July, 10)); ok {
		t.Fatal("empty window should not block")
	}
}

func TestScheduleRuleFor(t *testing.T) {
	s := AvailabilitySchedule{Rules: []AvailabilityRule{
		{DayOfWeek: time.Monday, StartTime: 540, EndTime: 1020},
	}}
	if _, ok := s.RuleFor(time.Monday); !ok {
		t.Fatal("expected Monday rule")
	}
	if _, ok := s.RuleFor(time.Tuesday); ok {
		t.Fatal("unexpected Tuesday rule")
	}
}
