package availability

import (
	"testing"
	"time"

	"github.com/bookloop/bookloop/internal/civil"
	"github.com/bookloop/bookloop/internal/interval"
	"github.com/bookloop/bookloop/internal/model"
)

func weekdaySchedule(tz string, start, end civil.TimeOfDay) *model.AvailabilitySchedule {
	s := &model.AvailabilitySchedule{
		ID:        "sched-1",
		OwnerID:   "owner-1",
		Name:      "Working hours",
		IsDefault: true,
		Timezone:  tz,
	}
	for wd := time.Monday; wd <= time.Friday; wd++ {
		s.Rules = append(s.Rules, model.AvailabilityRule{DayOfWeek: wd, StartTime: start, EndTime: end})
	}
	return s
}

func snapshotWith(s *model.AvailabilitySchedule) *Snapshot {
	return &Snapshot{Schedule: s, Overrides: map[civil.Date]model.DateOverride{}}
}

func utc(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.UTC)
}

// 2026-03-02 is a Monday.
var (
	monday     = civil.Date{Year: 2026, Month: time.March, Day: 2}
	dayBefore  = utc(2026, time.March, 1, 0, 0)
	dayAfter   = utc(2026, time.March, 3, 0, 0)
	longBefore = utc(2026, time.February, 1, 0, 0)
)

func TestGenerateSlots_BuffersSpaceAdjacentSlots(t *testing.T) {
	// Window 09:00-11:00, duration 30, buffers 10/5: slots tile 45 minutes
	// apart start-to-start, beginning at the window start.
	snap := snapshotWith(weekdaySchedule("UTC", 540, 660))
	p := Params{
		Duration:     30 * time.Minute,
		BufferBefore: 10 * time.Minute,
		BufferAfter:  5 * time.Minute,
		Now:          longBefore,
	}
	slots, err := GenerateSlots(snap, p, dayBefore, dayAfter)
	if err != nil {
		t.Fatalf("GenerateSlots: %v", err)
	}
	want := []time.Time{
		utc(2026, time.March, 2, 9, 0),
		utc(2026, time.March, 2, 9, 45),
		utc(2026, time.March, 2, 10, 30),
	}
	if len(slots) != len(want) {
		t.Fatalf("expected %d slots, got %d: %v", len(want), len(slots), slots)
	}
	for i, w := range want {
		if !slots[i].Start.Equal(w) {
			t.Fatalf("slot %d: expected start %s, got %s", i, w, slots[i].Start)
		}
		if !slots[i].End.Equal(w.Add(30 * time.Minute)) {
			t.Fatalf("slot %d: expected 30m length, got %s", i, slots[i].End)
		}
	}
	for i := 1; i < len(slots); i++ {
		if gap := slots[i].Start.Sub(slots[i-1].Start); gap < 45*time.Minute {
			t.Fatalf("slots %d and %d only %s apart", i-1, i, gap)
		}
	}
}

func TestGenerateSlots_NoBuffersTileBackToBack(t *testing.T) {
	snap := snapshotWith(weekdaySchedule("UTC", 540, 600)) // 09:00-10:00
	p := Params{Duration: 30 * time.Minute, Now: longBefore}
	slots, err := GenerateSlots(snap, p, dayBefore, dayAfter)
	if err != nil {
		t.Fatalf("GenerateSlots: %v", err)
	}
	if len(slots) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(slots))
	}
	if !slots[1].Start.Equal(slots[0].End) {
		t.Fatal("zero-buffer slots should be back to back")
	}
}

func TestGenerateSlots_OverrideBlackoutWins(t *testing.T) {
	snap := snapshotWith(weekdaySchedule("UTC", 540, 1020))
	snap.Overrides[monday] = model.DateOverride{
		OwnerID: "owner-1", Date: monday, IsAvailable: false, Label: "Out",
	}
	p := Params{Duration: 30 * time.Minute, Now: longBefore}
	slots, err := GenerateSlots(snap, p, dayBefore, dayAfter)
	if err != nil {
		t.Fatalf("GenerateSlots: %v", err)
	}
	if len(slots) != 0 {
		t.Fatalf("blacked-out date must yield zero slots, got %d", len(slots))
	}
}

func TestGenerateSlots_OverrideSubstitutesHours(t *testing.T) {
	snap := snapshotWith(weekdaySchedule("UTC", 540, 1020)) // rules say 09:00-17:00
	snap.Overrides[monday] = model.DateOverride{
		OwnerID: "owner-1", Date: monday, IsAvailable: true,
		StartTime: 780, EndTime: 840, // 13:00-14:00 instead
	}
	p := Params{Duration: 60 * time.Minute, Now: longBefore}
	slots, err := GenerateSlots(snap, p, dayBefore, dayAfter)
	if err != nil {
		t.Fatalf("GenerateSlots: %v", err)
	}
	if len(slots) != 1 {
		t.Fatalf("expected exactly the override hour, got %d slots", len(slots))
	}
	if !slots[0].Start.Equal(utc(2026, time.March, 2, 13, 0)) {
		t.Fatalf("expected 13:00 start, got %s", slots[0].Start)
	}
}

func TestGenerateSlots_BlockSubtractsFromOverrideHours(t *testing.T) {
	// Tie-break: after an override substitutes hours, partial blocks still cut.
	snap := snapshotWith(weekdaySchedule("UTC", 540, 1020))
	snap.Overrides[monday] = model.DateOverride{
		OwnerID: "owner-1", Date: monday, IsAvailable: true,
		StartTime: 540, EndTime: 660, // 09:00-11:00
	}
	snap.Blocks = []model.TimeBlock{{
		OwnerID: "owner-1", Title: "Errand",
		StartDate: monday, EndDate: monday,
		StartTime: 540, EndTime: 600, // 09:00-10:00
		BlockType: model.BlockPersonal, Recurrence: model.RecurNone,
	}}
	p := Params{Duration: 60 * time.Minute, Now: longBefore}
	slots, err := GenerateSlots(snap, p, dayBefore, dayAfter)
	if err != nil {
		t.Fatalf("GenerateSlots: %v", err)
	}
	if len(slots) != 1 || !slots[0].Start.Equal(utc(2026, time.March, 2, 10, 0)) {
		t.Fatalf("expected single 10:00 slot, got %v", slots)
	}
}

func TestGenerateSlots_BookedIntervalsExcluded(t *testing.T) {
	snap := snapshotWith(weekdaySchedule("UTC", 540, 660)) // 09:00-11:00
	// Existing booking 09:30-10:00 widened by its 15m buffers on each side.
	snap.Booked = []interval.Interval{{
		Start: utc(2026, time.March, 2, 9, 15),
		End:   utc(2026, time.March, 2, 10, 15),
	}}
	p := Params{Duration: 30 * time.Minute, Now: longBefore}
	slots, err := GenerateSlots(snap, p, dayBefore, dayAfter)
	if err != nil {
		t.Fatalf("GenerateSlots: %v", err)
	}
	// 09:00 overlaps the widened booking (09:00-09:30 vs 09:15-), 09:30 and
	// 10:00 (ends 10:30 vs widened end 10:15) overlap too; 10:30 is clear.
	if len(slots) != 1 || !slots[0].Start.Equal(utc(2026, time.March, 2, 10, 30)) {
		t.Fatalf("expected only the 10:30 slot, got %v", slots)
	}
}

func TestGenerateSlots_DurationLongerThanWindow(t *testing.T) {
	snap := snapshotWith(weekdaySchedule("UTC", 540, 570)) // 30-minute window
	p := Params{Duration: 45 * time.Minute, Now: longBefore}
	slots, err := GenerateSlots(snap, p, dayBefore, dayAfter)
	if err != nil {
		t.Fatalf("GenerateSlots: %v", err)
	}
	if len(slots) != 0 {
		t.Fatalf("window shorter than duration must yield no slots, got %v", slots)
	}
}

func TestGenerateSlots_PastSlotsDropped(t *testing.T) {
	snap := snapshotWith(weekdaySchedule("UTC", 540, 660))
	p := Params{
		Duration: 30 * time.Minute,
		// Now lands mid-window; 09:00, 09:30 and the exactly-now 10:00 drop.
		Now: utc(2026, time.March, 2, 10, 0),
	}
	slots, err := GenerateSlots(snap, p, dayBefore, dayAfter)
	if err != nil {
		t.Fatalf("GenerateSlots: %v", err)
	}
	if len(slots) != 1 || !slots[0].Start.Equal(utc(2026, time.March, 2, 10, 30)) {
		t.Fatalf("expected only the strictly-future 10:30 slot, got %v", slots)
	}
}

func TestGenerateSlots_BookingWindowCapsHorizon(t *testing.T) {
	snap := snapshotWith(weekdaySchedule("UTC", 540, 600))
	p := Params{
		Duration:          30 * time.Minute,
		BookingWindowDays: 7,
		Now:               utc(2026, time.March, 1, 0, 0),
	}
	slots, err := GenerateSlots(snap, p, dayBefore, utc(2026, time.March, 31, 0, 0))
	if err != nil {
		t.Fatalf("GenerateSlots: %v", err)
	}
	limit := utc(2026, time.March, 8, 0, 0)
	if len(slots) == 0 {
		t.Fatal("expected slots inside the booking window")
	}
	for _, s := range slots {
		if s.Start.After(limit) {
			t.Fatalf("slot %s is beyond the 7-day booking window", s.Start)
		}
	}
}

func TestGenerateSlots_SpringForwardGap(t *testing.T) {
	// Rule Sunday 01:00-04:00 in New York on 2026-03-08: 02:00-03:00 does not
	// exist. Remaining wall-clock span is 01:00-02:00 EST + 03:00-04:00 EDT,
	// a contiguous 06:00-08:00 UTC window. No crash, no negative interval.
	s := &model.AvailabilitySchedule{
		ID: "sched-dst", OwnerID: "owner-1", Timezone: "America/New_York",
		Rules: []model.AvailabilityRule{{DayOfWeek: time.Sunday, StartTime: 60, EndTime: 240}},
	}
	p := Params{Duration: 60 * time.Minute, Now: longBefore}
	slots, err := GenerateSlots(snapshotWith(s), p, utc(2026, time.March, 7, 0, 0), utc(2026, time.March, 9, 0, 0))
	if err != nil {
		t.Fatalf("GenerateSlots: %v", err)
	}
	if len(slots) != 2 {
		t.Fatalf("expected 2 one-hour slots across the gap, got %d: %v", len(slots), slots)
	}
	if !slots[0].Start.Equal(utc(2026, time.March, 8, 6, 0)) || !slots[1].Start.Equal(utc(2026, time.March, 8, 7, 0)) {
		t.Fatalf("unexpected slot starts: %v", slots)
	}
	for _, s := range slots {
		if !s.End.After(s.Start) {
			t.Fatalf("negative-length slot: %v", s)
		}
	}
}

func TestGenerateSlots_WindowStartInsideGap(t *testing.T) {
	// Rule Sunday 02:30-05:00 in New York on 2026-03-08: the window start
	// itself is skipped by the spring-forward gap. It resolves forward to
	// the transition instant 03:00 EDT (07:00 UTC), never backward into
	// Saturday evening.
	s := &model.AvailabilitySchedule{
		ID: "sched-dst", OwnerID: "owner-1", Timezone: "America/New_York",
		Rules: []model.AvailabilityRule{{DayOfWeek: time.Sunday, StartTime: 150, EndTime: 300}},
	}
	p := Params{Duration: 60 * time.Minute, Now: longBefore}
	slots, err := GenerateSlots(snapshotWith(s), p, utc(2026, time.March, 7, 0, 0), utc(2026, time.March, 9, 0, 0))
	if err != nil {
		t.Fatalf("GenerateSlots: %v", err)
	}
	firstValid := utc(2026, time.March, 8, 7, 0)
	if len(slots) != 2 {
		t.Fatalf("expected 2 slots after the gap, got %d: %v", len(slots), slots)
	}
	for _, sl := range slots {
		if sl.Start.Before(firstValid) {
			t.Fatalf("slot %v starts before the first valid instant %s", sl, firstValid)
		}
	}
	if !slots[0].Start.Equal(firstValid) || !slots[1].Start.Equal(utc(2026, time.March, 8, 8, 0)) {
		t.Fatalf("unexpected slot starts: %v", slots)
	}
}

func TestGenerateSlots_OwnerZoneDayIteration(t *testing.T) {
	// Rules are wall-clock in the owner's zone, so days iterate there:
	// Monday 09:00 in Kolkata is 03:30 UTC on Monday.
	s := &model.AvailabilitySchedule{
		ID: "sched-ist", OwnerID: "owner-1", Timezone: "Asia/Kolkata",
		Rules: []model.AvailabilityRule{{DayOfWeek: time.Monday, StartTime: 540, EndTime: 600}},
	}
	p := Params{Duration: 60 * time.Minute, Now: longBefore}
	slots, err := GenerateSlots(snapshotWith(s), p, utc(2026, time.March, 1, 0, 0), utc(2026, time.March, 3, 0, 0))
	if err != nil {
		t.Fatalf("GenerateSlots: %v", err)
	}
	if len(slots) != 1 || !slots[0].Start.Equal(utc(2026, time.March, 2, 3, 30)) {
		t.Fatalf("expected 03:30 UTC Monday slot, got %v", slots)
	}
}

func TestGenerateSlots_SlotContainment(t *testing.T) {
	snap := snapshotWith(weekdaySchedule("UTC", 540, 1020))
	snap.Blocks = []model.TimeBlock{{
		OwnerID: "owner-1", StartDate: monday, EndDate: monday,
		StartTime: 720, EndTime: 780, // 12:00-13:00
		BlockType: model.BlockPersonal, Recurrence: model.RecurNone,
	}}
	snap.Booked = []interval.Interval{{
		Start: utc(2026, time.March, 2, 14, 0),
		End:   utc(2026, time.March, 2, 15, 0),
	}}
	p := Params{Duration: 30 * time.Minute, Now: longBefore}
	slots, err := GenerateSlots(snap, p, dayBefore, dayAfter)
	if err != nil {
		t.Fatalf("GenerateSlots: %v", err)
	}
	loc, _ := civil.LoadZone("UTC")
	windows := DayWindows(snap, monday, loc)
	for _, s := range slots {
		inWindow := false
		for _, w := range windows {
			if w.Contains(s) {
				inWindow = true
			}
		}
		if !inWindow {
			t.Fatalf("slot %v escapes every availability window", s)
		}
		if interval.OverlapsAny(s, snap.Booked) {
			t.Fatalf("slot %v overlaps a booked interval", s)
		}
	}
}

func TestContainsSlot(t *testing.T) {
	snap := snapshotWith(weekdaySchedule("UTC", 540, 660))
	p := Params{Duration: 30 * time.Minute, Now: longBefore}

	good := interval.Interval{Start: utc(2026, time.March, 2, 9, 30), End: utc(2026, time.March, 2, 10, 0)}
	if err := ContainsSlot(snap, p, good); err != nil {
		t.Fatalf("in-window slot rejected: %v", err)
	}

	outside := interval.Interval{Start: utc(2026, time.March, 2, 12, 0), End: utc(2026, time.March, 2, 12, 30)}
	if err := ContainsSlot(snap, p, outside); err == nil {
		t.Fatal("slot outside availability should be rejected")
	} else if model.ErrorKind(err) != model.KindOutsideAvailability {
		t.Fatalf("expected outside_availability, got %v", err)
	}

	snap.Booked = []interval.Interval{good}
	err := ContainsSlot(snap, p, good)
	if err == nil {
		t.Fatal("slot overlapping a booking should be rejected")
	}
	if model.ErrorKind(err) != model.KindSlotTaken {
		t.Fatalf("expected slot_taken, got %v", err)
	}

	wrongLen := interval.Interval{Start: good.Start, End: good.Start.Add(45 * time.Minute)}
	if err := ContainsSlot(snap, Params{Duration: 30 * time.Minute, Now: longBefore}, wrongLen); model.ErrorKind(err) != model.KindValidation {
		t.Fatalf("expected validation error for wrong duration, got %v", err)
	}
}

func TestContainsSlot_OffGridInsideWindow(t *testing.T) {
	// Admission does not re-derive the slot grid: a slot the invitee was
	// quoted before an owner edit shifted the windows is still admitted as
	// long as it fits an open window and collides with nothing.
	snap := snapshotWith(weekdaySchedule("UTC", 540, 660))
	p := Params{Duration: 30 * time.Minute, Now: longBefore}

	offGrid := interval.Interval{Start: utc(2026, time.March, 2, 9, 5), End: utc(2026, time.March, 2, 9, 35)}
	if err := ContainsSlot(snap, p, offGrid); err != nil {
		t.Fatalf("off-grid in-window slot rejected: %v", err)
	}
}
