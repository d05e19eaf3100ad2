package availability

import (
	"time"

	"github.com/bookloop/bookloop/internal/civil"
	"github.com/bookloop/bookloop/internal/interval"
	"github.com/bookloop/bookloop/internal/model"
)

// Params are the link-level knobs of one slot computation.
type Params struct {
	Duration     time.Duration
	BufferBefore time.Duration
	BufferAfter  time.Duration

	// BookingWindowDays caps how far ahead of Now a slot may start.
	// Zero means unlimited.
	BookingWindowDays int

	// Now gates out past slots. It is evaluated once by the caller, never
	// read from an ambient clock, so one response is internally consistent
	// and tests can pin it.
	Now time.Time
}

// GenerateSlots returns the open slots between from and to (UTC instants),
// ascending by start. Days are iterated in the schedule's zone, since rules
// are wall-clock in that zone. Returned slots are instants; projecting them
// into the viewer's zone is display-side work.
func GenerateSlots(snap *Snapshot, p Params, from, to time.Time) ([]interval.Interval, error) {
	if p.Duration <= 0 {
		return nil, model.Validationf("duration must be positive")
	}
	if !to.After(from) {
		return nil, nil
	}

	loc, err := civil.LoadZone(snap.Schedule.Timezone)
	if err != nil {
		return nil, &model.CivilTimeError{Reason: "schedule timezone: " + err.Error()}
	}

	horizon := to
	if p.BookingWindowDays > 0 {
		if h := p.Now.AddDate(0, 0, p.BookingWindowDays); h.Before(horizon) {
			horizon = h
		}
	}

	bounds := interval.Interval{Start: from, End: to}
	step := p.BufferBefore + p.Duration + p.BufferAfter

	var slots []interval.Interval
	first := civil.DateOf(from, loc)
	last := civil.DateOf(to, loc)
	for date := first; !date.After(last); date = date.AddDays(1) {
		for _, window := range DayWindows(snap, date, loc) {
			window = interval.Clip(window, bounds)
			slots = append(slots, tileWindow(window, p, step, snap.Booked, horizon)...)
		}
	}
	return slots, nil
}

// tileWindow lays consecutive slots into one open window. The first slot
// starts at the window start; successive starts step by bufferBefore +
// duration + bufferAfter, so adjacent slots keep both buffers between them.
// Window edges themselves need no buffer: buffers protect adjacency with
// real bookings, and booked intervals arrive pre-widened.
func tileWindow(window interval.Interval, p Params, step time.Duration, booked []interval.Interval, horizon time.Time) []interval.Interval {
	if window.IsEmpty() || window.Duration() < p.Duration {
		return nil
	}

	var out []interval.Interval
	for start := window.Start; !start.Add(p.Duration).After(window.End); start = start.Add(step) {
		if !start.After(p.Now) {
			continue
		}
		if start.After(horizon) {
			break
		}
		slot := interval.Interval{Start: start, End: start.Add(p.Duration)}
		if interval.OverlapsAny(slot, booked) {
			continue
		}
		out = append(out, slot)
	}
	return out
}

// ContainsSlot re-checks a single requested slot against the snapshot: it
// must lie inside an open window for its date and clear of every booked
// interval. This is the admission-time revalidation, restricted to the one
// relevant date.
//
// Alignment with the quoted slot grid is deliberately not re-checked. The
// grid is anchored at the window start as of quote time, and an owner edit
// between quote and booking can shift it; rejecting a slot the invitee was
// shown would surface that edit as a spurious error. Containment plus the
// overlap check already rule out double booking.
func ContainsSlot(snap *Snapshot, p Params, slot interval.Interval) error {
	if slot.IsEmpty() || slot.Duration() != p.Duration {
		return model.Validationf("slot does not match the link duration")
	}
	if !slot.Start.After(p.Now) {
		return &model.OutsideAvailabilityError{Reason: "slot start is in the past"}
	}
	if p.BookingWindowDays > 0 && slot.Start.After(p.Now.AddDate(0, 0, p.BookingWindowDays)) {
		return &model.OutsideAvailabilityError{Reason: "slot is beyond the booking window"}
	}

	loc, err := civil.LoadZone(snap.Schedule.Timezone)
	if err != nil {
		return &model.CivilTimeError{Reason: "schedule timezone: " + err.Error()}
	}

	date := civil.DateOf(slot.Start, loc)
	contained := false
	// A window can begin on the previous owner-zone date when the range
	// crosses midnight boundaries; check both.
	for _, d := range []civil.Date{date.AddDays(-1), date} {
		for _, window := range DayWindows(snap, d, loc) {
			if window.Contains(slot) {
				contained = true
				break
			}
		}
	}
	if !contained {
		return &model.OutsideAvailabilityError{}
	}

	for _, busy := range snap.Booked {
		if interval.Overlaps(slot, busy) {
			return &model.SlotTakenError{ConflictStart: busy.Start, ConflictEnd: busy.End}
		}
	}
	return nil
}
