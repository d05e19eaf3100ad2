// Package availability resolves an owner's bookable windows and tiles them
// into candidate slots. Everything here is pure: callers bulk-load the
// owner's rules, overrides, blocks and bookings once per request and pass
// them in, along with an explicit "now".
package availability

import (
	"time"

	"github.com/bookloop/bookloop/internal/civil"
	"github.com/bookloop/bookloop/internal/interval"
	"github.com/bookloop/bookloop/internal/model"
)

// Snapshot is the owner state a slot computation runs over. Overrides are
// keyed by date; at most one exists per (owner, date).
type Snapshot struct {
	Schedule  *model.AvailabilitySchedule
	Overrides map[civil.Date]model.DateOverride
	Blocks    []model.TimeBlock

	// Booked holds the owner's confirmed booking intervals, each already
	// widened by that booking's own buffers. Owner-wide, across all links.
	Booked []interval.Interval
}

// DayWindows returns the open instant windows for one owner-zone calendar
// date: the weekly rule (or the date's override, which fully replaces it)
// minus every time block touching the date. The result may be empty; that is
// not an error.
func DayWindows(snap *Snapshot, date civil.Date, loc *time.Location) []interval.Interval {
	start, end, open := dayHours(snap, date)
	if !open {
		return nil
	}

	base := interval.Interval{
		Start: civil.ToInstant(date, start, loc),
		End:   civil.ToInstant(date, end, loc),
	}
	if base.IsEmpty() {
		// A DST gap can swallow the whole window.
		return nil
	}

	var cuts []interval.Interval
	for i := range snap.Blocks {
		bs, be, blocked := snap.Blocks[i].BlockedWindowOn(date)
		if !blocked {
			continue
		}
		cuts = append(cuts, interval.Interval{
			Start: civil.ToInstant(date, bs, loc),
			End:   civil.ToInstant(date, be, loc),
		})
	}
	return interval.Subtract(base, cuts)
}

// dayHours picks the wall-clock window for a date. An override fully
// replaces the rule-derived hours: an unavailable override blanks the day
// even when a rule or block would say otherwise.
func dayHours(snap *Snapshot, date civil.Date) (start, end civil.TimeOfDay, open bool) {
	if ov, ok := snap.Overrides[date]; ok {
		if !ov.IsAvailable {
			return 0, 0, false
		}
		return ov.StartTime, ov.EndTime, true
	}
	rule, ok := snap.Schedule.RuleFor(date.Weekday())
	if !ok {
		return 0, 0, false
	}
	return rule.StartTime, rule.EndTime, true
}
