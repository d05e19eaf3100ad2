package interval

import (
	"sort"
	"time"
)

// Interval is a half-open time range [Start, End). A zero-length or inverted
// interval is treated as empty everywhere in this package.
type Interval struct {
	Start time.Time
	End   time.Time
}

func (iv Interval) IsEmpty() bool {
	return !iv.End.After(iv.Start)
}

func (iv Interval) Duration() time.Duration {
	if iv.IsEmpty() {
		return 0
	}
	return iv.End.Sub(iv.Start)
}

// Contains reports whether other lies entirely within iv.
func (iv Interval) Contains(other Interval) bool {
	if iv.IsEmpty() || other.IsEmpty() {
		return false
	}
	return !other.Start.Before(iv.Start) && !other.End.After(iv.End)
}

// Overlaps reports whether two half-open intervals share any instant.
// Touching endpoints do not overlap.
func Overlaps(a, b Interval) bool {
	if a.IsEmpty() || b.IsEmpty() {
		return false
	}
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// OverlapsAny reports whether iv overlaps any interval in the list.
func OverlapsAny(iv Interval, list []Interval) bool {
	for _, other := range list {
		if Overlaps(iv, other) {
			return true
		}
	}
	return false
}

// Clip restricts iv to the bounds interval. The result may be empty.
func Clip(iv, bounds Interval) Interval {
	out := iv
	if out.Start.Before(bounds.Start) {
		out.Start = bounds.Start
	}
	if out.End.After(bounds.End) {
		out.End = bounds.End
	}
	return out
}

// Subtract removes every cut from base and returns the remaining pieces in
// ascending order. Zero-length remainders are dropped.
func Subtract(base Interval, cuts []Interval) []Interval {
	if base.IsEmpty() {
		return nil
	}

	remaining := []Interval{base}
	for _, cut := range cuts {
		if cut.IsEmpty() {
			continue
		}
		var next []Interval
		for _, piece := range remaining {
			if !Overlaps(piece, cut) {
				next = append(next, piece)
				continue
			}
			if cut.Start.After(piece.Start) {
				next = append(next, Interval{Start: piece.Start, End: cut.Start})
			}
			if cut.End.Before(piece.End) {
				next = append(next, Interval{Start: cut.End, End: piece.End})
			}
		}
		remaining = next
	}

	sort.Slice(remaining, func(i, j int) bool {
		return remaining[i].Start.Before(remaining[j].Start)
	})
	return remaining
}

// Merge coalesces overlapping or touching intervals into a minimal ascending
// list. Empty intervals are dropped.
func Merge(list []Interval) []Interval {
	var in []Interval
	for _, iv := range list {
		if !iv.IsEmpty() {
			in = append(in, iv)
		}
	}
	if len(in) == 0 {
		return nil
	}
	sort.Slice(in, func(i, j int) bool { return in[i].Start.Before(in[j].Start) })

	out := []Interval{in[0]}
	for _, iv := range in[1:] {
		last := &out[len(out)-1]
		if !iv.Start.After(last.End) {
			if iv.End.After(last.End) {
				last.End = iv.End
			}
			continue
		}
		out = append(out, iv)
	}
	return out
}

// Widen expands iv by before/after on each side. Negative paddings are ignored.
func Widen(iv Interval, before, after time.Duration) Interval {
	if before > 0 {
		iv.Start = iv.Start.Add(-before)
	}
	if after > 0 {
		iv.End = iv.End.Add(after)
	}
	return iv
}
