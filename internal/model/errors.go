package model

import (
	"errors"
	"fmt"
	"time"
)

// Error kinds surfaced on the wire. Clients branch on these, not on message
// text.
const (
	KindValidation          = "validation"
	KindSlotTaken           = "slot_taken"
	KindOutsideAvailability = "outside_availability"
	KindInvalidCivilTime    = "invalid_civil_time"
	KindPollClosed          = "poll_closed"
	KindNotFound            = "not_found"
)

var (
	// ErrPollClosed: the poll is closed or its deadline has passed. Terminal,
	// never retried.
	ErrPollClosed = errors.New("poll is closed")

	ErrNotFound = errors.New("not found")
)

// ValidationError is malformed caller input. Reported, never retried.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func Validationf(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// SlotTakenError is the expected race outcome: between slot fetch and
// submission another booking claimed an overlapping interval. The conflicting
// interval is included so the caller can re-fetch and retry.
type SlotTakenError struct {
	ConflictStart time.Time
	ConflictEnd   time.Time
}

func (e *SlotTakenError) Error() string {
	return fmt.Sprintf("slot no longer available (conflicts with %s-%s)",
		e.ConflictStart.UTC().Format(time.RFC3339), e.ConflictEnd.UTC().Format(time.RFC3339))
}

// OutsideAvailabilityError: the requested slot does not satisfy the owner's
// resolved availability (the owner may have edited rules concurrently).
type OutsideAvailabilityError struct {
	Reason string
}

func (e *OutsideAvailabilityError) Error() string {
	if e.Reason == "" {
		return "slot is outside availability"
	}
	return "slot is outside availability: " + e.Reason
}

// CivilTimeError is an owner data/config problem, such as an unknown
// timezone on a schedule. Reported rather than silently coerced.
type CivilTimeError struct {
	Reason string
}

func (e *CivilTimeError) Error() string { return e.Reason }

// ErrorKind maps an engine error to its wire kind, or "" for unexpected
// errors.
func ErrorKind(err error) string {
	var ve *ValidationError
	var ste *SlotTakenError
	var oae *OutsideAvailabilityError
	var cte *CivilTimeError
	switch {
	case errors.As(err, &ve):
		return KindValidation
	case errors.As(err, &ste):
		return KindSlotTaken
	case errors.As(err, &oae):
		return KindOutsideAvailability
	case errors.As(err, &cte):
		return KindInvalidCivilTime
	case errors.Is(err, ErrPollClosed):
		return KindPollClosed
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	}
	return ""
}
