package model

import "time"

// BookingLink is a published page through which invitees book the owner.
// The slug is immutable identity within the owner's namespace; everything
// else is mutable configuration.
type BookingLink struct {
	ID                string
	OwnerID           string
	Slug              string
	Title             string
	DurationMinutes   int
	BufferBeforeMins  int
	BufferAfterMins   int
	ScheduleID        string // empty: use the owner's default schedule
	BookingWindowDays int
	Questions         []Question
	CreatedAt         time.Time
}

func (l *BookingLink) Duration() time.Duration {
	return time.Duration(l.DurationMinutes) * time.Minute
}

func (l *BookingLink) BufferBefore() time.Duration {
	return time.Duration(l.BufferBeforeMins) * time.Minute
}

func (l *BookingLink) BufferAfter() time.Duration {
	return time.Duration(l.BufferAfterMins) * time.Minute
}

const (
	BookingConfirmed = "confirmed"
	BookingCancelled = "cancelled"
)

// Booking is a committed reservation. Confirmed bookings of one owner never
// overlap, across all of the owner's links; the admission path and the
// database exclusion constraint both enforce it.
type Booking struct {
	ID               string
	LinkID           string
	OwnerID          string
	StartTime        time.Time
	EndTime          time.Time
	BufferBeforeMins int
	BufferAfterMins  int
	InviteeName      string
	InviteeEmail     string
	Timezone         string
	Status           string
	Answers          []Answer
	CancelledAt      *time.Time
	CreatedAt        time.Time
}

// Answer is an invitee's response to one of the link's custom questions.
type Answer struct {
	QuestionID string   `json:"question_id"`
	Value      string   `json:"value,omitempty"`
	Selected   []string `json:"selected,omitempty"`
}
