package model

import "time"

const (
	PollOpen   = "open"
	PollClosed = "closed"
)

// Poll is a group scheduling poll: the owner proposes candidate slots and
// invitees vote. Closing the poll (or passing its deadline) stops voting.
type Poll struct {
	ID               string
	OwnerID          string
	Title            string
	DurationMinutes  int
	Status           string
	Deadline         *time.Time
	SelectedOptionID string
	CreatedAt        time.Time
}

// AcceptsVotes reports whether the poll still takes ballots at the given
// instant.
func (p *Poll) AcceptsVotes(now time.Time) bool {
	if p.Status != PollOpen {
		return false
	}
	if p.Deadline != nil && !now.Before(*p.Deadline) {
		return false
	}
	return true
}

// PollOption is one candidate time slot.
type PollOption struct {
	ID        string
	PollID    string
	StartTime time.Time
	EndTime   time.Time
}

type VoteChoice string

const (
	VoteYes      VoteChoice = "yes"
	VoteNo       VoteChoice = "no"
	VoteIfNeeded VoteChoice = "if_needed"
)

func ValidVoteChoice(v VoteChoice) bool {
	switch v {
	case VoteYes, VoteNo, VoteIfNeeded:
		return true
	}
	return false
}

// PollVote is one voter's ballot for one option. (OptionID, VoterEmail) is
// unique; resubmission replaces the prior vote.
type PollVote struct {
	OptionID   string
	VoterName  string
	VoterEmail string
	Vote       VoteChoice
	UpdatedAt  time.Time
}

// OptionTally is the aggregated count for one option. No ranking or "best
// time" bias: raw counts only, recomputed on read.
type OptionTally struct {
	OptionID      string
	StartTime     time.Time
	EndTime       time.Time
	YesCount      int
	NoCount       int
	IfNeededCount int
	Voters        []VoterMark
}

// VoterMark is one voter's visible mark on an option.
type VoterMark struct {
	Name  string     `json:"name"`
	Email string     `json:"email"`
	Vote  VoteChoice `json:"vote"`
}
