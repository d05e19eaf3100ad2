package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/bookloop/bookloop/internal/model"
	"github.com/bookloop/bookloop/internal/outbox"
	"github.com/bookloop/bookloop/internal/storage"
)

type PollHandler struct {
	polls      *storage.PollRepository
	outboxRepo *outbox.Repository
	logger     *slog.Logger
}

func NewPollHandler(polls *storage.PollRepository, outboxRepo *outbox.Repository, logger *slog.Logger) *PollHandler {
	return &PollHandler{polls: polls, outboxRepo: outboxRepo, logger: logger}
}

type createPollRequest struct {
	Title           string           `json:"title"`
	DurationMinutes int              `json:"duration_minutes"`
	Deadline        string           `json:"deadline"`
	Options         []pollOptionSpec `json:"options"`
}

type pollOptionSpec struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type createPollResponse struct {
	PollID    string   `json:"poll_id"`
	OptionIDs []string `json:"option_ids"`
	Status    string   `json:"status"`
}

type voteRequest struct {
	PollID     string       `json:"poll_id"`
	VoterName  string       `json:"voter_name"`
	VoterEmail string       `json:"voter_email"`
	Votes      []ballotMark `json:"votes"`
}

type ballotMark struct {
	OptionID string `json:"option_id"`
	Vote     string `json:"vote"`
}

type closePollRequest struct {
	PollID string `json:"poll_id"`
}

type tallyResponse struct {
	PollID       string            `json:"poll_id"`
	Title        string            `json:"title"`
	Status       string            `json:"status"`
	Deadline     string            `json:"deadline,omitempty"`
	UniqueVoters int               `json:"unique_voters"`
	Options      []optionTallyItem `json:"options"`
}

type optionTallyItem struct {
	OptionID      string            `json:"option_id"`
	StartTime     string            `json:"start_time"`
	EndTime       string            `json:"end_time"`
	YesCount      int               `json:"yes_count"`
	NoCount       int               `json:"no_count"`
	IfNeededCount int               `json:"if_needed_count"`
	Voters        []model.VoterMark `json:"voters"`
}

func (h *PollHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ownerID := ownerFromHeader(r)
	if ownerID == "" {
		writeValidation(w, "missing X-Owner-Id")
		return
	}
	var req createPollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidation(w, "invalid json body")
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		writeValidation(w, "title is required")
		return
	}
	if req.DurationMinutes <= 0 {
		writeValidation(w, "duration_minutes must be positive")
		return
	}
	if len(req.Options) == 0 {
		writeValidation(w, "at least one option is required")
		return
	}

	poll := model.Poll{
		OwnerID:         ownerID,
		Title:           req.Title,
		DurationMinutes: req.DurationMinutes,
	}
	if strings.TrimSpace(req.Deadline) != "" {
		deadline, err := time.Parse(time.RFC3339, req.Deadline)
		if err != nil {
			writeValidation(w, "invalid deadline")
			return
		}
		poll.Deadline = &deadline
	}

	options := make([]model.PollOption, 0, len(req.Options))
	for _, spec := range req.Options {
		start, err := time.Parse(time.RFC3339, spec.StartTime)
		if err != nil {
			writeValidation(w, "invalid option start_time")
			return
		}
		end, err := time.Parse(time.RFC3339, spec.EndTime)
		if err != nil {
			writeValidation(w, "invalid option end_time")
			return
		}
		if !end.After(start) {
			writeValidation(w, "option end_time must be after start_time")
			return
		}
		options = append(options, model.PollOption{StartTime: start.UTC(), EndTime: end.UTC()})
	}

	id, optionIDs, err := h.polls.CreatePoll(r.Context(), &poll, options)
	if err != nil {
		h.logger.Error("poll create failed", "err", err)
		http.Error(w, "failed to create poll", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, createPollResponse{
		PollID:    id,
		OptionIDs: optionIDs,
		Status:    model.PollOpen,
	})
}

// Vote records one voter's ballot, one mark per option. The poll row is
// read FOR SHARE inside the transaction, so concurrent ballots proceed in
// parallel while a close waits for in-flight ballots and blocks new ones.
func (h *PollHandler) Vote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req voteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidation(w, "invalid json body")
		return
	}
	req.PollID = strings.TrimSpace(req.PollID)
	req.VoterName = strings.TrimSpace(req.VoterName)
	req.VoterEmail = strings.TrimSpace(strings.ToLower(req.VoterEmail))
	if req.PollID == "" || req.VoterName == "" || req.VoterEmail == "" {
		writeValidation(w, "poll_id, voter_name and voter_email are required")
		return
	}
	if _, err := mail.ParseAddress(req.VoterEmail); err != nil {
		writeValidation(w, "invalid voter_email")
		return
	}
	if len(req.Votes) == 0 {
		writeValidation(w, "at least one vote is required")
		return
	}
	seen := make(map[string]struct{}, len(req.Votes))
	for _, mark := range req.Votes {
		if !model.ValidVoteChoice(model.VoteChoice(mark.Vote)) {
			writeValidation(w, "invalid vote choice: "+mark.Vote)
			return
		}
		if _, dup := seen[mark.OptionID]; dup {
			writeValidation(w, "duplicate option in ballot")
			return
		}
		seen[mark.OptionID] = struct{}{}
	}

	ctx := r.Context()
	tx, err := h.polls.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	poll, err := h.polls.GetPollShared(ctx, tx, req.PollID)
	if err != nil {
		writeError(w, err)
		return
	}
	if !poll.AcceptsVotes(time.Now()) {
		writeError(w, model.ErrPollClosed)
		return
	}

	validOptions, err := h.polls.OptionIDs(ctx, tx, req.PollID)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	for _, mark := range req.Votes {
		if _, ok := validOptions[mark.OptionID]; !ok {
			writeValidation(w, "unknown option_id: "+mark.OptionID)
			return
		}
	}

	for _, mark := range req.Votes {
		if err := h.polls.UpsertVote(ctx, tx, &model.PollVote{
			OptionID:   mark.OptionID,
			VoterName:  req.VoterName,
			VoterEmail: req.VoterEmail,
			Vote:       model.VoteChoice(mark.Vote),
		}); err != nil {
			h.logger.Error("vote upsert failed", "err", err)
			http.Error(w, "failed to record vote", http.StatusInternalServerError)
			return
		}
	}

	payload, err := json.Marshal(map[string]any{
		"poll_id":     req.PollID,
		"owner_id":    poll.OwnerID,
		"voter_email": req.VoterEmail,
		"marks":       len(req.Votes),
	})
	if err != nil {
		http.Error(w, "failed to build event payload", http.StatusInternalServerError)
		return
	}
	if err := h.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "poll",
		AggregateID:   req.PollID,
		EventType:     outbox.EventVoteRecorded,
		Payload:       payload,
	}); err != nil {
		http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	resp, err := h.buildTally(r, poll)
	if err != nil {
		http.Error(w, "failed to load tally", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *PollHandler) Tally(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	pollID := strings.TrimSpace(r.URL.Query().Get("poll_id"))
	if pollID == "" {
		writeValidation(w, "poll_id is required")
		return
	}
	poll, err := h.polls.GetPoll(r.Context(), pollID)
	if err != nil {
		writeError(w, err)
		return
	}
	resp, err := h.buildTally(r, poll)
	if err != nil {
		http.Error(w, "failed to load tally", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *PollHandler) Close(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ownerID := ownerFromHeader(r)
	if ownerID == "" {
		writeValidation(w, "missing X-Owner-Id")
		return
	}
	var req closePollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidation(w, "invalid json body")
		return
	}
	req.PollID = strings.TrimSpace(req.PollID)
	if req.PollID == "" {
		writeValidation(w, "poll_id is required")
		return
	}
	if err := h.polls.ClosePoll(r.Context(), ownerID, req.PollID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"poll_id": req.PollID,
		"status":  model.PollClosed,
	})
}

func (h *PollHandler) buildTally(r *http.Request, poll model.Poll) (tallyResponse, error) {
	ctx := r.Context()
	tallies, err := h.polls.Tally(ctx, poll.ID)
	if err != nil {
		return tallyResponse{}, err
	}
	voters, err := h.polls.UniqueVoters(ctx, poll.ID)
	if err != nil {
		return tallyResponse{}, err
	}

	resp := tallyResponse{
		PollID:       poll.ID,
		Title:        poll.Title,
		Status:       poll.Status,
		UniqueVoters: voters,
		Options:      make([]optionTallyItem, 0, len(tallies)),
	}
	if poll.Deadline != nil {
		resp.Deadline = poll.Deadline.UTC().Format(time.RFC3339)
	}
	for _, t := range tallies {
		voterMarks := t.Voters
		if voterMarks == nil {
			voterMarks = []model.VoterMark{}
		}
		resp.Options = append(resp.Options, optionTallyItem{
			OptionID:      t.OptionID,
			StartTime:     t.StartTime.UTC().Format(time.RFC3339),
			EndTime:       t.EndTime.UTC().Format(time.RFC3339),
			YesCount:      t.YesCount,
			NoCount:       t.NoCount,
			IfNeededCount: t.IfNeededCount,
			Voters:        voterMarks,
		})
	}
	return resp, nil
}
