package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bookloop/bookloop/internal/availability"
	"github.com/bookloop/bookloop/internal/civil"
	"github.com/bookloop/bookloop/internal/interval"
	"github.com/bookloop/bookloop/internal/model"
	"github.com/bookloop/bookloop/internal/outbox"
	"github.com/bookloop/bookloop/internal/storage"
)

type BookingHandler struct {
	schedules  *storage.ScheduleRepository
	bookings   *storage.BookingRepository
	outboxRepo *outbox.Repository
	logger     *slog.Logger
}

func NewBookingHandler(schedules *storage.ScheduleRepository, bookings *storage.BookingRepository, outboxRepo *outbox.Repository, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{
		schedules:  schedules,
		bookings:   bookings,
		outboxRepo: outboxRepo,
		logger:     logger,
	}
}

type slotItem struct {
	Start      string `json:"start"`
	End        string `json:"end"`
	LocalStart string `json:"local_start,omitempty"`
	LocalEnd   string `json:"local_end,omitempty"`
}

type createBookingRequest struct {
	LinkID       string         `json:"link_id"`
	StartTime    string         `json:"start_time"`
	EndTime      string         `json:"end_time"`
	Timezone     string         `json:"timezone"`
	InviteeName  string         `json:"invitee_name"`
	InviteeEmail string         `json:"invitee_email"`
	Answers      []model.Answer `json:"answers"`
}

type bookingResponse struct {
	BookingID    string `json:"booking_id"`
	LinkID       string `json:"link_id"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	InviteeName  string `json:"invitee_name"`
	InviteeEmail string `json:"invitee_email"`
	Timezone     string `json:"timezone"`
	Status       string `json:"status"`
}

type cancelBookingRequest struct {
	BookingID string `json:"booking_id"`
}

type listBookingItem struct {
	BookingID    string `json:"booking_id"`
	LinkID       string `json:"link_id"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	InviteeName  string `json:"invitee_name"`
	InviteeEmail string `json:"invitee_email"`
	Status       string `json:"status"`
	CancelledAt  string `json:"cancelled_at,omitempty"`
	CreatedAt    string `json:"created_at"`
}

// Slots is the public availability read: the open slots for a link over a
// date range, as UTC instants, with a wall-clock projection into the
// viewer's zone for display.
func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	linkID := strings.TrimSpace(r.URL.Query().Get("link_id"))
	startStr := strings.TrimSpace(r.URL.Query().Get("start_date"))
	endStr := strings.TrimSpace(r.URL.Query().Get("end_date"))
	tzName := strings.TrimSpace(r.URL.Query().Get("timezone"))
	if linkID == "" || startStr == "" || endStr == "" {
		writeValidation(w, "link_id, start_date and end_date are required")
		return
	}
	startDate, err := civil.ParseDate(startStr)
	if err != nil {
		writeValidation(w, err.Error())
		return
	}
	endDate, err := civil.ParseDate(endStr)
	if err != nil {
		writeValidation(w, err.Error())
		return
	}
	if endDate.Before(startDate) {
		writeValidation(w, "end_date is before start_date")
		return
	}
	viewerLoc := time.UTC
	if tzName != "" {
		viewerLoc, err = civil.LoadZone(tzName)
		if err != nil {
			writeValidation(w, err.Error())
			return
		}
	}

	ctx := r.Context()
	link, err := h.schedules.GetLink(ctx, linkID)
	if err != nil {
		writeError(w, err)
		return
	}

	from := civil.ToInstant(startDate, 0, time.UTC)
	to := civil.ToInstant(endDate.AddDays(1), 0, time.UTC)

	snap, err := h.loadSnapshot(ctx, h.bookings.Pool(), link, from, to)
	if err != nil {
		writeError(w, err)
		return
	}

	params := availability.Params{
		Duration:          link.Duration(),
		BufferBefore:      link.BufferBefore(),
		BufferAfter:       link.BufferAfter(),
		BookingWindowDays: link.BookingWindowDays,
		// Evaluated once per call: every slot in one response is filtered
		// against the same instant.
		Now: time.Now().UTC(),
	}
	slots, err := availability.GenerateSlots(snap, params, from, to)
	if err != nil {
		writeError(w, err)
		return
	}

	items := make([]slotItem, 0, len(slots))
	for _, s := range slots {
		item := slotItem{
			Start: s.Start.UTC().Format(time.RFC3339),
			End:   s.End.UTC().Format(time.RFC3339),
		}
		if viewerLoc != time.UTC {
			item.LocalStart = s.Start.In(viewerLoc).Format("2006-01-02T15:04:05")
			item.LocalEnd = s.End.In(viewerLoc).Format("2006-01-02T15:04:05")
		}
		items = append(items, item)
	}
	writeJSON(w, http.StatusOK, items)
}

// Create admits a booking: it revalidates the requested slot against current
// availability and bookings under a per-(owner, day) advisory lock, then
// inserts inside the same transaction. Exactly one of two racing requests
// for overlapping slots commits; the other sees a slot_taken conflict.
func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidation(w, "invalid json body")
		return
	}
	req.LinkID = strings.TrimSpace(req.LinkID)
	req.InviteeName = strings.TrimSpace(req.InviteeName)
	req.InviteeEmail = strings.TrimSpace(req.InviteeEmail)
	req.Timezone = strings.TrimSpace(req.Timezone)

	if req.LinkID == "" || req.InviteeName == "" || req.InviteeEmail == "" {
		writeValidation(w, "link_id, invitee_name and invitee_email are required")
		return
	}
	if _, err := mail.ParseAddress(req.InviteeEmail); err != nil {
		writeValidation(w, "invalid invitee_email")
		return
	}
	startTime, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		writeValidation(w, "invalid start_time")
		return
	}
	endTime, err := time.Parse(time.RFC3339, req.EndTime)
	if err != nil {
		writeValidation(w, "invalid end_time")
		return
	}
	if req.Timezone == "" {
		req.Timezone = "UTC"
	}
	if _, err := civil.LoadZone(req.Timezone); err != nil {
		writeValidation(w, err.Error())
		return
	}

	ctx := r.Context()
	link, err := h.schedules.GetLink(ctx, req.LinkID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := model.ValidateAnswers(link.Questions, req.Answers); err != nil {
		writeValidation(w, err.Error())
		return
	}

	slot := interval.Interval{Start: startTime.UTC(), End: endTime.UTC()}
	now := time.Now().UTC()

	snapBounds := interval.Widen(slot, 48*time.Hour, 48*time.Hour)

	// The owner's zone decides which calendar day the slot belongs to, and
	// therefore which admission lock covers it.
	schedule, err := h.resolveSchedule(ctx, link)
	if err != nil {
		writeError(w, err)
		return
	}
	ownerLoc, err := civil.LoadZone(schedule.Timezone)
	if err != nil {
		writeError(w, &model.CivilTimeError{Reason: "schedule timezone: " + err.Error()})
		return
	}

	tx, err := h.bookings.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	idempotencyKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if idempotencyKey != "" {
		rec, exists, err := h.bookings.LockIdempotencyKey(ctx, tx, link.OwnerID, idempotencyKey)
		if err != nil {
			http.Error(w, "failed to lock idempotency key", http.StatusInternalServerError)
			return
		}
		if exists && rec.StatusCode > 0 && len(rec.ResponsePayload) > 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(rec.StatusCode)
			_, _ = w.Write(rec.ResponsePayload)
			return
		}
	}

	if err := h.bookings.AcquireAdmissionLock(ctx, tx, link.OwnerID, civil.DateOf(slot.Start, ownerLoc)); err != nil {
		http.Error(w, "failed to serialize admission", http.StatusInternalServerError)
		return
	}

	// Revalidate with bookings read inside the transaction, after the lock:
	// whatever a racing request committed is visible now.
	snap, err := h.snapshotForSchedule(ctx, tx, schedule, link.OwnerID, snapBounds.Start, snapBounds.End)
	if err != nil {
		writeError(w, err)
		return
	}
	params := availability.Params{
		Duration:          link.Duration(),
		BufferBefore:      link.BufferBefore(),
		BufferAfter:       link.BufferAfter(),
		BookingWindowDays: link.BookingWindowDays,
		Now:               now,
	}
	if err := availability.ContainsSlot(snap, params, slot); err != nil {
		if model.ErrorKind(err) == model.KindOutsideAvailability && idempotencyKey != "" {
			h.finalizeRejection(ctx, tx, link.OwnerID, idempotencyKey, err)
		}
		writeError(w, err)
		return
	}

	booking := &model.Booking{
		LinkID:           link.ID,
		OwnerID:          link.OwnerID,
		StartTime:        slot.Start,
		EndTime:          slot.End,
		BufferBeforeMins: link.BufferBeforeMins,
		BufferAfterMins:  link.BufferAfterMins,
		InviteeName:      req.InviteeName,
		InviteeEmail:     req.InviteeEmail,
		Timezone:         req.Timezone,
		Status:           model.BookingConfirmed,
		Answers:          req.Answers,
	}
	id, err := h.bookings.Create(ctx, tx, booking)
	if err != nil {
		if storage.IsConflict(err) {
			writeError(w, &model.SlotTakenError{ConflictStart: slot.Start, ConflictEnd: slot.End})
			return
		}
		h.logger.Error("booking insert failed", "err", err)
		http.Error(w, "failed to create booking", http.StatusInternalServerError)
		return
	}

	payload, err := json.Marshal(map[string]any{
		"booking_id":    id,
		"link_id":       link.ID,
		"owner_id":      link.OwnerID,
		"invitee_email": req.InviteeEmail,
		"start_time":    slot.Start.Format(time.RFC3339),
		"end_time":      slot.End.Format(time.RFC3339),
	})
	if err != nil {
		http.Error(w, "failed to build event payload", http.StatusInternalServerError)
		return
	}
	if err := h.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "booking",
		AggregateID:   id,
		EventType:     outbox.EventBookingConfirmed,
		Payload:       payload,
	}); err != nil {
		http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
		return
	}

	resp := bookingResponse{
		BookingID:    id,
		LinkID:       link.ID,
		StartTime:    slot.Start.Format(time.RFC3339),
		EndTime:      slot.End.Format(time.RFC3339),
		InviteeName:  req.InviteeName,
		InviteeEmail: req.InviteeEmail,
		Timezone:     req.Timezone,
		Status:       model.BookingConfirmed,
	}
	respBody, err := json.Marshal(resp)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	if idempotencyKey != "" {
		if err := h.bookings.FinalizeIdempotency(ctx, tx, link.OwnerID, idempotencyKey, id, http.StatusCreated, respBody); err != nil {
			http.Error(w, "failed to finalize idempotency key", http.StatusInternalServerError)
			return
		}
	}
	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(respBody)
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ownerID := ownerFromHeader(r)
	if ownerID == "" {
		writeValidation(w, "missing X-Owner-Id")
		return
	}
	var req cancelBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidation(w, "invalid json body")
		return
	}
	req.BookingID = strings.TrimSpace(req.BookingID)
	if req.BookingID == "" {
		writeValidation(w, "booking_id is required")
		return
	}

	ctx := r.Context()
	tx, err := h.bookings.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	booking, err := h.bookings.GetForUpdate(ctx, tx, ownerID, req.BookingID)
	if err != nil {
		writeError(w, err)
		return
	}
	if booking.Status == model.BookingCancelled && booking.CancelledAt != nil {
		h.writeCancelled(w, booking.ID, *booking.CancelledAt)
		return
	}

	cancelledAt, err := h.bookings.Cancel(ctx, tx, ownerID, booking.ID)
	if err != nil {
		http.Error(w, "failed to cancel booking", http.StatusInternalServerError)
		return
	}

	payload, err := json.Marshal(map[string]any{
		"booking_id":   booking.ID,
		"owner_id":     booking.OwnerID,
		"link_id":      booking.LinkID,
		"start_time":   booking.StartTime.UTC().Format(time.RFC3339),
		"end_time":     booking.EndTime.UTC().Format(time.RFC3339),
		"cancelled_at": cancelledAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		http.Error(w, "failed to build event payload", http.StatusInternalServerError)
		return
	}
	if err := h.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "booking",
		AggregateID:   booking.ID,
		EventType:     outbox.EventBookingCancelled,
		Payload:       payload,
	}); err != nil {
		http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}
	h.writeCancelled(w, booking.ID, cancelledAt)
}

func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ownerID := ownerFromHeader(r)
	if ownerID == "" {
		writeValidation(w, "missing X-Owner-Id")
		return
	}
	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	bookings, err := h.bookings.ListByOwner(r.Context(), ownerID, limit)
	if err != nil {
		http.Error(w, "failed to list bookings", http.StatusInternalServerError)
		return
	}

	items := make([]listBookingItem, 0, len(bookings))
	for _, b := range bookings {
		item := listBookingItem{
			BookingID:    b.ID,
			LinkID:       b.LinkID,
			StartTime:    b.StartTime.UTC().Format(time.RFC3339),
			EndTime:      b.EndTime.UTC().Format(time.RFC3339),
			InviteeName:  b.InviteeName,
			InviteeEmail: b.InviteeEmail,
			Status:       b.Status,
			CreatedAt:    b.CreatedAt.UTC().Format(time.RFC3339),
		}
		if b.CancelledAt != nil {
			item.CancelledAt = b.CancelledAt.UTC().Format(time.RFC3339)
		}
		items = append(items, item)
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *BookingHandler) resolveSchedule(ctx context.Context, link *model.BookingLink) (*model.AvailabilitySchedule, error) {
	if link.ScheduleID != "" {
		return h.schedules.GetSchedule(ctx, link.ScheduleID)
	}
	return h.schedules.GetDefaultSchedule(ctx, link.OwnerID)
}

// loadSnapshot bulk-reads everything a slot computation needs, once: the
// effective schedule, overrides and blocks around the range, and the
// owner's confirmed bookings widened by their own buffers.
func (h *BookingHandler) loadSnapshot(ctx context.Context, q storage.Queryer, link *model.BookingLink, from, to time.Time) (*availability.Snapshot, error) {
	schedule, err := h.resolveSchedule(ctx, link)
	if err != nil {
		return nil, err
	}
	return h.snapshotForSchedule(ctx, q, schedule, link.OwnerID, from, to)
}

func (h *BookingHandler) snapshotForSchedule(ctx context.Context, q storage.Queryer, schedule *model.AvailabilitySchedule, ownerID string, from, to time.Time) (*availability.Snapshot, error) {
	loc, err := civil.LoadZone(schedule.Timezone)
	if err != nil {
		return nil, &model.CivilTimeError{Reason: "schedule timezone: " + err.Error()}
	}

	// One day of margin on each side: owner-zone dates straddle the UTC
	// range bounds, and bookings just outside the range can push buffers in.
	fromDate := civil.DateOf(from, loc).AddDays(-1)
	toDate := civil.DateOf(to, loc).AddDays(1)

	overrides, err := h.schedules.ListOverrides(ctx, ownerID, fromDate, toDate)
	if err != nil {
		return nil, err
	}
	overrideMap := make(map[civil.Date]model.DateOverride, len(overrides))
	for _, ov := range overrides {
		overrideMap[ov.Date] = ov
	}

	blocks, err := h.schedules.ListBlocks(ctx, ownerID, fromDate)
	if err != nil {
		return nil, err
	}

	bookings, err := h.bookings.ListConfirmedBookings(ctx, q, ownerID, from.Add(-24*time.Hour), to.Add(24*time.Hour))
	if err != nil {
		return nil, err
	}
	booked := make([]interval.Interval, 0, len(bookings))
	for _, b := range bookings {
		booked = append(booked, interval.Widen(
			interval.Interval{Start: b.StartTime, End: b.EndTime},
			time.Duration(b.BufferBeforeMins)*time.Minute,
			time.Duration(b.BufferAfterMins)*time.Minute,
		))
	}

	return &availability.Snapshot{
		Schedule:  schedule,
		Overrides: overrideMap,
		Blocks:    blocks,
		Booked:    interval.Merge(booked),
	}, nil
}

func (h *BookingHandler) finalizeRejection(ctx context.Context, tx pgx.Tx, ownerID, key string, cause error) {
	body, err := json.Marshal(errorBody{Error: errorDetail{
		Kind:    model.ErrorKind(cause),
		Message: cause.Error(),
	}})
	if err != nil {
		return
	}
	if err := h.bookings.FinalizeIdempotency(ctx, tx, ownerID, key, "", http.StatusUnprocessableEntity, body); err != nil {
		h.logger.Error("failed to finalize idempotency (rejection)", "err", err)
		return
	}
	_ = tx.Commit(ctx)
}

func (h *BookingHandler) writeCancelled(w http.ResponseWriter, bookingID string, cancelledAt time.Time) {
	writeJSON(w, http.StatusOK, map[string]string{
		"booking_id":   bookingID,
		"status":       model.BookingCancelled,
		"cancelled_at": cancelledAt.UTC().Format(time.RFC3339),
	})
}
