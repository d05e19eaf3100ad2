package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bookloop/bookloop/internal/civil"
	"github.com/bookloop/bookloop/internal/model"
	"github.com/bookloop/bookloop/internal/storage"
)

// SettingsHandler is the owner-facing write side for availability data:
// schedules, overrides, time blocks and booking links. Authentication is
// handled upstream; the owner arrives as the X-Owner-Id header.
type SettingsHandler struct {
	schedules *storage.ScheduleRepository
	logger    *slog.Logger
}

func NewSettingsHandler(schedules *storage.ScheduleRepository, logger *slog.Logger) *SettingsHandler {
	return &SettingsHandler{schedules: schedules, logger: logger}
}

type ruleSpec struct {
	DayOfWeek int    `json:"day_of_week"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type saveScheduleRequest struct {
	ScheduleID string     `json:"schedule_id"`
	Name       string     `json:"name"`
	Timezone   string     `json:"timezone"`
	IsDefault  bool       `json:"is_default"`
	Rules      []ruleSpec `json:"rules"`
}

type scheduleResponse struct {
	ScheduleID string     `json:"schedule_id"`
	Name       string     `json:"name"`
	Timezone   string     `json:"timezone"`
	IsDefault  bool       `json:"is_default"`
	Rules      []ruleSpec `json:"rules"`
}

type overrideRequest struct {
	Date        string `json:"date"`
	IsAvailable bool   `json:"is_available"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	Label       string `json:"label"`
}

type timeBlockRequest struct {
	Title      string `json:"title"`
	StartDate  string `json:"start_date"`
	EndDate    string `json:"end_date"`
	AllDay     bool   `json:"all_day"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	BlockType  string `json:"block_type"`
	Recurrence string `json:"recurrence"`
	Notes      string `json:"notes"`
}

type timeBlockItem struct {
	BlockID    string `json:"block_id"`
	Title      string `json:"title"`
	StartDate  string `json:"start_date"`
	EndDate    string `json:"end_date"`
	AllDay     bool   `json:"all_day"`
	StartTime  string `json:"start_time,omitempty"`
	EndTime    string `json:"end_time,omitempty"`
	BlockType  string `json:"block_type"`
	Recurrence string `json:"recurrence"`
	Notes      string `json:"notes,omitempty"`
}

type createLinkRequest struct {
	Slug              string           `json:"slug"`
	Title             string           `json:"title"`
	DurationMinutes   int              `json:"duration_minutes"`
	BufferBeforeMins  int              `json:"buffer_before_minutes"`
	BufferAfterMins   int              `json:"buffer_after_minutes"`
	ScheduleID        string           `json:"schedule_id"`
	BookingWindowDays int              `json:"booking_window_days"`
	Questions         []model.Question `json:"questions"`
}

type linkItem struct {
	LinkID            string           `json:"link_id"`
	Slug              string           `json:"slug"`
	Title             string           `json:"title"`
	DurationMinutes   int              `json:"duration_minutes"`
	BufferBeforeMins  int              `json:"buffer_before_minutes"`
	BufferAfterMins   int              `json:"buffer_after_minutes"`
	ScheduleID        string           `json:"schedule_id,omitempty"`
	BookingWindowDays int              `json:"booking_window_days"`
	Questions         []model.Question `json:"questions,omitempty"`
	CreatedAt         string           `json:"created_at"`
}

// Schedules handles GET (fetch the default schedule) and PUT (create or
// replace a schedule with its weekly rules).
func (h *SettingsHandler) Schedules(w http.ResponseWriter, r *http.Request) {
	ownerID := ownerFromHeader(r)
	if ownerID == "" {
		writeValidation(w, "missing X-Owner-Id")
		return
	}
	switch r.Method {
	case http.MethodGet:
		h.getSchedule(w, r, ownerID)
	case http.MethodPut:
		h.putSchedule(w, r, ownerID)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *SettingsHandler) getSchedule(w http.ResponseWriter, r *http.Request, ownerID string) {
	var (
		s   *model.AvailabilitySchedule
		err error
	)
	if scheduleID := strings.TrimSpace(r.URL.Query().Get("schedule_id")); scheduleID != "" {
		s, err = h.schedules.GetSchedule(r.Context(), scheduleID)
	} else {
		s, err = h.schedules.GetDefaultSchedule(r.Context(), ownerID)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	if s.OwnerID != ownerID {
		writeError(w, model.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, scheduleToResponse(s))
}

func (h *SettingsHandler) putSchedule(w http.ResponseWriter, r *http.Request, ownerID string) {
	var req saveScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidation(w, "invalid json body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Timezone = strings.TrimSpace(req.Timezone)
	if req.Name == "" || req.Timezone == "" {
		writeValidation(w, "name and timezone are required")
		return
	}
	if _, err := civil.LoadZone(req.Timezone); err != nil {
		writeValidation(w, err.Error())
		return
	}

	schedule := model.AvailabilitySchedule{
		ID:        strings.TrimSpace(req.ScheduleID),
		OwnerID:   ownerID,
		Name:      req.Name,
		Timezone:  req.Timezone,
		IsDefault: req.IsDefault,
	}
	seen := map[time.Weekday]struct{}{}
	for _, rs := range req.Rules {
		if rs.DayOfWeek < 0 || rs.DayOfWeek > 6 {
			writeValidation(w, "day_of_week must be 0..6")
			return
		}
		day := time.Weekday(rs.DayOfWeek)
		if _, dup := seen[day]; dup {
			writeValidation(w, "duplicate day_of_week")
			return
		}
		seen[day] = struct{}{}
		start, end, err := parseWindow(rs.StartTime, rs.EndTime)
		if err != nil {
			writeValidation(w, err.Error())
			return
		}
		schedule.Rules = append(schedule.Rules, model.AvailabilityRule{
			DayOfWeek: day,
			StartTime: start,
			EndTime:   end,
		})
	}

	id, err := h.schedules.SaveSchedule(r.Context(), &schedule)
	if err != nil {
		h.logger.Error("schedule save failed", "err", err)
		http.Error(w, "failed to save schedule", http.StatusInternalServerError)
		return
	}
	schedule.ID = id
	writeJSON(w, http.StatusOK, scheduleToResponse(&schedule))
}

// Overrides handles PUT (upsert one date override) and DELETE (?date=).
func (h *SettingsHandler) Overrides(w http.ResponseWriter, r *http.Request) {
	ownerID := ownerFromHeader(r)
	if ownerID == "" {
		writeValidation(w, "missing X-Owner-Id")
		return
	}
	switch r.Method {
	case http.MethodPut:
		h.putOverride(w, r, ownerID)
	case http.MethodDelete:
		h.deleteOverride(w, r, ownerID)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *SettingsHandler) putOverride(w http.ResponseWriter, r *http.Request, ownerID string) {
	var req overrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidation(w, "invalid json body")
		return
	}
	date, err := civil.ParseDate(strings.TrimSpace(req.Date))
	if err != nil {
		writeValidation(w, err.Error())
		return
	}
	ov := model.DateOverride{
		OwnerID:     ownerID,
		Date:        date,
		IsAvailable: req.IsAvailable,
		Label:       strings.TrimSpace(req.Label),
	}
	if req.IsAvailable {
		start, end, err := parseWindow(req.StartTime, req.EndTime)
		if err != nil {
			writeValidation(w, err.Error())
			return
		}
		ov.StartTime, ov.EndTime = start, end
	}

	id, err := h.schedules.UpsertOverride(r.Context(), &ov)
	if err != nil {
		h.logger.Error("override upsert failed", "err", err)
		http.Error(w, "failed to save override", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"override_id": id,
		"date":        date.String(),
	})
}

func (h *SettingsHandler) deleteOverride(w http.ResponseWriter, r *http.Request, ownerID string) {
	date, err := civil.ParseDate(strings.TrimSpace(r.URL.Query().Get("date")))
	if err != nil {
		writeValidation(w, err.Error())
		return
	}
	if err := h.schedules.DeleteOverride(r.Context(), ownerID, date); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TimeBlocks handles POST (create), GET (list from today) and DELETE (?id=).
func (h *SettingsHandler) TimeBlocks(w http.ResponseWriter, r *http.Request) {
	ownerID := ownerFromHeader(r)
	if ownerID == "" {
		writeValidation(w, "missing X-Owner-Id")
		return
	}
	switch r.Method {
	case http.MethodPost:
		h.postTimeBlock(w, r, ownerID)
	case http.MethodGet:
		h.listTimeBlocks(w, r, ownerID)
	case http.MethodDelete:
		h.deleteTimeBlock(w, r, ownerID)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *SettingsHandler) postTimeBlock(w http.ResponseWriter, r *http.Request, ownerID string) {
	var req timeBlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidation(w, "invalid json body")
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		writeValidation(w, "title is required")
		return
	}
	startDate, err := civil.ParseDate(strings.TrimSpace(req.StartDate))
	if err != nil {
		writeValidation(w, "invalid start_date: "+err.Error())
		return
	}
	endDate, err := civil.ParseDate(strings.TrimSpace(req.EndDate))
	if err != nil {
		writeValidation(w, "invalid end_date: "+err.Error())
		return
	}
	if endDate.Before(startDate) {
		writeValidation(w, "end_date is before start_date")
		return
	}

	block := model.TimeBlock{
		OwnerID:    ownerID,
		Title:      req.Title,
		StartDate:  startDate,
		EndDate:    endDate,
		AllDay:     req.AllDay,
		BlockType:  model.BlockType(strings.TrimSpace(req.BlockType)),
		Recurrence: model.Recurrence(strings.TrimSpace(req.Recurrence)),
		Notes:      strings.TrimSpace(req.Notes),
	}
	if block.BlockType == "" {
		block.BlockType = model.BlockCustom
	}
	if block.Recurrence == "" {
		block.Recurrence = model.RecurNone
	}
	if !model.ValidBlockType(block.BlockType) {
		writeValidation(w, "invalid block_type")
		return
	}
	if !model.ValidRecurrence(block.Recurrence) {
		writeValidation(w, "invalid recurrence")
		return
	}
	if !block.AllDay {
		start, end, err := parseWindow(req.StartTime, req.EndTime)
		if err != nil {
			writeValidation(w, err.Error())
			return
		}
		block.StartTime, block.EndTime = start, end
	}

	id, err := h.schedules.CreateBlock(r.Context(), &block)
	if err != nil {
		h.logger.Error("time block create failed", "err", err)
		http.Error(w, "failed to create time block", http.StatusInternalServerError)
		return
	}
	block.ID = id
	writeJSON(w, http.StatusCreated, blockToItem(&block))
}

func (h *SettingsHandler) listTimeBlocks(w http.ResponseWriter, r *http.Request, ownerID string) {
	from := civil.DateOf(time.Now(), time.UTC)
	if raw := strings.TrimSpace(r.URL.Query().Get("from")); raw != "" {
		d, err := civil.ParseDate(raw)
		if err != nil {
			writeValidation(w, err.Error())
			return
		}
		from = d
	}
	blocks, err := h.schedules.ListBlocks(r.Context(), ownerID, from)
	if err != nil {
		http.Error(w, "failed to list time blocks", http.StatusInternalServerError)
		return
	}
	items := make([]timeBlockItem, 0, len(blocks))
	for i := range blocks {
		items = append(items, blockToItem(&blocks[i]))
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *SettingsHandler) deleteTimeBlock(w http.ResponseWriter, r *http.Request, ownerID string) {
	blockID := strings.TrimSpace(r.URL.Query().Get("id"))
	if blockID == "" {
		writeValidation(w, "id is required")
		return
	}
	if err := h.schedules.DeleteBlock(r.Context(), ownerID, blockID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Links handles POST (create a booking link) and GET (list).
func (h *SettingsHandler) Links(w http.ResponseWriter, r *http.Request) {
	ownerID := ownerFromHeader(r)
	if ownerID == "" {
		writeValidation(w, "missing X-Owner-Id")
		return
	}
	switch r.Method {
	case http.MethodPost:
		h.postLink(w, r, ownerID)
	case http.MethodGet:
		h.listLinks(w, r, ownerID)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *SettingsHandler) postLink(w http.ResponseWriter, r *http.Request, ownerID string) {
	var req createLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidation(w, "invalid json body")
		return
	}
	req.Slug = strings.TrimSpace(req.Slug)
	req.Title = strings.TrimSpace(req.Title)
	if req.Slug == "" || req.Title == "" {
		writeValidation(w, "slug and title are required")
		return
	}
	if req.DurationMinutes <= 0 {
		writeValidation(w, "duration_minutes must be positive")
		return
	}
	if req.BufferBeforeMins < 0 || req.BufferAfterMins < 0 {
		writeValidation(w, "buffers must not be negative")
		return
	}
	if req.BookingWindowDays <= 0 {
		req.BookingWindowDays = 60
	}
	for i := range req.Questions {
		if err := req.Questions[i].Validate(); err != nil {
			writeValidation(w, err.Error())
			return
		}
	}

	link := model.BookingLink{
		OwnerID:           ownerID,
		Slug:              req.Slug,
		Title:             req.Title,
		DurationMinutes:   req.DurationMinutes,
		BufferBeforeMins:  req.BufferBeforeMins,
		BufferAfterMins:   req.BufferAfterMins,
		ScheduleID:        strings.TrimSpace(req.ScheduleID),
		BookingWindowDays: req.BookingWindowDays,
		Questions:         req.Questions,
	}
	id, err := h.schedules.CreateLink(r.Context(), &link)
	if err != nil {
		h.logger.Error("link create failed", "err", err)
		http.Error(w, "failed to create link", http.StatusInternalServerError)
		return
	}
	link.ID = id
	link.CreatedAt = time.Now().UTC()
	writeJSON(w, http.StatusCreated, linkToItem(&link))
}

func (h *SettingsHandler) listLinks(w http.ResponseWriter, r *http.Request, ownerID string) {
	links, err := h.schedules.ListLinks(r.Context(), ownerID, 100)
	if err != nil {
		http.Error(w, "failed to list links", http.StatusInternalServerError)
		return
	}
	items := make([]linkItem, 0, len(links))
	for i := range links {
		items = append(items, linkToItem(&links[i]))
	}
	writeJSON(w, http.StatusOK, items)
}

func parseWindow(startStr, endStr string) (civil.TimeOfDay, civil.TimeOfDay, error) {
	start, err := civil.ParseTimeOfDay(strings.TrimSpace(startStr))
	if err != nil {
		return 0, 0, err
	}
	end, err := civil.ParseTimeOfDay(strings.TrimSpace(endStr))
	if err != nil {
		return 0, 0, err
	}
	if end <= start {
		return 0, 0, &model.ValidationError{Message: "end_time must be after start_time"}
	}
	return start, end, nil
}

func scheduleToResponse(s *model.AvailabilitySchedule) scheduleResponse {
	resp := scheduleResponse{
		ScheduleID: s.ID,
		Name:       s.Name,
		Timezone:   s.Timezone,
		IsDefault:  s.IsDefault,
		Rules:      make([]ruleSpec, 0, len(s.Rules)),
	}
	for _, rule := range s.Rules {
		resp.Rules = append(resp.Rules, ruleSpec{
			DayOfWeek: int(rule.DayOfWeek),
			StartTime: rule.StartTime.String(),
			EndTime:   rule.EndTime.String(),
		})
	}
	return resp
}

func blockToItem(b *model.TimeBlock) timeBlockItem {
	item := timeBlockItem{
		BlockID:    b.ID,
		Title:      b.Title,
		StartDate:  b.StartDate.String(),
		EndDate:    b.EndDate.String(),
		AllDay:     b.AllDay,
		BlockType:  string(b.BlockType),
		Recurrence: string(b.Recurrence),
		Notes:      b.Notes,
	}
	if !b.AllDay {
		item.StartTime = b.StartTime.String()
		item.EndTime = b.EndTime.String()
	}
	return item
}

func linkToItem(l *model.BookingLink) linkItem {
	return linkItem{
		LinkID:            l.ID,
		Slug:              l.Slug,
		Title:             l.Title,
		DurationMinutes:   l.DurationMinutes,
		BufferBeforeMins:  l.BufferBeforeMins,
		BufferAfterMins:   l.BufferAfterMins,
		ScheduleID:        l.ScheduleID,
		BookingWindowDays: l.BookingWindowDays,
		Questions:         l.Questions,
		CreatedAt:         l.CreatedAt.UTC().Format(time.RFC3339),
	}
}
