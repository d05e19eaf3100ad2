package handlers

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// Validation rejections happen before any repository call, so handlers
// constructed with nil repositories exercise those paths safely.

func newTestLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestSlotsRejectsMissingParams(t *testing.T) {
	h := NewBookingHandler(nil, nil, nil, newTestLogger())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/public/availability?link_id=abc", nil)
	rw := httptest.NewRecorder()
	h.Slots(rw, req)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rw.Code)
	}
}

func TestSlotsRejectsReversedRange(t *testing.T) {
	h := NewBookingHandler(nil, nil, nil, newTestLogger())
	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/public/availability?link_id=abc&start_date=2026-03-10&end_date=2026-03-02", nil)
	rw := httptest.NewRecorder()
	h.Slots(rw, req)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rw.Code)
	}
}

func TestSlotsRejectsUnknownTimezone(t *testing.T) {
	h := NewBookingHandler(nil, nil, nil, newTestLogger())
	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/public/availability?link_id=abc&start_date=2026-03-02&end_date=2026-03-08&timezone=Mars/Olympus", nil)
	rw := httptest.NewRecorder()
	h.Slots(rw, req)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rw.Code)
	}
}

func TestCreateBookingRejectsBadJSON(t *testing.T) {
	h := NewBookingHandler(nil, nil, nil, newTestLogger())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/public/bookings", strings.NewReader("{"))
	rw := httptest.NewRecorder()
	h.Create(rw, req)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rw.Code)
	}
}

func TestCreateBookingRejectsBadEmail(t *testing.T) {
	h := NewBookingHandler(nil, nil, nil, newTestLogger())
	body := `{"link_id":"l1","invitee_name":"Ada","invitee_email":"not-an-email",
		"start_time":"2026-03-02T09:00:00Z","end_time":"2026-03-02T09:30:00Z"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/public/bookings", strings.NewReader(body))
	rw := httptest.NewRecorder()
	h.Create(rw, req)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rw.Code)
	}
}

func TestCancelRequiresOwnerHeader(t *testing.T) {
	h := NewBookingHandler(nil, nil, nil, newTestLogger())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings/cancel", strings.NewReader(`{"booking_id":"b1"}`))
	rw := httptest.NewRecorder()
	h.Cancel(rw, req)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rw.Code)
	}
}

func TestVoteRejectsInvalidChoice(t *testing.T) {
	h := NewPollHandler(nil, nil, newTestLogger())
	body := `{"poll_id":"p1","voter_name":"Ada","voter_email":"ada@example.com",
		"votes":[{"option_id":"o1","vote":"maybe"}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/public/polls/vote", strings.NewReader(body))
	rw := httptest.NewRecorder()
	h.Vote(rw, req)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rw.Code)
	}
}

func TestVoteRejectsDuplicateOptionInBallot(t *testing.T) {
	h := NewPollHandler(nil, nil, newTestLogger())
	body := `{"poll_id":"p1","voter_name":"Ada","voter_email":"ada@example.com",
		"votes":[{"option_id":"o1","vote":"yes"},{"option_id":"o1","vote":"no"}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/public/polls/vote", strings.NewReader(body))
	rw := httptest.NewRecorder()
	h.Vote(rw, req)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rw.Code)
	}
}

func TestCreatePollRejectsEmptyOptions(t *testing.T) {
	h := NewPollHandler(nil, nil, newTestLogger())
	body := `{"title":"Team sync","duration_minutes":30,"options":[]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/polls", strings.NewReader(body))
	req.Header.Set("X-Owner-Id", "owner-1")
	rw := httptest.NewRecorder()
	h.Create(rw, req)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rw.Code)
	}
}

func TestCreatePollRejectsReversedOption(t *testing.T) {
	h := NewPollHandler(nil, nil, newTestLogger())
	body := `{"title":"Team sync","duration_minutes":30,
		"options":[{"start_time":"2026-03-02T10:00:00Z","end_time":"2026-03-02T09:00:00Z"}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/polls", strings.NewReader(body))
	req.Header.Set("X-Owner-Id", "owner-1")
	rw := httptest.NewRecorder()
	h.Create(rw, req)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rw.Code)
	}
}

func TestScheduleRejectsDuplicateWeekday(t *testing.T) {
	h := NewSettingsHandler(nil, newTestLogger())
	body := `{"name":"Default","timezone":"America/New_York","rules":[
		{"day_of_week":1,"start_time":"09:00","end_time":"17:00"},
		{"day_of_week":1,"start_time":"10:00","end_time":"18:00"}]}`
	req := httptest.NewRequest(http.MethodPut, "/api/v1/schedules", strings.NewReader(body))
	req.Header.Set("X-Owner-Id", "owner-1")
	rw := httptest.NewRecorder()
	h.Schedules(rw, req)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rw.Code)
	}
}

func TestScheduleRejectsReversedWindow(t *testing.T) {
	h := NewSettingsHandler(nil, newTestLogger())
	body := `{"name":"Default","timezone":"UTC","rules":[
		{"day_of_week":2,"start_time":"17:00","end_time":"09:00"}]}`
	req := httptest.NewRequest(http.MethodPut, "/api/v1/schedules", strings.NewReader(body))
	req.Header.Set("X-Owner-Id", "owner-1")
	rw := httptest.NewRecorder()
	h.Schedules(rw, req)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rw.Code)
	}
}

func TestTimeBlockRejectsReversedDates(t *testing.T) {
	h := NewSettingsHandler(nil, newTestLogger())
	body := `{"title":"Vacation","start_date":"2026-07-10","end_date":"2026-07-01","all_day":true}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/time-blocks", strings.NewReader(body))
	req.Header.Set("X-Owner-Id", "owner-1")
	rw := httptest.NewRecorder()
	h.TimeBlocks(rw, req)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rw.Code)
	}
}

func TestLinkRejectsQuestionWithoutOptions(t *testing.T) {
	h := NewSettingsHandler(nil, newTestLogger())
	body := `{"slug":"intro","title":"Intro call","duration_minutes":30,
		"questions":[{"id":"q1","type":"radio","label":"Topic"}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/links", strings.NewReader(body))
	req.Header.Set("X-Owner-Id", "owner-1")
	rw := httptest.NewRecorder()
	h.Links(rw, req)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rw.Code)
	}
}
