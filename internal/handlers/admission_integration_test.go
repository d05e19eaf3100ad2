package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bookloop/bookloop/internal/model"
	"github.com/bookloop/bookloop/internal/outbox"
	"github.com/bookloop/bookloop/internal/storage"
	"github.com/bookloop/bookloop/libs/db"
)

// openTestDB connects to the database named by DATABASE_URL and applies the
// schema. Tests calling it are skipped when the variable is unset.
func openTestDB(t *testing.T) *db.Pool {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := db.Open(ctx, url)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(pool.Close)

	schema, err := os.ReadFile("../../migrations/0001_init.sql")
	if err != nil {
		t.Fatalf("read schema: %v", err)
	}
	for _, stmt := range strings.Split(string(schema), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := pool.Exec(ctx, stmt); err != nil {
			t.Fatalf("apply schema: %v\n%s", err, stmt)
		}
	}
	return pool
}

// seedAlwaysOpenLink creates an owner whose default schedule covers every
// hour of every weekday, plus a 30-minute link with no buffers.
func seedAlwaysOpenLink(t *testing.T, pool *db.Pool) (ownerID, linkID string) {
	t.Helper()
	ctx := context.Background()
	ownerID = uuid.NewString()

	schedules := storage.NewScheduleRepository(pool)
	sched := &model.AvailabilitySchedule{
		OwnerID:   ownerID,
		Name:      "always open",
		IsDefault: true,
		Timezone:  "UTC",
	}
	for day := time.Sunday; day <= time.Saturday; day++ {
		sched.Rules = append(sched.Rules, model.AvailabilityRule{
			DayOfWeek: day, StartTime: 0, EndTime: 24 * 60,
		})
	}
	if _, err := schedules.SaveSchedule(ctx, sched); err != nil {
		t.Fatalf("save schedule: %v", err)
	}

	linkID, err := schedules.CreateLink(ctx, &model.BookingLink{
		OwnerID:           ownerID,
		Slug:              "race-" + ownerID[:8],
		Title:             "30 minute chat",
		DurationMinutes:   30,
		BookingWindowDays: 365,
	})
	if err != nil {
		t.Fatalf("create link: %v", err)
	}

	t.Cleanup(func() {
		_, _ = pool.Exec(ctx, `DELETE FROM bookings WHERE owner_id = $1`, ownerID)
		_, _ = pool.Exec(ctx, `DELETE FROM booking_links WHERE owner_id = $1`, ownerID)
		_, _ = pool.Exec(ctx, `DELETE FROM availability_schedules WHERE owner_id = $1`, ownerID)
	})
	return ownerID, linkID
}

// Concurrent requests for the same slot must admit exactly one booking; the
// per-owner-day advisory lock serializes them and the losers see slot_taken.
func TestCreateBooking_ConcurrentSameSlot(t *testing.T) {
	pool := openTestDB(t)
	_, linkID := seedAlwaysOpenLink(t, pool)

	h := NewBookingHandler(
		storage.NewScheduleRepository(pool),
		storage.NewBookingRepository(pool),
		outbox.NewRepository(pool),
		newTestLogger(),
	)

	start := time.Now().UTC().Add(48 * time.Hour).Truncate(time.Hour)
	end := start.Add(30 * time.Minute)

	const racers = 6
	codes := make([]int, racers)
	bodies := make([][]byte, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			payload, _ := json.Marshal(map[string]any{
				"link_id":       linkID,
				"start_time":    start.Format(time.RFC3339),
				"end_time":      end.Format(time.RFC3339),
				"timezone":      "UTC",
				"invitee_name":  fmt.Sprintf("Racer %d", i),
				"invitee_email": fmt.Sprintf("racer%d@example.com", i),
			})
			req := httptest.NewRequest(http.MethodPost, "/api/v1/public/bookings", bytes.NewReader(payload))
			rw := httptest.NewRecorder()
			h.Create(rw, req)
			codes[i] = rw.Code
			bodies[i] = rw.Body.Bytes()
		}(i)
	}
	wg.Wait()

	var created, conflicted int
	for i, code := range codes {
		switch code {
		case http.StatusCreated:
			created++
		case http.StatusConflict:
			conflicted++
			var body errorBody
			if err := json.Unmarshal(bodies[i], &body); err != nil {
				t.Fatalf("racer %d: bad conflict body: %v", i, err)
			}
			if body.Error.Kind != model.KindSlotTaken {
				t.Fatalf("racer %d: kind = %q, want %q", i, body.Error.Kind, model.KindSlotTaken)
			}
		default:
			t.Fatalf("racer %d: unexpected status %d: %s", i, code, bodies[i])
		}
	}
	if created != 1 {
		t.Fatalf("created = %d, want exactly 1", created)
	}
	if conflicted != racers-1 {
		t.Fatalf("conflicted = %d, want %d", conflicted, racers-1)
	}
}
