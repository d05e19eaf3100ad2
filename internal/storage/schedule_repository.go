package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bookloop/bookloop/internal/civil"
	"github.com/bookloop/bookloop/internal/model"
	"github.com/bookloop/bookloop/libs/db"
)

// ScheduleRepository reads and writes the owner-authored availability state:
// schedules with weekly rules, date overrides and time blocks. The engine
// only reads these; the settings surface writes them.
type ScheduleRepository struct {
	pool *db.Pool
}

func NewScheduleRepository(pool *db.Pool) *ScheduleRepository {
	return &ScheduleRepository{pool: pool}
}

func (r *ScheduleRepository) GetSchedule(ctx context.Context, scheduleID string) (*model.AvailabilitySchedule, error) {
	return r.getSchedule(ctx, `
		SELECT id::text, owner_id, name, is_default, timezone
		FROM availability_schedules
		WHERE id = $1
	`, scheduleID)
}

func (r *ScheduleRepository) GetDefaultSchedule(ctx context.Context, ownerID string) (*model.AvailabilitySchedule, error) {
	return r.getSchedule(ctx, `
		SELECT id::text, owner_id, name, is_default, timezone
		FROM availability_schedules
		WHERE owner_id = $1 AND is_default
	`, ownerID)
}

func (r *ScheduleRepository) getSchedule(ctx context.Context, query string, arg any) (*model.AvailabilitySchedule, error) {
	var s model.AvailabilitySchedule
	err := r.pool.QueryRow(ctx, query, arg).Scan(&s.ID, &s.OwnerID, &s.Name, &s.IsDefault, &s.Timezone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT day_of_week, start_minute, end_minute
		FROM availability_rules
		WHERE schedule_id = $1
		ORDER BY day_of_week
	`, s.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var day, startMin, endMin int
		if err := rows.Scan(&day, &startMin, &endMin); err != nil {
			return nil, err
		}
		s.Rules = append(s.Rules, model.AvailabilityRule{
			DayOfWeek: time.Weekday(day),
			StartTime: civil.TimeOfDay(startMin),
			EndTime:   civil.TimeOfDay(endMin),
		})
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return &s, nil
}

// SaveSchedule upserts a schedule and replaces its rule set atomically.
// Marking a schedule default clears the owner's previous default first; the
// partial unique index keeps at most one.
func (r *ScheduleRepository) SaveSchedule(ctx context.Context, s *model.AvailabilitySchedule) (string, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.IsDefault {
		if _, err := tx.Exec(ctx, `
			UPDATE availability_schedules
			SET is_default = false
			WHERE owner_id = $1 AND id <> $2
		`, s.OwnerID, s.ID); err != nil {
			return "", err
		}
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO availability_schedules (id, owner_id, name, is_default, timezone)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
			is_default = EXCLUDED.is_default,
			timezone = EXCLUDED.timezone,
			updated_at = now()
	`, s.ID, s.OwnerID, s.Name, s.IsDefault, s.Timezone); err != nil {
		return "", err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM availability_rules WHERE schedule_id = $1`, s.ID); err != nil {
		return "", err
	}
	for _, rule := range s.Rules {
		if _, err := tx.Exec(ctx, `
			INSERT INTO availability_rules (schedule_id, day_of_week, start_minute, end_minute)
			VALUES ($1, $2, $3, $4)
		`, s.ID, int(rule.DayOfWeek), int(rule.StartTime), int(rule.EndTime)); err != nil {
			return "", err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return s.ID, nil
}

// ListOverrides returns the owner's overrides for dates in [from, to].
func (r *ScheduleRepository) ListOverrides(ctx context.Context, ownerID string, from, to civil.Date) ([]model.DateOverride, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, owner_id, date, is_available, start_minute, end_minute, COALESCE(label, '')
		FROM date_overrides
		WHERE owner_id = $1 AND date BETWEEN $2::date AND $3::date
		ORDER BY date
	`, ownerID, from.String(), to.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.DateOverride
	for rows.Next() {
		var ov model.DateOverride
		var day time.Time
		var startMin, endMin int
		if err := rows.Scan(&ov.ID, &ov.OwnerID, &day, &ov.IsAvailable, &startMin, &endMin, &ov.Label); err != nil {
			return nil, err
		}
		ov.Date = civil.Date{Year: day.Year(), Month: day.Month(), Day: day.Day()}
		ov.StartTime = civil.TimeOfDay(startMin)
		ov.EndTime = civil.TimeOfDay(endMin)
		out = append(out, ov)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// UpsertOverride writes the single override for (owner, date).
func (r *ScheduleRepository) UpsertOverride(ctx context.Context, ov *model.DateOverride) (string, error) {
	if ov.ID == "" {
		ov.ID = uuid.NewString()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO date_overrides (id, owner_id, date, is_available, start_minute, end_minute, label)
		VALUES ($1, $2, $3::date, $4, $5, $6, $7)
		ON CONFLICT (owner_id, date) DO UPDATE
		SET is_available = EXCLUDED.is_available,
			start_minute = EXCLUDED.start_minute,
			end_minute = EXCLUDED.end_minute,
			label = EXCLUDED.label,
			updated_at = now()
	`, ov.ID, ov.OwnerID, ov.Date.String(), ov.IsAvailable, int(ov.StartTime), int(ov.EndTime), ov.Label)
	if err != nil {
		return "", err
	}
	return ov.ID, nil
}

func (r *ScheduleRepository) DeleteOverride(ctx context.Context, ownerID string, date civil.Date) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM date_overrides
		WHERE owner_id = $1 AND date = $2::date
	`, ownerID, date.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

// ListBlocks returns every block that could touch a date at or after from:
// recurring blocks never expire, so they are always included.
func (r *ScheduleRepository) ListBlocks(ctx context.Context, ownerID string, from civil.Date) ([]model.TimeBlock, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, owner_id, title, start_date, end_date, all_day,
			start_minute, end_minute, block_type, recurrence, COALESCE(notes, '')
		FROM time_blocks
		WHERE owner_id = $1 AND (recurrence <> 'none' OR end_date >= $2::date)
		ORDER BY start_date
	`, ownerID, from.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.TimeBlock
	for rows.Next() {
		var b model.TimeBlock
		var startDay, endDay time.Time
		var startMin, endMin int
		if err := rows.Scan(&b.ID, &b.OwnerID, &b.Title, &startDay, &endDay, &b.AllDay,
			&startMin, &endMin, &b.BlockType, &b.Recurrence, &b.Notes); err != nil {
			return nil, err
		}
		b.StartDate = civil.Date{Year: startDay.Year(), Month: startDay.Month(), Day: startDay.Day()}
		b.EndDate = civil.Date{Year: endDay.Year(), Month: endDay.Month(), Day: endDay.Day()}
		b.StartTime = civil.TimeOfDay(startMin)
		b.EndTime = civil.TimeOfDay(endMin)
		out = append(out, b)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *ScheduleRepository) CreateBlock(ctx context.Context, b *model.TimeBlock) (string, error) {
	id := uuid.NewString()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO time_blocks
			(id, owner_id, title, start_date, end_date, all_day, start_minute, end_minute, block_type, recurrence, notes)
		VALUES ($1, $2, $3, $4::date, $5::date, $6, $7, $8, $9, $10, $11)
	`, id, b.OwnerID, b.Title, b.StartDate.String(), b.EndDate.String(), b.AllDay,
		int(b.StartTime), int(b.EndTime), string(b.BlockType), string(b.Recurrence), b.Notes)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *ScheduleRepository) DeleteBlock(ctx context.Context, ownerID, blockID string) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM time_blocks
		WHERE owner_id = $1 AND id = $2
	`, ownerID, blockID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (r *ScheduleRepository) GetLink(ctx context.Context, linkID string) (*model.BookingLink, error) {
	var l model.BookingLink
	var scheduleID *string
	var questions []byte
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, owner_id, slug, title, duration_minutes,
			buffer_before_minutes, buffer_after_minutes, schedule_id::text,
			booking_window_days, questions, created_at
		FROM booking_links
		WHERE id = $1
	`, linkID).Scan(&l.ID, &l.OwnerID, &l.Slug, &l.Title, &l.DurationMinutes,
		&l.BufferBeforeMins, &l.BufferAfterMins, &scheduleID,
		&l.BookingWindowDays, &questions, &l.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	if scheduleID != nil {
		l.ScheduleID = *scheduleID
	}
	if len(questions) > 0 {
		if err := json.Unmarshal(questions, &l.Questions); err != nil {
			return nil, err
		}
	}
	return &l, nil
}

func (r *ScheduleRepository) CreateLink(ctx context.Context, l *model.BookingLink) (string, error) {
	id := uuid.NewString()
	questions, err := json.Marshal(l.Questions)
	if err != nil {
		return "", err
	}
	var scheduleID *string
	if l.ScheduleID != "" {
		scheduleID = &l.ScheduleID
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO booking_links
			(id, owner_id, slug, title, duration_minutes, buffer_before_minutes,
			 buffer_after_minutes, schedule_id, booking_window_days, questions)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, id, l.OwnerID, l.Slug, l.Title, l.DurationMinutes, l.BufferBeforeMins,
		l.BufferAfterMins, scheduleID, l.BookingWindowDays, questions)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *ScheduleRepository) ListLinks(ctx context.Context, ownerID string, limit int) ([]model.BookingLink, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, owner_id, slug, title, duration_minutes,
			buffer_before_minutes, buffer_after_minutes, schedule_id::text,
			booking_window_days, questions, created_at
		FROM booking_links
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, ownerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.BookingLink
	for rows.Next() {
		var l model.BookingLink
		var scheduleID *string
		var questions []byte
		if err := rows.Scan(&l.ID, &l.OwnerID, &l.Slug, &l.Title, &l.DurationMinutes,
			&l.BufferBeforeMins, &l.BufferAfterMins, &scheduleID,
			&l.BookingWindowDays, &questions, &l.CreatedAt); err != nil {
			return nil, err
		}
		if scheduleID != nil {
			l.ScheduleID = *scheduleID
		}
		if len(questions) > 0 {
			if err := json.Unmarshal(questions, &l.Questions); err != nil {
				return nil, err
			}
		}
		out = append(out, l)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}
