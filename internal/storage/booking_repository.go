package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/bookloop/bookloop/internal/civil"
	"github.com/bookloop/bookloop/internal/model"
	"github.com/bookloop/bookloop/libs/db"
)

type BookingRepository struct {
	pool *db.Pool
}

func NewBookingRepository(pool *db.Pool) *BookingRepository {
	return &BookingRepository{pool: pool}
}

func (r *BookingRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// AcquireAdmissionLock serializes booking admission per (owner, local date):
// overlap can only occur within one owner on one day, so that is the
// smallest key that captures the conflict. The advisory lock is released at
// transaction end.
func (r *BookingRepository) AcquireAdmissionLock(ctx context.Context, tx pgx.Tx, ownerID string, date civil.Date) error {
	_, err := tx.Exec(ctx, `
		SELECT pg_advisory_xact_lock(hashtextextended($1, 0))
	`, ownerID+"/"+date.String())
	return err
}

// ListConfirmedBookings returns the owner's confirmed bookings whose raw
// intervals intersect [from, to). Owner-wide, across all links: the
// no-double-booking invariant is not scoped to one link.
func (r *BookingRepository) ListConfirmedBookings(ctx context.Context, q Queryer, ownerID string, from, to time.Time) ([]model.Booking, error) {
	rows, err := q.Query(ctx, `
		SELECT id::text, link_id::text, owner_id, start_time, end_time,
			buffer_before_minutes, buffer_after_minutes,
			invitee_name, invitee_email, timezone, status, created_at
		FROM bookings
		WHERE owner_id = $1
			AND status = 'confirmed'
			AND start_time < $3
			AND end_time > $2
		ORDER BY start_time
	`, ownerID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Booking
	for rows.Next() {
		var b model.Booking
		if err := rows.Scan(&b.ID, &b.LinkID, &b.OwnerID, &b.StartTime, &b.EndTime,
			&b.BufferBeforeMins, &b.BufferAfterMins,
			&b.InviteeName, &b.InviteeEmail, &b.Timezone, &b.Status, &b.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// Queryer is satisfied by both the pool and a transaction.
type Queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *BookingRepository) Pool() Queryer { return r.pool }

// Create inserts a confirmed booking. The bookings table carries an
// exclusion constraint on (owner_id, [start_time, end_time)) for confirmed
// rows, so a racing insert that slipped past revalidation still surfaces as
// IsConflict.
func (r *BookingRepository) Create(ctx context.Context, tx pgx.Tx, b *model.Booking) (string, error) {
	id := uuid.NewString()
	answers, err := json.Marshal(b.Answers)
	if err != nil {
		return "", err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO bookings
			(id, link_id, owner_id, start_time, end_time, buffer_before_minutes,
			 buffer_after_minutes, invitee_name, invitee_email, timezone, status, answers)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, id, b.LinkID, b.OwnerID, b.StartTime, b.EndTime, b.BufferBeforeMins,
		b.BufferAfterMins, b.InviteeName, b.InviteeEmail, b.Timezone, b.Status, answers)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *BookingRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, ownerID, bookingID string) (model.Booking, error) {
	var b model.Booking
	var cancelledAt *time.Time
	err := tx.QueryRow(ctx, `
		SELECT id::text, link_id::text, owner_id, start_time, end_time,
			buffer_before_minutes, buffer_after_minutes,
			invitee_name, invitee_email, timezone, status, cancelled_at, created_at
		FROM bookings
		WHERE id = $1 AND owner_id = $2
		FOR UPDATE
	`, bookingID, ownerID).Scan(&b.ID, &b.LinkID, &b.OwnerID, &b.StartTime, &b.EndTime,
		&b.BufferBeforeMins, &b.BufferAfterMins,
		&b.InviteeName, &b.InviteeEmail, &b.Timezone, &b.Status, &cancelledAt, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Booking{}, model.ErrNotFound
		}
		return model.Booking{}, err
	}
	b.CancelledAt = cancelledAt
	return b, nil
}

func (r *BookingRepository) Cancel(ctx context.Context, tx pgx.Tx, ownerID, bookingID string) (time.Time, error) {
	var cancelledAt time.Time
	err := tx.QueryRow(ctx, `
		UPDATE bookings
		SET status = 'cancelled',
			cancelled_at = now()
		WHERE id = $1 AND owner_id = $2
		RETURNING cancelled_at
	`, bookingID, ownerID).Scan(&cancelledAt)
	return cancelledAt, err
}

func (r *BookingRepository) ListByOwner(ctx context.Context, ownerID string, limit int) ([]model.Booking, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, link_id::text, owner_id, start_time, end_time,
			buffer_before_minutes, buffer_after_minutes,
			invitee_name, invitee_email, timezone, status, cancelled_at, created_at
		FROM bookings
		WHERE owner_id = $1
		ORDER BY start_time DESC
		LIMIT $2
	`, ownerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Booking
	for rows.Next() {
		var b model.Booking
		var cancelledAt *time.Time
		if err := rows.Scan(&b.ID, &b.LinkID, &b.OwnerID, &b.StartTime, &b.EndTime,
			&b.BufferBeforeMins, &b.BufferAfterMins,
			&b.InviteeName, &b.InviteeEmail, &b.Timezone, &b.Status, &cancelledAt, &b.CreatedAt); err != nil {
			return nil, err
		}
		b.CancelledAt = cancelledAt
		out = append(out, b)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

type IdempotencyRecord struct {
	OwnerID         string
	IdempotencyKey  string
	BookingID       string
	StatusCode      int
	ResponsePayload []byte
}

// LockIdempotencyKey claims or re-reads the record for (owner, key) under
// FOR UPDATE, so a retried request replays its stored response instead of
// re-admitting.
func (r *BookingRepository) LockIdempotencyKey(ctx context.Context, tx pgx.Tx, ownerID, key string) (IdempotencyRecord, bool, error) {
	rec, err := r.selectIdempotencyForUpdate(ctx, tx, ownerID, key)
	if err == nil {
		return rec, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return IdempotencyRecord{}, false, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO booking_idempotency_keys (owner_id, idempotency_key)
		VALUES ($1, $2)
		ON CONFLICT (owner_id, idempotency_key) DO NOTHING
	`, ownerID, key)
	if err != nil {
		return IdempotencyRecord{}, false, err
	}

	rec, err = r.selectIdempotencyForUpdate(ctx, tx, ownerID, key)
	if err != nil {
		return IdempotencyRecord{}, false, err
	}
	return rec, false, nil
}

func (r *BookingRepository) FinalizeIdempotency(ctx context.Context, tx pgx.Tx, ownerID, key, bookingID string, statusCode int, response []byte) error {
	_, err := tx.Exec(ctx, `
		UPDATE booking_idempotency_keys
		SET booking_id = $3,
			status_code = $4,
			response_payload = $5,
			updated_at = now()
		WHERE owner_id = $1 AND idempotency_key = $2
	`, ownerID, key, nullableID(bookingID), statusCode, response)
	return err
}

func (r *BookingRepository) selectIdempotencyForUpdate(ctx context.Context, tx pgx.Tx, ownerID, key string) (IdempotencyRecord, error) {
	var rec IdempotencyRecord
	var responseText string
	err := tx.QueryRow(ctx, `
		SELECT owner_id,
			idempotency_key,
			COALESCE(booking_id::text, ''),
			COALESCE(status_code, 0),
			COALESCE(response_payload::text, '')
		FROM booking_idempotency_keys
		WHERE owner_id = $1 AND idempotency_key = $2
		FOR UPDATE
	`, ownerID, key).Scan(
		&rec.OwnerID,
		&rec.IdempotencyKey,
		&rec.BookingID,
		&rec.StatusCode,
		&responseText,
	)
	if err != nil {
		return IdempotencyRecord{}, err
	}
	if responseText != "" {
		rec.ResponsePayload = []byte(responseText)
	}
	return rec, nil
}

func nullableID(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}

// IsConflict reports an exclusion-constraint violation: another confirmed
// booking overlaps.
func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23P01"
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) || errors.Is(err, model.ErrNotFound)
}
