package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shuttercraft/studiobook/libs/db"
	"github.com/shuttercraft/studiobook/services/booking-service/internal/booking"
	"github.com/shuttercraft/studiobook/services/booking-service/internal/model"
	"github.com/shuttercraft/studiobook/services/booking-service/internal/outbox"
	"github.com/shuttercraft/studiobook/services/booking-service/internal/pricing"
)

var (
	ErrNotFound          = errors.New("reservation not found")
	ErrInvalidTransition = errors.New("invalid status transition")
)

type BookingRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
	loc    *time.Location
}

// Lead is the contact that owns a reservation, matched by email.
type Lead struct {
	Email string
	Name  string
	Phone string
}

// Row is a stored reservation with its lifecycle columns.
type Row struct {
	model.BookingRecord
	LocalDate    civil.Date
	Status       model.ReservationStatus
	CancelledAt  *time.Time
	CancelReason string
	CompletedAt  *time.Time
	CreatedAt    time.Time
}

func (r Row) Reservation() model.Reservation {
	return model.Reservation{ID: r.ID, StartTime: r.Slot.Start, EndTime: r.Slot.End, Status: r.Status}
}

type IdempotencyRecord struct {
	IdempotencyKey string
	ReservationID  string
	StatusCode     int
}

// querier is satisfied by both the pool and an open transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewBookingRepository stores reservations keyed by their local date in loc.
func NewBookingRepository(pool *db.Pool, outboxRepo *outbox.Repository, loc *time.Location) *BookingRepository {
	return &BookingRepository{pool: pool, outbox: outboxRepo, loc: loc}
}

func (r *BookingRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

func (r *BookingRepository) LocalDate(t time.Time) civil.Date {
	return civil.DateOf(t.In(r.loc))
}

// LockDay serialises commits for one studio day until tx ends.
func (r *BookingRepository) LockDay(ctx context.Context, tx pgx.Tx, date civil.Date) error {
	_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "studio-day:"+date.String())
	return err
}

func (r *BookingRepository) LockIdempotencyKey(ctx context.Context, tx pgx.Tx, key string) (IdempotencyRecord, bool, error) {
	rec, err := r.selectIdempotencyForUpdate(ctx, tx, key)
	if err == nil {
		return rec, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return IdempotencyRecord{}, false, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO booking_idempotency_keys (idempotency_key)
		VALUES ($1)
		ON CONFLICT (idempotency_key) DO NOTHING
	`, key)
	if err != nil {
		return IdempotencyRecord{}, false, err
	}

	rec, err = r.selectIdempotencyForUpdate(ctx, tx, key)
	if err != nil {
		return IdempotencyRecord{}, false, err
	}
	return rec, false, nil
}

func (r *BookingRepository) FinalizeIdempotency(ctx context.Context, tx pgx.Tx, key, reservationID string, statusCode int) error {
	_, err := tx.Exec(ctx, `
		UPDATE booking_idempotency_keys
		SET reservation_id = $2,
			status_code = $3,
			updated_at = now()
		WHERE idempotency_key = $1
	`, key, reservationID, statusCode)
	return err
}

// FindOrCreateLead returns the lead for lead.Email, refreshing its name and phone.
func (r *BookingRepository) FindOrCreateLead(ctx context.Context, tx pgx.Tx, lead Lead) (string, error) {
	var id string
	err := tx.QueryRow(ctx, `
		INSERT INTO leads (email, name, phone)
		VALUES ($1, $2, $3)
		ON CONFLICT ((lower(email))) DO UPDATE
		SET name = EXCLUDED.name,
			phone = CASE WHEN EXCLUDED.phone = '' THEN leads.phone ELSE EXCLUDED.phone END,
			updated_at = now()
		RETURNING id::text
	`, lead.Email, lead.Name, lead.Phone).Scan(&id)
	return id, err
}

func (r *BookingRepository) InsertBooking(ctx context.Context, tx pgx.Tx, rec model.BookingRecord) (Row, error) {
	row := Row{BookingRecord: rec, LocalDate: r.LocalDate(rec.Slot.Start), Status: model.StatusScheduled}
	addOns := rec.AddOnIDs
	if addOns == nil {
		addOns = []string{}
	}
	err := tx.QueryRow(ctx, `
		INSERT INTO studio_reservations
			(id, lead_id, package_kind, package_key, portrait_type, people_count, add_on_ids,
			 duration_minutes, total_price_minor, local_date, start_time, end_time, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::date, $11, $12, $13)
		RETURNING created_at
	`, rec.ID, rec.LeadID, string(rec.Package.Kind), rec.Package.Key, string(rec.Package.Portrait), rec.Package.PeopleCount, addOns,
		rec.DurationMinutes, rec.TotalPriceMinorUnits, row.LocalDate.String(), rec.Slot.Start, rec.Slot.End, string(model.StatusScheduled)).Scan(&row.CreatedAt)
	if err != nil {
		return Row{}, err
	}
	return row, nil
}

const reservationColumns = `
	id::text, lead_id::text, package_kind, package_key, portrait_type, people_count, add_on_ids,
	duration_minutes, total_price_minor, local_date::text, start_time, end_time, status,
	cancelled_at, COALESCE(cancellation_reason, ''), completed_at, created_at`

func scanRow(s pgx.Row) (Row, error) {
	var (
		row       Row
		kind      string
		portrait  string
		localDate string
		status    string
	)
	err := s.Scan(
		&row.ID,
		&row.LeadID,
		&kind,
		&row.Package.Key,
		&portrait,
		&row.Package.PeopleCount,
		&row.AddOnIDs,
		&row.DurationMinutes,
		&row.TotalPriceMinorUnits,
		&localDate,
		&row.Slot.Start,
		&row.Slot.End,
		&status,
		&row.CancelledAt,
		&row.CancelReason,
		&row.CompletedAt,
		&row.CreatedAt,
	)
	if err != nil {
		return Row{}, err
	}
	row.Package.Kind = pricing.Kind(kind)
	row.Package.Portrait = pricing.PortraitType(portrait)
	if row.LocalDate, err = civil.ParseDate(localDate); err != nil {
		return Row{}, fmt.Errorf("reservation %s: %w", row.ID, err)
	}
	if row.Status, err = model.ParseReservationStatus(status); err != nil {
		return Row{}, fmt.Errorf("reservation %s: %w", row.ID, err)
	}
	return row, nil
}

// ListReservationsForDay returns every reservation, in any status, whose local
// start falls on date, ordered by start time.
func (r *BookingRepository) ListReservationsForDay(ctx context.Context, date civil.Date) ([]Row, error) {
	return r.listForDay(ctx, r.pool, date)
}

func (r *BookingRepository) listForDay(ctx context.Context, q querier, date civil.Date) ([]Row, error) {
	rows, err := q.Query(ctx, `SELECT `+reservationColumns+`
		FROM studio_reservations
		WHERE local_date = $1::date
		ORDER BY start_time ASC
	`, date.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// SnapshotFor reads the day's reservations through tx when called.
func (r *BookingRepository) SnapshotFor(ctx context.Context, tx pgx.Tx, date civil.Date) booking.SnapshotFunc {
	return func() ([]model.Reservation, error) {
		rows, err := r.listForDay(ctx, tx, date)
		if err != nil {
			return nil, err
		}
		out := make([]model.Reservation, 0, len(rows))
		for _, row := range rows {
			out = append(out, row.Reservation())
		}
		return out, nil
	}
}

func (r *BookingRepository) Get(ctx context.Context, id string) (Row, error) {
	return r.get(ctx, r.pool, id, false)
}

func (r *BookingRepository) get(ctx context.Context, q querier, id string, forUpdate bool) (Row, error) {
	sql := `SELECT ` + reservationColumns + ` FROM studio_reservations WHERE id = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	row, err := scanRow(q.QueryRow(ctx, sql, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Row{}, ErrNotFound
	}
	return row, err
}

// UpdateStatus moves a locked reservation to status. Callers check the transition first.
func (r *BookingRepository) UpdateStatus(ctx context.Context, tx pgx.Tx, id string, status model.ReservationStatus, reason string) (Row, error) {
	row, err := scanRow(tx.QueryRow(ctx, `
		UPDATE studio_reservations
		SET status = $2,
			cancelled_at = CASE WHEN $2 = 'cancelled' THEN now() ELSE cancelled_at END,
			cancellation_reason = CASE WHEN $2 = 'cancelled' THEN NULLIF($3, '') ELSE cancellation_reason END,
			completed_at = CASE WHEN $2 = 'completed' THEN now() ELSE completed_at END
		WHERE id = $1
		RETURNING `+reservationColumns, id, string(status), reason))
	if errors.Is(err, pgx.ErrNoRows) {
		return Row{}, ErrNotFound
	}
	return row, err
}

func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23P01"
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, pgx.ErrNoRows)
}

func (r *BookingRepository) selectIdempotencyForUpdate(ctx context.Context, tx pgx.Tx, key string) (IdempotencyRecord, error) {
	var rec IdempotencyRecord
	err := tx.QueryRow(ctx, `
		SELECT idempotency_key,
			COALESCE(reservation_id::text, ''),
			COALESCE(status_code, 0)
		FROM booking_idempotency_keys
		WHERE idempotency_key = $1
		FOR UPDATE
	`, key).Scan(&rec.IdempotencyKey, &rec.ReservationID, &rec.StatusCode)
	if err != nil {
		return IdempotencyRecord{}, err
	}
	return rec, nil
}
