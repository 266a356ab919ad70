package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/shuttercraft/studiobook/services/booking-service/internal/booking"
	"github.com/shuttercraft/studiobook/services/booking-service/internal/model"
)

type BookParams struct {
	IdempotencyKey string
	Lead           Lead
	Slot           model.Slot
}

// CommitFunc produces the record to persist from a snapshot read inside the
// booking transaction.
type CommitFunc func(snapshot booking.SnapshotFunc) (model.BookingRecord, error)

type BookOutcome struct {
	Row      Row
	Replayed bool
}

// Book runs commit and the insert under a per-day advisory lock, so the
// snapshot commit sees is still current when the row is written. The
// exclusion constraint backs this up; a 23P01 is reported as a conflict.
func (r *BookingRepository) Book(ctx context.Context, p BookParams, commit CommitFunc) (BookOutcome, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return BookOutcome{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if p.IdempotencyKey != "" {
		rec, exists, err := r.LockIdempotencyKey(ctx, tx, p.IdempotencyKey)
		if err != nil {
			return BookOutcome{}, fmt.Errorf("lock idempotency key: %w", err)
		}
		if exists && rec.ReservationID != "" {
			row, err := r.get(ctx, tx, rec.ReservationID, false)
			if err != nil {
				return BookOutcome{}, err
			}
			return BookOutcome{Row: row, Replayed: true}, nil
		}
	}

	date := r.LocalDate(p.Slot.Start)
	if err := r.LockDay(ctx, tx, date); err != nil {
		return BookOutcome{}, fmt.Errorf("lock day: %w", err)
	}

	leadID, err := r.FindOrCreateLead(ctx, tx, p.Lead)
	if err != nil {
		return BookOutcome{}, fmt.Errorf("find or create lead: %w", err)
	}

	rec, err := commit(r.SnapshotFor(ctx, tx, date))
	if err != nil {
		return BookOutcome{}, err
	}
	rec.ID = uuid.NewString()
	rec.LeadID = leadID

	row, err := r.InsertBooking(ctx, tx, rec)
	if err != nil {
		if IsConflict(err) {
			return BookOutcome{}, &booking.ConflictError{Slot: rec.Slot}
		}
		return BookOutcome{}, err
	}

	evt, err := sessionBookedEvent(row)
	if err != nil {
		return BookOutcome{}, err
	}
	if err := r.outbox.Insert(ctx, tx, evt); err != nil {
		return BookOutcome{}, fmt.Errorf("insert outbox event: %w", err)
	}

	if p.IdempotencyKey != "" {
		if err := r.FinalizeIdempotency(ctx, tx, p.IdempotencyKey, row.ID, http.StatusCreated); err != nil {
			return BookOutcome{}, fmt.Errorf("finalize idempotency: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return BookOutcome{}, err
	}
	return BookOutcome{Row: row}, nil
}

// Transition moves reservation id to status. Only scheduled reservations
// move; anything else is ErrInvalidTransition. Cancellation emits an event.
func (r *BookingRepository) Transition(ctx context.Context, id string, to model.ReservationStatus, reason string) (Row, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Row{}, ErrNotFound
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Row{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	current, err := r.get(ctx, tx, id, true)
	if err != nil {
		return Row{}, err
	}
	if !model.CanTransition(current.Status, to) {
		return current, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, to)
	}

	row, err := r.UpdateStatus(ctx, tx, id, to, reason)
	if err != nil {
		return Row{}, err
	}

	if to == model.StatusCancelled {
		evt, err := sessionCancelledEvent(row)
		if err != nil {
			return Row{}, err
		}
		if err := r.outbox.Insert(ctx, tx, evt); err != nil {
			return Row{}, fmt.Errorf("insert outbox event: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Row{}, err
	}
	return row, nil
}

// IsInvalidTransition reports whether err came from a disallowed status change.
func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}
