package booking

import (
	"errors"
	"fmt"
	"time"

	"github.com/shuttercraft/studiobook/services/booking-service/internal/availability"
	"github.com/shuttercraft/studiobook/services/booking-service/internal/model"
	"github.com/shuttercraft/studiobook/services/booking-service/internal/pricing"
)

var ErrConflict = errors.New("slot is no longer available")

// ConflictError names the reservation that took the slot.
type ConflictError struct {
	Slot          model.Slot
	ReservationID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("slot %s-%s conflicts with reservation %s",
		e.Slot.Start.Format(time.RFC3339), e.Slot.End.Format(time.RFC3339), e.ReservationID)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// SnapshotFunc returns the reservations for the slot's day as of now.
type SnapshotFunc func() ([]model.Reservation, error)

// Committer turns a chosen slot and a quote into a BookingRecord after
// re-checking the slot against a fresh snapshot.
type Committer struct{}

func NewCommitter() *Committer { return &Committer{} }

// Commit calls snapshot exactly once before anything else. Persisting the
// record is the caller's job; the caller must hold whatever lock makes the
// snapshot and the insert atomic.
func (c *Committer) Commit(slot model.Slot, quote pricing.Quote, snapshot SnapshotFunc) (model.BookingRecord, error) {
	reservations, err := snapshot()
	if err != nil {
		return model.BookingRecord{}, fmt.Errorf("load reservations: %w", err)
	}

	if !slot.End.After(slot.Start) {
		return model.BookingRecord{}, fmt.Errorf("%w: slot end must be after start", pricing.ErrInvalidRequest)
	}
	want := time.Duration(quote.Request.DurationMinutes) * time.Minute
	if slot.Duration() != want {
		return model.BookingRecord{}, fmt.Errorf("%w: slot is %s but quote is for %s", pricing.ErrInvalidRequest, slot.Duration(), want)
	}

	if r, blocked := availability.FirstConflict(slot, reservations); blocked {
		return model.BookingRecord{}, &ConflictError{Slot: slot, ReservationID: r.ID}
	}

	return model.BookingRecord{
		Slot:                 slot,
		Package:              quote.Request.Kind,
		TotalPriceMinorUnits: quote.TotalMinorUnits,
		DurationMinutes:      quote.Request.DurationMinutes,
		AddOnIDs:             quote.AddOnIDs(),
	}, nil
}
