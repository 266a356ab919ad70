package model

import (
	"fmt"
	"time"
)

type ReservationStatus string

const (
	StatusScheduled ReservationStatus = "scheduled"
	StatusCancelled ReservationStatus = "cancelled"
	StatusCompleted ReservationStatus = "completed"
)

func ParseReservationStatus(s string) (ReservationStatus, error) {
	switch st := ReservationStatus(s); st {
	case StatusScheduled, StatusCancelled, StatusCompleted:
		return st, nil
	default:
		return "", fmt.Errorf("unknown reservation status %q", s)
	}
}

// CanTransition allows only scheduled -> cancelled|completed. Terminal states stay put.
func CanTransition(from, to ReservationStatus) bool {
	return from == StatusScheduled && (to == StatusCancelled || to == StatusCompleted)
}

// Reservation is an existing booking as seen by the availability logic.
type Reservation struct {
	ID        string
	StartTime time.Time
	EndTime   time.Time
	Status    ReservationStatus
}

// Blocks reports whether the reservation occupies its interval.
func (r Reservation) Blocks() bool {
	return r.Status == StatusScheduled
}

// Slot is a candidate [Start, End) booking interval.
type Slot struct {
	Start time.Time
	End   time.Time
}

func (s Slot) Duration() time.Duration { return s.End.Sub(s.Start) }

// Overlaps uses half-open intervals: touching endpoints do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// ConflictsWith reports whether r blocks s.
func (s Slot) ConflictsWith(r Reservation) bool {
	return r.Blocks() && Overlaps(s.Start, s.End, r.StartTime, r.EndTime)
}
