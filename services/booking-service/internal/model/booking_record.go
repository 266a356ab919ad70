package model

import "github.com/shuttercraft/studiobook/services/booking-service/internal/pricing"

// BookingRecord is what a successful commit produces. LeadID is opaque here and
// is attached by whoever persists the record.
type BookingRecord struct {
	ID                   string
	LeadID               string
	Slot                 Slot
	Package              pricing.PackageKind
	TotalPriceMinorUnits int64
	DurationMinutes      int
	AddOnIDs             []string
}

// Reservation views the record as a scheduled reservation.
func (b BookingRecord) Reservation() Reservation {
	return Reservation{ID: b.ID, StartTime: b.Slot.Start, EndTime: b.Slot.End, Status: StatusScheduled}
}
