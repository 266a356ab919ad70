package storage

import (
	"time"

	"github.com/shuttercraft/studiobook/services/booking-service/internal/outbox"
)

const (
	AggregateReservation = "studio_reservation"

	TopicSessionBooked    = "studio.session.booked.v1"
	TopicSessionCancelled = "studio.session.cancelled.v1"
)

type SessionBookedPayload struct {
	ReservationID   string   `json:"reservation_id"`
	LeadID          string   `json:"lead_id"`
	PackageKind     string   `json:"package_kind"`
	PackageKey      string   `json:"package_key,omitempty"`
	PortraitType    string   `json:"portrait_type,omitempty"`
	PeopleCount     int      `json:"people_count,omitempty"`
	AddOnIDs        []string `json:"add_on_ids"`
	DurationMinutes int      `json:"duration_minutes"`
	TotalPriceMinor int64    `json:"total_price_minor"`
	LocalDate       string   `json:"local_date"`
	StartTime       string   `json:"start_time"`
	EndTime         string   `json:"end_time"`
}

type SessionCancelledPayload struct {
	ReservationID   string `json:"reservation_id"`
	LeadID          string `json:"lead_id"`
	TotalPriceMinor int64  `json:"total_price_minor"`
	LocalDate       string `json:"local_date"`
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time"`
	CancelledAt     string `json:"cancelled_at"`
	Reason          string `json:"reason,omitempty"`
}

func sessionBookedEvent(row Row) (outbox.Event, error) {
	addOns := row.AddOnIDs
	if addOns == nil {
		addOns = []string{}
	}
	return outbox.NewEvent(AggregateReservation, row.ID, TopicSessionBooked, SessionBookedPayload{
		ReservationID:   row.ID,
		LeadID:          row.LeadID,
		PackageKind:     string(row.Package.Kind),
		PackageKey:      row.Package.Key,
		PortraitType:    string(row.Package.Portrait),
		PeopleCount:     row.Package.PeopleCount,
		AddOnIDs:        addOns,
		DurationMinutes: row.DurationMinutes,
		TotalPriceMinor: row.TotalPriceMinorUnits,
		LocalDate:       row.LocalDate.String(),
		StartTime:       row.Slot.Start.UTC().Format(time.RFC3339),
		EndTime:         row.Slot.End.UTC().Format(time.RFC3339),
	})
}

func sessionCancelledEvent(row Row) (outbox.Event, error) {
	p := SessionCancelledPayload{
		ReservationID:   row.ID,
		LeadID:          row.LeadID,
		TotalPriceMinor: row.TotalPriceMinorUnits,
		LocalDate:       row.LocalDate.String(),
		StartTime:       row.Slot.Start.UTC().Format(time.RFC3339),
		EndTime:         row.Slot.End.UTC().Format(time.RFC3339),
		Reason:          row.CancelReason,
	}
	if row.CancelledAt != nil {
		p.CancelledAt = row.CancelledAt.UTC().Format(time.RFC3339)
	}
	return outbox.NewEvent(AggregateReservation, row.ID, TopicSessionCancelled, p)
}
