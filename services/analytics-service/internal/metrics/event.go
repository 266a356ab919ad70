package metrics

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/segmentio/kafka-go"
	"github.com/shuttercraft/studiobook/libs/kafkax"
)

const (
	TopicSessionBooked    = "studio.session.booked.v1"
	TopicSessionCancelled = "studio.session.cancelled.v1"
)

// ErrMalformed marks events that can never be applied. Consumers drop them.
var ErrMalformed = errors.New("malformed session event")

type Kind string

const (
	KindBooked    Kind = "booked"
	KindCancelled Kind = "cancelled"
)

// SessionEvent is the part of a booking-service event that daily metrics need.
type SessionEvent struct {
	EventID       string
	Kind          Kind
	ReservationID string
	Day           civil.Date
	AmountMinor   int64
	OccurredAt    time.Time
}

type sessionPayload struct {
	ReservationID   string `json:"reservation_id"`
	TotalPriceMinor int64  `json:"total_price_minor"`
	LocalDate       string `json:"local_date"`
	StartTime       string `json:"start_time"`
	CancelledAt     string `json:"cancelled_at"`
}

// ParseSessionEvent decodes a booked or cancelled message. The day comes from
// local_date so sessions count against the studio's calendar, not UTC.
func ParseSessionEvent(msg kafka.Message) (SessionEvent, error) {
	meta := kafkax.ExtractEventMeta(msg)

	var kind Kind
	switch msg.Topic {
	case TopicSessionBooked:
		kind = KindBooked
	case TopicSessionCancelled:
		kind = KindCancelled
	default:
		return SessionEvent{}, fmt.Errorf("%w: unexpected topic %q", ErrMalformed, msg.Topic)
	}

	var p sessionPayload
	if err := json.Unmarshal(msg.Value, &p); err != nil {
		return SessionEvent{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if strings.TrimSpace(p.ReservationID) == "" || p.LocalDate == "" || meta.EventID == "" {
		return SessionEvent{}, fmt.Errorf("%w: missing required fields", ErrMalformed)
	}
	if p.TotalPriceMinor < 0 {
		return SessionEvent{}, fmt.Errorf("%w: negative total", ErrMalformed)
	}
	day, err := civil.ParseDate(p.LocalDate)
	if err != nil {
		return SessionEvent{}, fmt.Errorf("%w: local_date: %v", ErrMalformed, err)
	}

	occurredRaw := p.StartTime
	if kind == KindCancelled && p.CancelledAt != "" {
		occurredRaw = p.CancelledAt
	}
	occurredAt, err := time.Parse(time.RFC3339, occurredRaw)
	if err != nil {
		return SessionEvent{}, fmt.Errorf("%w: timestamp: %v", ErrMalformed, err)
	}

	return SessionEvent{
		EventID:       meta.EventID,
		Kind:          kind,
		ReservationID: p.ReservationID,
		Day:           day,
		AmountMinor:   p.TotalPriceMinor,
		OccurredAt:    occurredAt.UTC(),
	}, nil
}
