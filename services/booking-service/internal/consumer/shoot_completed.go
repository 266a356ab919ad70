package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/segmentio/kafka-go"
	"github.com/shuttercraft/studiobook/libs/kafkax"
	"github.com/shuttercraft/studiobook/services/booking-service/internal/model"
	"github.com/shuttercraft/studiobook/services/booking-service/internal/storage"
)

const TopicShootCompleted = "fieldops.shoot.completed.v1"

// Transitioner changes a reservation's status.
type Transitioner interface {
	Transition(ctx context.Context, id string, to model.ReservationStatus, reason string) (storage.Row, error)
}

type shootCompletedPayload struct {
	ReservationID string `json:"reservation_id"`
}

// ShootCompletedHandler marks the reservation named in the event as completed.
// Malformed events and reservations that can no longer complete are logged
// and dropped; store failures are returned.
func ShootCompletedHandler(store Transitioner, logger *slog.Logger) kafkax.Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		var payload shootCompletedPayload
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid event payload", "err", err, "topic", msg.Topic)
			return nil
		}
		id := strings.TrimSpace(payload.ReservationID)
		if id == "" {
			logger.Error("missing required event fields", "topic", msg.Topic)
			return nil
		}

		row, err := store.Transition(ctx, id, model.StatusCompleted, "")
		switch {
		case err == nil:
			logger.Info("reservation completed", "reservation_id", row.ID)
			return nil
		case errors.Is(err, storage.ErrNotFound), errors.Is(err, storage.ErrInvalidTransition):
			logger.Warn("shoot completion ignored", "reservation_id", id, "err", err)
			return nil
		default:
			return err
		}
	}
}
