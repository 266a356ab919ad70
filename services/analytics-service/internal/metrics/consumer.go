package metrics

import (
	"context"
	"errors"
	"log/slog"

	"github.com/segmentio/kafka-go"
	"github.com/shuttercraft/studiobook/libs/kafkax"
)

type Applier interface {
	Apply(ctx context.Context, evt SessionEvent) (bool, error)
}

// SessionEventHandler applies booked and cancelled events to daily metrics.
// Malformed events are logged and dropped; store errors are returned.
func SessionEventHandler(store Applier, logger *slog.Logger) kafkax.Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		evt, err := ParseSessionEvent(msg)
		if err != nil {
			if errors.Is(err, ErrMalformed) {
				logger.Error("invalid session event", "err", err, "topic", msg.Topic)
				return nil
			}
			return err
		}

		applied, err := store.Apply(ctx, evt)
		if err != nil {
			logger.Error("failed to apply session event", "err", err, "event_id", evt.EventID)
			return err
		}
		if !applied {
			logger.Info("session event already applied", "event_id", evt.EventID)
			return nil
		}
		logger.Info("session metric recorded", "reservation_id", evt.ReservationID, "kind", evt.Kind, "day", evt.Day.String())
		return nil
	}
}
