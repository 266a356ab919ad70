package metrics

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/segmentio/kafka-go"
	"github.com/shuttercraft/studiobook/libs/db"
	"github.com/shuttercraft/studiobook/libs/kafkax"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sessionMessage(topic, eventID, body string) kafka.Message {
	return kafka.Message{
		Topic:   topic,
		Value:   []byte(body),
		Headers: kafkax.MetaHeaders(kafkax.EventMeta{EventID: eventID, EventType: topic}),
	}
}

const bookedBody = `{"reservation_id":"res-1","lead_id":"lead-1","total_price_minor":37500,"local_date":"2025-03-11","start_time":"2025-03-11T15:00:00Z","end_time":"2025-03-11T16:00:00Z"}`

func TestParseSessionEventBooked(t *testing.T) {
	evt, err := ParseSessionEvent(sessionMessage(TopicSessionBooked, "evt-1", bookedBody))
	require.NoError(t, err)

	assert.Equal(t, KindBooked, evt.Kind)
	assert.Equal(t, "evt-1", evt.EventID)
	assert.Equal(t, "res-1", evt.ReservationID)
	assert.Equal(t, civil.Date{Year: 2025, Month: time.March, Day: 11}, evt.Day)
	assert.Equal(t, int64(37500), evt.AmountMinor)
	assert.True(t, evt.OccurredAt.Equal(time.Date(2025, 3, 11, 15, 0, 0, 0, time.UTC)))
}

func TestParseSessionEventCancelledUsesCancelTime(t *testing.T) {
	body := `{"reservation_id":"res-1","total_price_minor":37500,"local_date":"2025-03-11","start_time":"2025-03-11T15:00:00Z","cancelled_at":"2025-03-09T12:00:00Z"}`
	evt, err := ParseSessionEvent(sessionMessage(TopicSessionCancelled, "evt-2", body))
	require.NoError(t, err)

	assert.Equal(t, KindCancelled, evt.Kind)
	assert.Equal(t, "2025-03-11", evt.Day.String())
	assert.True(t, evt.OccurredAt.Equal(time.Date(2025, 3, 9, 12, 0, 0, 0, time.UTC)))
}

func TestParseSessionEventRejectsMalformed(t *testing.T) {
	cases := map[string]kafka.Message{
		"unknown topic":     sessionMessage("studio.other.v1", "e", bookedBody),
		"not json":          sessionMessage(TopicSessionBooked, "e", "{"),
		"missing date":      sessionMessage(TopicSessionBooked, "e", `{"reservation_id":"r","start_time":"2025-03-11T15:00:00Z"}`),
		"bad date":          sessionMessage(TopicSessionBooked, "e", `{"reservation_id":"r","local_date":"11/03/2025","start_time":"2025-03-11T15:00:00Z"}`),
		"negative total":    sessionMessage(TopicSessionBooked, "e", `{"reservation_id":"r","total_price_minor":-1,"local_date":"2025-03-11","start_time":"2025-03-11T15:00:00Z"}`),
		"missing timestamp": sessionMessage(TopicSessionBooked, "e", `{"reservation_id":"r","local_date":"2025-03-11"}`),
	}
	for name, msg := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseSessionEvent(msg)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

type fakeApplier struct {
	applied []SessionEvent
	seen    map[string]bool
	err     error
}

func (f *fakeApplier) Apply(_ context.Context, evt SessionEvent) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.seen[evt.EventID] {
		return false, nil
	}
	f.seen[evt.EventID] = true
	f.applied = append(f.applied, evt)
	return true, nil
}

func TestSessionEventHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := &fakeApplier{seen: map[string]bool{}}
	handle := SessionEventHandler(store, logger)

	require.NoError(t, handle(context.Background(), sessionMessage(TopicSessionBooked, "evt-1", bookedBody)))
	require.NoError(t, handle(context.Background(), sessionMessage(TopicSessionBooked, "evt-1", bookedBody)))
	require.NoError(t, handle(context.Background(), sessionMessage(TopicSessionBooked, "evt-2", "not json")))
	assert.Len(t, store.applied, 1)

	store.err = errors.New("db down")
	err := handle(context.Background(), sessionMessage(TopicSessionBooked, "evt-3", bookedBody))
	assert.Error(t, err)
}

func TestDailyNetRevenue(t *testing.T) {
	d := Daily{BookedRevenueMinor: 90000, CancelledRevenueMinor: 30000}
	assert.Equal(t, int64(60000), d.NetRevenueMinor())
}

func TestMigrationFiles(t *testing.T) {
	files, err := db.MigrationFiles(migrations())
	require.NoError(t, err)
	require.Equal(t, []string{"0001_analytics_init.sql"}, files)

	b, err := fs.ReadFile(migrations(), files[0])
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(b), "studio_daily_metrics"))
	assert.True(t, strings.Contains(string(b), "inbox_events"))
}
