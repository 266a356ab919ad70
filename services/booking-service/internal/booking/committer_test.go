package booking

import (
	"errors"
	"testing"
	"time"

	"github.com/shuttercraft/studiobook/services/booking-service/internal/model"
	"github.com/shuttercraft/studiobook/services/booking-service/internal/pricing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time { return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute) }

func classicQuote(t *testing.T, addOnIDs ...string) pricing.Quote {
	t.Helper()
	c, err := pricing.DefaultCalculator(pricing.DefaultCustomPolicy)
	require.NoError(t, err)
	req, err := c.Request(pricing.FixedPackage("classic"), 0)
	require.NoError(t, err)
	addOns, err := c.ResolveAddOns(addOnIDs)
	require.NoError(t, err)
	q, err := c.Quote(req, addOns)
	require.NoError(t, err)
	return q
}

func snapshotOf(rs ...model.Reservation) (SnapshotFunc, *int) {
	calls := 0
	return func() ([]model.Reservation, error) {
		calls++
		return rs, nil
	}, &calls
}

func TestCommit_Succeeds(t *testing.T) {
	q := classicQuote(t, "print-set")
	slot := model.Slot{Start: at(10, 0), End: at(11, 0)}
	snap, calls := snapshotOf(model.Reservation{ID: "r1", StartTime: at(11, 0), EndTime: at(12, 0), Status: model.StatusScheduled})

	rec, err := NewCommitter().Commit(slot, q, snap)
	require.NoError(t, err)
	assert.Equal(t, 1, *calls)
	assert.Equal(t, slot, rec.Slot)
	assert.Equal(t, pricing.FixedPackage("classic"), rec.Package)
	assert.Equal(t, int64(42000), rec.TotalPriceMinorUnits)
	assert.Equal(t, 60, rec.DurationMinutes)
	assert.Equal(t, []string{"print-set"}, rec.AddOnIDs)
}

func TestCommit_RaceLoserGetsConflict(t *testing.T) {
	q := classicQuote(t)
	slot := model.Slot{Start: at(10, 0), End: at(11, 0)}

	// The slot was free when listed; another client booked 10:30-11:30 since.
	snap, calls := snapshotOf(model.Reservation{ID: "winner", StartTime: at(10, 30), EndTime: at(11, 30), Status: model.StatusScheduled})

	rec, err := NewCommitter().Commit(slot, q, snap)
	require.Error(t, err)
	assert.Equal(t, 1, *calls)
	assert.True(t, errors.Is(err, ErrConflict))
	var ce *ConflictError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "winner", ce.ReservationID)
	assert.Equal(t, model.BookingRecord{}, rec)
}

func TestCommit_IgnoresInactiveReservations(t *testing.T) {
	q := classicQuote(t)
	slot := model.Slot{Start: at(10, 0), End: at(11, 0)}
	snap, _ := snapshotOf(
		model.Reservation{ID: "c", StartTime: at(10, 0), EndTime: at(11, 0), Status: model.StatusCancelled},
		model.Reservation{ID: "d", StartTime: at(10, 0), EndTime: at(11, 0), Status: model.StatusCompleted},
	)
	_, err := NewCommitter().Commit(slot, q, snap)
	assert.NoError(t, err)
}

func TestCommit_DurationMismatch(t *testing.T) {
	q := classicQuote(t)
	snap, calls := snapshotOf()
	_, err := NewCommitter().Commit(model.Slot{Start: at(10, 0), End: at(10, 30)}, q, snap)
	assert.ErrorIs(t, err, pricing.ErrInvalidRequest)
	assert.Equal(t, 1, *calls)
}

func TestCommit_SnapshotError(t *testing.T) {
	boom := errors.New("db down")
	_, err := NewCommitter().Commit(model.Slot{Start: at(10, 0), End: at(11, 0)}, classicQuote(t), func() ([]model.Reservation, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, errors.Is(err, ErrConflict))
}

func TestCommit_AddOnIDsAreCopied(t *testing.T) {
	q := classicQuote(t, "extra-look")
	snap, _ := snapshotOf()
	rec, err := NewCommitter().Commit(model.Slot{Start: at(10, 0), End: at(11, 0)}, q, snap)
	require.NoError(t, err)

	q.AddOns[0].ID = "mutated"
	assert.Equal(t, []string{"extra-look"}, rec.AddOnIDs)
}
