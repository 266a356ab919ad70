package metrics

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shuttercraft/studiobook/libs/db"
)

// Daily is one studio day's booking activity.
type Daily struct {
	Day                   civil.Date
	BookedCount           int
	CancelledCount        int
	BookedRevenueMinor    int64
	CancelledRevenueMinor int64
}

// NetRevenueMinor is booked revenue minus what was later cancelled.
func (d Daily) NetRevenueMinor() int64 {
	return d.BookedRevenueMinor - d.CancelledRevenueMinor
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Apply stores evt and bumps its day's counters in one transaction. It
// returns false when the event was already applied.
func (r *Repository) Apply(ctx context.Context, evt SessionEvent) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		INSERT INTO studio_session_events (event_id, event_type, reservation_id, local_date, amount_minor, occurred_at)
		VALUES ($1, $2, $3, $4::date, $5, $6)
		ON CONFLICT (event_id) DO NOTHING
	`, evt.EventID, string(evt.Kind), evt.ReservationID, evt.Day.String(), evt.AmountMinor, evt.OccurredAt)
	if err != nil {
		return false, fmt.Errorf("insert session event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, tx.Commit(ctx)
	}

	var bookedInc, cancelledInc int
	var bookedRev, cancelledRev int64
	switch evt.Kind {
	case KindBooked:
		bookedInc, bookedRev = 1, evt.AmountMinor
	case KindCancelled:
		cancelledInc, cancelledRev = 1, evt.AmountMinor
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO studio_daily_metrics (day, booked_count, cancelled_count, booked_revenue_minor, cancelled_revenue_minor)
		VALUES ($1::date, $2, $3, $4, $5)
		ON CONFLICT (day)
		DO UPDATE SET booked_count = studio_daily_metrics.booked_count + EXCLUDED.booked_count,
		              cancelled_count = studio_daily_metrics.cancelled_count + EXCLUDED.cancelled_count,
		              booked_revenue_minor = studio_daily_metrics.booked_revenue_minor + EXCLUDED.booked_revenue_minor,
		              cancelled_revenue_minor = studio_daily_metrics.cancelled_revenue_minor + EXCLUDED.cancelled_revenue_minor,
		              updated_at = now()
	`, evt.Day.String(), bookedInc, cancelledInc, bookedRev, cancelledRev); err != nil {
		return false, fmt.Errorf("update daily metrics: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Daily returns the stored days in [from, to], oldest first. Days with no
// activity are absent.
func (r *Repository) Daily(ctx context.Context, from, to civil.Date) ([]Daily, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT day, booked_count, cancelled_count, booked_revenue_minor, cancelled_revenue_minor
		FROM studio_daily_metrics
		WHERE day BETWEEN $1::date AND $2::date
		ORDER BY day
	`, from.String(), to.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Daily
	for rows.Next() {
		var day time.Time
		var d Daily
		if err := rows.Scan(&day, &d.BookedCount, &d.CancelledCount, &d.BookedRevenueMinor, &d.CancelledRevenueMinor); err != nil {
			return nil, err
		}
		d.Day = civil.DateOf(day)
		out = append(out, d)
	}
	return out, rows.Err()
}
