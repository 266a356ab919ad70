package availability

import (
	"fmt"
	"time"

	"github.com/shuttercraft/studiobook/services/booking-service/internal/hours"
	"github.com/shuttercraft/studiobook/services/booking-service/internal/model"
)

const DefaultStep = 15 * time.Minute

// Generate enumerates slots of length duration inside each window, starting at
// the window start and advancing by step while the slot still ends at or
// before the window end. Windows are visited in the order given.
//
// A window with Start >= End, or a non-positive duration or step, is a
// caller bug and panics.
func Generate(windows []hours.TimeWindow, duration, step time.Duration) []model.Slot {
	if duration <= 0 || step <= 0 {
		panic(fmt.Sprintf("availability: duration %s and step %s must be positive", duration, step))
	}

	var slots []model.Slot
	for _, w := range windows {
		if !w.End.After(w.Start) {
			panic(fmt.Sprintf("availability: malformed window [%s, %s)", w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339)))
		}
		for t := w.Start; !t.Add(duration).After(w.End); t = t.Add(step) {
			slots = append(slots, model.Slot{Start: t, End: t.Add(duration)})
		}
	}
	return slots
}

// Filter keeps the candidates that overlap no scheduled reservation, in
// their original order.
func Filter(candidates []model.Slot, reservations []model.Reservation) []model.Slot {
	busy := make([]model.Reservation, 0, len(reservations))
	for _, r := range reservations {
		if r.Blocks() {
			busy = append(busy, r)
		}
	}

	out := make([]model.Slot, 0, len(candidates))
	for _, s := range candidates {
		if _, blocked := FirstConflict(s, busy); !blocked {
			out = append(out, s)
		}
	}
	return out
}

// FirstConflict returns the first reservation that blocks s.
func FirstConflict(s model.Slot, reservations []model.Reservation) (model.Reservation, bool) {
	for _, r := range reservations {
		if s.ConflictsWith(r) {
			return r, true
		}
	}
	return model.Reservation{}, false
}

// NotBefore drops slots that start before now.
func NotBefore(slots []model.Slot, now time.Time) []model.Slot {
	out := make([]model.Slot, 0, len(slots))
	for _, s := range slots {
		if s.Start.Before(now) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Contains reports whether s is exactly one of the generated slots.
func Contains(slots []model.Slot, s model.Slot) bool {
	for _, c := range slots {
		if c.Start.Equal(s.Start) && c.End.Equal(s.End) {
			return true
		}
	}
	return false
}
