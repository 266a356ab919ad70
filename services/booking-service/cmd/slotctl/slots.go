package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shuttercraft/studiobook/services/booking-service/internal/availability"
	"github.com/shuttercraft/studiobook/services/booking-service/internal/model"
	"github.com/spf13/cobra"
)

func newSlotsCmd(opts *rootOptions) *cobra.Command {
	var (
		date     string
		duration time.Duration
		step     time.Duration
		booked   []string
	)
	c := &cobra.Command{
		Use:   "slots",
		Short: "List free slots for a session length, optionally around existing bookings",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := parseDate(date)
			if err != nil {
				return err
			}
			if duration <= 0 || step <= 0 {
				return fmt.Errorf("--duration and --step must be positive")
			}
			p, err := opts.policy()
			if err != nil {
				return err
			}

			var reservations []model.Reservation
			for i, raw := range booked {
				r, err := parseBooked(d, p.Location(), raw)
				if err != nil {
					return err
				}
				r.ID = fmt.Sprintf("booked-%d", i+1)
				reservations = append(reservations, r)
			}

			free := availability.Filter(availability.Generate(p.WindowsFor(d), duration, step), reservations)
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "START\tEND")
			for _, s := range free {
				fmt.Fprintf(tw, "%s\t%s\n", s.Start.Format("15:04"), s.End.Format("15:04"))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d slot(s)\n", len(free))
			return nil
		},
	}
	c.Flags().StringVar(&date, "date", "", "calendar date, YYYY-MM-DD")
	c.Flags().DurationVar(&duration, "duration", time.Hour, "session length")
	c.Flags().DurationVar(&step, "step", availability.DefaultStep, "distance between slot starts")
	c.Flags().StringArrayVar(&booked, "booked", nil, "existing booking as HH:MM-HH:MM (repeatable)")
	_ = c.MarkFlagRequired("date")
	return c
}

// parseBooked reads "HH:MM-HH:MM" as a scheduled reservation on date in loc.
func parseBooked(date civil.Date, loc *time.Location, raw string) (model.Reservation, error) {
	from, to, ok := strings.Cut(strings.TrimSpace(raw), "-")
	if !ok {
		return model.Reservation{}, fmt.Errorf("invalid --booked %q (want HH:MM-HH:MM)", raw)
	}
	start, err := civil.ParseTime(strings.TrimSpace(from) + ":00")
	if err != nil {
		return model.Reservation{}, fmt.Errorf("invalid --booked start %q", from)
	}
	end, err := civil.ParseTime(strings.TrimSpace(to) + ":00")
	if err != nil {
		return model.Reservation{}, fmt.Errorf("invalid --booked end %q", to)
	}
	r := model.Reservation{
		StartTime: civil.DateTime{Date: date, Time: start}.In(loc),
		EndTime:   civil.DateTime{Date: date, Time: end}.In(loc),
		Status:    model.StatusScheduled,
	}
	if !r.EndTime.After(r.StartTime) {
		return model.Reservation{}, fmt.Errorf("invalid --booked %q: end must be after start", raw)
	}
	return r, nil
}
