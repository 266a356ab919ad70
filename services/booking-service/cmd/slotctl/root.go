package main

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shuttercraft/studiobook/services/booking-service/internal/hours"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	timezone string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "slotctl",
		Short:         "Inspect studio hours, open slots and prices without a database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.timezone, "timezone", "America/Chicago", "studio IANA time zone")

	root.AddCommand(newWindowsCmd(opts))
	root.AddCommand(newSlotsCmd(opts))
	root.AddCommand(newQuoteCmd())
	return root
}

func (o *rootOptions) policy() (*hours.Policy, error) {
	loc, err := time.LoadLocation(o.timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid --timezone: %w", err)
	}
	return hours.DefaultPolicy(loc), nil
}

func parseDate(raw string) (civil.Date, error) {
	d, err := civil.ParseDate(raw)
	if err != nil {
		return civil.Date{}, fmt.Errorf("invalid --date (want YYYY-MM-DD)")
	}
	return d, nil
}
