package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/shuttercraft/studiobook/services/booking-service/internal/pricing"
	"github.com/spf13/cobra"
)

func newQuoteCmd() *cobra.Command {
	var (
		packageKey   string
		consultation bool
		custom       bool
		minutes      int
		people       int
		portrait     string
		addOnIDs     []string
	)
	c := &cobra.Command{
		Use:   "quote",
		Short: "Price a session with the built-in catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			calc, err := pricing.DefaultCalculator(pricing.DefaultCustomPolicy)
			if err != nil {
				return err
			}

			var kind pricing.PackageKind
			switch {
			case consultation:
				kind = pricing.Consultation()
			case custom:
				pt, err := pricing.ParsePortraitType(portrait)
				if err != nil {
					return err
				}
				kind = pricing.Custom(people, pt)
			case packageKey != "":
				kind = pricing.FixedPackage(packageKey)
			default:
				return fmt.Errorf("one of --package, --consultation or --custom is required")
			}

			req, err := calc.Request(kind, minutes)
			if err != nil {
				return err
			}
			addOns, err := calc.ResolveAddOns(addOnIDs)
			if err != nil {
				return err
			}
			q, err := calc.Quote(req, addOns)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', tabwriter.AlignRight)
			for _, l := range q.Lines {
				fmt.Fprintf(tw, "%s\t%s\t\n", l.Label, formatMinor(l.AmountMinorUnits))
			}
			fmt.Fprintf(tw, "Total (%d min)\t%s\t\n", req.DurationMinutes, formatMinor(q.TotalMinorUnits))
			return tw.Flush()
		},
	}
	c.Flags().StringVar(&packageKey, "package", "", "fixed package key (mini, classic, signature)")
	c.Flags().BoolVar(&consultation, "consultation", false, "free consultation")
	c.Flags().BoolVar(&custom, "custom", false, "custom session priced by the hour")
	c.Flags().IntVar(&minutes, "minutes", 60, "custom session length in minutes")
	c.Flags().IntVar(&people, "people", 1, "party size for custom sessions")
	c.Flags().StringVar(&portrait, "portrait", "individual", "portrait type for custom sessions")
	c.Flags().StringSliceVar(&addOnIDs, "add-on", nil, "add-on id (repeatable)")
	c.MarkFlagsMutuallyExclusive("package", "consultation", "custom")
	return c
}

func formatMinor(v int64) string {
	return fmt.Sprintf("%d.%02d", v/100, v%100)
}
