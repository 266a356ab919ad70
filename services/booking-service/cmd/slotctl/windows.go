package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newWindowsCmd(opts *rootOptions) *cobra.Command {
	var date string
	c := &cobra.Command{
		Use:   "windows",
		Short: "Print the bookable windows for a date",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := parseDate(date)
			if err != nil {
				return err
			}
			p, err := opts.policy()
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "START\tEND\tLENGTH")
			for _, w := range p.WindowsFor(d) {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", w.Start.Format("15:04 MST"), w.End.Format("15:04 MST"), w.Duration())
			}
			return tw.Flush()
		},
	}
	c.Flags().StringVar(&date, "date", "", "calendar date, YYYY-MM-DD")
	_ = c.MarkFlagRequired("date")
	return c
}
