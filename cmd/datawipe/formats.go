package main

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/datawipe/internal/catalog"
	"github.com/ericfisherdev/datawipe/internal/retry"
)

func newFormatsCmd(catalogDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "formats",
		Short: "List the password-manager export formats that can be detected",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cat, err := catalog.Open(*catalogDir)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tCOLUMNS")
			for _, f := range cat.Formats() {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", f.ID, f.Name, strings.Join(f.Columns, ", "))
			}
			return tw.Flush()
		},
	}
}

func newStrategiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "strategies",
		Short: "Show the retry schedule for each failure class",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			strategies := retry.NewPolicy().Strategies()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CLASS\tMAX ATTEMPTS\tBASE DELAY\tMULTIPLIER\tJITTER")
			for _, class := range slices.Sorted(maps.Keys(strategies)) {
				s := strategies[class]
				fmt.Fprintf(tw, "%s\t%d\t%s\t%g\t%t\n",
					class, s.MaxAttempts, s.BaseDelay, s.Multiplier, s.Jitter)
			}
			return tw.Flush()
		},
	}
}
