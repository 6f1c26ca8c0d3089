package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// fieldsCmd prints the effective bounds table
var fieldsCmd = &cobra.Command{
	Use:   "fields",
	Short: "List simulateable fields and their delta bounds",
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := cfg.BoundsTable()
		if err != nil {
			return fmt.Errorf("simulation bounds: %w", err)
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "FIELD\tLABEL\tMIN\tMAX\tSTEP\tUNIT")
		for _, b := range table.Sorted() {
			unit := b.Unit
			if unit == "" {
				unit = "-"
			}
			fmt.Fprintf(tw, "%s\t%s\t%g\t%g\t%g\t%s\n", b.Field, b.Label, b.Min, b.Max, b.Step, unit)
		}
		return tw.Flush()
	},
}
