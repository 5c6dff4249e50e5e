package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newSourcesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List the registered sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 1, ' ', 0)
			fmt.Fprintln(tw, "NAME\tWEST\tSOUTH\tEAST\tNORTH")
			for _, source := range a.manager.Sources() {
				bounds := source.Bounds()
				fmt.Fprintf(tw, "%s\t%.6f\t%.6f\t%.6f\t%.6f\n",
					source.Name(), bounds.Min.Lon(), bounds.Min.Lat(), bounds.Max.Lon(), bounds.Max.Lat())
			}
			return tw.Flush()
		},
	}
}
