package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newChunksCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "chunks latitude longitude",
		Short: "List the chunks covering a point",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			point, err := parseLatLon(args[0], args[1])
			if err != nil {
				return err
			}
			params := a.params.Clone()
			params.SpatialFilter = point
			cursor, err := a.manager.Query(cmd.Context(), params)
			if err != nil {
				return err
			}
			defer cursor.Close()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 1, ' ', 0)
			fmt.Fprintln(tw, "TYPE\tRESOLUTION\tCE\tLE\tAUTHORITATIVE\tURI")
			for cursor.MoveToNext() {
				fmt.Fprintf(tw, "%s\t%g\t%g\t%g\t%t\t%s\n",
					cursor.Type(), cursor.Resolution(), cursor.CE(), cursor.LE(), cursor.Authoritative(), cursor.URI())
			}
			return tw.Flush()
		},
	}
}
