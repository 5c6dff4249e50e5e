package main

import (
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/fatih/color"
	"github.com/paulmach/orb"
	"github.com/spf13/cobra"
)

var unknownColor = color.New(color.FgRed)

func newPointCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "point latitude longitude",
		Short: "Print the elevation at a point",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			point, err := parseLatLon(args[0], args[1])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			w := cmd.OutOrStdout()
			if a.config.Query.Interpolate {
				elevations := []float64{math.NaN()}
				if _, err := a.manager.Elevations(ctx, []orb.Point{point}, elevations, a.params, a.hints()); err != nil {
					return err
				}
				printElevation(w, elevations[0])
				_, err := fmt.Fprintln(w)
				return err
			}
			value, metadata, err := a.manager.Elevation(ctx, point.Lat(), point.Lon(), a.params)
			if err != nil {
				return err
			}
			printElevation(w, value)
			_, err = fmt.Fprintf(w, "\t%s\t%s\n", metadata.AltitudeSource, metadata.URI)
			return err
		},
	}
}

// parseLatLon parses a latitude and a longitude into a point.
func parseLatLon(latArg, lonArg string) (orb.Point, error) {
	lat, err := strconv.ParseFloat(latArg, 64)
	if err != nil {
		return orb.Point{}, err
	}
	lon, err := strconv.ParseFloat(lonArg, 64)
	if err != nil {
		return orb.Point{}, err
	}
	if lat < -90 || 90 < lat || lon < -180 || 180 < lon {
		return orb.Point{}, fmt.Errorf("%s, %s: coordinates out of range", latArg, lonArg)
	}
	return orb.Point{lon, lat}, nil
}

func printElevation(w io.Writer, value float64) {
	if math.IsNaN(value) {
		_, _ = unknownColor.Fprint(w, "unknown")
		return
	}
	_, _ = fmt.Fprint(w, strconv.FormatFloat(value, 'f', -1, 64))
}
