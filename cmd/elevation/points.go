package main

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/spf13/cobra"
)

func newPointsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "points [file]",
		Short: "Add elevations to the points of a GeoJSON FeatureCollection",
		Long: `Reads a GeoJSON FeatureCollection from file, or from stdin if no file is
given, and writes a FeatureCollection of its vertices with an "elevation"
property. Unknown elevations are null.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var data []byte
			var err error
			if len(args) == 0 {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return err
			}

			featureCollection, err := geojson.UnmarshalFeatureCollection(data)
			if err != nil {
				return err
			}
			var points []orb.Point
			for _, feature := range featureCollection.Features {
				points = appendVertices(points, feature.Geometry)
			}
			if len(points) == 0 {
				return fmt.Errorf("no points")
			}

			elevations := make([]float64, len(points))
			if _, err := a.manager.Elevations(cmd.Context(), points, elevations, a.params, a.hints()); err != nil {
				return err
			}

			result := geojson.NewFeatureCollection()
			for i, point := range points {
				feature := geojson.NewFeature(point)
				if math.IsNaN(elevations[i]) {
					feature.Properties["elevation"] = nil
				} else {
					feature.Properties["elevation"] = elevations[i]
				}
				result.Append(feature)
			}
			output, err := result.MarshalJSON()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(output))
			return err
		},
	}
}

// appendVertices appends the vertices of geometry to points.
func appendVertices(points []orb.Point, geometry orb.Geometry) []orb.Point {
	switch g := geometry.(type) {
	case orb.Point:
		return append(points, g)
	case orb.MultiPoint:
		return append(points, g...)
	case orb.LineString:
		return append(points, g...)
	case orb.Ring:
		return append(points, g...)
	case orb.MultiLineString:
		for _, lineString := range g {
			points = append(points, lineString...)
		}
	case orb.Polygon:
		for _, ring := range g {
			points = append(points, ring...)
		}
	case orb.MultiPolygon:
		for _, polygon := range g {
			points = appendVertices(points, polygon)
		}
	case orb.Collection:
		for _, child := range g {
			points = appendVertices(points, child)
		}
	}
	return points
}
