// Package elevation answers "what is the height of the ground here?" across
// many independently registered elevation sources.
//
// Sources are registered with a [Manager], which fans every query out across
// all of them and merges the resulting [Cursor]s. [TiledSource] implements a
// [Source] over a quadtree tile pyramid in any of the supported
// [TileScheme]s. Missing values are represented by NaNs, never by errors.
package elevation

import (
	"context"
	"errors"
)

var (
	// ErrInvalidArgument is returned when a call is malformed, for example
	// when the number of points and elevations differ.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUnsupportedScheme is returned when a tile scheme has no built-in
	// grid definition.
	ErrUnsupportedScheme = errors.New("unsupported tile scheme")
)

// A Coord is a coordinate.
type Coord struct {
	X int
	Y int
}

// A TileCoord is a tile coordinate.
type TileCoord struct {
	C int // Column.
	R int // Row.
}

// A Raster is a regular grid of samples.
type Raster interface {
	Samples(ctx context.Context, coords []Coord) ([]float64, error)
	Scale() (int, int)
}
