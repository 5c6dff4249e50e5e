package elevation

import (
	"fmt"
	"math"
	"strings"

	"github.com/paulmach/orb"
)

const (
	webMercatorHalfWorld = 20037508.342789244
	metersPerDegree      = 2 * math.Pi * 6378137 / 360
)

// A TileScheme is a convention for laying out a quadtree of tiles.
type TileScheme int

const (
	// WebMercator tiles cover the spherical Mercator world square, one tile
	// at level 0.
	WebMercator TileScheme = iota
	// Flat tiles are in longitude/latitude degrees, two tiles at level 0.
	Flat
	// FlatQuad tiles are in longitude/latitude degrees, one tile at level 0.
	FlatQuad
	// Custom grids are fully described by their creator.
	Custom
)

func (s TileScheme) String() string {
	switch s {
	case WebMercator:
		return "WebMercator"
	case Flat:
		return "Flat"
	case FlatQuad:
		return "FlatQuad"
	case Custom:
		return "Custom"
	default:
		return fmt.Sprintf("TileScheme(%d)", int(s))
	}
}

// ParseTileScheme parses the string form of a TileScheme.
func ParseTileScheme(s string) (TileScheme, error) {
	for scheme := WebMercator; scheme <= Custom; scheme++ {
		if strings.EqualFold(s, scheme.String()) {
			return scheme, nil
		}
	}
	return 0, fmt.Errorf("%q: %w", s, ErrUnsupportedScheme)
}

// A ZoomLevel is a level of a tile pyramid.
type ZoomLevel struct {
	Level int
	// Resolution is the size of a pixel in grid units.
	Resolution float64
	TileWidth  int
	TileHeight int
}

// tileSpan returns the size of a tile in grid units.
func (l ZoomLevel) tileSpan() (float64, float64) {
	return l.Resolution * float64(l.TileWidth), l.Resolution * float64(l.TileHeight)
}

// A TileIndex is the column and row of a tile within a zoom level. Rows grow
// downwards from the grid origin.
type TileIndex struct {
	X int
	Y int
}

// A TileGrid places a tile pyramid in a coordinate system.
type TileGrid struct {
	Scheme TileScheme
	SRID   int
	// OriginX and OriginY are the top left corner of tile 0, 0 in grid
	// units.
	OriginX float64
	OriginY float64
	// Extent is the area covered by the grid in grid units.
	Extent orb.Bound
	// MetersPerUnit converts grid units to meters on the ground. Zero is
	// treated as one.
	MetersPerUnit float64
}

// WebMercatorGrid returns the grid of the WebMercator scheme.
func WebMercatorGrid() TileGrid {
	return TileGrid{
		Scheme:  WebMercator,
		SRID:    SRIDWebMercator,
		OriginX: -webMercatorHalfWorld,
		OriginY: webMercatorHalfWorld,
		Extent: orb.Bound{
			Min: orb.Point{-webMercatorHalfWorld, -webMercatorHalfWorld},
			Max: orb.Point{webMercatorHalfWorld, webMercatorHalfWorld},
		},
		MetersPerUnit: 1,
	}
}

// FlatGrid returns the grid of the Flat scheme.
func FlatGrid() TileGrid {
	return flatGrid(Flat)
}

// FlatQuadGrid returns the grid of the FlatQuad scheme.
func FlatQuadGrid() TileGrid {
	return flatGrid(FlatQuad)
}

func flatGrid(scheme TileScheme) TileGrid {
	return TileGrid{
		Scheme:  scheme,
		SRID:    SRIDWGS84,
		OriginX: -180,
		OriginY: 90,
		Extent: orb.Bound{
			Min: orb.Point{-180, -90},
			Max: orb.Point{180, 90},
		},
		MetersPerUnit: metersPerDegree,
	}
}

// CustomGrid returns a grid in srid with the given origin and extent.
func CustomGrid(srid int, originX, originY float64, extent orb.Bound, metersPerUnit float64) TileGrid {
	return TileGrid{
		Scheme:        Custom,
		SRID:          srid,
		OriginX:       originX,
		OriginY:       originY,
		Extent:        extent,
		MetersPerUnit: metersPerUnit,
	}
}

// Level0Resolution returns the resolution of level 0 for tiles of tileSize
// pixels.
func (g TileGrid) Level0Resolution(tileSize int) (float64, error) {
	if tileSize <= 0 {
		return 0, fmt.Errorf("tile size %d: %w", tileSize, ErrInvalidArgument)
	}
	switch g.Scheme {
	case WebMercator:
		return 2 * webMercatorHalfWorld / float64(tileSize), nil
	case Flat:
		return 180 / float64(tileSize), nil
	case FlatQuad:
		return 360 / float64(tileSize), nil
	default:
		return 0, fmt.Errorf("%s: %w", g.Scheme, ErrUnsupportedScheme)
	}
}

// ZoomLevels returns the zoom levels from minLevel to maxLevel inclusive of
// tileSize square tiles, each level halving the resolution of the previous
// one.
func (g TileGrid) ZoomLevels(minLevel, maxLevel, tileSize int) ([]ZoomLevel, error) {
	if minLevel < 0 || maxLevel < minLevel {
		return nil, fmt.Errorf("levels %d-%d: %w", minLevel, maxLevel, ErrInvalidArgument)
	}
	resolution0, err := g.Level0Resolution(tileSize)
	if err != nil {
		return nil, err
	}
	zoomLevels := make([]ZoomLevel, 0, maxLevel-minLevel+1)
	for level := minLevel; level <= maxLevel; level++ {
		zoomLevels = append(zoomLevels, ZoomLevel{
			Level:      level,
			Resolution: resolution0 / float64(uint64(1)<<level),
			TileWidth:  tileSize,
			TileHeight: tileSize,
		})
	}
	return zoomLevels, nil
}

// GSD returns the ground sample distance of level in meters per pixel.
func (g TileGrid) GSD(level ZoomLevel) float64 {
	if g.MetersPerUnit == 0 {
		return level.Resolution
	}
	return level.Resolution * g.MetersPerUnit
}

// TileIndex returns the index of the tile at level containing x, y. Points on
// the right or bottom edge of the grid's extent belong to the last column or
// row.
func (g TileGrid) TileIndex(level ZoomLevel, x, y float64) TileIndex {
	spanX, spanY := level.tileSpan()
	index := TileIndex{
		X: int(math.Floor((x - g.OriginX) / spanX)),
		Y: int(math.Floor((g.OriginY - y) / spanY)),
	}
	if x == g.Extent.Max.X() || y == g.Extent.Min.Y() {
		columns, rows := g.TileCount(level)
		if x == g.Extent.Max.X() && index.X == columns {
			index.X = columns - 1
		}
		if y == g.Extent.Min.Y() && index.Y == rows {
			index.Y = rows - 1
		}
	}
	return index
}

// TileBounds returns the bounds of the tile at index in grid units.
func (g TileGrid) TileBounds(level ZoomLevel, index TileIndex) orb.Bound {
	spanX, spanY := level.tileSpan()
	// Each edge is measured from the origin so that neighbouring tiles share
	// edges exactly.
	return orb.Bound{
		Min: orb.Point{g.OriginX + float64(index.X)*spanX, g.OriginY - float64(index.Y+1)*spanY},
		Max: orb.Point{g.OriginX + float64(index.X+1)*spanX, g.OriginY - float64(index.Y)*spanY},
	}
}

// TileCount returns the number of columns and rows of tiles needed to cover
// the grid's extent at level.
func (g TileGrid) TileCount(level ZoomLevel) (int, int) {
	spanX, spanY := level.tileSpan()
	columns := int(math.Ceil((g.Extent.Max.X() - g.OriginX) / spanX))
	rows := int(math.Ceil((g.OriginY - g.Extent.Min.Y()) / spanY))
	return max(columns, 0), max(rows, 0)
}

// TileRange returns the range of tiles at level that intersect bound. The
// minimum is inclusive and the maximum is exclusive. It returns false if no
// tiles intersect bound.
func (g TileGrid) TileRange(level ZoomLevel, bound orb.Bound) (TileIndex, TileIndex, bool) {
	columns, rows := g.TileCount(level)
	minIndex := g.TileIndex(level, bound.Min.X(), bound.Max.Y())
	maxIndex := g.TileIndex(level, bound.Max.X(), bound.Min.Y())
	maxIndex.X++
	maxIndex.Y++
	minIndex.X = max(minIndex.X, 0)
	minIndex.Y = max(minIndex.Y, 0)
	maxIndex.X = min(maxIndex.X, columns)
	maxIndex.Y = min(maxIndex.Y, rows)
	if minIndex.X >= maxIndex.X || minIndex.Y >= maxIndex.Y {
		return TileIndex{}, TileIndex{}, false
	}
	return minIndex, maxIndex, true
}

// intersectBounds returns the intersection of a and b, and false if they do
// not intersect.
func intersectBounds(a, b orb.Bound) (orb.Bound, bool) {
	if !a.Intersects(b) {
		return orb.Bound{}, false
	}
	return orb.Bound{
		Min: orb.Point{max(a.Min.X(), b.Min.X()), max(a.Min.Y(), b.Min.Y())},
		Max: orb.Point{min(a.Max.X(), b.Max.X()), min(a.Max.Y(), b.Max.Y())},
	}, true
}
