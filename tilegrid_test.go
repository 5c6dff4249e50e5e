package elevation

import (
	"math"
	"math/rand/v2"
	"strconv"
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

func TestTileGrid_WebMercator(t *testing.T) {
	grid := WebMercatorGrid()
	zoomLevels, err := grid.ZoomLevels(0, 12, 256)
	assert.NoError(t, err)
	projector := NewDefaultProjector()
	for _, point := range []orb.Point{
		{6.8652, 45.8326},
		{-122.4194, 37.7749},
		{151.2093, -33.8688},
		{0.1, 0.1},
	} {
		for _, level := range zoomLevels {
			t.Run(strconv.Itoa(level.Level), func(t *testing.T) {
				x, y, err := projector.Forward(grid.SRID, point.Lon(), point.Lat())
				assert.NoError(t, err)
				index := grid.TileIndex(level, x, y)
				tile := maptile.At(point, maptile.Zoom(level.Level))
				assert.Equal(t, TileIndex{X: int(tile.X), Y: int(tile.Y)}, index)

				bounds, err := inverseBound(projector, grid.SRID, grid.TileBounds(level, index))
				assert.NoError(t, err)
				expected := tile.Bound()
				assert.True(t, math.Abs(bounds.Min.Lon()-expected.Min.Lon()) < 1e-6)
				assert.True(t, math.Abs(bounds.Max.Lat()-expected.Max.Lat()) < 1e-6)
			})
		}
	}
}

func TestTileGrid_RoundTrip(t *testing.T) {
	for _, grid := range []TileGrid{WebMercatorGrid(), FlatGrid(), FlatQuadGrid()} {
		t.Run(grid.Scheme.String(), func(t *testing.T) {
			zoomLevels, err := grid.ZoomLevels(0, 5, 256)
			assert.NoError(t, err)
			for _, level := range zoomLevels {
				columns, rows := grid.TileCount(level)
				for _, index := range []TileIndex{{}, {X: columns - 1, Y: rows - 1}, {X: columns / 2, Y: rows / 2}} {
					bounds := grid.TileBounds(level, index)
					assert.Equal(t, index, grid.TileIndex(level, bounds.Center().X(), bounds.Center().Y()))
					assert.True(t, grid.Extent.Intersects(bounds))
				}
			}
		})
	}
}

func TestTileGrid_TileContainsPoint(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for _, grid := range []TileGrid{WebMercatorGrid(), FlatGrid(), FlatQuadGrid(), EUDEMGrid()} {
		t.Run(grid.Scheme.String(), func(t *testing.T) {
			var zoomLevels []ZoomLevel
			if grid.Scheme == Custom {
				zoomLevels = []ZoomLevel{{Resolution: euDEMResolution, TileWidth: euDEMTileSize, TileHeight: euDEMTileSize}}
			} else {
				var err error
				zoomLevels, err = grid.ZoomLevels(0, 6, 256)
				assert.NoError(t, err)
			}
			extent := grid.Extent
			points := []orb.Point{
				extent.Min,
				extent.Max,
				{extent.Min.X(), extent.Max.Y()},
				{extent.Max.X(), extent.Min.Y()},
				{extent.Max.X(), extent.Center().Y()},
				{extent.Center().X(), extent.Min.Y()},
				{extent.Min.X(), extent.Center().Y()},
				{extent.Center().X(), extent.Max.Y()},
				extent.Center(),
			}
			for range 100 {
				points = append(points, orb.Point{
					extent.Min.X() + r.Float64()*(extent.Max.X()-extent.Min.X()),
					extent.Min.Y() + r.Float64()*(extent.Max.Y()-extent.Min.Y()),
				})
			}
			for _, level := range zoomLevels {
				columns, rows := grid.TileCount(level)
				for _, point := range points {
					index := grid.TileIndex(level, point.X(), point.Y())
					assert.True(t, 0 <= index.X && index.X < columns, "%v: column %d of %d", point, index.X, columns)
					assert.True(t, 0 <= index.Y && index.Y < rows, "%v: row %d of %d", point, index.Y, rows)
					assert.True(t, grid.TileBounds(level, index).Contains(point), "%v not in tile %v", point, index)

					minIndex, maxIndex, ok := grid.TileRange(level, point.Bound())
					assert.True(t, ok, "%v: empty tile range", point)
					assert.Equal(t, index, minIndex)
					assert.Equal(t, TileIndex{X: index.X + 1, Y: index.Y + 1}, maxIndex)
				}
			}
		})
	}
}

func TestTileGrid_Level0(t *testing.T) {
	for _, tc := range []struct {
		grid            TileGrid
		expectedColumns int
		expectedRows    int
	}{
		{grid: WebMercatorGrid(), expectedColumns: 1, expectedRows: 1},
		{grid: FlatGrid(), expectedColumns: 2, expectedRows: 1},
		{grid: FlatQuadGrid(), expectedColumns: 1, expectedRows: 1},
	} {
		t.Run(tc.grid.Scheme.String(), func(t *testing.T) {
			zoomLevels, err := tc.grid.ZoomLevels(0, 1, 512)
			assert.NoError(t, err)
			columns, rows := tc.grid.TileCount(zoomLevels[0])
			assert.Equal(t, tc.expectedColumns, columns)
			assert.Equal(t, tc.expectedRows, rows)
			assert.Equal(t, zoomLevels[0].Resolution/2, zoomLevels[1].Resolution)
			assert.Equal(t, zoomLevels[0].Resolution*tc.grid.MetersPerUnit, tc.grid.GSD(zoomLevels[0]))
		})
	}
}

func TestTileGrid_Errors(t *testing.T) {
	_, err := EUDEMGrid().Level0Resolution(256)
	assert.IsError(t, err, ErrUnsupportedScheme)
	_, err = FlatGrid().Level0Resolution(0)
	assert.IsError(t, err, ErrInvalidArgument)
	_, err = FlatGrid().ZoomLevels(2, 1, 256)
	assert.IsError(t, err, ErrInvalidArgument)
	_, err = ParseTileScheme("Hexagonal")
	assert.IsError(t, err, ErrUnsupportedScheme)
	scheme, err := ParseTileScheme("flatquad")
	assert.NoError(t, err)
	assert.Equal(t, FlatQuad, scheme)
}

func TestTileGrid_TileRange(t *testing.T) {
	grid := FlatGrid()
	level := ZoomLevel{Resolution: 1, TileWidth: 10, TileHeight: 10}
	for _, tc := range []struct {
		name        string
		bound       orb.Bound
		expectedMin TileIndex
		expectedMax TileIndex
		expectedOK  bool
	}{
		{
			name:        "world",
			bound:       grid.Extent,
			expectedMin: TileIndex{X: 0, Y: 0},
			expectedMax: TileIndex{X: 36, Y: 18},
			expectedOK:  true,
		},
		{
			name:        "inside_one_tile",
			bound:       orb.Bound{Min: orb.Point{1, 1}, Max: orb.Point{2, 2}},
			expectedMin: TileIndex{X: 18, Y: 8},
			expectedMax: TileIndex{X: 19, Y: 9},
			expectedOK:  true,
		},
		{
			name:        "point",
			bound:       orb.Point{-175, 85}.Bound(),
			expectedMin: TileIndex{X: 0, Y: 0},
			expectedMax: TileIndex{X: 1, Y: 1},
			expectedOK:  true,
		},
		{
			name:        "clamped",
			bound:       orb.Bound{Min: orb.Point{170, -100}, Max: orb.Point{200, -85}},
			expectedMin: TileIndex{X: 35, Y: 17},
			expectedMax: TileIndex{X: 36, Y: 18},
			expectedOK:  true,
		},
		{
			name:       "outside",
			bound:      orb.Bound{Min: orb.Point{200, 0}, Max: orb.Point{210, 10}},
			expectedOK: false,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			minIndex, maxIndex, ok := grid.TileRange(level, tc.bound)
			assert.Equal(t, tc.expectedOK, ok)
			assert.Equal(t, tc.expectedMin, minIndex)
			assert.Equal(t, tc.expectedMax, maxIndex)
		})
	}
}
