package elevation

import (
	"fmt"
	"io/fs"
	"math"
	"slices"

	"github.com/paulmach/orb"
)

// EU-DEM v1.1 layout: 1000km square files of 25m pixels in EPSG:3035.
const (
	euDEMResolution   = 25
	euDEMTileSize     = 40000
	euDEMExtent       = 8000000
	euDEMTileSpan     = euDEMResolution * euDEMTileSize
	euDEMTilesPerSide = euDEMExtent / euDEMTileSpan
)

// EUDEMType is the chunk type of EU-DEM chunks.
const EUDEMType = "EU-DEM"

// EUDEMGrid returns the grid of the EU-DEM tiles.
func EUDEMGrid() TileGrid {
	return CustomGrid(SRIDETRS89LAEA, 0, euDEMExtent, orb.Bound{
		Min: orb.Point{0, 0},
		Max: orb.Point{euDEMExtent, euDEMExtent},
	}, 1)
}

// EUDEMFilename returns the filename of the EU-DEM tile at index.
func EUDEMFilename(level ZoomLevel, index TileIndex) string {
	return fmt.Sprintf("eu_dem_v11_E%02dN%02d.TIF", 10*index.X, 10*(euDEMTilesPerSide-1-index.Y))
}

// NewEUDEM returns a TiledSource over the EU-DEM v1.1 GeoTIFF files in fsys.
func NewEUDEM(fsys fs.FS, options ...GeoTIFFTileSetOption) (*TiledSource, error) {
	tileSet, err := NewGeoTIFFTileSet(fsys, EUDEMFilename, slices.Concat(
		[]GeoTIFFTileSetOption{
			WithChunkOptions(ChunkOptions{
				Type:       EUDEMType,
				Flags:      ModelSurface,
				Resolution: euDEMResolution,
				CE:         math.NaN(),
				LE:         math.NaN(),
			}),
		},
		options,
	)...)
	if err != nil {
		return nil, err
	}
	zoomLevels := []ZoomLevel{
		{
			Level:      0,
			Resolution: euDEMResolution,
			TileWidth:  euDEMTileSize,
			TileHeight: euDEMTileSize,
		},
	}
	// Open files are cached by the tile set.
	return NewTiledSource(EUDEMType, EUDEMGrid(), zoomLevels, tileSet,
		WithTiledSourceCacheSize(0),
		WithProjector(tileSet.projector),
	)
}
