package elevation

import (
	"context"
	"errors"
	"io/fs"
	"math"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/paulmach/orb"
)

// A TileFilenameFunc returns the filename of the tile at index.
type TileFilenameFunc func(level ZoomLevel, index TileIndex) string

// A GeoTIFFTileSet is a TileFetcher over a directory of GeoTIFF files, one
// file per tile. Open files are kept in an LRU cache and files known to be
// missing are remembered.
type GeoTIFFTileSet struct {
	mutex              sync.Mutex
	fsys               fs.FS
	tileFilenameFunc   TileFilenameFunc
	missingTiles       sync.Map
	geoTIFFTileOptions []GeoTIFFTileOption
	chunkOptions       ChunkOptions
	projector          Projector
	cacheSize          int
	geoTIFFTileCache   *lru.Cache[tileKey, *GeoTIFFTile]
}

// A GeoTIFFTileSetOption sets an option on a GeoTIFFTileSet.
type GeoTIFFTileSetOption func(*GeoTIFFTileSet)

// NewGeoTIFFTileSet returns a new GeoTIFFTileSet reading files from fsys.
func NewGeoTIFFTileSet(fsys fs.FS, tileFilenameFunc TileFilenameFunc, options ...GeoTIFFTileSetOption) (*GeoTIFFTileSet, error) {
	s := &GeoTIFFTileSet{
		fsys:             fsys,
		tileFilenameFunc: tileFilenameFunc,
		chunkOptions: ChunkOptions{
			Type: "GeoTIFF",
			CE:   math.NaN(),
			LE:   math.NaN(),
		},
		projector: defaultProjector,
		cacheSize: 32,
	}
	for _, option := range options {
		option(s)
	}

	var err error
	s.geoTIFFTileCache, err = lru.NewWithEvict(s.cacheSize, func(key tileKey, value *GeoTIFFTile) {
		_ = value.Close()
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// WithCacheSize sets the number of open files.
func WithCacheSize(cacheSize int) GeoTIFFTileSetOption {
	return func(s *GeoTIFFTileSet) {
		s.cacheSize = cacheSize
	}
}

// WithChunkOptions sets the metadata of the chunks returned. Bounds and URI
// are set per tile.
func WithChunkOptions(chunkOptions ChunkOptions) GeoTIFFTileSetOption {
	return func(s *GeoTIFFTileSet) {
		s.chunkOptions = chunkOptions
	}
}

// WithGeoTIFFTileOptions sets the options used to open each file.
func WithGeoTIFFTileOptions(geoTIFFTileOptions ...GeoTIFFTileOption) GeoTIFFTileSetOption {
	return func(s *GeoTIFFTileSet) {
		s.geoTIFFTileOptions = geoTIFFTileOptions
	}
}

// WithGeoTIFFTileSetProjector sets the projector used to convert
// longitude/latitude to model coordinates.
func WithGeoTIFFTileSetProjector(projector Projector) GeoTIFFTileSetOption {
	return func(s *GeoTIFFTileSet) {
		s.projector = projector
	}
}

// Tile returns the chunk for the file at index, or nil if the file does not
// exist.
func (s *GeoTIFFTileSet) Tile(ctx context.Context, level ZoomLevel, index TileIndex) (Chunk, error) {
	key := tileKey{level: level.Level, index: index}
	tile, err := s.getTileCached(key, level)
	if err != nil || tile == nil {
		return nil, err
	}
	options := s.chunkOptions
	options.URI = tile.Name()
	if options.Resolution == 0 {
		options.Resolution = level.Resolution
	}
	bounds, err := inverseBound(s.projector, tile.SRID(), tile.Bounds())
	if err != nil {
		return nil, err
	}
	options.Bounds = bounds
	return &geoTIFFChunk{
		chunkMetadata: chunkMetadata{options: options},
		set:           s,
		key:           key,
		level:         level,
		srid:          tile.SRID(),
	}, nil
}

// getTile opens the file at key.
func (s *GeoTIFFTileSet) getTile(key tileKey, level ZoomLevel) (*GeoTIFFTile, error) {
	filename := s.tileFilenameFunc(level, key.index)
	switch geoTIFFTile, err := NewGeoTIFFTile(s.fsys, filename, s.geoTIFFTileOptions...); {
	case errors.Is(err, fs.ErrNotExist):
		s.missingTiles.Store(key, struct{}{})
		missingTileCacheMisses.Inc()
		return nil, nil
	case err != nil:
		return nil, err
	default:
		return geoTIFFTile, nil
	}
}

// getTileCached returns the open file at key, using the cache if possible.
func (s *GeoTIFFTileSet) getTileCached(key tileKey, level ZoomLevel) (*GeoTIFFTile, error) {
	if _, ok := s.missingTiles.Load(key); ok {
		missingTileCacheHits.Inc()
		return nil, nil
	}

	if tile, ok := s.geoTIFFTileCache.Get(key); ok {
		globalTileCacheHits.Inc()
		return tile, nil
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.missingTiles.Load(key); ok {
		missingTileCacheHits.Inc()
		return nil, nil
	}

	if tile, ok := s.geoTIFFTileCache.Get(key); ok {
		globalTileCacheHits.Inc()
		return tile, nil
	}

	globalTileCacheMisses.Inc()

	tile, err := s.getTile(key, level)
	if err != nil || tile == nil {
		return nil, err
	}

	if eviction := s.geoTIFFTileCache.Add(key, tile); eviction {
		globalTileCacheEvictions.Inc()
	}

	return tile, nil
}

// A geoTIFFChunk is a Chunk backed by a file of a GeoTIFFTileSet. The file is
// looked up in the set's cache on every sample so that it may be closed and
// reopened between samples.
type geoTIFFChunk struct {
	chunkMetadata
	set   *GeoTIFFTileSet
	key   tileKey
	level ZoomLevel
	srid  int
}

func (c *geoTIFFChunk) Sample(ctx context.Context, lat, lon float64) (float64, error) {
	out := []float64{math.NaN()}
	if err := c.SampleBatch(ctx, []orb.Point{{lon, lat}}, out); err != nil {
		return math.NaN(), err
	}
	return out[0], nil
}

// SampleBatch fills the NaN elements of out. Samples are read with
// GeoTIFFTile.Samples, which groups reads by internal tile, or interpolated
// bilinearly if the context carries Hints with Interpolate set.
func (c *geoTIFFChunk) SampleBatch(ctx context.Context, points []orb.Point, out []float64) error {
	tile, err := c.set.getTileCached(c.key, c.level)
	if err != nil || tile == nil {
		return err
	}

	indexes := make([]int, 0, len(points))
	modelCoords := make([][]float64, 0, len(points))
	for i, point := range points {
		if !math.IsNaN(out[i]) {
			continue
		}
		x, y, err := c.set.projector.Forward(c.srid, point.Lon(), point.Lat())
		if err != nil {
			return err
		}
		indexes = append(indexes, i)
		modelCoords = append(modelCoords, []float64{x, y})
	}
	if len(indexes) == 0 {
		return nil
	}

	var samples []float64
	if hints, _ := HintsFromContext(ctx); hints.Interpolate {
		samples, err = InterpolateBilinear(ctx, tile, modelCoords)
	} else {
		coords := make([]Coord, len(modelCoords))
		for i, modelCoord := range modelCoords {
			coords[i] = Coord{
				X: int(math.Floor(modelCoord[0])),
				Y: int(math.Ceil(modelCoord[1])),
			}
		}
		samples, err = tile.Samples(ctx, coords)
	}
	if err != nil {
		return err
	}

	for i, index := range indexes {
		if isFinite(samples[i]) {
			out[index] = samples[i]
		}
	}
	return nil
}
