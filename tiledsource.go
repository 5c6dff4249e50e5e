package elevation

import (
	"context"
	"fmt"
	"math"
	"slices"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/paulmach/orb"
	"go.uber.org/zap"
)

// A TileFetcher returns the chunk for a tile. A nil chunk with a nil error
// means that the tile does not exist. Implementations must be safe for
// concurrent use.
type TileFetcher interface {
	Tile(ctx context.Context, level ZoomLevel, index TileIndex) (Chunk, error)
}

// A TileFetcherFunc is a function that implements TileFetcher.
type TileFetcherFunc func(ctx context.Context, level ZoomLevel, index TileIndex) (Chunk, error)

func (f TileFetcherFunc) Tile(ctx context.Context, level ZoomLevel, index TileIndex) (Chunk, error) {
	return f(ctx, level, index)
}

type tileKey struct {
	level int
	index TileIndex
}

// A TiledSource is a Source backed by a tile pyramid.
type TiledSource struct {
	ContentChangedListeners
	name          string
	grid          TileGrid
	zoomLevels    []ZoomLevel
	dataBounds    orb.Bound
	bounds        orb.Bound
	authoritative bool
	fetcher       TileFetcher
	projector     Projector
	cacheSize     int
	cache         *lru.Cache[tileKey, Chunk]
	logger        *zap.Logger
}

// A TiledSourceOption sets an option on a TiledSource.
type TiledSourceOption func(*TiledSource)

// NewTiledSource returns a new TiledSource named name that lays out
// zoomLevels on grid and fetches tiles with fetcher.
func NewTiledSource(name string, grid TileGrid, zoomLevels []ZoomLevel, fetcher TileFetcher, options ...TiledSourceOption) (*TiledSource, error) {
	if len(zoomLevels) == 0 {
		return nil, fmt.Errorf("%s: no zoom levels: %w", name, ErrInvalidArgument)
	}
	for _, zoomLevel := range zoomLevels {
		if zoomLevel.Level < 0 || !(zoomLevel.Resolution > 0) || zoomLevel.TileWidth <= 0 || zoomLevel.TileHeight <= 0 {
			return nil, fmt.Errorf("%s: invalid zoom level %+v: %w", name, zoomLevel, ErrInvalidArgument)
		}
	}
	if fetcher == nil {
		return nil, fmt.Errorf("%s: nil fetcher: %w", name, ErrInvalidArgument)
	}

	s := &TiledSource{
		name:       name,
		grid:       grid,
		zoomLevels: slices.Clone(zoomLevels),
		dataBounds: grid.Extent,
		fetcher:    fetcher,
		projector:  defaultProjector,
		cacheSize:  256,
		logger:     zap.NewNop(),
	}
	for _, option := range options {
		option(s)
	}

	// Finest first.
	slices.SortFunc(s.zoomLevels, func(a, b ZoomLevel) int {
		return b.Level - a.Level
	})

	dataBounds, ok := intersectBounds(s.dataBounds, grid.Extent)
	if !ok {
		return nil, fmt.Errorf("%s: data bounds outside grid: %w", name, ErrInvalidArgument)
	}
	s.dataBounds = dataBounds
	bounds, err := inverseBound(s.projector, grid.SRID, dataBounds)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	s.bounds = bounds

	if s.cacheSize > 0 {
		s.cache, err = lru.New[tileKey, Chunk](s.cacheSize)
		if err != nil {
			return nil, err
		}
	}
	return s, nil
}

// WithAuthoritative sets whether the source is authoritative.
func WithAuthoritative(authoritative bool) TiledSourceOption {
	return func(s *TiledSource) {
		s.authoritative = authoritative
	}
}

// WithDataBounds restricts the source to dataBounds, in grid units.
func WithDataBounds(dataBounds orb.Bound) TiledSourceOption {
	return func(s *TiledSource) {
		s.dataBounds = dataBounds
	}
}

// WithProjector sets the projector used to convert between
// longitude/latitude and grid coordinates.
func WithProjector(projector Projector) TiledSourceOption {
	return func(s *TiledSource) {
		s.projector = projector
	}
}

// WithTiledSourceCacheSize sets the number of tiles cached. Zero disables
// caching.
func WithTiledSourceCacheSize(cacheSize int) TiledSourceOption {
	return func(s *TiledSource) {
		s.cacheSize = cacheSize
	}
}

// WithTiledSourceLogger sets the logger used to report tiles that fail.
func WithTiledSourceLogger(logger *zap.Logger) TiledSourceOption {
	return func(s *TiledSource) {
		s.logger = logger
	}
}

// Name returns s's name.
func (s *TiledSource) Name() string {
	return s.name
}

// Bounds returns s's data bounds in longitude/latitude degrees.
func (s *TiledSource) Bounds() orb.Bound {
	return s.bounds
}

// Authoritative returns whether s is authoritative.
func (s *TiledSource) Authoritative() bool {
	return s.authoritative
}

// Grid returns s's grid.
func (s *TiledSource) Grid() TileGrid {
	return s.grid
}

// ZoomLevels returns s's zoom levels, finest first.
func (s *TiledSource) ZoomLevels() []ZoomLevel {
	return slices.Clone(s.zoomLevels)
}

// NotifyContentChanged discards cached tiles and notifies listeners that the
// data behind s changed.
func (s *TiledSource) NotifyContentChanged() {
	if s.cache != nil {
		s.cache.Purge()
	}
	s.Notify(s)
}

// Elevation returns the elevation at lat, lon and the type of the chunk that
// supplied it. Zoom levels are searched from finest to coarsest and the first
// finite sample is returned. It returns NaN if no level has data.
func (s *TiledSource) Elevation(ctx context.Context, lat, lon float64) (float64, string, error) {
	x, y, err := s.projector.Forward(s.grid.SRID, lon, lat)
	if err != nil {
		return math.NaN(), "", err
	}
	if !s.dataBounds.Contains(orb.Point{x, y}) {
		return math.NaN(), "", nil
	}
	for _, level := range s.zoomLevels {
		index := s.grid.TileIndex(level, x, y)
		chunk, err := s.tile(ctx, level, index)
		if err != nil {
			s.logTileError(level, index, err)
			continue
		}
		if chunk == nil {
			continue
		}
		value, err := chunk.Sample(ctx, lat, lon)
		if err != nil {
			s.logger.Warn("sample failed", zap.String("source", s.name), zap.String("uri", chunk.URI()), zap.Error(err))
			continue
		}
		if isFinite(value) {
			return value, chunk.Type(), nil
		}
	}
	return math.NaN(), "", nil
}

// Query returns a cursor over the tiles of s that match params. Tiles are
// visited level by level, finest first unless params.Order requests
// ResolutionAsc, and in row-major order within each level.
func (s *TiledSource) Query(ctx context.Context, params QueryParameters) (Cursor, error) {
	if params.Authoritative != nil && *params.Authoritative != s.authoritative {
		return EmptyCursor, nil
	}
	levels := trimZoomLevels(s.zoomLevels, s.grid.GSD, params.MinResolution, params.MaxResolution)
	if resolutionOrder(params.Order) == ResolutionAsc {
		levels = slices.Clone(levels)
		slices.Reverse(levels)
	}
	if len(levels) == 0 {
		return EmptyCursor, nil
	}
	return &tiledCursor{
		ctx:        ctx,
		source:     s,
		params:     params.Clone(),
		levels:     levels,
		levelIndex: -1,
	}, nil
}

// tile returns the tile at index, using s's cache if possible.
func (s *TiledSource) tile(ctx context.Context, level ZoomLevel, index TileIndex) (Chunk, error) {
	key := tileKey{level: level.Level, index: index}
	if s.cache != nil {
		if chunk, ok := s.cache.Get(key); ok {
			tiledSourceTileCacheHits.Inc()
			return chunk, nil
		}
		tiledSourceTileCacheMisses.Inc()
	}
	chunk, err := s.fetcher.Tile(ctx, level, index)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Add(key, chunk)
	}
	return chunk, nil
}

func (s *TiledSource) logTileError(level ZoomLevel, index TileIndex, err error) {
	tiledSourceTileFetchErrors.Inc()
	s.logger.Warn("tile fetch failed",
		zap.String("source", s.name),
		zap.Int("level", level.Level),
		zap.Int("x", index.X),
		zap.Int("y", index.Y),
		zap.Error(err),
	)
}

// areaOfInterest returns the area to search in grid units: the intersection
// of s's data bounds and the spatial filter of params. If the spatial filter
// cannot be reprojected the whole of s's data bounds are searched.
func (s *TiledSource) areaOfInterest(params QueryParameters) (orb.Bound, bool) {
	if params.SpatialFilter == nil {
		return s.dataBounds, true
	}
	filter, ok := intersectBounds(params.SpatialFilter.Bound(), s.bounds)
	if !ok {
		return orb.Bound{}, false
	}
	aoi, err := forwardBound(s.projector, s.grid.SRID, filter)
	if err != nil {
		s.logger.Debug("reprojection failed, using data bounds", zap.String("source", s.name), zap.Error(err))
		return s.dataBounds, true
	}
	return intersectBounds(aoi, s.dataBounds)
}

// trimZoomLevels returns the zoom levels of levels, which must be sorted
// finest first, whose ground sample distance lies between maxResolution and
// minResolution inclusive. NaN bounds are unconstrained.
func trimZoomLevels(levels []ZoomLevel, gsd func(ZoomLevel) float64, minResolution, maxResolution float64) []ZoomLevel {
	lo, hi := 0, len(levels)
	if !math.IsNaN(minResolution) {
		for lo < hi && gsd(levels[hi-1]) > minResolution {
			hi--
		}
	}
	if !math.IsNaN(maxResolution) {
		for lo < hi && gsd(levels[lo]) < maxResolution {
			lo++
		}
	}
	return levels[lo:hi]
}

// resolutionOrder returns the first resolution order in orders, defaulting
// to ResolutionDesc.
func resolutionOrder(orders []Order) Order {
	for _, order := range orders {
		if order == ResolutionAsc || order == ResolutionDesc {
			return order
		}
	}
	return ResolutionDesc
}

// A tiledCursor walks the tiles of a TiledSource.
type tiledCursor struct {
	chunkCursor
	ctx        context.Context
	source     *TiledSource
	params     QueryParameters
	levels     []ZoomLevel
	levelIndex int
	inLevel    bool
	aoi        *orb.Bound
	minIndex   TileIndex
	maxIndex   TileIndex
	next       TileIndex
}

func (c *tiledCursor) MoveToNext() bool {
	c.current = nil
	if c.closed {
		return false
	}
	for c.ctx.Err() == nil {
		if !c.inLevel {
			c.levelIndex++
			if c.levelIndex >= len(c.levels) {
				return false
			}
			c.inLevel = c.enterLevel()
			continue
		}
		index, ok := c.nextIndex()
		if !ok {
			c.inLevel = false
			continue
		}
		level := c.levels[c.levelIndex]
		chunk, err := c.source.tile(c.ctx, level, index)
		if err != nil {
			c.source.logTileError(level, index, err)
			continue
		}
		if chunk == nil || !Accept(chunk, c.params) {
			continue
		}
		c.current = chunk
		return true
	}
	return false
}

// enterLevel computes the tile range of the current level. It returns false
// if no tiles need to be visited.
func (c *tiledCursor) enterLevel() bool {
	if c.aoi == nil {
		aoi, ok := c.source.areaOfInterest(c.params)
		if !ok {
			c.levelIndex = len(c.levels)
			return false
		}
		c.aoi = &aoi
	}
	minIndex, maxIndex, ok := c.source.grid.TileRange(c.levels[c.levelIndex], *c.aoi)
	if !ok {
		return false
	}
	c.minIndex = minIndex
	c.maxIndex = maxIndex
	c.next = minIndex
	return true
}

// nextIndex returns the next tile index of the current level in row-major
// order.
func (c *tiledCursor) nextIndex() (TileIndex, bool) {
	if c.next.Y >= c.maxIndex.Y {
		return TileIndex{}, false
	}
	index := c.next
	c.next.X++
	if c.next.X >= c.maxIndex.X {
		c.next.X = c.minIndex.X
		c.next.Y++
	}
	return index, true
}

func (c *tiledCursor) Close() error {
	c.closed = true
	c.current = nil
	return nil
}
