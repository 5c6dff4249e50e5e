// Package tilestore stores custom elevation tile pyramids in a single bbolt
// database file.
//
// A store holds its pyramid metadata as YAML in the meta bucket and one record
// per tile in the tiles bucket. Each tile record is a little-endian header of
// width and height followed by width*height little-endian float32 samples,
// row by row from the top left corner. NaN samples have no data.
package tilestore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/paulmach/orb"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/twpayne/go-elevation-engine"
)

const (
	defaultFileMode = 0o600
	defaultTimeout  = 1 * time.Second
	tileHeaderSize  = 8
)

var (
	metaBucket  = []byte("meta")
	tilesBucket = []byte("tiles")
	metadataKey = []byte("metadata")
)

// ErrNotAStore is returned when opening a file that is not a tile store.
var ErrNotAStore = errors.New("not a tile store")

// A ZoomLevel is the metadata of a zoom level.
type ZoomLevel struct {
	Level      int     `yaml:"level"`
	Resolution float64 `yaml:"resolution"`
	TileWidth  int     `yaml:"tileWidth"`
	TileHeight int     `yaml:"tileHeight"`
}

// Metadata describes the pyramid held by a store.
type Metadata struct {
	Name string `yaml:"name"`
	// Scheme is the name of an elevation.TileScheme.
	Scheme string `yaml:"scheme"`

	// SRID, Origin, Extent, and MetersPerUnit describe Custom grids and are
	// ignored for other schemes.
	SRID          int        `yaml:"srid,omitempty"`
	Origin        [2]float64 `yaml:"origin,omitempty"`
	Extent        [4]float64 `yaml:"extent,omitempty"`
	MetersPerUnit float64    `yaml:"metersPerUnit,omitempty"`

	// ZoomLevels lists the zoom levels explicitly. If it is empty, levels
	// MinLevel to MaxLevel of TileSize square tiles are generated from the
	// scheme.
	ZoomLevels []ZoomLevel `yaml:"zoomLevels,omitempty"`
	MinLevel   int         `yaml:"minLevel,omitempty"`
	MaxLevel   int         `yaml:"maxLevel,omitempty"`
	TileSize   int         `yaml:"tileSize,omitempty"`

	Type          string   `yaml:"type"`
	CE            *float64 `yaml:"ce,omitempty"`
	LE            *float64 `yaml:"le,omitempty"`
	Flags         int      `yaml:"flags,omitempty"`
	Authoritative bool     `yaml:"authoritative,omitempty"`
}

// Grid returns the tile grid described by m.
func (m *Metadata) Grid() (elevation.TileGrid, error) {
	scheme, err := elevation.ParseTileScheme(m.Scheme)
	if err != nil {
		return elevation.TileGrid{}, err
	}
	switch scheme {
	case elevation.WebMercator:
		return elevation.WebMercatorGrid(), nil
	case elevation.Flat:
		return elevation.FlatGrid(), nil
	case elevation.FlatQuad:
		return elevation.FlatQuadGrid(), nil
	default:
		if m.SRID == 0 || !(m.Extent[0] < m.Extent[2]) || !(m.Extent[1] < m.Extent[3]) {
			return elevation.TileGrid{}, fmt.Errorf("%s: custom grid needs srid and extent: %w", m.Name, elevation.ErrInvalidArgument)
		}
		extent := orb.Bound{
			Min: orb.Point{m.Extent[0], m.Extent[1]},
			Max: orb.Point{m.Extent[2], m.Extent[3]},
		}
		return elevation.CustomGrid(m.SRID, m.Origin[0], m.Origin[1], extent, m.MetersPerUnit), nil
	}
}

// ElevationZoomLevels returns the zoom levels described by m.
func (m *Metadata) ElevationZoomLevels(grid elevation.TileGrid) ([]elevation.ZoomLevel, error) {
	if len(m.ZoomLevels) == 0 {
		return grid.ZoomLevels(m.MinLevel, m.MaxLevel, m.TileSize)
	}
	zoomLevels := make([]elevation.ZoomLevel, 0, len(m.ZoomLevels))
	for _, zoomLevel := range m.ZoomLevels {
		zoomLevels = append(zoomLevels, elevation.ZoomLevel(zoomLevel))
	}
	return zoomLevels, nil
}

// A Store is an open tile store. It is an elevation.TileFetcher.
type Store struct {
	db         *bolt.DB
	path       string
	metadata   Metadata
	grid       elevation.TileGrid
	zoomLevels map[int]elevation.ZoomLevel
	projector  elevation.Projector
	logger     *zap.Logger
	mutex      sync.Mutex
	sources    []*elevation.TiledSource
}

// An Option sets an option on a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithProjector sets the projector used by the store's chunks and sources.
func WithProjector(projector elevation.Projector) Option {
	return func(s *Store) {
		s.projector = projector
	}
}

// Create creates a new store at path holding a pyramid described by metadata.
// It fails if path already exists.
func Create(path string, metadata Metadata, options ...Option) (*Store, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("%s: %w", path, os.ErrExist)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory for store: %w", err)
	}
	s := newStore(path, options...)
	if err := s.setMetadata(metadata); err != nil {
		return nil, err
	}
	data, err := yaml.Marshal(&s.metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	db, err := bolt.Open(path, defaultFileMode, &bolt.Options{Timeout: defaultTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists(metaBucket)
		if err != nil {
			return fmt.Errorf("failed to create meta bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists(tilesBucket); err != nil {
			return fmt.Errorf("failed to create tiles bucket: %w", err)
		}
		return meta.Put(metadataKey, data)
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.db = db
	s.logger.Info("created tile store", zap.String("path", path), zap.String("name", s.metadata.Name))
	return s, nil
}

// Open opens the existing store at path.
func Open(path string, options ...Option) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, defaultFileMode, &bolt.Options{Timeout: defaultTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	var data []byte
	if err := db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket(metaBucket)
		if meta == nil || tx.Bucket(tilesBucket) == nil {
			return fmt.Errorf("%s: %w", path, ErrNotAStore)
		}
		data = slices.Clone(meta.Get(metadataKey))
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}

	var metadata Metadata
	if err := yaml.Unmarshal(data, &metadata); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	s := newStore(path, options...)
	if err := s.setMetadata(metadata); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.db = db
	s.logger.Debug("opened tile store", zap.String("path", path), zap.String("name", s.metadata.Name))
	return s, nil
}

func newStore(path string, options ...Option) *Store {
	s := &Store{
		path:      path,
		projector: elevation.NewDefaultProjector(),
		logger:    zap.NewNop(),
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// setMetadata validates metadata and derives s's grid and zoom levels.
func (s *Store) setMetadata(metadata Metadata) error {
	grid, err := metadata.Grid()
	if err != nil {
		return err
	}
	zoomLevels, err := metadata.ElevationZoomLevels(grid)
	if err != nil {
		return err
	}
	if len(zoomLevels) == 0 {
		return fmt.Errorf("%s: no zoom levels: %w", metadata.Name, elevation.ErrInvalidArgument)
	}
	s.metadata = metadata
	s.grid = grid
	s.zoomLevels = make(map[int]elevation.ZoomLevel, len(zoomLevels))
	for _, zoomLevel := range zoomLevels {
		s.zoomLevels[zoomLevel.Level] = zoomLevel
	}
	return nil
}

// Close closes s.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the path of s's file.
func (s *Store) Path() string {
	return s.path
}

// Metadata returns s's metadata.
func (s *Store) Metadata() Metadata {
	return s.metadata
}

// Grid returns s's tile grid.
func (s *Store) Grid() elevation.TileGrid {
	return s.grid
}

// ZoomLevels returns s's zoom levels in ascending level order.
func (s *Store) ZoomLevels() []elevation.ZoomLevel {
	zoomLevels := make([]elevation.ZoomLevel, 0, len(s.zoomLevels))
	for _, zoomLevel := range s.zoomLevels {
		zoomLevels = append(zoomLevels, zoomLevel)
	}
	slices.SortFunc(zoomLevels, func(a, b elevation.ZoomLevel) int {
		return a.Level - b.Level
	})
	return zoomLevels
}

// PutTile stores the samples of the tile at index of level, replacing any
// existing tile. index must lie within the grid at level.
func (s *Store) PutTile(level int, index elevation.TileIndex, width, height int, samples []float32) error {
	zoomLevel, ok := s.zoomLevels[level]
	if !ok {
		return fmt.Errorf("level %d: %w", level, elevation.ErrInvalidArgument)
	}
	if columns, rows := s.grid.TileCount(zoomLevel); index.X < 0 || columns <= index.X || index.Y < 0 || rows <= index.Y {
		return fmt.Errorf("level %d tile %d/%d outside %dx%d grid: %w", level, index.X, index.Y, columns, rows, elevation.ErrInvalidArgument)
	}
	if width <= 0 || height <= 0 || len(samples) != width*height {
		return fmt.Errorf("%dx%d tile with %d samples: %w", width, height, len(samples), elevation.ErrInvalidArgument)
	}
	if err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(tilesBucket).Put(tileKey(level, index), encodeTile(width, height, samples))
	}); err != nil {
		return fmt.Errorf("failed to store tile: %w", err)
	}
	s.notifyContentChanged()
	return nil
}

// DeleteTile deletes the tile at index of level. Deleting a tile that does not
// exist does nothing.
func (s *Store) DeleteTile(level int, index elevation.TileIndex) error {
	if err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(tilesBucket).Delete(tileKey(level, index))
	}); err != nil {
		return fmt.Errorf("failed to delete tile: %w", err)
	}
	s.notifyContentChanged()
	return nil
}

// TileCount returns the number of tiles in s.
func (s *Store) TileCount() (int, error) {
	count := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		count = tx.Bucket(tilesBucket).Stats().KeyN
		return nil
	})
	return count, err
}

// Tile returns the chunk of the tile at index of level, or nil if there is no
// such tile.
func (s *Store) Tile(ctx context.Context, level elevation.ZoomLevel, index elevation.TileIndex) (elevation.Chunk, error) {
	var width, height int
	var samples []float32
	if err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(tilesBucket).Get(tileKey(level.Level, index))
		if data == nil {
			return nil
		}
		var err error
		width, height, samples, err = decodeTile(data)
		return err
	}); err != nil {
		return nil, fmt.Errorf("level %d tile %d/%d: %w", level.Level, index.X, index.Y, err)
	}
	if samples == nil {
		return nil, nil
	}

	ce, le := math.NaN(), math.NaN()
	if s.metadata.CE != nil {
		ce = *s.metadata.CE
	}
	if s.metadata.LE != nil {
		le = *s.metadata.LE
	}
	chunk, err := elevation.NewRasterChunk(elevation.ChunkOptions{
		Type:          s.metadata.Type,
		URI:           fmt.Sprintf("%s#%d/%d/%d", s.path, level.Level, index.X, index.Y),
		Flags:         s.metadata.Flags,
		Resolution:    s.grid.GSD(level),
		CE:            ce,
		LE:            le,
		Authoritative: s.metadata.Authoritative,
	}, s.grid.SRID, s.grid.TileBounds(level, index), width, height, samples, s.projector)
	if err != nil {
		return nil, err
	}
	return chunk, nil
}

// Source returns a new TiledSource over s. The source is notified whenever
// tiles are written or deleted.
func (s *Store) Source(options ...elevation.TiledSourceOption) (*elevation.TiledSource, error) {
	options = slices.Concat([]elevation.TiledSourceOption{
		elevation.WithAuthoritative(s.metadata.Authoritative),
		elevation.WithProjector(s.projector),
		elevation.WithTiledSourceLogger(s.logger),
	}, options)
	source, err := elevation.NewTiledSource(s.metadata.Name, s.grid, s.ZoomLevels(), s, options...)
	if err != nil {
		return nil, err
	}
	s.mutex.Lock()
	s.sources = append(s.sources, source)
	s.mutex.Unlock()
	return source, nil
}

func (s *Store) notifyContentChanged() {
	s.mutex.Lock()
	sources := slices.Clone(s.sources)
	s.mutex.Unlock()
	for _, source := range sources {
		source.NotifyContentChanged()
	}
}

// tileKey returns the key of a tile. Keys sort by level, then row, then
// column.
func tileKey(level int, index elevation.TileIndex) []byte {
	key := make([]byte, 12)
	binary.BigEndian.PutUint32(key[0:4], uint32(level))
	binary.BigEndian.PutUint32(key[4:8], uint32(index.Y))
	binary.BigEndian.PutUint32(key[8:12], uint32(index.X))
	return key
}

func encodeTile(width, height int, samples []float32) []byte {
	data := make([]byte, tileHeaderSize+4*len(samples))
	binary.LittleEndian.PutUint32(data[0:4], uint32(width))
	binary.LittleEndian.PutUint32(data[4:8], uint32(height))
	for i, sample := range samples {
		binary.LittleEndian.PutUint32(data[tileHeaderSize+4*i:], math.Float32bits(sample))
	}
	return data
}

// decodeTile decodes data. data is only valid during the transaction so the
// samples are copied.
func decodeTile(data []byte) (int, int, []float32, error) {
	if len(data) < tileHeaderSize {
		return 0, 0, nil, errors.New("short tile record")
	}
	width := int(binary.LittleEndian.Uint32(data[0:4]))
	height := int(binary.LittleEndian.Uint32(data[4:8]))
	if width <= 0 || height <= 0 || len(data) != tileHeaderSize+4*width*height {
		return 0, 0, nil, fmt.Errorf("%dx%d tile record of %d bytes", width, height, len(data))
	}
	samples := make([]float32, width*height)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[tileHeaderSize+4*i:]))
	}
	return width, height, samples, nil
}
