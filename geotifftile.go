package elevation

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/google/tiff"
	_ "github.com/google/tiff/bigtiff"
	_ "github.com/google/tiff/geotiff"
	"github.com/maypok86/otter/v2"
	"github.com/paulmach/orb"
	"golang.org/x/image/tiff/lzw"
)

var errShortRead = errors.New("short read")

// A geoTIFFFile is an open file that can be parsed as a TIFF.
type geoTIFFFile interface {
	io.ReadSeeker
	io.ReaderAt
	io.Closer
}

// A GeoTIFFTile is an open GeoTIFF file containing a single band of float32
// samples in internal LZW-compressed tiles. It implements Raster in model
// coordinates.
type GeoTIFFTile struct {
	name                      string
	file                      geoTIFFFile
	srid                      int
	imageWidth                int
	imageLength               int
	tileWidth                 int
	tileLength                int
	tilesAcross               int
	tilesDown                 int
	tileOffsets               []uint64
	tileByteCounts            []uint64
	smallestTileByteCount     uint64
	tileSampleCount           int
	tileByteCountUncompressed int
	tileCacheSizeBytes        int
	tileSamplesCache          *otter.Cache[TileCoord, []float32]
	noData                    float32
	hasNoData                 bool
	emptyTileBytes            atomic.Pointer[[]byte]
	scaleX                    int
	scaleY                    int
	translateX                int
	translateY                int
}

// A GeoTIFFTileOption sets an option on a GeoTIFFTile.
type GeoTIFFTileOption func(*GeoTIFFTile)

// A geoTIFFIFD is a struct into which github.com/google/tiff can unmarshal an
// IFD.
type geoTIFFIFD struct {
	ImageWidth                uint16    `tiff:"field,tag=256"`
	ImageLength               uint16    `tiff:"field,tag=257"`
	BitsPerSample             uint16    `tiff:"field,tag=258"`
	Compression               uint16    `tiff:"field,tag=259"`
	PhotometricInterpretation uint16    `tiff:"field,tag=262"`
	SamplesPerPixel           uint16    `tiff:"field,tag=277"`
	PlanarConfiguration       uint16    `tiff:"field,tag=284"`
	Predictor                 uint16    `tiff:"field,tag=317"`
	TileWidth                 uint16    `tiff:"field,tag=322"`
	TileLength                uint16    `tiff:"field,tag=323"`
	TileOffsets               []uint64  `tiff:"field,tag=324"`
	TileByteCounts            []uint64  `tiff:"field,tag=325"`
	SampleFormat              uint16    `tiff:"field,tag=339"`
	ModelPixelScaleTag        []float64 `tiff:"field,tag=33550"`
	ModelTiepointTag          []float64 `tiff:"field,tag=33922"`
	GeoKeyDirectoryTag        []uint16  `tiff:"field,tag=34735"`
	GeoDoubleParamsTag        []float64 `tiff:"field,tag=34736"`
	GeoASCIIParamsTag         string    `tiff:"field,tag=34737"`
	GDALMetadata              string    `tiff:"field,tag=42112"`
	GDALNoData                string    `tiff:"field,tag=42113"`
}

// NewGeoTIFFTile opens filename in fsys. The file must support random
// access.
func NewGeoTIFFTile(fsys fs.FS, filename string, options ...GeoTIFFTileOption) (*GeoTIFFTile, error) {
	f := &GeoTIFFTile{
		name:               filename,
		tileCacheSizeBytes: 128 << 20, // 128MB.
	}
	for _, option := range options {
		option(f)
	}

	file, err := fsys.Open(filename)
	if err != nil {
		return nil, err
	}
	ok := false
	defer func() {
		if !ok {
			_ = file.Close()
		}
	}()
	randomAccessFile, isRandomAccess := file.(geoTIFFFile)
	if !isRandomAccess {
		return nil, fmt.Errorf("%s: %w", filename, errors.ErrUnsupported)
	}
	f.file = randomAccessFile

	if err := f.parse(); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}

	ok = true
	return f, nil
}

// parse reads f's header.
func (f *GeoTIFFTile) parse() error {
	tiffTIFF, err := tiff.Parse(f.file, tiff.GetTagSpace("GeoTIFF"), nil)
	if err != nil {
		return err
	}

	if len(tiffTIFF.IFDs()) != 1 {
		return fmt.Errorf("found %d IFDs, expected 1", len(tiffTIFF.IFDs()))
	}

	var ifd geoTIFFIFD
	if err := tiff.UnmarshalIFD(tiffTIFF.IFDs()[0], &ifd); err != nil {
		return err
	}

	if ifd.BitsPerSample != 32 ||
		ifd.Compression != 5 ||
		ifd.PhotometricInterpretation != 1 ||
		ifd.SamplesPerPixel != 1 ||
		ifd.PlanarConfiguration != 1 ||
		ifd.Predictor != 1 ||
		ifd.SampleFormat != 3 ||
		len(ifd.ModelPixelScaleTag) != 3 || ifd.ModelPixelScaleTag[2] != 0 ||
		len(ifd.ModelTiepointTag) != 6 || ifd.ModelTiepointTag[2] != 0 || ifd.ModelTiepointTag[5] != 0 {
		return errors.ErrUnsupported
	}

	if ifd.GDALNoData != "" {
		noData, err := strconv.ParseFloat(strings.TrimSpace(ifd.GDALNoData), 32)
		if err != nil {
			return fmt.Errorf("GDAL_NODATA %q: %w", ifd.GDALNoData, err)
		}
		f.noData = float32(noData)
		f.hasNoData = true
	}

	geoKeys, err := ParseGeoKeys(ifd.GeoKeyDirectoryTag, ifd.GeoDoubleParamsTag, []byte(ifd.GeoASCIIParamsTag))
	if err != nil {
		return err
	}
	if f.srid, err = geoKeys.SRID(); err != nil {
		return err
	}

	f.imageWidth = int(ifd.ImageWidth)
	f.imageLength = int(ifd.ImageLength)
	f.tileWidth = int(ifd.TileWidth)
	f.tileLength = int(ifd.TileLength)
	f.tilesAcross = (f.imageWidth + f.tileWidth - 1) / f.tileWidth
	f.tilesDown = (f.imageLength + f.tileLength - 1) / f.tileLength
	tilesPerImage := f.tilesAcross * f.tilesDown
	if len(ifd.TileByteCounts) != tilesPerImage || len(ifd.TileOffsets) != tilesPerImage {
		return errors.New("incorrect number of tile byte counts or offsets")
	}
	f.tileOffsets = ifd.TileOffsets
	f.tileByteCounts = ifd.TileByteCounts
	f.smallestTileByteCount = ifd.TileByteCounts[0]
	for _, tileByteCount := range ifd.TileByteCounts[1:] {
		if tileByteCount < f.smallestTileByteCount {
			f.smallestTileByteCount = tileByteCount
		}
	}
	f.tileSampleCount = f.tileWidth * f.tileLength
	f.tileByteCountUncompressed = f.tileSampleCount * int(ifd.BitsPerSample) / 8

	tileCacheCount := max(f.tileCacheSizeBytes/f.tileByteCountUncompressed, 1)
	f.tileSamplesCache, err = otter.New(&otter.Options[TileCoord, []float32]{
		MaximumSize: tileCacheCount,
	})
	if err != nil {
		return err
	}

	scaleX, scaleY, scaleZ := ifd.ModelPixelScaleTag[0], ifd.ModelPixelScaleTag[1], ifd.ModelPixelScaleTag[2]
	if scaleX != float64(int(scaleX)) || scaleY != float64(int(scaleY)) || scaleX <= 0 || scaleY <= 0 || scaleZ != 0 {
		return errors.ErrUnsupported
	}
	i, j, k := ifd.ModelTiepointTag[0], ifd.ModelTiepointTag[1], ifd.ModelTiepointTag[2]
	if i != 0 || j != 0 || k != 0 {
		return errors.ErrUnsupported
	}
	x, y, z := ifd.ModelTiepointTag[3], ifd.ModelTiepointTag[4], ifd.ModelTiepointTag[5]
	if x != float64(int(x)) || y != float64(int(y)) || z != 0 {
		return errors.ErrUnsupported
	}
	f.scaleX = int(scaleX)
	f.scaleY = int(scaleY)
	f.translateX = int(x)
	f.translateY = int(y)
	return nil
}

// WithTileCacheSize sets the size in bytes of the decoded internal tile
// cache.
func WithTileCacheSize(tileCacheSize int) GeoTIFFTileOption {
	return func(f *GeoTIFFTile) {
		f.tileCacheSizeBytes = tileCacheSize
	}
}

// Close closes f's underlying file.
func (f *GeoTIFFTile) Close() error {
	return f.file.Close()
}

// Name returns the filename f was opened from.
func (f *GeoTIFFTile) Name() string {
	return f.name
}

// SRID returns the SRID of f's model coordinates.
func (f *GeoTIFFTile) SRID() int {
	return f.srid
}

// Scale returns the size of f's pixels in model coordinates.
func (f *GeoTIFFTile) Scale() (int, int) {
	return f.scaleX, f.scaleY
}

// Bounds returns the area covered by f in model coordinates.
func (f *GeoTIFFTile) Bounds() orb.Bound {
	minX := float64(f.translateX)
	maxY := float64(f.translateY)
	return orb.Bound{
		Min: orb.Point{minX, maxY - float64(f.imageLength*f.scaleY)},
		Max: orb.Point{minX + float64(f.imageWidth*f.scaleX), maxY},
	}
}

// Sample returns a single sample from f.
func (f *GeoTIFFTile) Sample(ctx context.Context, coord Coord) (float64, error) {
	localCoord := f.localCoord(coord)
	localTileCoord, ok := f.localTileCoord(localCoord)
	if !ok {
		return math.NaN(), nil
	}
	switch tileSamples, err := f.getTileSamplesCached(ctx, localTileCoord); {
	case errors.Is(err, otter.ErrNotFound):
		return math.NaN(), nil
	case err != nil:
		return 0, err
	default:
		return f.tileSample(tileSamples, localCoord), nil
	}
}

// Samples returns multiple samples from f. It is significantly faster than
// calling [Sample] for each coordinate.
func (f *GeoTIFFTile) Samples(ctx context.Context, coords []Coord) ([]float64, error) {
	localCoords := make([]Coord, len(coords))
	for i, coord := range coords {
		localCoords[i] = f.localCoord(coord)
	}

	samples := make([]float64, len(localCoords))

	// Group indexes by local tile coord.
	indexesByLocalTileCoord := make(map[TileCoord][]int)
	for index, localCoord := range localCoords {
		localTileCoord, ok := f.localTileCoord(localCoord)
		if !ok {
			samples[index] = math.NaN()
			continue
		}
		indexesByLocalTileCoord[localTileCoord] = append(indexesByLocalTileCoord[localTileCoord], index)
	}

	// Populate samples one local tile at a time.
	for localTileCoord, indexes := range indexesByLocalTileCoord {
		slices.Sort(indexes)
		switch tileSamples, err := f.getTileSamplesCached(ctx, localTileCoord); {
		case errors.Is(err, otter.ErrNotFound):
			for _, index := range indexes {
				samples[index] = math.NaN()
			}
		case err != nil:
			return nil, err
		default:
			for _, index := range indexes {
				samples[index] = f.tileSample(tileSamples, localCoords[index])
			}
		}
	}

	return samples, nil
}

// getCompressedTileData returns the compressed tile data for the data at
// localTileCoord. If the tile is known to be empty, it returns the error
// otter.ErrNotFound.
func (f *GeoTIFFTile) getCompressedTileData(localTileCoord TileCoord) ([]byte, error) {
	tileIndex := localTileCoord.C + f.tilesAcross*localTileCoord.R
	tileByteCount := f.tileByteCounts[tileIndex]
	tileOffset := f.tileOffsets[tileIndex]
	compressedData := make([]byte, tileByteCount)
	switch n, err := f.file.ReadAt(compressedData, int64(tileOffset)); {
	case err != nil:
		return nil, err
	case n != int(tileByteCount):
		return nil, errShortRead
	case f.isEmptyTileData(compressedData):
		return nil, otter.ErrNotFound
	default:
		return compressedData, nil
	}
}

// decompressTileData decompresses the tile data in compressedData.
func (f *GeoTIFFTile) decompressTileData(compressedData []byte) ([]byte, error) {
	tileData := make([]byte, f.tileByteCountUncompressed)
	r := lzw.NewReader(bytes.NewReader(compressedData), lzw.MSB, 8)
	for bytesRead := 0; bytesRead < f.tileByteCountUncompressed; {
		n, err := r.Read(tileData[bytesRead:])
		if err != nil {
			return nil, err
		}
		bytesRead += n
	}
	return tileData, nil
}

// decodeTileData decodes tileData.
func (f *GeoTIFFTile) decodeTileData(tileData []byte) []float32 {
	tileSamples := make([]float32, f.tileSampleCount)
	for i := range f.tileSampleCount {
		b := binary.LittleEndian.Uint32(tileData[i*4 : (i+1)*4])
		tileSamples[i] = math.Float32frombits(b)
	}
	return tileSamples
}

// localCoord returns the pixel containing coord.
func (f *GeoTIFFTile) localCoord(coord Coord) Coord {
	return Coord{
		X: floorDivInt(coord.X-f.translateX, f.scaleX),
		Y: floorDivInt(f.translateY-coord.Y, f.scaleY),
	}
}

// floorDivInt returns floor(a / b) for b > 0.
func floorDivInt(a, b int) int {
	q := a / b
	if a%b != 0 && a < 0 {
		q--
	}
	return q
}

// getTileSamples returns the tile samples at localTileCoord.
func (f *GeoTIFFTile) getTileSamples(ctx context.Context, localTileCoord TileCoord) ([]float32, error) {
	// Retrieve the compressed tile data.
	compressedTileData, err := f.getCompressedTileData(localTileCoord)
	if err != nil {
		return nil, err
	}

	// Decompress the tile data and decode it.
	tileData, err := f.decompressTileData(compressedTileData)
	if err != nil {
		return nil, err
	}
	tileSamples := f.decodeTileData(tileData)

	// If we do not know what an empty tile looks like compressed, check to see
	// if this is an empty tile, and, if so, use its bytes to detect empty tiles
	// before they are decompressed. We assume that the empty tile is the
	// smallest tile.
	if f.hasNoData && f.emptyTileBytes.Load() == nil && len(compressedTileData) == int(f.smallestTileByteCount) {
		if !slices.ContainsFunc(tileSamples, func(sample float32) bool {
			return !f.isNoData(sample)
		}) {
			f.emptyTileBytes.CompareAndSwap(nil, &compressedTileData)
			return nil, otter.ErrNotFound
		}
	}

	return tileSamples, nil
}

// isEmptyTileData returns whether compressedData is known to be the
// compressed form of a tile containing only no data values.
func (f *GeoTIFFTile) isEmptyTileData(compressedData []byte) bool {
	emptyTileBytes := f.emptyTileBytes.Load()
	return emptyTileBytes != nil && bytes.Equal(compressedData, *emptyTileBytes)
}

// isNoData returns whether sample is f's no data value.
func (f *GeoTIFFTile) isNoData(sample float32) bool {
	return f.hasNoData && sample == f.noData
}

// getTileSamplesCached returns the tile at localTileCoord using f's cache.
func (f *GeoTIFFTile) getTileSamplesCached(ctx context.Context, localTileCoord TileCoord) ([]float32, error) {
	return f.tileSamplesCache.Get(ctx, localTileCoord, otter.LoaderFunc[TileCoord, []float32](f.getTileSamples))
}

// localTileCoord returns the local tile coord for a given coordinate.
func (f *GeoTIFFTile) localTileCoord(localCoord Coord) (TileCoord, bool) {
	if localCoord.X < 0 || f.imageWidth <= localCoord.X || localCoord.Y < 0 || f.imageLength <= localCoord.Y {
		return TileCoord{}, false
	}
	return TileCoord{
		C: localCoord.X / f.tileWidth,
		R: localCoord.Y / f.tileLength,
	}, true
}

// tileSample returns the sample from tileSamples at localCoord.
func (f *GeoTIFFTile) tileSample(tileSamples []float32, localCoord Coord) float64 {
	sample := tileSamples[localCoord.X%f.tileWidth+(localCoord.Y%f.tileLength)*f.tileWidth]
	if f.isNoData(sample) {
		return math.NaN()
	}
	return float64(sample)
}
