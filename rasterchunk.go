package elevation

import (
	"context"
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// A RasterChunk is a Chunk backed by a regular grid of samples in an
// arbitrary coordinate system. Samples are stored row by row from the top
// left corner; NaN samples have no data. Sampling uses the nearest pixel, or
// bilinear interpolation when the context carries Hints with Interpolate
// set.
type RasterChunk struct {
	chunkMetadata
	srid       int
	gridBounds orb.Bound
	width      int
	height     int
	pixelSizeX float64
	pixelSizeY float64
	samples    []float32
	projector  Projector
}

// NewRasterChunk returns a new RasterChunk covering gridBounds in srid with
// width by height samples. If options.Bounds is nil it is computed from
// gridBounds. A nil projector uses the default projector.
func NewRasterChunk(options ChunkOptions, srid int, gridBounds orb.Bound, width, height int, samples []float32, projector Projector) (*RasterChunk, error) {
	if width <= 0 || height <= 0 || len(samples) != width*height {
		return nil, fmt.Errorf("%dx%d raster with %d samples: %w", width, height, len(samples), ErrInvalidArgument)
	}
	if projector == nil {
		projector = defaultProjector
	}
	if options.Bounds == nil {
		bounds, err := inverseBound(projector, srid, gridBounds)
		if err != nil {
			return nil, err
		}
		options.Bounds = bounds
	}
	return &RasterChunk{
		chunkMetadata: chunkMetadata{options: options},
		srid:          srid,
		gridBounds:    gridBounds,
		width:         width,
		height:        height,
		pixelSizeX:    (gridBounds.Max.X() - gridBounds.Min.X()) / float64(width),
		pixelSizeY:    (gridBounds.Max.Y() - gridBounds.Min.Y()) / float64(height),
		samples:       samples,
		projector:     projector,
	}, nil
}

// Scale returns the scale of c's pixel space.
func (c *RasterChunk) Scale() (int, int) {
	return 1, 1
}

// Samples returns the samples at coords, which are pixel column and row
// indexes. Coordinates outside c are NaN.
func (c *RasterChunk) Samples(ctx context.Context, coords []Coord) ([]float64, error) {
	samples := make([]float64, len(coords))
	for i, coord := range coords {
		samples[i] = c.pixel(coord.X, coord.Y)
	}
	return samples, nil
}

func (c *RasterChunk) Sample(ctx context.Context, lat, lon float64) (float64, error) {
	x, y, err := c.projector.Forward(c.srid, lon, lat)
	if err != nil {
		return math.NaN(), err
	}
	hints, _ := HintsFromContext(ctx)
	return c.sampleGrid(ctx, x, y, hints.Interpolate)
}

// SampleBatch fills the NaN elements of out with the samples at points.
func (c *RasterChunk) SampleBatch(ctx context.Context, points []orb.Point, out []float64) error {
	hints, _ := HintsFromContext(ctx)
	for i, point := range points {
		if !math.IsNaN(out[i]) {
			continue
		}
		x, y, err := c.projector.Forward(c.srid, point.Lon(), point.Lat())
		if err != nil {
			return err
		}
		sample, err := c.sampleGrid(ctx, x, y, hints.Interpolate)
		if err != nil {
			return err
		}
		if isFinite(sample) {
			out[i] = sample
		}
	}
	return nil
}

func (c *RasterChunk) sampleGrid(ctx context.Context, x, y float64, interpolate bool) (float64, error) {
	if !c.gridBounds.Contains(orb.Point{x, y}) {
		return math.NaN(), nil
	}
	column := (x - c.gridBounds.Min.X()) / c.pixelSizeX
	row := (c.gridBounds.Max.Y() - y) / c.pixelSizeY
	nearest := c.pixel(min(int(column), c.width-1), min(int(row), c.height-1))
	if !interpolate {
		return nearest, nil
	}

	// Interpolate between pixel centers.
	coord := []float64{
		max(0, min(column-0.5, float64(c.width-1))),
		max(0, min(row-0.5, float64(c.height-1))),
	}
	values, err := InterpolateBilinear(ctx, c, [][]float64{coord})
	if err != nil {
		return math.NaN(), err
	}
	if math.IsNaN(values[0]) {
		return nearest, nil
	}
	return values[0], nil
}

func (c *RasterChunk) pixel(column, row int) float64 {
	if column < 0 || c.width <= column || row < 0 || c.height <= row {
		return math.NaN()
	}
	return float64(c.samples[row*c.width+column])
}
