package elevation

import (
	"context"
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// Elevation model flags.
const (
	ModelTerrain = 1 << iota
	ModelSurface
)

// ChunkMetadata describes a chunk of elevation data.
type ChunkMetadata interface {
	// Resolution returns the nominal resolution in meters per pixel.
	Resolution() float64
	Authoritative() bool
	// CE returns the circular error in meters, or NaN if unknown.
	CE() float64
	// LE returns the linear error in meters, or NaN if unknown.
	LE() float64
	URI() string
	Type() string
	// Bounds returns the coverage of the chunk in longitude/latitude
	// degrees, or nil if it is not known.
	Bounds() orb.Geometry
	Flags() int
}

// A Chunk is a single sampleable elevation surface.
type Chunk interface {
	ChunkMetadata

	// Sample returns the height above ellipsoid at lat, lon, or NaN if the
	// chunk has no data there.
	Sample(ctx context.Context, lat, lon float64) (float64, error)
}

// A BatchSampler samples many points at once. Only elements of out that are
// NaN are written.
type BatchSampler interface {
	SampleBatch(ctx context.Context, points []orb.Point, out []float64) error
}

// A Sampler returns the height at lat, lon.
type Sampler func(ctx context.Context, lat, lon float64) (float64, error)

// ChunkOptions are the metadata of a chunk created with NewChunk.
type ChunkOptions struct {
	Type          string
	URI           string
	Flags         int
	Resolution    float64
	Bounds        orb.Geometry
	CE            float64
	LE            float64
	Authoritative bool
}

// chunkMetadata implements ChunkMetadata from ChunkOptions.
type chunkMetadata struct {
	options ChunkOptions
}

func (m chunkMetadata) Resolution() float64 { return m.options.Resolution }
func (m chunkMetadata) Authoritative() bool { return m.options.Authoritative }
func (m chunkMetadata) CE() float64 { return m.options.CE }
func (m chunkMetadata) LE() float64 { return m.options.LE }
func (m chunkMetadata) URI() string { return m.options.URI }
func (m chunkMetadata) Type() string { return m.options.Type }
func (m chunkMetadata) Bounds() orb.Geometry { return m.options.Bounds }
func (m chunkMetadata) Flags() int { return m.options.Flags }

type chunk struct {
	chunkMetadata
	sampler Sampler
}

// NewChunk returns a Chunk with the given metadata that delegates sampling
// to sampler. Points outside options.Bounds sample as NaN.
func NewChunk(options ChunkOptions, sampler Sampler) Chunk {
	return &chunk{
		chunkMetadata: chunkMetadata{options: options},
		sampler:       sampler,
	}
}

func (c *chunk) Sample(ctx context.Context, lat, lon float64) (float64, error) {
	if c.options.Bounds != nil && !c.options.Bounds.Bound().Contains(orb.Point{lon, lat}) {
		return math.NaN(), nil
	}
	return c.sampler(ctx, lat, lon)
}

// sampleInto fills the NaN elements of out from c, using c's BatchSampler
// if it has one. Points whose sample fails are left NaN and the remaining
// points are still sampled; the first failure is returned.
func sampleInto(ctx context.Context, c Chunk, points []orb.Point, out []float64) error {
	if batchSampler, ok := c.(BatchSampler); ok {
		return batchSampler.SampleBatch(ctx, points, out)
	}
	var firstErr error
	failures := 0
	for i, point := range points {
		if !math.IsNaN(out[i]) {
			continue
		}
		sample, err := c.Sample(ctx, point.Lat(), point.Lon())
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			failures++
			continue
		}
		if isFinite(sample) {
			out[i] = sample
		}
	}
	if firstErr != nil {
		return fmt.Errorf("%d of %d points failed: %w", failures, len(points), firstErr)
	}
	return nil
}

func isFinite(value float64) bool {
	return !math.IsNaN(value) && !math.IsInf(value, 0)
}

func countFinite(values []float64) int {
	n := 0
	for _, value := range values {
		if isFinite(value) {
			n++
		}
	}
	return n
}
