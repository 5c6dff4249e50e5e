package elevation

import (
	"context"
	"math"
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/paulmach/orb"
)

// newConstantChunk returns a chunk with options that samples value everywhere
// inside its bounds.
func newConstantChunk(options ChunkOptions, value float64) Chunk {
	return NewChunk(options, func(ctx context.Context, lat, lon float64) (float64, error) {
		return value, nil
	})
}

func newTestChunkOptions() ChunkOptions {
	return ChunkOptions{
		Type:       "DTED1",
		URI:        "test://dted1",
		Flags:      ModelTerrain,
		Resolution: 90,
		Bounds:     orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, 1}},
		CE:         20,
		LE:         10,
	}
}

func TestAccept(t *testing.T) {
	candidate := newConstantChunk(newTestChunkOptions(), 0)
	noBounds := newTestChunkOptions()
	noBounds.Bounds = nil
	noBoundsCandidate := newConstantChunk(noBounds, 0)

	for _, tc := range []struct {
		name      string
		candidate Chunk
		modify    func(*QueryParameters)
		expected  bool
	}{
		{
			name:     "neutral",
			modify:   func(p *QueryParameters) {},
			expected: true,
		},
		{
			name:     "authoritative_mismatch",
			modify:   func(p *QueryParameters) { p.Authoritative = Bool(true) },
			expected: false,
		},
		{
			name:     "authoritative_match",
			modify:   func(p *QueryParameters) { p.Authoritative = Bool(false) },
			expected: true,
		},
		{
			name:     "flags_disjoint",
			modify:   func(p *QueryParameters) { p.Flags = Int(ModelSurface) },
			expected: false,
		},
		{
			name:     "flags_overlap",
			modify:   func(p *QueryParameters) { p.Flags = Int(ModelTerrain | ModelSurface) },
			expected: true,
		},
		{
			name:     "ce_ceiling_exceeded",
			modify:   func(p *QueryParameters) { p.MinCE = 19 },
			expected: false,
		},
		{
			name:     "ce_ceiling_equal",
			modify:   func(p *QueryParameters) { p.MinCE = 20 },
			expected: true,
		},
		{
			name:     "le_ceiling_exceeded",
			modify:   func(p *QueryParameters) { p.MinLE = 9 },
			expected: false,
		},
		{
			name:     "le_ceiling_met",
			modify:   func(p *QueryParameters) { p.MinLE = 11 },
			expected: true,
		},
		{
			name:     "spatial_filter_disjoint",
			modify:   func(p *QueryParameters) { p.SpatialFilter = orb.Point{2, 2} },
			expected: false,
		},
		{
			name:     "spatial_filter_touching",
			modify:   func(p *QueryParameters) { p.SpatialFilter = orb.Point{1, 1} },
			expected: true,
		},
		{
			name:      "spatial_filter_without_bounds",
			candidate: noBoundsCandidate,
			modify:    func(p *QueryParameters) { p.SpatialFilter = orb.Point{0.5, 0.5} },
			expected:  false,
		},
		{
			name:      "no_spatial_filter_without_bounds",
			candidate: noBoundsCandidate,
			modify:    func(p *QueryParameters) {},
			expected:  true,
		},
		{
			name:     "types_glob",
			modify:   func(p *QueryParameters) { p.Types = []string{"SRTM", "DTED*"} },
			expected: true,
		},
		{
			name:     "types_no_match",
			modify:   func(p *QueryParameters) { p.Types = []string{"SRTM", "DTED2"} },
			expected: false,
		},
		{
			name:     "types_empty",
			modify:   func(p *QueryParameters) { p.Types = []string{} },
			expected: false,
		},
		{
			name:     "min_resolution_coarser_candidate",
			modify:   func(p *QueryParameters) { p.MinResolution = 30 },
			expected: false,
		},
		{
			name:     "min_resolution_equal",
			modify:   func(p *QueryParameters) { p.MinResolution = 90 },
			expected: true,
		},
		{
			name:     "max_resolution_finer_band",
			modify:   func(p *QueryParameters) { p.MaxResolution = 100 },
			expected: false,
		},
		{
			name:     "max_resolution_equal",
			modify:   func(p *QueryParameters) { p.MaxResolution = 90 },
			expected: true,
		},
		{
			name: "band",
			modify: func(p *QueryParameters) {
				p.MinResolution = 100
				p.MaxResolution = 30
			},
			expected: true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			params := NewQueryParameters()
			tc.modify(&params)
			c := tc.candidate
			if c == nil {
				c = candidate
			}
			assert.Equal(t, tc.expected, Accept(c, params))
		})
	}
}

func TestAccept_UnknownErrors(t *testing.T) {
	options := newTestChunkOptions()
	options.CE = math.NaN()
	options.LE = math.NaN()
	params := NewQueryParameters()
	params.MinCE = 1
	params.MinLE = 1
	assert.True(t, Accept(newConstantChunk(options, 0), params))
}

func TestMatchType(t *testing.T) {
	for _, tc := range []struct {
		pattern  string
		s        string
		expected bool
	}{
		{pattern: "DTED1", s: "DTED1", expected: true},
		{pattern: "dted1", s: "DTED1", expected: true},
		{pattern: "DTED1", s: "DTED2", expected: false},
		{pattern: "*", s: "", expected: true},
		{pattern: "*", s: "anything", expected: true},
		{pattern: "DTED*", s: "DTED", expected: true},
		{pattern: "DTED*", s: "DTED2", expected: true},
		{pattern: "DTED*", s: "SRTM", expected: false},
		{pattern: "*DEM", s: "EU-DEM", expected: true},
		{pattern: "*DEM", s: "EU-DEMS", expected: false},
		{pattern: "E*-*M", s: "EU-DEM", expected: true},
		{pattern: "a*a", s: "a", expected: false},
		{pattern: "a*a", s: "aa", expected: true},
		{pattern: "", s: "", expected: true},
		{pattern: "", s: "x", expected: false},
	} {
		assert.Equal(t, tc.expected, matchType(tc.pattern, tc.s), "%q %q", tc.pattern, tc.s)
	}
}

func TestQueryParameters_CloneEqual(t *testing.T) {
	assert.True(t, NewQueryParameters().Equal(NewQueryParameters()))

	params := NewQueryParameters()
	params.SpatialFilter = orb.Ring{{0, 0}, {1, 0}, {1, 1}, {0, 0}}
	params.Types = []string{"DTED*"}
	params.Authoritative = Bool(true)
	params.Flags = Int(ModelTerrain)
	params.Order = []Order{ResolutionDesc, CEAsc}
	params.MinCE = 5

	clone := params.Clone()
	assert.True(t, params.Equal(clone))

	clone.Types[0] = "SRTM"
	*clone.Authoritative = false
	*clone.Flags = ModelSurface
	clone.Order[0] = LEAsc
	clone.SpatialFilter.(orb.Ring)[0] = orb.Point{-1, -1}
	assert.Equal(t, []string{"DTED*"}, params.Types)
	assert.True(t, *params.Authoritative)
	assert.Equal(t, ModelTerrain, *params.Flags)
	assert.Equal(t, ResolutionDesc, params.Order[0])
	assert.Equal(t, orb.Point{0, 0}, params.SpatialFilter.(orb.Ring)[0])
	assert.False(t, params.Equal(clone))

	other := NewQueryParameters()
	other.MinLE = 1
	assert.False(t, NewQueryParameters().Equal(other))
	other = NewQueryParameters()
	other.SpatialFilter = orb.Point{0, 0}
	assert.False(t, NewQueryParameters().Equal(other))
}

func TestParseOrder(t *testing.T) {
	for order := ResolutionAsc; order <= LEDesc; order++ {
		actual, err := ParseOrder(order.String())
		assert.NoError(t, err)
		assert.Equal(t, order, actual)
	}
	_, err := ParseOrder("random")
	assert.IsError(t, err, ErrInvalidArgument)
}
