package elevation

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/paulmach/orb"
)

type sourcesChangedRecorder struct {
	attached []string
	detached []string
	changed  []string
}

func (r *sourcesChangedRecorder) OnSourceAttached(source Source) {
	r.attached = append(r.attached, source.Name())
}

func (r *sourcesChangedRecorder) OnSourceDetached(source Source) {
	r.detached = append(r.detached, source.Name())
}

func (r *sourcesChangedRecorder) OnSourceContentChanged(source Source) {
	r.changed = append(r.changed, source.Name())
}

// A notifyingSource is a Source whose content change can be triggered.
type notifyingSource struct {
	Source
	ContentChangedListeners
}

func (s *notifyingSource) AddOnContentChangedListener(listener ContentChangedListener) {
	s.ContentChangedListeners.AddOnContentChangedListener(listener)
}

func (s *notifyingSource) RemoveOnContentChangedListener(listener ContentChangedListener) {
	s.ContentChangedListeners.RemoveOnContentChangedListener(listener)
}

type failingSource struct {
	Source
}

var errSourceFailed = errors.New("source failed")

func (s *failingSource) Query(ctx context.Context, params QueryParameters) (Cursor, error) {
	return nil, errSourceFailed
}

func newBoxChunk(chunkType string, authoritative bool, resolution float64, bounds orb.Bound, value float64) Chunk {
	return newConstantChunk(ChunkOptions{
		Type:          chunkType,
		URI:           "test://" + chunkType,
		Flags:         ModelTerrain,
		Resolution:    resolution,
		Bounds:        bounds,
		CE:            math.NaN(),
		LE:            math.NaN(),
		Authoritative: authoritative,
	}, value)
}

func TestManager_Register(t *testing.T) {
	manager := NewManager()
	recorder := &sourcesChangedRecorder{}
	manager.AddSourcesChangedListener(recorder)
	manager.AddSourcesChangedListener(recorder)

	a := &notifyingSource{Source: NewSourceBuilder().Build("a")}
	b := NewSourceBuilder().Build("b")
	assert.NoError(t, manager.Register(a))
	assert.NoError(t, manager.Register(a))
	assert.NoError(t, manager.Register(b))
	assert.Equal(t, []Source{a, b}, manager.Sources())
	assert.Equal(t, []string{"a", "b"}, recorder.attached)

	a.Notify(a)
	assert.Equal(t, []string{"a"}, recorder.changed)

	assert.NoError(t, manager.Unregister(a))
	assert.NoError(t, manager.Unregister(a))
	assert.Equal(t, []Source{b}, manager.Sources())
	assert.Equal(t, []string{"a"}, recorder.detached)

	// Unregistered sources no longer forward content changes.
	a.Notify(a)
	assert.Equal(t, []string{"a"}, recorder.changed)

	manager.RemoveSourcesChangedListener(recorder)
	assert.NoError(t, manager.Unregister(b))
	assert.Equal(t, []string{"a"}, recorder.detached)

	assert.IsError(t, manager.Register(nil), ErrInvalidArgument)
	assert.IsError(t, manager.Unregister(nil), ErrInvalidArgument)
}

// A registeringListener registers another source when a source is attached.
type registeringListener struct {
	sourcesChangedRecorder
	manager *Manager
	extra   Source
}

func (l *registeringListener) OnSourceAttached(source Source) {
	l.sourcesChangedRecorder.OnSourceAttached(source)
	if source != l.extra {
		_ = l.manager.Register(l.extra)
	}
}

func TestManager_ReentrantListener(t *testing.T) {
	manager := NewManager()
	listener := &registeringListener{
		manager: manager,
		extra:   NewSourceBuilder().Build("extra"),
	}
	manager.AddSourcesChangedListener(listener)
	assert.NoError(t, manager.Register(NewSourceBuilder().Build("first")))
	assert.Equal(t, []string{"first", "extra"}, listener.attached)
	assert.Equal(t, 2, len(manager.Sources()))
}

func TestManager_ScenarioA(t *testing.T) {
	bounds := orb.Bound{Min: orb.Point{10, 40}, Max: orb.Point{11, 41}}
	manager := NewManager()
	assert.NoError(t, manager.Register(NewSourceBuilder().Add(newBoxChunk("LIDAR", true, 1, bounds, 100)).Build("lidar")))
	assert.NoError(t, manager.Register(NewSourceBuilder().Add(newBoxChunk("SRTM", false, 30, bounds, 90)).Build("srtm")))

	params := NewQueryParameters()
	params.Authoritative = Bool(true)
	cursor, err := manager.Query(t.Context(), params)
	assert.NoError(t, err)
	assert.Equal(t, []string{"LIDAR"}, chunkTypes(t, cursor))

	count, err := manager.QueryCount(t.Context(), params)
	assert.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = manager.QueryCount(t.Context(), NewQueryParameters())
	assert.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestManager_ScenarioC(t *testing.T) {
	manager := NewManager()
	value, metadata, err := manager.Elevation(t.Context(), 45, 6, NewQueryParameters())
	assert.NoError(t, err)
	assert.True(t, math.IsNaN(value))
	assert.Equal(t, AltitudeSourceUnknown, metadata.AltitudeSource)
	assert.True(t, math.IsNaN(metadata.CE))
	assert.True(t, math.IsNaN(metadata.LE))

	count, err := manager.QueryCount(t.Context(), NewQueryParameters())
	assert.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestManager_ScenarioD(t *testing.T) {
	regions := []orb.Bound{
		{Min: orb.Point{0, 0}, Max: orb.Point{10, 10}},
		{Min: orb.Point{100, -20}, Max: orb.Point{110, -10}},
	}
	manager := NewManager()
	for i, region := range regions {
		source, err := NewTiledSource("region", FlatGrid(), []ZoomLevel{
			{Level: 3, Resolution: 0.1, TileWidth: 100, TileHeight: 100},
		}, newConstantTileFetcher(FlatGrid(), float64(i+1)), WithDataBounds(region))
		assert.NoError(t, err)
		assert.NoError(t, manager.Register(source))
	}

	r := rand.New(rand.NewPCG(0, 0))
	points := make([]orb.Point, 1000)
	for i := range points {
		region := regions[i%len(regions)]
		points[i] = orb.Point{
			region.Min.X() + 0.5 + 9*r.Float64(),
			region.Min.Y() + 0.5 + 9*r.Float64(),
		}
	}
	elevations := make([]float64, len(points))
	done, err := manager.Elevations(t.Context(), points, elevations, NewQueryParameters(), nil)
	assert.NoError(t, err)
	assert.True(t, done)
	for i, value := range elevations {
		assert.Equal(t, float64(i%len(regions)+1), value)
	}
}

func TestManager_Elevation(t *testing.T) {
	bounds := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, 1}}
	hole := newConstantChunk(ChunkOptions{
		Type:       "HOLE",
		Resolution: 1,
		Bounds:     bounds,
		CE:         math.NaN(),
		LE:         math.NaN(),
	}, math.NaN())
	fine := newBoxChunk("FINE", false, 5, bounds, 5)
	coarse := newBoxChunk("COARSE", false, 50, bounds, 50)

	manager := NewManager()
	assert.NoError(t, manager.Register(NewSourceBuilder().Add(coarse).Build("coarse")))
	assert.NoError(t, manager.Register(NewSourceBuilder().Add(hole, fine).Build("fine")))

	for _, tc := range []struct {
		name           string
		order          []Order
		expected       float64
		expectedSource string
	}{
		{
			name:           "registration_order",
			expected:       50,
			expectedSource: "COARSE",
		},
		{
			name:           "finest_first_skips_nan",
			order:          []Order{ResolutionDesc},
			expected:       5,
			expectedSource: "FINE",
		},
		{
			name:           "coarsest_first",
			order:          []Order{ResolutionAsc},
			expected:       50,
			expectedSource: "COARSE",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			params := NewQueryParameters()
			params.Order = tc.order
			value, metadata, err := manager.Elevation(t.Context(), 0.5, 0.5, params)
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, value)
			assert.Equal(t, tc.expectedSource, metadata.AltitudeSource)
			assert.Equal(t, "test://"+tc.expectedSource, metadata.URI)
		})
	}

	value, metadata, err := manager.Elevation(t.Context(), 5, 5, NewQueryParameters())
	assert.NoError(t, err)
	assert.True(t, math.IsNaN(value))
	assert.Equal(t, AltitudeSourceUnknown, metadata.AltitudeSource)
}

func TestManager_FailingSource(t *testing.T) {
	bounds := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, 1}}
	manager := NewManager()
	assert.NoError(t, manager.Register(&failingSource{Source: NewSourceBuilder().Build("failing")}))
	assert.NoError(t, manager.Register(NewSourceBuilder().Add(newBoxChunk("OK", false, 10, bounds, 7)).Build("ok")))

	value, metadata, err := manager.Elevation(t.Context(), 0.5, 0.5, NewQueryParameters())
	assert.NoError(t, err)
	assert.Equal(t, 7.0, value)
	assert.Equal(t, "OK", metadata.AltitudeSource)
}

func TestManager_InvalidArguments(t *testing.T) {
	manager := NewManager()

	params := NewQueryParameters()
	params.Order = []Order{Order(42)}
	_, err := manager.Query(t.Context(), params)
	assert.IsError(t, err, ErrInvalidArgument)

	_, err = manager.Elevations(t.Context(), nil, nil, NewQueryParameters(), nil)
	assert.IsError(t, err, ErrInvalidArgument)

	_, err = manager.Elevations(t.Context(), []orb.Point{{0, 0}}, make([]float64, 2), NewQueryParameters(), nil)
	assert.IsError(t, err, ErrInvalidArgument)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err = manager.Query(ctx, NewQueryParameters())
	assert.IsError(t, err, context.Canceled)
	_, err = manager.QueryCount(ctx, NewQueryParameters())
	assert.IsError(t, err, context.Canceled)
}

func TestManager_Elevations_Partial(t *testing.T) {
	manager := NewManager()
	bounds := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, 1}}
	assert.NoError(t, manager.Register(NewSourceBuilder().Add(newBoxChunk("BOX", false, 10, bounds, 3)).Build("box")))

	points := []orb.Point{{0.5, 0.5}, {5, 5}}
	elevations := []float64{42, 42}
	done, err := manager.Elevations(t.Context(), points, elevations, NewQueryParameters(), &Hints{
		Resolution: math.NaN(),
	})
	assert.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, 3.0, elevations[0])
	assert.True(t, math.IsNaN(elevations[1]))
}

// A hintsChunk records the hints it is sampled with.
type hintsChunk struct {
	Chunk
	hints Hints
}

func (c *hintsChunk) SampleBatch(ctx context.Context, points []orb.Point, out []float64) error {
	c.hints, _ = HintsFromContext(ctx)
	for i := range out {
		if math.IsNaN(out[i]) {
			out[i] = 1
		}
	}
	return nil
}

func TestManager_Elevations_Hints(t *testing.T) {
	chunk := &hintsChunk{
		Chunk: newBoxChunk("HINTS", false, 10, orb.Bound{Min: orb.Point{-10, -10}, Max: orb.Point{10, 10}}, 0),
	}
	manager := NewManager()
	assert.NoError(t, manager.Register(NewSourceBuilder().Add(chunk).Build("hints")))

	points := []orb.Point{{1, 2}, {3, -4}}
	elevations := make([]float64, len(points))
	done, err := manager.Elevations(t.Context(), points, elevations, NewQueryParameters(), &Hints{
		Resolution:  30,
		Interpolate: true,
	})
	assert.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, []float64{1, 1}, elevations)
	assert.True(t, chunk.hints.Interpolate)
	assert.Equal(t, 30.0, chunk.hints.Resolution)
	assert.Equal(t, orb.Bound{Min: orb.Point{1, -4}, Max: orb.Point{3, 2}}, chunk.hints.Bounds)
}

func TestManager_Elevations_SampleErrors(t *testing.T) {
	errSample := errors.New("sample failed")
	flaky := NewChunk(ChunkOptions{
		Type:       "FLAKY",
		Resolution: 1,
		Bounds:     orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{10, 10}},
		CE:         math.NaN(),
		LE:         math.NaN(),
	}, func(ctx context.Context, lat, lon float64) (float64, error) {
		if lon < 1 {
			return math.NaN(), errSample
		}
		return lon, nil
	})

	points := []orb.Point{{0.5, 0.5}, {2, 2}, {3, 3}}
	out := []float64{math.NaN(), math.NaN(), math.NaN()}
	err := sampleInto(t.Context(), flaky, points, out)
	assert.IsError(t, err, errSample)
	assert.True(t, math.IsNaN(out[0]))
	assert.Equal(t, []float64{2, 3}, out[1:])

	manager := NewManager()
	assert.NoError(t, manager.Register(NewSourceBuilder().Add(flaky).Build("flaky")))
	elevations := make([]float64, len(points))
	done, err := manager.Elevations(t.Context(), points, elevations, NewQueryParameters(), nil)
	assert.NoError(t, err)
	assert.False(t, done)
	assert.True(t, math.IsNaN(elevations[0]))
	assert.Equal(t, []float64{2, 3}, elevations[1:])
}
