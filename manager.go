package elevation

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/paulmach/orb"
	"go.uber.org/zap"
)

// AltitudeSourceUnknown is the altitude source reported when no source has
// data for a location.
const AltitudeSourceUnknown = "UNKNOWN"

// ElevationMetadata describes where an elevation came from.
type ElevationMetadata struct {
	// AltitudeSource is the type of the chunk that supplied the elevation,
	// or AltitudeSourceUnknown.
	AltitudeSource string
	URI            string
	CE             float64
	LE             float64
}

var unknownElevationMetadata = ElevationMetadata{
	AltitudeSource: AltitudeSourceUnknown,
	CE:             math.NaN(),
	LE:             math.NaN(),
}

// A SourcesChangedListener is notified when sources are registered or
// unregistered with a Manager, or when the content of a registered source
// changes.
type SourcesChangedListener interface {
	OnSourceAttached(source Source)
	OnSourceDetached(source Source)
	OnSourceContentChanged(source Source)
}

// A Manager is a registry of Sources that answers queries across all of them.
type Manager struct {
	mutex      sync.Mutex
	sources    []Source
	registered map[Source]*registeredSource
	listeners  []SourcesChangedListener
	logger     *zap.Logger
}

// A ManagerOption sets an option on a Manager.
type ManagerOption func(*Manager)

// registeredSource forwards content changes of a registered source to the
// manager's listeners.
type registeredSource struct {
	manager *Manager
}

func (r *registeredSource) OnContentChanged(source Source) {
	for _, listener := range r.manager.listenersSnapshot() {
		listener.OnSourceContentChanged(source)
	}
}

// NewManager returns a new Manager with no sources.
func NewManager(options ...ManagerOption) *Manager {
	m := &Manager{
		registered: make(map[Source]*registeredSource),
		logger:     zap.NewNop(),
	}
	for _, option := range options {
		option(m)
	}
	return m
}

// WithLogger sets the logger used to report sources and chunks that fail.
func WithLogger(logger *zap.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// Register registers source. Registering an already registered source does
// nothing.
func (m *Manager) Register(source Source) error {
	if source == nil {
		return fmt.Errorf("nil source: %w", ErrInvalidArgument)
	}
	m.mutex.Lock()
	if _, ok := m.registered[source]; ok {
		m.mutex.Unlock()
		return nil
	}
	adapter := &registeredSource{manager: m}
	m.registered[source] = adapter
	m.sources = append(m.sources, source)
	m.mutex.Unlock()

	source.AddOnContentChangedListener(adapter)
	m.logger.Debug("registered source", zap.String("name", source.Name()))
	for _, listener := range m.listenersSnapshot() {
		listener.OnSourceAttached(source)
	}
	return nil
}

// Unregister unregisters source. Unregistering a source that is not
// registered does nothing.
func (m *Manager) Unregister(source Source) error {
	if source == nil {
		return fmt.Errorf("nil source: %w", ErrInvalidArgument)
	}
	m.mutex.Lock()
	adapter, ok := m.registered[source]
	if !ok {
		m.mutex.Unlock()
		return nil
	}
	delete(m.registered, source)
	if i := slices.Index(m.sources, source); i >= 0 {
		m.sources = slices.Delete(m.sources, i, i+1)
	}
	m.mutex.Unlock()

	source.RemoveOnContentChangedListener(adapter)
	m.logger.Debug("unregistered source", zap.String("name", source.Name()))
	for _, listener := range m.listenersSnapshot() {
		listener.OnSourceDetached(source)
	}
	return nil
}

// Sources returns the registered sources in registration order.
func (m *Manager) Sources() []Source {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return slices.Clone(m.sources)
}

// AddSourcesChangedListener adds listener.
func (m *Manager) AddSourcesChangedListener(listener SourcesChangedListener) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if !slices.Contains(m.listeners, listener) {
		m.listeners = append(m.listeners, listener)
	}
}

// RemoveSourcesChangedListener removes listener.
func (m *Manager) RemoveSourcesChangedListener(listener SourcesChangedListener) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if i := slices.Index(m.listeners, listener); i >= 0 {
		m.listeners = slices.Delete(m.listeners, i, i+1)
	}
}

func (m *Manager) listenersSnapshot() []SourcesChangedListener {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return slices.Clone(m.listeners)
}

// Query queries every registered source and returns a cursor over the union
// of their results, merged according to params.Order. Sources that fail are
// logged and skipped.
func (m *Manager) Query(ctx context.Context, params QueryParameters) (Cursor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, order := range params.Order {
		if order < ResolutionAsc || LEDesc < order {
			return nil, fmt.Errorf("%s: %w", order, ErrInvalidArgument)
		}
	}
	params = params.Clone()
	managerQueries.Inc()

	sources := m.Sources()
	cursors := make([]Cursor, 0, len(sources))
	for _, source := range sources {
		cursor, err := source.Query(ctx, params)
		if err != nil {
			managerSourceQueryErrors.Inc()
			m.logger.Warn("source query failed", zap.String("source", source.Name()), zap.Error(err))
			continue
		}
		cursors = append(cursors, cursor)
	}
	return NewMultiplexingCursor(cursors, params.Order...), nil
}

// QueryCount returns the number of chunks that Query would return for
// params.
func (m *Manager) QueryCount(ctx context.Context, params QueryParameters) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	params = params.Clone()
	count := 0
	for _, source := range m.Sources() {
		n, err := countSource(ctx, source, params)
		if err != nil {
			managerSourceQueryErrors.Inc()
			m.logger.Warn("source count failed", zap.String("source", source.Name()), zap.Error(err))
			continue
		}
		count += n
	}
	return count, nil
}

func countSource(ctx context.Context, source Source, params QueryParameters) (int, error) {
	if counter, ok := source.(Counter); ok {
		return counter.QueryCount(ctx, params)
	}
	cursor, err := source.Query(ctx, params)
	if err != nil {
		return 0, err
	}
	defer cursor.Close()
	n := 0
	for cursor.MoveToNext() {
		n++
	}
	return n, nil
}

// Elevation returns the elevation at lat, lon: the first finite sample of the
// chunks returned by a query restricted to that point, in cursor order.
// Callers express preferences through params.Order and params.Authoritative.
// If no chunk has data it returns NaN with an altitude source of
// AltitudeSourceUnknown.
func (m *Manager) Elevation(ctx context.Context, lat, lon float64, params QueryParameters) (float64, ElevationMetadata, error) {
	params = params.Clone()
	params.SpatialFilter = orb.Point{lon, lat}
	cursor, err := m.Query(ctx, params)
	if err != nil {
		return math.NaN(), unknownElevationMetadata, err
	}
	defer cursor.Close()

	for cursor.MoveToNext() {
		chunk, err := cursor.Get()
		if err != nil {
			continue
		}
		value, err := chunk.Sample(ctx, lat, lon)
		if err != nil {
			managerSampleErrors.Inc()
			m.logger.Warn("sample failed", zap.String("uri", chunk.URI()), zap.Error(err))
			continue
		}
		if !isFinite(value) {
			continue
		}
		return value, ElevationMetadata{
			AltitudeSource: chunk.Type(),
			URI:            chunk.URI(),
			CE:             chunk.CE(),
			LE:             chunk.LE(),
		}, nil
	}

	managerUnknownElevations.Inc()
	return math.NaN(), unknownElevationMetadata, nil
}

// Elevations sets elevations[i] to the elevation at points[i], where points
// are longitude/latitude pairs. Points without data are set to NaN. It
// returns true if every point was resolved.
//
// A single query covering the envelope of all points is issued, unless
// params already carries a spatial filter. hints are advisory and may be
// nil.
func (m *Manager) Elevations(ctx context.Context, points []orb.Point, elevations []float64, params QueryParameters, hints *Hints) (bool, error) {
	if len(points) == 0 {
		return false, fmt.Errorf("no points: %w", ErrInvalidArgument)
	}
	if len(elevations) != len(points) {
		return false, fmt.Errorf("%d elevations for %d points: %w", len(elevations), len(points), ErrInvalidArgument)
	}

	h := Hints{
		Resolution: math.NaN(),
	}
	if hints != nil {
		h = *hints
	}
	if h.Bounds == (orb.Bound{}) {
		h.Bounds = orb.MultiPoint(points).Bound()
	}

	params = params.Clone()
	if params.SpatialFilter == nil {
		params.SpatialFilter = h.Bounds.ToPolygon()
	}
	if math.IsNaN(params.TargetResolution) && h.Resolution > 0 {
		params.TargetResolution = h.Resolution
	}

	for i := range elevations {
		elevations[i] = math.NaN()
	}

	cursor, err := m.Query(ctx, params)
	if err != nil {
		return false, err
	}
	defer cursor.Close()

	ctx = ContextWithHints(ctx, h)
	remaining := len(points)
	for remaining > 0 && cursor.MoveToNext() {
		chunk, err := cursor.Get()
		if err != nil {
			continue
		}
		if err := sampleInto(ctx, chunk, points, elevations); err != nil {
			managerSampleErrors.Inc()
			m.logger.Warn("samples failed", zap.String("uri", chunk.URI()), zap.Error(err))
		}
		remaining = len(points) - countFinite(elevations)
	}
	return remaining == 0, nil
}
