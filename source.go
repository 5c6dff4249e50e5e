package elevation

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
)

// A Source is a named provider of elevation chunks.
//
// Sources are identified by identity, not by name, so implementations must be
// comparable; pointer types are the norm.
type Source interface {
	Name() string
	// Bounds returns the coverage of the source in longitude/latitude degrees.
	Bounds() orb.Bound
	Query(ctx context.Context, params QueryParameters) (Cursor, error)
	AddOnContentChangedListener(listener ContentChangedListener)
	RemoveOnContentChangedListener(listener ContentChangedListener)
}

// A Counter is a Source that can count the results of a query without
// materializing them.
type Counter interface {
	QueryCount(ctx context.Context, params QueryParameters) (int, error)
}

// A ContentChangedListener is notified when the data behind a Source changes.
type ContentChangedListener interface {
	OnContentChanged(source Source)
}

// ContentChangedListeners is a set of ContentChangedListeners. It can be
// embedded in a Source implementation to provide the listener methods. The
// zero value is ready to use.
type ContentChangedListeners struct {
	mutex     sync.Mutex
	listeners []ContentChangedListener
}

func (l *ContentChangedListeners) AddOnContentChangedListener(listener ContentChangedListener) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if !slices.Contains(l.listeners, listener) {
		l.listeners = append(l.listeners, listener)
	}
}

func (l *ContentChangedListeners) RemoveOnContentChangedListener(listener ContentChangedListener) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if i := slices.Index(l.listeners, listener); i >= 0 {
		l.listeners = slices.Delete(l.listeners, i, i+1)
	}
}

// Notify calls every listener with source. Listeners are called without any
// lock held, so they may add or remove listeners.
func (l *ContentChangedListeners) Notify(source Source) {
	l.mutex.Lock()
	listeners := slices.Clone(l.listeners)
	l.mutex.Unlock()
	for _, listener := range listeners {
		listener.OnContentChanged(source)
	}
}

// A SourceBuilder builds an in-memory Source from chunks.
type SourceBuilder struct {
	chunks []Chunk
}

// NewSourceBuilder returns a new SourceBuilder.
func NewSourceBuilder() *SourceBuilder {
	return &SourceBuilder{}
}

// Add adds chunks to b.
func (b *SourceBuilder) Add(chunks ...Chunk) *SourceBuilder {
	b.chunks = append(b.chunks, chunks...)
	return b
}

// Build returns a Source containing the chunks added so far. If name is empty
// a random name is generated.
func (b *SourceBuilder) Build(name string) Source {
	if name == "" {
		name = uuid.NewString()
	}
	s := &staticSource{
		name:   name,
		chunks: slices.Clone(b.chunks),
	}
	first := true
	for _, chunk := range s.chunks {
		bounds := chunk.Bounds()
		switch {
		case bounds == nil:
			continue
		case first:
			s.bounds = bounds.Bound()
			first = false
		default:
			s.bounds = s.bounds.Union(bounds.Bound())
		}
	}
	return s
}

type staticSource struct {
	ContentChangedListeners
	name   string
	bounds orb.Bound
	chunks []Chunk
}

func (s *staticSource) Name() string {
	return s.name
}

func (s *staticSource) Bounds() orb.Bound {
	return s.bounds
}

func (s *staticSource) Query(ctx context.Context, params QueryParameters) (Cursor, error) {
	return NewSliceCursor(s.matching(params)...), nil
}

func (s *staticSource) QueryCount(ctx context.Context, params QueryParameters) (int, error) {
	return len(s.matching(params)), nil
}

func (s *staticSource) matching(params QueryParameters) []Chunk {
	var chunks []Chunk
	for _, chunk := range s.chunks {
		if Accept(chunk, params) {
			chunks = append(chunks, chunk)
		}
	}
	if len(params.Order) != 0 {
		slices.SortStableFunc(chunks, func(a, b Chunk) int {
			return compareChunks(a, b, params.Order)
		})
	}
	return chunks
}
