package elevation

import (
	"errors"
	"math"

	"github.com/paulmach/orb"
)

// errNoCurrentChunk is returned by Get when the cursor is not positioned on a
// chunk.
var errNoCurrentChunk = errors.New("no current chunk")

// A Cursor is a forward-only, single-pass enumeration of chunks.
//
// The ChunkMetadata accessors and Get are only meaningful after MoveToNext
// has returned true; outside that window they return neutral values. Close
// is idempotent.
type Cursor interface {
	ChunkMetadata
	MoveToNext() bool
	Get() (Chunk, error)
	Close() error
	IsClosed() bool
}

type emptyCursor struct{}

// EmptyCursor is a Cursor with no chunks.
var EmptyCursor Cursor = emptyCursor{}

func (emptyCursor) MoveToNext() bool { return false }
func (emptyCursor) Get() (Chunk, error) { return nil, errNoCurrentChunk }
func (emptyCursor) Close() error { return nil }
func (emptyCursor) IsClosed() bool { return true }
func (emptyCursor) Resolution() float64 { return math.NaN() }
func (emptyCursor) Authoritative() bool { return false }
func (emptyCursor) CE() float64 { return math.NaN() }
func (emptyCursor) LE() float64 { return math.NaN() }
func (emptyCursor) URI() string { return "" }
func (emptyCursor) Type() string { return "" }
func (emptyCursor) Bounds() orb.Geometry { return nil }
func (emptyCursor) Flags() int { return 0 }

// A chunkCursor implements the ChunkMetadata accessors of a Cursor by
// delegating to its current chunk.
type chunkCursor struct {
	current Chunk
	closed  bool
}

func (c *chunkCursor) Get() (Chunk, error) {
	if c.current == nil {
		return nil, errNoCurrentChunk
	}
	return c.current, nil
}

func (c *chunkCursor) IsClosed() bool {
	return c.closed
}

func (c *chunkCursor) Resolution() float64 {
	if c.current == nil {
		return math.NaN()
	}
	return c.current.Resolution()
}

func (c *chunkCursor) Authoritative() bool {
	return c.current != nil && c.current.Authoritative()
}

func (c *chunkCursor) CE() float64 {
	if c.current == nil {
		return math.NaN()
	}
	return c.current.CE()
}

func (c *chunkCursor) LE() float64 {
	if c.current == nil {
		return math.NaN()
	}
	return c.current.LE()
}

func (c *chunkCursor) URI() string {
	if c.current == nil {
		return ""
	}
	return c.current.URI()
}

func (c *chunkCursor) Type() string {
	if c.current == nil {
		return ""
	}
	return c.current.Type()
}

func (c *chunkCursor) Bounds() orb.Geometry {
	if c.current == nil {
		return nil
	}
	return c.current.Bounds()
}

func (c *chunkCursor) Flags() int {
	if c.current == nil {
		return 0
	}
	return c.current.Flags()
}

// A sliceCursor enumerates a slice of chunks.
type sliceCursor struct {
	chunkCursor
	chunks []Chunk
	next   int
}

// NewSliceCursor returns a Cursor over chunks.
func NewSliceCursor(chunks ...Chunk) Cursor {
	return &sliceCursor{
		chunks: chunks,
	}
}

func (c *sliceCursor) MoveToNext() bool {
	if c.closed || c.next >= len(c.chunks) {
		c.current = nil
		return false
	}
	c.current = c.chunks[c.next]
	c.next++
	return true
}

func (c *sliceCursor) Close() error {
	c.closed = true
	c.current = nil
	return nil
}

// A filterCursor skips the chunks of another cursor that do not match its
// parameters.
type filterCursor struct {
	chunkCursor
	cursor Cursor
	params QueryParameters
}

// NewFilterCursor returns a Cursor that yields the chunks of cursor accepted
// by params. Closing it closes cursor.
func NewFilterCursor(cursor Cursor, params QueryParameters) Cursor {
	return &filterCursor{
		cursor: cursor,
		params: params,
	}
}

func (c *filterCursor) MoveToNext() bool {
	c.current = nil
	if c.closed {
		return false
	}
	for c.cursor.MoveToNext() {
		if !Accept(c.cursor, c.params) {
			continue
		}
		chunk, err := c.cursor.Get()
		if err != nil {
			continue
		}
		c.current = chunk
		return true
	}
	return false
}

func (c *filterCursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.current = nil
	return c.cursor.Close()
}

// Collect returns all remaining chunks of cursor and closes it.
func Collect(cursor Cursor) ([]Chunk, error) {
	var chunks []Chunk
	for cursor.MoveToNext() {
		chunk, err := cursor.Get()
		if err != nil {
			_ = cursor.Close()
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, cursor.Close()
}
