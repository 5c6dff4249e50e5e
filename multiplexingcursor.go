package elevation

import (
	"cmp"
	"errors"
	"math"
)

// A multiplexingCursor merges several cursors.
type multiplexingCursor struct {
	chunkCursor
	cursors []Cursor
	orders  []Order
	valid   []bool
	started bool
	index   int
}

// NewMultiplexingCursor returns a Cursor over the union of cursors.
//
// With no orders the cursors are drained one after another in the order
// given. Otherwise each step yields the head chunk that sorts first under
// orders, with ties broken in favor of the earlier cursor. The returned
// cursor owns cursors and closes each of them once.
func NewMultiplexingCursor(cursors []Cursor, orders ...Order) Cursor {
	return &multiplexingCursor{
		cursors: cursors,
		orders:  orders,
		valid:   make([]bool, len(cursors)),
		index:   -1,
	}
}

func (c *multiplexingCursor) MoveToNext() bool {
	c.current = nil
	if c.closed {
		return false
	}
	if len(c.orders) == 0 {
		return c.moveToNextSequential()
	}
	return c.moveToNextOrdered()
}

func (c *multiplexingCursor) moveToNextSequential() bool {
	if !c.started {
		c.started = true
		c.index = 0
	}
	for c.index < len(c.cursors) {
		cursor := c.cursors[c.index]
		for cursor.MoveToNext() {
			if chunk, err := cursor.Get(); err == nil {
				c.current = chunk
				return true
			}
		}
		_ = cursor.Close()
		c.index++
	}
	return false
}

func (c *multiplexingCursor) moveToNextOrdered() bool {
	if !c.started {
		c.started = true
		for i := range c.cursors {
			c.advance(i)
		}
	} else if c.index >= 0 {
		c.advance(c.index)
	}
	for {
		best := -1
		for i, cursor := range c.cursors {
			if !c.valid[i] {
				continue
			}
			if best < 0 || compareChunks(cursor, c.cursors[best], c.orders) < 0 {
				best = i
			}
		}
		c.index = best
		if best < 0 {
			return false
		}
		chunk, err := c.cursors[best].Get()
		if err != nil {
			c.advance(best)
			continue
		}
		c.current = chunk
		return true
	}
}

// advance moves the cursor at index i forward, closing it if it is exhausted.
func (c *multiplexingCursor) advance(i int) {
	c.valid[i] = c.cursors[i].MoveToNext()
	if !c.valid[i] {
		_ = c.cursors[i].Close()
	}
}

func (c *multiplexingCursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.current = nil
	errs := make([]error, 0, len(c.cursors))
	for _, cursor := range c.cursors {
		if !cursor.IsClosed() {
			errs = append(errs, cursor.Close())
		}
	}
	return errors.Join(errs...)
}

// compareChunks compares a and b under orders. NaN values sort last.
func compareChunks(a, b ChunkMetadata, orders []Order) int {
	for _, order := range orders {
		var result int
		switch order {
		case ResolutionAsc:
			result = compareNaNLast(a.Resolution(), b.Resolution(), true)
		case ResolutionDesc:
			result = compareNaNLast(a.Resolution(), b.Resolution(), false)
		case CEAsc:
			result = compareNaNLast(a.CE(), b.CE(), false)
		case CEDesc:
			result = compareNaNLast(a.CE(), b.CE(), true)
		case LEAsc:
			result = compareNaNLast(a.LE(), b.LE(), false)
		case LEDesc:
			result = compareNaNLast(a.LE(), b.LE(), true)
		}
		if result != 0 {
			return result
		}
	}
	return 0
}

// compareNaNLast compares x and y, in descending numeric order if
// descending is true. NaNs sort after everything else in both directions.
func compareNaNLast(x, y float64, descending bool) int {
	switch xNaN, yNaN := math.IsNaN(x), math.IsNaN(y); {
	case xNaN && yNaN:
		return 0
	case xNaN:
		return 1
	case yNaN:
		return -1
	case descending:
		return cmp.Compare(y, x)
	default:
		return cmp.Compare(x, y)
	}
}
