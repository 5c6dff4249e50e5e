package elevation

import (
	"math"
	"testing"

	"github.com/alecthomas/assert/v2"
)

func newErrorChunk(chunkType string, ce, le float64) Chunk {
	options := newTestChunkOptions()
	options.Type = chunkType
	options.CE = ce
	options.LE = le
	return newConstantChunk(options, 0)
}

func TestMultiplexingCursor_Sequential(t *testing.T) {
	first := NewSliceCursor(newTypedChunk("A", 30), newTypedChunk("B", 10))
	second := NewSliceCursor()
	third := NewSliceCursor(newTypedChunk("C", 20))
	cursor := NewMultiplexingCursor([]Cursor{first, second, third})
	assert.Equal(t, []string{"A", "B", "C"}, chunkTypes(t, cursor))
	assert.True(t, first.IsClosed())
	assert.True(t, second.IsClosed())
	assert.True(t, third.IsClosed())
}

func TestMultiplexingCursor_Ordered(t *testing.T) {
	for _, tc := range []struct {
		name     string
		cursors  func() []Cursor
		orders   []Order
		expected []string
	}{
		{
			name: "resolution_desc",
			cursors: func() []Cursor {
				return []Cursor{
					NewSliceCursor(newTypedChunk("A", 10), newTypedChunk("B", 40)),
					NewSliceCursor(newTypedChunk("C", 5), newTypedChunk("D", 20)),
				}
			},
			orders:   []Order{ResolutionDesc},
			expected: []string{"C", "A", "D", "B"},
		},
		{
			name: "resolution_asc",
			cursors: func() []Cursor {
				return []Cursor{
					NewSliceCursor(newTypedChunk("A", 40), newTypedChunk("B", 10)),
					NewSliceCursor(newTypedChunk("C", 20), newTypedChunk("D", 5)),
				}
			},
			orders:   []Order{ResolutionAsc},
			expected: []string{"A", "C", "B", "D"},
		},
		{
			name: "ties_prefer_earlier_cursor",
			cursors: func() []Cursor {
				return []Cursor{
					NewSliceCursor(newTypedChunk("A", 10)),
					NewSliceCursor(newTypedChunk("B", 10)),
					NewSliceCursor(newTypedChunk("C", 10)),
				}
			},
			orders:   []Order{ResolutionDesc},
			expected: []string{"A", "B", "C"},
		},
		{
			name: "nan_last",
			cursors: func() []Cursor {
				return []Cursor{
					NewSliceCursor(newErrorChunk("A", math.NaN(), 1)),
					NewSliceCursor(newErrorChunk("B", 5, 1)),
					NewSliceCursor(newErrorChunk("C", 2, 1)),
				}
			},
			orders:   []Order{CEAsc},
			expected: []string{"C", "B", "A"},
		},
		{
			name: "nan_last_descending",
			cursors: func() []Cursor {
				return []Cursor{
					NewSliceCursor(newErrorChunk("A", math.NaN(), 1)),
					NewSliceCursor(newErrorChunk("B", 5, 1)),
					NewSliceCursor(newErrorChunk("C", 2, 1)),
				}
			},
			orders:   []Order{CEDesc},
			expected: []string{"B", "C", "A"},
		},
		{
			name: "secondary_order",
			cursors: func() []Cursor {
				return []Cursor{
					NewSliceCursor(newErrorChunk("A", 5, 3)),
					NewSliceCursor(newErrorChunk("B", 5, 1)),
					NewSliceCursor(newErrorChunk("C", 6, 0)),
				}
			},
			orders:   []Order{CEAsc, LEAsc},
			expected: []string{"B", "A", "C"},
		},
		{
			name: "empty",
			cursors: func() []Cursor {
				return []Cursor{NewSliceCursor(), EmptyCursor}
			},
			orders:   []Order{LEDesc},
			expected: []string{},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cursors := tc.cursors()
			cursor := NewMultiplexingCursor(cursors, tc.orders...)
			assert.Equal(t, tc.expected, chunkTypes(t, cursor))
			for _, c := range cursors {
				assert.True(t, c.IsClosed())
			}
		})
	}
}

func TestMultiplexingCursor_CloseEarly(t *testing.T) {
	inner := &failingCursor{
		Cursor: NewSliceCursor(newTypedChunk("A", 10), newTypedChunk("B", 10)),
	}
	cursor := NewMultiplexingCursor([]Cursor{inner}, ResolutionDesc)
	assert.True(t, cursor.MoveToNext())
	assert.Equal(t, "A", cursor.Type())
	assert.NoError(t, cursor.Close())
	assert.NoError(t, cursor.Close())
	assert.Equal(t, 1, inner.closes)
	assert.False(t, cursor.MoveToNext())
	assert.Equal(t, "", cursor.Type())
}

func TestCompareNaNLast(t *testing.T) {
	nan := math.NaN()
	for _, tc := range []struct {
		x, y       float64
		descending bool
		expected   int
	}{
		{x: 1, y: 2, expected: -1},
		{x: 1, y: 2, descending: true, expected: 1},
		{x: 2, y: 2, expected: 0},
		{x: nan, y: 2, expected: 1},
		{x: nan, y: 2, descending: true, expected: 1},
		{x: 2, y: nan, expected: -1},
		{x: nan, y: nan, expected: 0},
	} {
		assert.Equal(t, tc.expected, compareNaNLast(tc.x, tc.y, tc.descending))
	}
}
