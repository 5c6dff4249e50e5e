package elevation

import (
	"context"

	"github.com/paulmach/orb"
)

// Hints are advisory settings for batch elevation queries. They never change
// which chunks are selected.
type Hints struct {
	PreferSpeed bool
	// Resolution is the target resolution in meters per pixel. Zero and NaN
	// mean no target.
	Resolution  float64
	Interpolate bool
	// Bounds, if not empty, is a precomputed envelope of the query points.
	Bounds orb.Bound
}

type hintsKey struct{}

// ContextWithHints returns a copy of ctx carrying hints.
func ContextWithHints(ctx context.Context, hints Hints) context.Context {
	return context.WithValue(ctx, hintsKey{}, hints)
}

// HintsFromContext returns the hints carried by ctx, if any.
func HintsFromContext(ctx context.Context) (Hints, bool) {
	hints, ok := ctx.Value(hintsKey{}).(Hints)
	return hints, ok
}
