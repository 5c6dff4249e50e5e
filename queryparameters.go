package elevation

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/paulmach/orb"
)

// An Order is a sort criterion for query results.
//
// The resolution orders refer to level of detail: ResolutionAsc yields
// coarse chunks (large meters per pixel) first, ResolutionDesc yields fine
// chunks first. The CE and LE orders sort by the numeric error value.
type Order int

const (
	ResolutionAsc Order = iota
	ResolutionDesc
	CEAsc
	CEDesc
	LEAsc
	LEDesc
)

func (o Order) String() string {
	switch o {
	case ResolutionAsc:
		return "ResolutionAsc"
	case ResolutionDesc:
		return "ResolutionDesc"
	case CEAsc:
		return "CEAsc"
	case CEDesc:
		return "CEDesc"
	case LEAsc:
		return "LEAsc"
	case LEDesc:
		return "LEDesc"
	default:
		return fmt.Sprintf("Order(%d)", int(o))
	}
}

// ParseOrder parses the string form of an Order.
func ParseOrder(s string) (Order, error) {
	for o := ResolutionAsc; o <= LEDesc; o++ {
		if strings.EqualFold(s, o.String()) {
			return o, nil
		}
	}
	return 0, fmt.Errorf("%q: unknown order: %w", s, ErrInvalidArgument)
}

// QueryParameters filter and order the chunks returned by a query.
//
// NaN numeric fields and nil optional fields are unconstrained. Note that
// MinResolution caps the coarse end of the accepted band and MaxResolution
// caps the fine end, and that MinCE and MinLE are ceilings on the advertised
// error of a chunk.
type QueryParameters struct {
	SpatialFilter    orb.Geometry
	MinResolution    float64
	MaxResolution    float64
	TargetResolution float64
	Types            []string
	Authoritative    *bool
	MinCE            float64
	MinLE            float64
	Order            []Order
	Flags            *int
}

// NewQueryParameters returns QueryParameters that accept everything.
func NewQueryParameters() QueryParameters {
	return QueryParameters{
		MinResolution:    math.NaN(),
		MaxResolution:    math.NaN(),
		TargetResolution: math.NaN(),
		MinCE:            math.NaN(),
		MinLE:            math.NaN(),
	}
}

// Bool returns a pointer to b.
func Bool(b bool) *bool {
	return &b
}

// Int returns a pointer to i.
func Int(i int) *int {
	return &i
}

// Clone returns a deep copy of p.
func (p QueryParameters) Clone() QueryParameters {
	c := p
	if p.SpatialFilter != nil {
		c.SpatialFilter = orb.Clone(p.SpatialFilter)
	}
	c.Types = slices.Clone(p.Types)
	c.Order = slices.Clone(p.Order)
	if p.Authoritative != nil {
		c.Authoritative = Bool(*p.Authoritative)
	}
	if p.Flags != nil {
		c.Flags = Int(*p.Flags)
	}
	return c
}

// Equal returns whether p and o are structurally equal. NaNs compare equal.
func (p QueryParameters) Equal(o QueryParameters) bool {
	switch {
	case (p.SpatialFilter == nil) != (o.SpatialFilter == nil):
		return false
	case p.SpatialFilter != nil && !orb.Equal(p.SpatialFilter, o.SpatialFilter):
		return false
	case !floatEqual(p.MinResolution, o.MinResolution),
		!floatEqual(p.MaxResolution, o.MaxResolution),
		!floatEqual(p.TargetResolution, o.TargetResolution),
		!floatEqual(p.MinCE, o.MinCE),
		!floatEqual(p.MinLE, o.MinLE):
		return false
	case !slices.Equal(p.Types, o.Types), !slices.Equal(p.Order, o.Order):
		return false
	case !ptrEqual(p.Authoritative, o.Authoritative), !ptrEqual(p.Flags, o.Flags):
		return false
	default:
		return true
	}
}

// Accept returns whether candidate satisfies params.
func Accept(candidate ChunkMetadata, params QueryParameters) bool {
	if params.Authoritative != nil && *params.Authoritative != candidate.Authoritative() {
		return false
	}
	if params.Flags != nil && *params.Flags&candidate.Flags() == 0 {
		return false
	}
	if !math.IsNaN(params.MinCE) && params.MinCE < candidate.CE() {
		return false
	}
	if !math.IsNaN(params.MinLE) && params.MinLE < candidate.LE() {
		return false
	}
	if params.SpatialFilter != nil {
		bounds := candidate.Bounds()
		if bounds == nil {
			return false
		}
		if !params.SpatialFilter.Bound().Intersects(bounds.Bound()) {
			return false
		}
	}
	if params.Types != nil && !matchesAnyType(params.Types, candidate.Type()) {
		return false
	}
	if !math.IsNaN(params.MinResolution) && params.MinResolution < candidate.Resolution() {
		return false
	}
	if !math.IsNaN(params.MaxResolution) && params.MaxResolution > candidate.Resolution() {
		return false
	}
	return true
}

func matchesAnyType(patterns []string, chunkType string) bool {
	for _, pattern := range patterns {
		if matchType(pattern, chunkType) {
			return true
		}
	}
	return false
}

// matchType matches s against pattern case-insensitively, where * matches
// any run of characters.
func matchType(pattern, s string) bool {
	pattern = strings.ToLower(pattern)
	s = strings.ToLower(s)
	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return pattern == s
	}
	if !strings.HasPrefix(s, parts[0]) {
		return false
	}
	s = s[len(parts[0]):]
	last := parts[len(parts)-1]
	for _, part := range parts[1 : len(parts)-1] {
		i := strings.Index(s, part)
		if i < 0 {
			return false
		}
		s = s[i+len(part):]
	}
	return strings.HasSuffix(s, last)
}

func floatEqual(a, b float64) bool {
	return a == b || math.IsNaN(a) && math.IsNaN(b)
}

func ptrEqual[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
