package elevation

import (
	"fmt"
	"math"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
	"github.com/twpayne/go-proj/v11"
)

// Well-known SRIDs.
const (
	SRIDWGS84        = 4326
	SRIDWebMercator  = 3857
	SRIDETRS89LAEA   = 3035
	maxMercatorLat   = 85.0511287798066
	boundDensifySegs = 8
)

// A Projector converts between longitude/latitude degrees and the coordinate
// system of an SRID.
type Projector interface {
	Forward(srid int, lon, lat float64) (x, y float64, err error)
	Inverse(srid int, x, y float64) (lon, lat float64, err error)
}

// A DefaultProjector handles EPSG:4326 and EPSG:3857 natively and every other
// SRID with PROJ.
type DefaultProjector struct {
	mutex sync.Mutex
	pjs   map[int]*proj.PJ
}

var defaultProjector = NewDefaultProjector()

// NewDefaultProjector returns a new DefaultProjector.
func NewDefaultProjector() *DefaultProjector {
	return &DefaultProjector{
		pjs: make(map[int]*proj.PJ),
	}
}

func (p *DefaultProjector) Forward(srid int, lon, lat float64) (float64, float64, error) {
	switch srid {
	case SRIDWGS84:
		return lon, lat, nil
	case SRIDWebMercator:
		lat = max(-maxMercatorLat, min(lat, maxMercatorLat))
		point := project.Point(orb.Point{lon, lat}, project.WGS84.ToMercator)
		return point.X(), point.Y(), nil
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()
	pj, err := p.pjLocked(srid)
	if err != nil {
		return math.NaN(), math.NaN(), err
	}
	coord, err := pj.Forward(proj.NewCoord(lon, lat, 0, 0))
	if err != nil {
		return math.NaN(), math.NaN(), err
	}
	return coord.X(), coord.Y(), nil
}

func (p *DefaultProjector) Inverse(srid int, x, y float64) (float64, float64, error) {
	switch srid {
	case SRIDWGS84:
		return x, y, nil
	case SRIDWebMercator:
		point := project.Point(orb.Point{x, y}, project.Mercator.ToWGS84)
		return point.Lon(), point.Lat(), nil
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()
	pj, err := p.pjLocked(srid)
	if err != nil {
		return math.NaN(), math.NaN(), err
	}
	coord, err := pj.Inverse(proj.NewCoord(x, y, 0, 0))
	if err != nil {
		return math.NaN(), math.NaN(), err
	}
	return coord.X(), coord.Y(), nil
}

// pjLocked returns the transformation from EPSG:4326 to srid, creating it if
// needed. p.mutex must be held.
func (p *DefaultProjector) pjLocked(srid int) (*proj.PJ, error) {
	if pj, ok := p.pjs[srid]; ok {
		return pj, nil
	}
	pj, err := proj.NewCRSToCRS("epsg:4326", fmt.Sprintf("epsg:%d", srid), nil)
	if err != nil {
		return nil, err
	}
	// Use longitude/latitude and easting/northing axis order regardless of
	// the authority's definition.
	normalizedPJ, err := pj.NormalizeForVisualization()
	if err != nil {
		return nil, err
	}
	p.pjs[srid] = normalizedPJ
	return normalizedPJ, nil
}

// forwardBound returns the envelope in srid of bound, which is in
// longitude/latitude degrees. Edges are densified so that curved edges are
// covered.
func forwardBound(projector Projector, srid int, bound orb.Bound) (orb.Bound, error) {
	if srid == SRIDWGS84 {
		return bound, nil
	}
	return transformBound(bound, func(x, y float64) (float64, float64, error) {
		return projector.Forward(srid, x, y)
	})
}

// inverseBound returns the envelope in longitude/latitude degrees of bound,
// which is in srid.
func inverseBound(projector Projector, srid int, bound orb.Bound) (orb.Bound, error) {
	if srid == SRIDWGS84 {
		return bound, nil
	}
	return transformBound(bound, func(x, y float64) (float64, float64, error) {
		return projector.Inverse(srid, x, y)
	})
}

func transformBound(bound orb.Bound, transform func(x, y float64) (float64, float64, error)) (orb.Bound, error) {
	var result orb.Bound
	first := true
	dx := (bound.Max.X() - bound.Min.X()) / boundDensifySegs
	dy := (bound.Max.Y() - bound.Min.Y()) / boundDensifySegs
	for i := 0; i <= boundDensifySegs; i++ {
		for _, point := range []orb.Point{
			{bound.Min.X() + float64(i)*dx, bound.Min.Y()},
			{bound.Min.X() + float64(i)*dx, bound.Max.Y()},
			{bound.Min.X(), bound.Min.Y() + float64(i)*dy},
			{bound.Max.X(), bound.Min.Y() + float64(i)*dy},
		} {
			x, y, err := transform(point.X(), point.Y())
			if err != nil {
				return orb.Bound{}, err
			}
			if !isFinite(x) || !isFinite(y) {
				return orb.Bound{}, fmt.Errorf("%v: non-finite transformation", point)
			}
			transformed := orb.Point{x, y}
			if first {
				result = transformed.Bound()
				first = false
			} else {
				result = result.Extend(transformed)
			}
		}
	}
	return result, nil
}
