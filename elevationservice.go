package elevation

import (
	"context"
	"fmt"
	"io/fs"
	"math"

	"github.com/paulmach/orb"
)

// An ElevationService returns interpolated elevations for longitude/latitude
// coordinates from the sources registered with a Manager.
type ElevationService struct {
	manager *Manager
	params  QueryParameters
}

// NewElevationService returns a new ElevationService that queries manager
// with params.
func NewElevationService(manager *Manager, params QueryParameters) *ElevationService {
	return &ElevationService{
		manager: manager,
		params:  params.Clone(),
	}
}

// NewEUDEMElevationService returns a new ElevationService over the EU-DEM
// files in fsys.
func NewEUDEMElevationService(fsys fs.FS, options ...GeoTIFFTileSetOption) (*ElevationService, error) {
	euDEM, err := NewEUDEM(fsys, options...)
	if err != nil {
		return nil, err
	}
	manager := NewManager()
	if err := manager.Register(euDEM); err != nil {
		return nil, err
	}
	return NewElevationService(manager, NewQueryParameters()), nil
}

// Manager returns s's Manager.
func (s *ElevationService) Manager() *Manager {
	return s.manager
}

// Elevation4326 returns the elevations at coords4326, which are
// longitude/latitude pairs. Coordinates without data have NaN elevations.
func (s *ElevationService) Elevation4326(ctx context.Context, coords4326 [][]float64) ([]float64, error) {
	elevations := make([]float64, len(coords4326))
	if len(coords4326) == 0 {
		return elevations, nil
	}
	points := make([]orb.Point, len(coords4326))
	for i, coord := range coords4326 {
		if len(coord) < 2 {
			return nil, fmt.Errorf("coordinate %d: %w", i, ErrInvalidArgument)
		}
		points[i] = orb.Point{coord[0], coord[1]}
	}
	if _, err := s.manager.Elevations(ctx, points, elevations, s.params, &Hints{
		Resolution:  math.NaN(),
		Interpolate: true,
	}); err != nil {
		return nil, err
	}
	return elevations, nil
}
