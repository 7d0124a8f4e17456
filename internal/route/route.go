// Package route normalizes the waypoint lists stored on rides into an
// ordered sequence with identified start/stop/end roles.
package route

import (
	"errors"
	"fmt"
	"sort"

	"github.com/example/liftmatch/internal/models"
)

// ErrMalformedRoute is returned when a waypoint list has no usable
// start/end structure. Matching endpoints translate it into an empty
// result rather than a hard failure.
var ErrMalformedRoute = errors.New("malformed route")

// Route is an ordered waypoint sequence with exactly one start and
// one end. Immutable once built; ride edits replace the whole route.
type Route struct {
	points []models.RoutePoint
}

// Normalize sorts points by their order field and validates role
// structure: exactly one start and one end, any number of stops.
func Normalize(points []models.RoutePoint) (Route, error) {
	sorted := make([]models.RoutePoint, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })

	var starts, ends int
	for _, p := range sorted {
		switch p.Role {
		case models.RoleStart:
			starts++
		case models.RoleEnd:
			ends++
		case models.RoleStop:
		default:
			return Route{}, fmt.Errorf("%w: unknown role %q", ErrMalformedRoute, p.Role)
		}
	}
	if starts != 1 {
		return Route{}, fmt.Errorf("%w: want exactly one start, have %d", ErrMalformedRoute, starts)
	}
	if ends != 1 {
		return Route{}, fmt.Errorf("%w: want exactly one end, have %d", ErrMalformedRoute, ends)
	}
	return Route{points: sorted}, nil
}

// Points returns the ordered waypoints.
func (r Route) Points() []models.RoutePoint { return r.points }

// StartPoint returns the start coordinate, or nil if the start
// address has not been geocoded.
func (r Route) StartPoint() *models.GeoPoint { return r.roleCoord(models.RoleStart) }

// EndPoint returns the end coordinate, or nil if unresolved.
func (r Route) EndPoint() *models.GeoPoint { return r.roleCoord(models.RoleEnd) }

func (r Route) roleCoord(role models.PointRole) *models.GeoPoint {
	for _, p := range r.points {
		if p.Role == role {
			return p.Coord
		}
	}
	return nil
}

// StartAddress returns the display address of the start waypoint.
func (r Route) StartAddress() string { return r.roleAddress(models.RoleStart) }

// EndAddress returns the display address of the end waypoint.
func (r Route) EndAddress() string { return r.roleAddress(models.RoleEnd) }

func (r Route) roleAddress(role models.PointRole) string {
	for _, p := range r.points {
		if p.Role == role {
			return p.Address
		}
	}
	return ""
}

// AllResolvedPoints returns every waypoint coordinate that has been
// geocoded, stops included, in route order.
func (r Route) AllResolvedPoints() []models.GeoPoint {
	out := make([]models.GeoPoint, 0, len(r.points))
	for _, p := range r.points {
		if p.Coord != nil {
			out = append(out, *p.Coord)
		}
	}
	return out
}
