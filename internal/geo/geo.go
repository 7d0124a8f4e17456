package geo

import (
	"math"

	"github.com/example/liftmatch/internal/models"
)

const earthRadiusKm = 6371.0

// segment shorter than ~1m is treated as a single point to avoid
// dividing by a near-zero track length
const degenerateSegmentKm = 0.001

// HaversineKm returns the great-circle distance between two resolved
// coordinates in kilometers. Symmetric, zero iff a == b.
func HaversineKm(a, b models.GeoPoint) float64 {
	if a == b {
		return 0
	}
	lat1 := toRad(a.Lat)
	lat2 := toRad(b.Lat)
	dLat := toRad(b.Lat - a.Lat)
	dLng := toRad(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusKm * c
}

// PointToSegmentKm returns the minimum distance from p to the
// great-circle segment a-b using cross-track/along-track
// decomposition. When the perpendicular foot falls outside the
// segment the nearer endpoint distance is returned instead.
//
// Callers must pass fully resolved points; unresolved addresses are
// filtered out before geometry runs.
func PointToSegmentKm(p, a, b models.GeoPoint) float64 {
	segLen := HaversineKm(a, b)
	if segLen < degenerateSegmentKm {
		return HaversineKm(p, a)
	}

	d13 := HaversineKm(a, p) / earthRadiusKm
	theta13 := bearing(a, p)
	theta12 := bearing(a, b)

	// relative bearing normalized to [-pi, pi); more than a quarter
	// turn means the perpendicular foot lies behind a
	rel := math.Mod(theta13-theta12+3*math.Pi, 2*math.Pi) - math.Pi
	if math.Abs(rel) > math.Pi/2 {
		return math.Min(HaversineKm(p, a), HaversineKm(p, b))
	}

	crossTrack := math.Asin(math.Sin(d13) * math.Sin(rel))
	alongTrack := math.Acos(math.Cos(d13) / math.Cos(crossTrack))
	if alongTrack*earthRadiusKm > segLen {
		return math.Min(HaversineKm(p, a), HaversineKm(p, b))
	}
	return math.Abs(crossTrack) * earthRadiusKm
}

// bearing returns the initial bearing from a to b in radians.
func bearing(a, b models.GeoPoint) float64 {
	lat1 := toRad(a.Lat)
	lat2 := toRad(b.Lat)
	dLng := toRad(b.Lng - a.Lng)

	y := math.Sin(dLng) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLng)
	return math.Atan2(y, x)
}

func toRad(deg float64) float64 { return deg * math.Pi / 180 }
