package storage

import (
	"testing"

	"github.com/example/liftmatch/internal/geo"
	"github.com/example/liftmatch/internal/models"
)

func TestNearBoundsOverApproximates(t *testing.T) {
	cases := []struct {
		name     string
		p        models.GeoPoint
		radiusKm float64
	}{
		{"hamburg", models.GeoPoint{Lat: 53.551, Lng: 9.993}, 100},
		{"munich", models.GeoPoint{Lat: 48.137, Lng: 11.575}, 25},
		{"tromso", models.GeoPoint{Lat: 69.65, Lng: 18.96}, 50},
	}
	for _, c := range cases {
		latMin, latMax, lngMin, lngMax := nearBounds(c.p, c.radiusKm)
		// every edge of the box must be at least radiusKm away, so no
		// point within the radius can fall outside it
		edges := []models.GeoPoint{
			{Lat: latMin, Lng: c.p.Lng},
			{Lat: latMax, Lng: c.p.Lng},
			{Lat: c.p.Lat, Lng: lngMin},
			{Lat: c.p.Lat, Lng: lngMax},
		}
		for _, e := range edges {
			if d := geo.HaversineKm(c.p, e); d < c.radiusKm {
				t.Fatalf("%s: box edge %v only %.1fkm out, radius %.0fkm", c.name, e, d, c.radiusKm)
			}
		}
	}
}

func TestNearBoundsEastWestCoverageAtHighLatitude(t *testing.T) {
	hamburg := models.GeoPoint{Lat: 53.551, Lng: 9.993}
	_, _, _, lngMax := nearBounds(hamburg, 100)

	// a waypoint 95km due east is within the radius and must sit
	// inside the box
	east := models.GeoPoint{Lat: hamburg.Lat, Lng: hamburg.Lng + 1.437}
	if d := geo.HaversineKm(hamburg, east); d > 100 {
		t.Fatalf("test point drifted outside the radius: %.1fkm", d)
	}
	if east.Lng > lngMax {
		t.Fatalf("point %.1fkm east excluded by the box: lng %.3f > max %.3f",
			geo.HaversineKm(hamburg, east), east.Lng, lngMax)
	}
}
