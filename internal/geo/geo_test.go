package geo

import (
	"math"
	"testing"

	"github.com/example/liftmatch/internal/models"
)

var (
	berlin  = models.GeoPoint{Lat: 52.52, Lng: 13.405}
	munich  = models.GeoPoint{Lat: 48.137, Lng: 11.575}
	hamburg = models.GeoPoint{Lat: 53.551, Lng: 9.993}
)

func TestHaversineZero(t *testing.T) {
	if d := HaversineKm(berlin, berlin); d != 0 {
		t.Fatalf("expected 0, got %f", d)
	}
}

func TestHaversineSymmetric(t *testing.T) {
	pairs := [][2]models.GeoPoint{
		{berlin, munich},
		{berlin, hamburg},
		{munich, hamburg},
		{{Lat: -33.86, Lng: 151.21}, {Lat: 51.5, Lng: -0.12}},
	}
	for _, p := range pairs {
		ab := HaversineKm(p[0], p[1])
		ba := HaversineKm(p[1], p[0])
		if ab != ba {
			t.Fatalf("asymmetric distance: %f vs %f", ab, ba)
		}
	}
}

func TestHaversineKnownDistances(t *testing.T) {
	// Berlin-Munich is roughly 504km as the crow flies
	if d := HaversineKm(berlin, munich); math.Abs(d-504) > 5 {
		t.Fatalf("berlin-munich: expected ~504km, got %f", d)
	}
	// Munich-Hamburg roughly 610km
	if d := HaversineKm(munich, hamburg); math.Abs(d-610) > 10 {
		t.Fatalf("munich-hamburg: expected ~610km, got %f", d)
	}
}

func TestPointToSegmentOnSegment(t *testing.T) {
	a := models.GeoPoint{Lat: 52, Lng: 13}
	b := models.GeoPoint{Lat: 52, Lng: 14}
	mid := models.GeoPoint{Lat: 52, Lng: 13.5}
	if d := PointToSegmentKm(mid, a, b); d > 0.5 {
		t.Fatalf("midpoint should be near segment, got %fkm", d)
	}
}

func TestPointToSegmentBeyondEnd(t *testing.T) {
	a := models.GeoPoint{Lat: 52, Lng: 13}
	b := models.GeoPoint{Lat: 52, Lng: 14}
	p := models.GeoPoint{Lat: 52, Lng: 15}
	got := PointToSegmentKm(p, a, b)
	want := HaversineKm(p, b)
	if math.Abs(got-want) > 0.5 {
		t.Fatalf("expected nearest-endpoint fallback %f, got %f", want, got)
	}
}

func TestPointToSegmentDegenerate(t *testing.T) {
	a := models.GeoPoint{Lat: 52, Lng: 13}
	p := models.GeoPoint{Lat: 52.1, Lng: 13}
	got := PointToSegmentKm(p, a, a)
	want := HaversineKm(p, a)
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("degenerate segment should use d(p,a)=%f, got %f", want, got)
	}
}

func TestPointToSegmentPerpendicular(t *testing.T) {
	a := models.GeoPoint{Lat: 52, Lng: 13}
	b := models.GeoPoint{Lat: 52, Lng: 14}
	p := models.GeoPoint{Lat: 52.2, Lng: 13.5}
	d := PointToSegmentKm(p, a, b)
	// ~0.2 degrees of latitude is ~22km
	if math.Abs(d-22.2) > 1 {
		t.Fatalf("expected ~22km perpendicular distance, got %f", d)
	}
}
