package watch

import (
	"context"
	"log/slog"
	"testing"

	"github.com/example/liftmatch/internal/models"
	"github.com/example/liftmatch/internal/storage"
)

var (
	berlin = models.GeoPoint{Lat: 52.52, Lng: 13.405}
	munich = models.GeoPoint{Lat: 48.137, Lng: 11.575}
	// ~5km from the leipzig stop below
	nearLeipzig = models.GeoPoint{Lat: 51.385, Lng: 12.37}
	leipzig     = models.GeoPoint{Lat: 51.34, Lng: 12.37}
)

func testRide(owner string, kind models.RideKind) models.Ride {
	return models.Ride{
		ID:      "ride-1",
		OwnerID: owner,
		Kind:    kind,
		Status:  models.StatusActive,
		RoutePoints: []models.RoutePoint{
			{Role: models.RoleStart, Order: 0, Address: "Berlin", Coord: &berlin},
			{Role: models.RoleStop, Order: 1, Address: "Leipzig", Coord: &leipzig},
			{Role: models.RoleEnd, Order: 2, Address: "Munich", Coord: &munich},
		},
	}
}

func newTestMatcher() *Matcher {
	return NewMatcher(storage.NewMemoryWatchStore(), 20, slog.Default())
}

func locationWatch(owner string, radius float64) models.RouteWatch {
	return models.RouteWatch{
		ID: "w-loc", OwnerID: owner, Name: "Leipzig area",
		Kind: models.WatchLocation, RideKindFilter: models.FilterBoth, Active: true,
		Center: &nearLeipzig, RadiusKm: radius,
	}
}

func corridorWatch(owner string, start, end models.GeoPoint) models.RouteWatch {
	return models.RouteWatch{
		ID: "w-cor", OwnerID: owner, Name: "Berlin to Munich",
		Kind: models.WatchCorridor, RideKindFilter: models.FilterBoth, Active: true,
		Start: &start, End: &end,
	}
}

func TestLocationWatchRadius(t *testing.T) {
	m := newTestMatcher()
	ride := testRide("owner", models.KindOffer)

	if got := m.EvaluateWatches(ride, []models.RouteWatch{locationWatch("other", 20)}); len(got) != 1 {
		t.Fatalf("5km from stop with 20km radius should match, got %d", len(got))
	}
	if got := m.EvaluateWatches(ride, []models.RouteWatch{locationWatch("other", 2)}); len(got) != 0 {
		t.Fatalf("5km from stop with 2km radius should not match, got %d", len(got))
	}
}

func TestOwnWatchNeverMatches(t *testing.T) {
	m := newTestMatcher()
	ride := testRide("alice", models.KindOffer)
	got := m.EvaluateWatches(ride, []models.RouteWatch{locationWatch("alice", 50)})
	if len(got) != 0 {
		t.Fatal("ride owner must not be notified by their own watch")
	}
}

func TestInactiveWatchSkipped(t *testing.T) {
	m := newTestMatcher()
	w := locationWatch("other", 50)
	w.Active = false
	if got := m.EvaluateWatches(testRide("owner", models.KindOffer), []models.RouteWatch{w}); len(got) != 0 {
		t.Fatal("inactive watch must not match")
	}
}

func TestKindFilter(t *testing.T) {
	m := newTestMatcher()
	w := locationWatch("other", 50)
	w.RideKindFilter = models.FilterRequest

	if got := m.EvaluateWatches(testRide("owner", models.KindOffer), []models.RouteWatch{w}); len(got) != 0 {
		t.Fatal("request-only watch must ignore offers")
	}
	if got := m.EvaluateWatches(testRide("owner", models.KindRequest), []models.RouteWatch{w}); len(got) != 1 {
		t.Fatal("request-only watch should match a request")
	}
}

func TestCorridorRequiresBothEndpoints(t *testing.T) {
	m := newTestMatcher()
	ride := testRide("owner", models.KindOffer)

	if got := m.EvaluateWatches(ride, []models.RouteWatch{corridorWatch("other", berlin, munich)}); len(got) != 1 {
		t.Fatal("corridor matching both endpoints should fire")
	}

	hamburg := models.GeoPoint{Lat: 53.551, Lng: 9.993}
	// start matches, end is hundreds of km off
	if got := m.EvaluateWatches(ride, []models.RouteWatch{corridorWatch("other", berlin, hamburg)}); len(got) != 0 {
		t.Fatal("corridor matching only the start must not fire")
	}
	// end matches, start is off
	if got := m.EvaluateWatches(ride, []models.RouteWatch{corridorWatch("other", hamburg, munich)}); len(got) != 0 {
		t.Fatal("corridor matching only the end must not fire")
	}
}

func TestCorridorExplanation(t *testing.T) {
	m := newTestMatcher()
	got := m.EvaluateWatches(testRide("owner", models.KindOffer), []models.RouteWatch{corridorWatch("other", berlin, munich)})
	if len(got) != 1 {
		t.Fatalf("expected one match, got %d", len(got))
	}
	if got[0].Explanation != "Berlin → Munich" {
		t.Fatalf("unexpected explanation %q", got[0].Explanation)
	}
}

func TestMatchesForRideUsesStore(t *testing.T) {
	store := storage.NewMemoryWatchStore()
	store.Put(locationWatch("other", 20))
	own := locationWatch("rider", 20)
	own.ID = "w-own"
	store.Put(own)

	m := NewMatcher(store, 20, slog.Default())
	got, err := m.MatchesForRide(context.Background(), testRide("rider", models.KindOffer))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected exactly the other user's watch, got %d matches", len(got))
	}
	if got[0].Watch.OwnerID != "other" {
		t.Fatal("store query must exclude the trigger owner's watches")
	}
}

func TestMalformedTriggerRoute(t *testing.T) {
	m := newTestMatcher()
	ride := models.Ride{ID: "r", OwnerID: "o", Kind: models.KindOffer,
		RoutePoints: []models.RoutePoint{{Role: models.RoleStop, Order: 0, Coord: &berlin}}}
	if got := m.EvaluateWatches(ride, []models.RouteWatch{locationWatch("other", 1000)}); got != nil {
		t.Fatal("malformed trigger route should produce no matches")
	}
}
