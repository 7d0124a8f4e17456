package match

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/example/liftmatch/internal/models"
	"github.com/example/liftmatch/internal/score"
	"github.com/example/liftmatch/internal/storage"
)

var (
	berlin  = models.GeoPoint{Lat: 52.52, Lng: 13.405}
	munich  = models.GeoPoint{Lat: 48.137, Lng: 11.575}
	hamburg = models.GeoPoint{Lat: 53.551, Lng: 9.993}
)

// fakeRideStore records the filter it was queried with.
type fakeRideStore struct {
	rides  []models.Ride
	filter storage.RideFilter
	err    error
}

func (f *fakeRideStore) QueryActiveRides(ctx context.Context, filter storage.RideFilter) ([]models.Ride, error) {
	f.filter = filter
	if f.err != nil {
		return nil, f.err
	}
	return f.rides, nil
}

func routePoints(coords ...models.GeoPoint) []models.RoutePoint {
	pts := make([]models.RoutePoint, len(coords))
	for i := range coords {
		c := coords[i]
		role := models.RoleStop
		if i == 0 {
			role = models.RoleStart
		} else if i == len(coords)-1 {
			role = models.RoleEnd
		}
		pts[i] = models.RoutePoint{Role: role, Order: uint(i), Coord: &c}
	}
	return pts
}

func activeRide(id, owner string, kind models.RideKind, dep time.Time, coords ...models.GeoPoint) models.Ride {
	return models.Ride{
		ID: id, OwnerID: owner, Kind: kind, Status: models.StatusActive,
		DepartureDate: dep, RoutePoints: routePoints(coords...),
	}
}

func newTestService(store storage.RideStore) *Service {
	return NewService(store, score.DefaultThresholds(), slog.Default())
}

func TestFindMatchesForRouteFetchesOppositeKind(t *testing.T) {
	store := &fakeRideStore{}
	s := newTestService(store)

	_, err := s.FindMatchesForRoute(context.Background(), routePoints(berlin, munich), models.KindOffer, "rider", nil, 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.filter.Kind == nil || *store.filter.Kind != models.KindRequest {
		t.Fatalf("offer must search requests, filter was %+v", store.filter.Kind)
	}
	if store.filter.ExcludeOwner != "rider" {
		t.Fatal("requester's own rides must be excluded")
	}
	if store.filter.Limit != defaultFetchLimit {
		t.Fatalf("fetch must be capped at %d, got %d", defaultFetchLimit, store.filter.Limit)
	}
}

func TestFindMatchesForRouteIdenticalRoute(t *testing.T) {
	dep := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	store := &fakeRideStore{rides: []models.Ride{
		activeRide("r1", "driver", models.KindOffer, dep, berlin, munich),
	}}
	s := newTestService(store)

	got, err := s.FindMatchesForRoute(context.Background(), routePoints(berlin, munich), models.KindRequest, "rider", nil, 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 match, got %d", len(got))
	}
	if got[0].Score != 100 {
		t.Fatalf("identical route must score 100, got %d", got[0].Score)
	}
	if got[0].Tier != models.TierDirect {
		t.Fatalf("identical route must be direct, got %s", got[0].Tier)
	}
	if !got[0].OnRoute {
		t.Fatal("identical route endpoints are on route")
	}
}

func TestFindMatchesForRouteDivergentDropped(t *testing.T) {
	dep := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	// target Berlin->Hamburg, candidate Berlin->Munich: far ends score
	// 50 via the shared start, but candidate endpoints keep it
	store := &fakeRideStore{rides: []models.Ride{
		activeRide("r1", "driver", models.KindOffer, dep, berlin, munich),
	}}
	s := newTestService(store)

	got, err := s.FindMatchesForRoute(context.Background(), routePoints(berlin, hamburg), models.KindRequest, "rider", nil, 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected candidate kept via shared start, got %d", len(got))
	}
	if got[0].Score != 50 {
		t.Fatalf("expected score 50, got %d", got[0].Score)
	}
}

func TestFindMatchesForRouteLowScoreOffRouteDropped(t *testing.T) {
	dep := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	rome := models.GeoPoint{Lat: 41.9, Lng: 12.5}
	naples := models.GeoPoint{Lat: 40.85, Lng: 14.27}
	store := &fakeRideStore{rides: []models.Ride{
		activeRide("r1", "driver", models.KindOffer, dep, rome, naples),
	}}
	s := newTestService(store)

	got, err := s.FindMatchesForRoute(context.Background(), routePoints(berlin, hamburg), models.KindRequest, "rider", nil, 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("unrelated route must be dropped, got %+v", got)
	}
}

func TestFindMatchesForRouteMalformedTarget(t *testing.T) {
	store := &fakeRideStore{err: errors.New("store must not be hit")}
	s := newTestService(store)

	// target start has no coordinate: empty result, not an error
	pts := []models.RoutePoint{
		{Role: models.RoleStart, Order: 0, Address: "unresolved"},
		{Role: models.RoleEnd, Order: 1, Coord: &munich},
	}
	got, err := s.FindMatchesForRoute(context.Background(), pts, models.KindRequest, "rider", nil, 20)
	if err != nil {
		t.Fatalf("insufficient geometry must not fail: %v", err)
	}
	if got != nil {
		t.Fatalf("expected empty result, got %+v", got)
	}
}

func TestFindMatchesForRouteDateWindow(t *testing.T) {
	store := &fakeRideStore{}
	s := newTestService(store)
	around := time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC)

	_, err := s.FindMatchesForRoute(context.Background(), routePoints(berlin, munich), models.KindOffer, "rider", &around, 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.filter.From == nil || store.filter.To == nil {
		t.Fatal("date window filter missing")
	}
	if !store.filter.From.Equal(around.AddDate(0, 0, -3)) || !store.filter.To.Equal(around.AddDate(0, 0, 3)) {
		t.Fatalf("expected +/-3 day window, got %v..%v", store.filter.From, store.filter.To)
	}
}

func TestFindMatchesForRouteTruncatesToPage(t *testing.T) {
	dep := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	var rides []models.Ride
	for i := 0; i < 30; i++ {
		rides = append(rides, activeRide(
			// ids r00..r29 keep the tie-break deterministic
			"r"+string(rune('0'+i/10))+string(rune('0'+i%10)),
			"driver", models.KindOffer, dep.Add(time.Duration(i)*time.Hour), berlin, munich))
	}
	store := &fakeRideStore{rides: rides}
	s := newTestService(store)

	got, err := s.FindMatchesForRoute(context.Background(), routePoints(berlin, munich), models.KindRequest, "rider", nil, 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != defaultPageSize {
		t.Fatalf("expected page of %d, got %d", defaultPageSize, len(got))
	}
	// equal scores: earliest departures first
	if got[0].RideID != "r00" {
		t.Fatalf("expected earliest departure first, got %s", got[0].RideID)
	}
}

func TestFindMatchesNearPoint(t *testing.T) {
	dep := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	leipzig := models.GeoPoint{Lat: 51.34, Lng: 12.37}
	store := &fakeRideStore{rides: []models.Ride{
		activeRide("far", "d1", models.KindOffer, dep, hamburg, munich),
		activeRide("near", "d2", models.KindOffer, dep, berlin, leipzig, munich),
	}}
	s := newTestService(store)

	point := models.GeoPoint{Lat: 51.385, Lng: 12.37} // ~5km from leipzig
	got, err := s.FindMatchesNearPoint(context.Background(), point, 10, nil, "rider", dep.Add(-time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].RideID != "near" {
		t.Fatalf("expected only the near ride, got %+v", got)
	}
	if got[0].MinDistanceKm == nil || *got[0].MinDistanceKm > 10 {
		t.Fatalf("bad min distance: %+v", got[0].MinDistanceKm)
	}
}

func TestFindMatchesNearPointKeepsOnRouteBeyondRadius(t *testing.T) {
	dep := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	store := &fakeRideStore{rides: []models.Ride{
		activeRide("r1", "driver", models.KindOffer, dep, berlin, munich),
	}}
	s := newTestService(store)

	// ~15km north of the berlin waypoint: outside the 5km radius but
	// inside the 20km on-route threshold, so the ride is kept
	point := models.GeoPoint{Lat: 52.655, Lng: 13.405}
	got, err := s.FindMatchesNearPoint(context.Background(), point, 5, nil, "rider", dep.Add(-time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("on-route ride beyond the radius must be kept, got %d", len(got))
	}
	if !got[0].OnRoute {
		t.Fatal("result should be flagged on route")
	}
	if got[0].MinDistanceKm == nil || *got[0].MinDistanceKm <= 5 {
		t.Fatalf("distance should exceed the requested radius, got %+v", got[0].MinDistanceKm)
	}
}

func TestFindMatchesNearPointSortedByDistance(t *testing.T) {
	dep := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	nearPt := models.GeoPoint{Lat: 52.53, Lng: 13.41}
	farPt := models.GeoPoint{Lat: 52.60, Lng: 13.50}
	store := &fakeRideStore{rides: []models.Ride{
		activeRide("b-far", "d1", models.KindOffer, dep, farPt, munich),
		activeRide("a-near", "d2", models.KindOffer, dep, nearPt, munich),
	}}
	s := newTestService(store)

	got, err := s.FindMatchesNearPoint(context.Background(), berlin, 25, nil, "rider", dep.Add(-time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(got))
	}
	if got[0].RideID != "a-near" || got[1].RideID != "b-far" {
		t.Fatalf("expected nearest first, got %v then %v", got[0].RideID, got[1].RideID)
	}
}

func TestStoreErrorPropagates(t *testing.T) {
	store := &fakeRideStore{err: errors.New("db down")}
	s := newTestService(store)
	_, err := s.FindMatchesForRoute(context.Background(), routePoints(berlin, munich), models.KindOffer, "rider", nil, 20)
	if err == nil {
		t.Fatal("store failures must surface on synchronous queries")
	}
}
