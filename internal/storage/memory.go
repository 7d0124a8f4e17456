package storage

import (
	"context"
	"sync"

	"github.com/mmcloughlin/geohash"

	"github.com/example/liftmatch/internal/geo"
	"github.com/example/liftmatch/internal/models"
)

// geohash precision 4 cells are roughly 20x39km; the near scan widens
// the neighbor ring until it covers the requested radius and falls
// back to a full scan when that would take more than a few rings
const (
	cellPrecision = 4
	cellSpanKm    = 19.5 // short edge of a precision-4 cell
	maxNearRings  = 8
)

// MemoryRideStore is a map-backed ride store for tests and local
// runs. Rides are additionally indexed by the geohash cells of their
// resolved waypoints so Near queries avoid a full scan.
type MemoryRideStore struct {
	mu    sync.RWMutex
	rides map[string]models.Ride
	cells map[string]map[string]struct{} // cell -> ride ids
}

func NewMemoryRideStore() *MemoryRideStore {
	return &MemoryRideStore{
		rides: make(map[string]models.Ride),
		cells: make(map[string]map[string]struct{}),
	}
}

func (m *MemoryRideStore) Put(r models.Ride) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rides[r.ID] = r
	for _, p := range r.RoutePoints {
		if p.Coord == nil {
			continue
		}
		cell := geohash.EncodeWithPrecision(p.Coord.Lat, p.Coord.Lng, cellPrecision)
		if m.cells[cell] == nil {
			m.cells[cell] = make(map[string]struct{})
		}
		m.cells[cell][r.ID] = struct{}{}
	}
}

func (m *MemoryRideStore) QueryActiveRides(ctx context.Context, f RideFilter) ([]models.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	candidates := m.candidateIDs(f.Near, f.NearRadiusKm)
	out := make([]models.Ride, 0, len(candidates))
	for _, id := range candidates {
		r := m.rides[id]
		if r.Status != models.StatusActive {
			continue
		}
		if f.Kind != nil && r.Kind != *f.Kind {
			continue
		}
		if f.ExcludeOwner != "" && r.OwnerID == f.ExcludeOwner {
			continue
		}
		if f.From != nil && r.DepartureDate.Before(*f.From) {
			continue
		}
		if f.To != nil && r.DepartureDate.After(*f.To) {
			continue
		}
		if f.Near != nil && f.NearRadiusKm > 0 && !rideNear(r, *f.Near, f.NearRadiusKm) {
			continue
		}
		out = append(out, r)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

// candidateIDs narrows the scan to the geohash cells within radiusKm
// of near. Each expansion step grows coverage by at least one cell's
// short edge in every direction, so the ring count is derived from
// the radius; the point may sit at a cell boundary, which is why the
// count rounds up rather than down.
func (m *MemoryRideStore) candidateIDs(near *models.GeoPoint, radiusKm float64) []string {
	rings := 1
	if radiusKm > 0 {
		rings += int(radiusKm / cellSpanKm)
	}
	if near == nil || rings > maxNearRings {
		ids := make([]string, 0, len(m.rides))
		for id := range m.rides {
			ids = append(ids, id)
		}
		return ids
	}

	cells := map[string]struct{}{
		geohash.EncodeWithPrecision(near.Lat, near.Lng, cellPrecision): {},
	}
	for i := 0; i < rings; i++ {
		grown := make([]string, 0, len(cells)*8)
		for c := range cells {
			grown = append(grown, geohash.Neighbors(c)...)
		}
		for _, c := range grown {
			cells[c] = struct{}{}
		}
	}

	seen := make(map[string]struct{})
	ids := make([]string, 0)
	for c := range cells {
		for id := range m.cells[c] {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids
}

func rideNear(r models.Ride, p models.GeoPoint, radiusKm float64) bool {
	for _, rp := range r.RoutePoints {
		if rp.Coord != nil && geo.HaversineKm(p, *rp.Coord) <= radiusKm {
			return true
		}
	}
	return false
}

// MemoryWatchStore is a map-backed watch store.
type MemoryWatchStore struct {
	mu      sync.RWMutex
	watches map[string]models.RouteWatch
}

func NewMemoryWatchStore() *MemoryWatchStore {
	return &MemoryWatchStore{watches: make(map[string]models.RouteWatch)}
}

func (m *MemoryWatchStore) Put(w models.RouteWatch) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watches[w.ID] = w
}

func (m *MemoryWatchStore) QueryActiveWatches(ctx context.Context, excludeOwner string, kind models.RideKind) ([]models.RouteWatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.RouteWatch, 0, len(m.watches))
	for _, w := range m.watches {
		if !w.Active || w.OwnerID == excludeOwner || !w.RideKindFilter.Accepts(kind) {
			continue
		}
		out = append(out, w)
	}
	return out, nil
}

// MemoryNotificationStore collects notification batches in memory.
type MemoryNotificationStore struct {
	mu            sync.Mutex
	Notifications []models.Notification
}

func NewMemoryNotificationStore() *MemoryNotificationStore {
	return &MemoryNotificationStore{}
}

func (m *MemoryNotificationStore) InsertNotifications(ctx context.Context, batch []models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Notifications = append(m.Notifications, batch...)
	return nil
}

// MemoryPushEndpointStore is a map-backed push endpoint store.
type MemoryPushEndpointStore struct {
	mu        sync.RWMutex
	endpoints map[string]models.PushEndpoint
}

func NewMemoryPushEndpointStore() *MemoryPushEndpointStore {
	return &MemoryPushEndpointStore{endpoints: make(map[string]models.PushEndpoint)}
}

func (m *MemoryPushEndpointStore) Put(e models.PushEndpoint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.endpoints[e.ID] = e
}

func (m *MemoryPushEndpointStore) EndpointsForUser(ctx context.Context, userID string) ([]models.PushEndpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.PushEndpoint, 0)
	for _, e := range m.endpoints {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MemoryPushEndpointStore) DeleteEndpoints(ctx context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.endpoints, id)
	}
	return nil
}
