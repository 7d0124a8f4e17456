// Package watch evaluates stored route watches against newly
// published rides.
package watch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/example/liftmatch/internal/geo"
	"github.com/example/liftmatch/internal/models"
	"github.com/example/liftmatch/internal/observability"
	"github.com/example/liftmatch/internal/route"
	"github.com/example/liftmatch/internal/storage"
)

const defaultCorridorKm = 20

// Matcher decides which route watches fire for a trigger ride.
type Matcher struct {
	Store      storage.WatchStore
	CorridorKm float64
	Logger     *slog.Logger
}

func NewMatcher(store storage.WatchStore, corridorKm float64, logger *slog.Logger) *Matcher {
	if corridorKm <= 0 {
		corridorKm = defaultCorridorKm
	}
	return &Matcher{Store: store, CorridorKm: corridorKm, Logger: logger}
}

// MatchesForRide loads the active watches of everyone except the ride
// owner and evaluates them against the trigger ride.
func (m *Matcher) MatchesForRide(ctx context.Context, trigger models.Ride) ([]models.WatchMatch, error) {
	watches, err := m.Store.QueryActiveWatches(ctx, trigger.OwnerID, trigger.Kind)
	if err != nil {
		return nil, fmt.Errorf("load watches: %w", err)
	}
	return m.EvaluateWatches(trigger, watches), nil
}

// EvaluateWatches returns the subset of watches the trigger ride
// matches. Owner's own watches, inactive watches and kind-filter
// mismatches never match, regardless of what the store handed us.
func (m *Matcher) EvaluateWatches(trigger models.Ride, watches []models.RouteWatch) []models.WatchMatch {
	r, err := route.Normalize(trigger.RoutePoints)
	if err != nil {
		m.Logger.Warn("trigger ride has malformed route, skipping watch evaluation",
			"ride_id", trigger.ID, "error", err)
		return nil
	}

	var out []models.WatchMatch
	for _, w := range watches {
		observability.WatchEvaluations.Inc()
		if !w.Active || w.OwnerID == trigger.OwnerID || !w.RideKindFilter.Accepts(trigger.Kind) {
			continue
		}
		explanation, matched := m.evaluate(w, r)
		if !matched {
			continue
		}
		observability.WatchMatches.Inc()
		out = append(out, models.WatchMatch{Ride: trigger, Watch: w, Explanation: explanation})
	}
	return out
}

func (m *Matcher) evaluate(w models.RouteWatch, r route.Route) (string, bool) {
	switch w.Kind {
	case models.WatchLocation:
		return m.evaluateLocation(w, r)
	case models.WatchCorridor:
		return m.evaluateCorridor(w, r)
	default:
		// vanished or unknown watch shape, skip rather than fail the trigger
		m.Logger.Warn("unknown watch kind", "watch_id", w.ID, "kind", w.Kind)
		return "", false
	}
}

// evaluateLocation matches when any resolved waypoint of the ride is
// within the watch radius of its center. Plain point-radius test, so
// it goes straight to the geo primitives.
func (m *Matcher) evaluateLocation(w models.RouteWatch, r route.Route) (string, bool) {
	if w.Center == nil || w.RadiusKm <= 0 {
		return "", false
	}
	for _, p := range r.AllResolvedPoints() {
		if geo.HaversineKm(*w.Center, p) <= w.RadiusKm {
			return fmt.Sprintf("route passes near %s", w.Name), true
		}
	}
	return "", false
}

// evaluateCorridor requires both ends: ride start near watch start AND
// ride end near watch end. A ride touching only one endpoint of the
// corridor does not notify.
func (m *Matcher) evaluateCorridor(w models.RouteWatch, r route.Route) (string, bool) {
	if w.Start == nil || w.End == nil {
		return "", false
	}
	rideStart, rideEnd := r.StartPoint(), r.EndPoint()
	if rideStart == nil || rideEnd == nil {
		return "", false
	}
	if geo.HaversineKm(*w.Start, *rideStart) > m.CorridorKm {
		return "", false
	}
	if geo.HaversineKm(*w.End, *rideEnd) > m.CorridorKm {
		return "", false
	}
	return fmt.Sprintf("%s → %s", r.StartAddress(), r.EndAddress()), true
}
