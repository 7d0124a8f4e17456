// Package score computes similarity scores and detour classifications
// between candidate rides and a target route or point.
package score

import (
	"math"
	"sort"
	"time"

	"github.com/example/liftmatch/internal/geo"
	"github.com/example/liftmatch/internal/models"
	"github.com/example/liftmatch/internal/route"
)

// Thresholds are the detour classification cut points in kilometers.
// They are configuration, not constants: call sites historically used
// slightly different literals and product wants them tunable.
type Thresholds struct {
	DirectKm      float64
	SmallDetourKm float64
	DetourKm      float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{DirectKm: 2, SmallDetourKm: 20, DetourKm: 25}
}

// Classify maps a minimum distance to a detour tier. Monotone: the
// tier never improves as distance grows.
func (t Thresholds) Classify(distKm float64) models.Tier {
	switch {
	case distKm <= t.DirectKm:
		return models.TierDirect
	case distKm <= t.SmallDetourKm:
		return models.TierSmallDetour
	case distKm <= t.DetourKm:
		return models.TierDetour
	default:
		return models.TierNone
	}
}

// RouteSimilarity scores two routes 0..100 by comparing start-to-start
// and end-to-end distance only. Stops are ignored on purpose: they are
// optional and heterogeneous across rides. Each endpoint contributes
// max(0, 100-2*distanceKm); the result is the rounded average. Routes
// with an unresolved start or end score 0.
func RouteSimilarity(a, b route.Route) int {
	aStart, aEnd := a.StartPoint(), a.EndPoint()
	bStart, bEnd := b.StartPoint(), b.EndPoint()
	if aStart == nil || aEnd == nil || bStart == nil || bEnd == nil {
		return 0
	}
	startScore := endpointScore(geo.HaversineKm(*aStart, *bStart))
	endScore := endpointScore(geo.HaversineKm(*aEnd, *bEnd))
	return int(math.Round((startScore + endScore) / 2))
}

func endpointScore(distKm float64) float64 {
	return math.Max(0, 100-2*distKm)
}

// OnRoute reports whether p lies within thresholdKm of the route's
// geometry. The segment check deliberately tests only each segment's
// two endpoints rather than true perpendicular distance; this keeps
// cost flat on long routes and matches the classification behavior
// the product has always shipped. Do not upgrade it to
// geo.PointToSegmentKm without a product decision: that would change
// which rides count as matching.
func OnRoute(p models.GeoPoint, r route.Route, thresholdKm float64) bool {
	pts := r.AllResolvedPoints()
	if len(pts) == 0 {
		return false
	}
	if len(pts) == 1 {
		return geo.HaversineKm(p, pts[0]) <= thresholdKm
	}
	for i := 0; i < len(pts)-1; i++ {
		if geo.HaversineKm(p, pts[i]) <= thresholdKm || geo.HaversineKm(p, pts[i+1]) <= thresholdKm {
			return true
		}
	}
	return false
}

// MinWaypointDistanceKm returns the smallest direct distance from p to
// any resolved waypoint of the route. ok is false when the route has
// no resolved geometry at all.
func MinWaypointDistanceKm(p models.GeoPoint, r route.Route) (minKm float64, ok bool) {
	pts := r.AllResolvedPoints()
	if len(pts) == 0 {
		return 0, false
	}
	minKm = math.Inf(1)
	for _, wp := range pts {
		if d := geo.HaversineKm(p, wp); d < minKm {
			minKm = d
		}
	}
	return minKm, true
}

// Ranked is a match result paired with the ranking keys that are not
// part of the result itself.
type Ranked struct {
	Result    models.MatchResult
	Departure time.Time
}

// SortRanked orders candidates by score descending. Ties prefer
// on-route candidates, then the nearer departure date, then ride id
// ascending so pagination and tests are stable.
func SortRanked(list []Ranked) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.Result.Score != b.Result.Score {
			return a.Result.Score > b.Result.Score
		}
		if a.Result.OnRoute != b.Result.OnRoute {
			return a.Result.OnRoute
		}
		if !a.Departure.Equal(b.Departure) {
			return a.Departure.Before(b.Departure)
		}
		return a.Result.RideID < b.Result.RideID
	})
}
