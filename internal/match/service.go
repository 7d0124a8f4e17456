// Package match ranks existing rides against a rider's desired route
// or location.
package match

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/example/liftmatch/internal/models"
	"github.com/example/liftmatch/internal/observability"
	"github.com/example/liftmatch/internal/route"
	"github.com/example/liftmatch/internal/score"
	"github.com/example/liftmatch/internal/storage"
)

const (
	defaultFetchLimit     = 100
	defaultPageSize       = 20
	defaultNearFetchLimit = 200
	defaultNearPageSize   = 30
	defaultDateWindowDays = 3
	minKeepScore          = 20
)

// Service computes ranked match results against the live ride
// inventory. Stateless: every query recomputes from current store
// state, nothing is cached across requests.
type Service struct {
	Store      storage.RideStore
	Thresholds score.Thresholds
	Logger     *slog.Logger

	FetchLimit     int
	PageSize       int
	NearFetchLimit int
	NearPageSize   int
	DateWindowDays int
}

func NewService(store storage.RideStore, th score.Thresholds, logger *slog.Logger) *Service {
	return &Service{
		Store:          store,
		Thresholds:     th,
		Logger:         logger,
		FetchLimit:     defaultFetchLimit,
		PageSize:       defaultPageSize,
		NearFetchLimit: defaultNearFetchLimit,
		NearPageSize:   defaultNearPageSize,
		DateWindowDays: defaultDateWindowDays,
	}
}

// FindMatchesForRoute ranks rides of the opposite kind against the
// rider's target route. kind is the rider's own side of the
// marketplace: an offer is matched against requests and vice versa.
// A target route without resolved start/end geometry returns an empty
// result, not an error; unresolved addresses are a normal state.
func (s *Service) FindMatchesForRoute(ctx context.Context, targetPoints []models.RoutePoint, kind models.RideKind, requesterID string, aroundDate *time.Time, thresholdKm float64) ([]models.MatchResult, error) {
	start := time.Now()
	defer func() {
		observability.MatchLatency.Observe(time.Since(start).Seconds())
	}()

	target, err := route.Normalize(targetPoints)
	if err != nil {
		s.Logger.Debug("match query with malformed route", "error", err)
		return nil, nil
	}
	if target.StartPoint() == nil || target.EndPoint() == nil {
		return nil, nil
	}

	wantKind := kind.Opposite()
	f := storage.RideFilter{
		Kind:         &wantKind,
		ExcludeOwner: requesterID,
		Limit:        s.FetchLimit,
	}
	if aroundDate != nil {
		window := time.Duration(s.DateWindowDays) * 24 * time.Hour
		from := aroundDate.Add(-window)
		to := aroundDate.Add(window)
		f.From = &from
		f.To = &to
	}

	candidates, err := s.Store.QueryActiveRides(ctx, f)
	if err != nil {
		return nil, err
	}

	ranked := make([]score.Ranked, 0, len(candidates))
	for _, cand := range candidates {
		candRoute, err := route.Normalize(cand.RoutePoints)
		if err != nil {
			// ride with unusable geometry is skipped, not fatal
			continue
		}
		res := s.scoreCandidate(target, cand, candRoute, thresholdKm)
		if res.Score >= minKeepScore || res.OnRoute {
			ranked = append(ranked, score.Ranked{Result: res, Departure: cand.DepartureDate})
		}
	}

	score.SortRanked(ranked)
	if len(ranked) > s.PageSize {
		ranked = ranked[:s.PageSize]
	}
	out := make([]models.MatchResult, len(ranked))
	for i, r := range ranked {
		out[i] = r.Result
	}
	observability.MatchesReturned.Add(float64(len(out)))
	return out, nil
}

// scoreCandidate checks only whether the candidate's endpoints sit
// near the target route, not the reverse; the query runs from the
// rider's perspective.
func (s *Service) scoreCandidate(target route.Route, cand models.Ride, candRoute route.Route, thresholdKm float64) models.MatchResult {
	res := models.MatchResult{
		RideID: cand.ID,
		Score:  score.RouteSimilarity(target, candRoute),
		Tier:   models.TierNone,
	}
	var minDist *float64
	for _, ep := range []*models.GeoPoint{candRoute.StartPoint(), candRoute.EndPoint()} {
		if ep == nil {
			continue
		}
		if score.OnRoute(*ep, target, thresholdKm) {
			res.OnRoute = true
		}
		if d, ok := score.MinWaypointDistanceKm(*ep, target); ok {
			if minDist == nil || d < *minDist {
				minDist = &d
			}
		}
	}
	if minDist != nil {
		res.MinDistanceKm = minDist
		res.Tier = s.Thresholds.Classify(*minDist)
	}
	return res
}

// FindMatchesNearPoint returns active rides passing near a single
// point, nearest first. Distances are direct point-to-waypoint, no
// segment math.
func (s *Service) FindMatchesNearPoint(ctx context.Context, point models.GeoPoint, radiusKm float64, kind *models.RideKind, requesterID string, fromDate time.Time) ([]models.MatchResult, error) {
	start := time.Now()
	defer func() {
		observability.MatchLatency.Observe(time.Since(start).Seconds())
	}()

	f := storage.RideFilter{
		Kind:         kind,
		ExcludeOwner: requesterID,
		From:         &fromDate,
		Near:         &point,
		NearRadiusKm: maxFloat(radiusKm, s.Thresholds.SmallDetourKm),
		Limit:        s.NearFetchLimit,
	}
	candidates, err := s.Store.QueryActiveRides(ctx, f)
	if err != nil {
		return nil, err
	}

	type nearCand struct {
		res  models.MatchResult
		dist float64
	}
	kept := make([]nearCand, 0, len(candidates))
	for _, cand := range candidates {
		candRoute, err := route.Normalize(cand.RoutePoints)
		if err != nil {
			continue
		}
		d, ok := score.MinWaypointDistanceKm(point, candRoute)
		if !ok {
			continue
		}
		onRoute := score.OnRoute(point, candRoute, s.Thresholds.SmallDetourKm)
		if !onRoute && d > radiusKm {
			continue
		}
		dist := d
		kept = append(kept, nearCand{
			res: models.MatchResult{
				RideID:        cand.ID,
				OnRoute:       onRoute,
				Tier:          s.Thresholds.Classify(d),
				MinDistanceKm: &dist,
			},
			dist: d,
		})
	}

	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].dist != kept[j].dist {
			return kept[i].dist < kept[j].dist
		}
		return kept[i].res.RideID < kept[j].res.RideID
	})
	if len(kept) > s.NearPageSize {
		kept = kept[:s.NearPageSize]
	}
	out := make([]models.MatchResult, len(kept))
	for i, c := range kept {
		out[i] = c.res
	}
	observability.MatchesReturned.Add(float64(len(out)))
	return out, nil
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
