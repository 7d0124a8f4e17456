package routing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"googlemaps.github.io/maps"

	"github.com/example/liftmatch/internal/models"
)

// GoogleRouter backs the Router interface with the Google Directions
// API. Selected over OSRM by config when an API key is present.
type GoogleRouter struct {
	client  *maps.Client
	timeout time.Duration
}

func NewGoogleRouter(apiKey string, timeout time.Duration) (*GoogleRouter, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("google maps client: %w", err)
	}
	return &GoogleRouter{client: c, timeout: timeout}, nil
}

func (g *GoogleRouter) DrivingRoute(ctx context.Context, from, to models.GeoPoint) (*RouteResult, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	routes, _, err := g.client.Directions(ctx, &maps.DirectionsRequest{
		Origin:      fmt.Sprintf("%.6f,%.6f", from.Lat, from.Lng),
		Destination: fmt.Sprintf("%.6f,%.6f", to.Lat, to.Lng),
		Mode:        maps.TravelModeDriving,
	})
	if err != nil {
		return nil, classifyGoogleError(err)
	}
	if len(routes) == 0 {
		return nil, ErrNoRoute
	}

	r := routes[0]
	var meters int
	var dur time.Duration
	for _, leg := range r.Legs {
		meters += leg.Distance.Meters
		dur += leg.Duration
	}
	return &RouteResult{
		Polyline:   r.OverviewPolyline.Points,
		DistanceKm: float64(meters) / 1000,
		Duration:   dur,
	}, nil
}

func classifyGoogleError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "ZERO_RESULTS"):
		return ErrNoRoute
	case strings.Contains(msg, "OVER_QUERY_LIMIT"):
		return ErrRateLimited
	default:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}
