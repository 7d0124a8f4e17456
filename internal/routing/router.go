// Package routing talks to the external routing provider. The
// provider is an opaque black box returning a polyline, distance and
// duration; nothing here feeds the match scoring.
package routing

import (
	"context"
	"errors"
	"time"

	"github.com/example/liftmatch/internal/models"
)

// Error kinds are distinct so the UI can tell "try again" from "no
// route exists".
var (
	ErrUnavailable = errors.New("routing service unavailable")
	ErrRateLimited = errors.New("routing service rate limited")
	ErrTimeout     = errors.New("routing request timed out")
	ErrNoRoute     = errors.New("no route found")
)

// DefaultTimeout bounds every provider call.
const DefaultTimeout = 15 * time.Second

// RouteResult is a driving route for display, never for scoring.
type RouteResult struct {
	Polyline   string        `json:"polyline"`
	DistanceKm float64       `json:"distance_km"`
	Duration   time.Duration `json:"duration"`
}

// Router is the provider interface consumed by the HTTP layer.
type Router interface {
	DrivingRoute(ctx context.Context, from, to models.GeoPoint) (*RouteResult, error)
}
