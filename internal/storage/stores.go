// Package storage defines the persistence interfaces the matching
// core consumes, plus postgres and in-memory implementations.
package storage

import (
	"context"
	"time"

	"github.com/example/liftmatch/internal/models"
)

// RideFilter narrows a candidate ride query. Zero values mean "no
// constraint". Limit bounds fetch cost and is a pre-filter, not the
// final result size.
type RideFilter struct {
	Kind         *models.RideKind
	ExcludeOwner string
	From         *time.Time
	To           *time.Time
	Near         *models.GeoPoint
	NearRadiusKm float64
	Limit        int
}

// RideStore supplies active candidate rides to the match service.
type RideStore interface {
	QueryActiveRides(ctx context.Context, f RideFilter) ([]models.Ride, error)
}

// WatchStore supplies active route watches to the watch matcher.
// Watches owned by excludeOwner are filtered out at the store so a
// trigger ride never sees its creator's own watches.
type WatchStore interface {
	QueryActiveWatches(ctx context.Context, excludeOwner string, kind models.RideKind) ([]models.RouteWatch, error)
}

// NotificationStore persists in-app notifications.
type NotificationStore interface {
	InsertNotifications(ctx context.Context, batch []models.Notification) error
}

// PushEndpointStore manages device push subscriptions.
type PushEndpointStore interface {
	EndpointsForUser(ctx context.Context, userID string) ([]models.PushEndpoint, error)
	DeleteEndpoints(ctx context.Context, ids []string) error
}
