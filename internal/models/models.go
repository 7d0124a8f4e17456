package models

import "time"

// GeoPoint is a resolved WGS84 coordinate. An unresolved address is
// represented by a nil *GeoPoint, never by the zero value, so that
// (0,0) can't leak into distance math as a real position.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the coordinate is inside WGS84 bounds.
func (p GeoPoint) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

type PointRole string

const (
	RoleStart PointRole = "start"
	RoleStop  PointRole = "stop"
	RoleEnd   PointRole = "end"
)

// RoutePoint is one waypoint of a ride's stored route. Coord is nil
// until the address has been geocoded.
type RoutePoint struct {
	Role    PointRole `json:"role"`
	Address string    `json:"address"`
	Coord   *GeoPoint `json:"coord,omitempty"`
	Order   uint      `json:"order"`
}

type RideKind string

const (
	KindOffer   RideKind = "offer"
	KindRequest RideKind = "request"
)

// Opposite returns the marketplace counterpart: offers are matched
// against requests and vice versa.
func (k RideKind) Opposite() RideKind {
	if k == KindOffer {
		return KindRequest
	}
	return KindOffer
}

type RideStatus string

const (
	StatusActive    RideStatus = "active"
	StatusCompleted RideStatus = "completed"
	StatusCancelled RideStatus = "cancelled"
	StatusExpired   RideStatus = "expired"
)

// Ride is read-only to the matching core; ownership lives with the
// ride CRUD layer.
type Ride struct {
	ID            string       `json:"id"`
	OwnerID       string       `json:"owner_id"`
	Kind          RideKind     `json:"kind"`
	RoutePoints   []RoutePoint `json:"route"`
	DepartureDate time.Time    `json:"departure_date"`
	Status        RideStatus   `json:"status"`
}

type WatchKind string

const (
	WatchLocation WatchKind = "location"
	WatchCorridor WatchKind = "corridor"
)

// KindFilter restricts which ride kinds a watch reacts to.
type KindFilter string

const (
	FilterOffer   KindFilter = "offer"
	FilterRequest KindFilter = "request"
	FilterBoth    KindFilter = "both"
)

// Accepts reports whether the filter lets a ride of kind k through.
func (f KindFilter) Accepts(k RideKind) bool {
	return f == FilterBoth || string(f) == string(k)
}

// RouteWatch is a saved search. Kind selects which of the two shapes
// is populated: location watches carry Center/RadiusKm, corridor
// watches carry Start/End.
type RouteWatch struct {
	ID             string     `json:"id"`
	OwnerID        string     `json:"owner_id"`
	Name           string     `json:"name"`
	Kind           WatchKind  `json:"kind"`
	RideKindFilter KindFilter `json:"ride_kind_filter"`
	Active         bool       `json:"active"`
	PushEnabled    bool       `json:"push_enabled"`

	Center   *GeoPoint `json:"center,omitempty"`
	RadiusKm float64   `json:"radius_km,omitempty"`

	Start *GeoPoint `json:"start,omitempty"`
	End   *GeoPoint `json:"end,omitempty"`
}

// Tier is a coarse classification of how far a ride deviates from a
// requested path.
type Tier string

const (
	TierDirect      Tier = "direct"
	TierSmallDetour Tier = "small_detour"
	TierDetour      Tier = "detour"
	TierNone        Tier = "none"
)

// MatchResult is computed fresh per query and never persisted.
type MatchResult struct {
	RideID        string   `json:"ride_id"`
	Score         int      `json:"score"`
	OnRoute       bool     `json:"on_route"`
	Tier          Tier     `json:"tier"`
	MinDistanceKm *float64 `json:"min_distance_km,omitempty"`
}

// WatchMatch pairs a triggering ride with a watch it matched. It is
// consumed by the notification dispatcher and discarded.
type WatchMatch struct {
	Ride        Ride       `json:"ride"`
	Watch       RouteWatch `json:"watch"`
	Explanation string     `json:"explanation"`
}

// Notification is a persisted in-app notification row.
type Notification struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	WatchID   string    `json:"watch_id" db:"watch_id"`
	RideID    string    `json:"ride_id" db:"ride_id"`
	Title     string    `json:"title" db:"title"`
	Body      string    `json:"body" db:"body"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// PushEndpoint is a device subscription registered by a user.
type PushEndpoint struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	URL       string    `json:"url" db:"url"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// RideCreatedEvent is the kafka payload published when a ride is
// created; the consumer drives watch evaluation from it.
type RideCreatedEvent struct {
	Ride Ride `json:"ride"`
}
