package storage

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/example/liftmatch/internal/models"
)

// PostgresStores bundles the sqlx-backed implementations of every
// store interface over one connection pool.
type PostgresStores struct {
	db *sqlx.DB
}

func NewPostgresStores(dsn string) (*PostgresStores, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &PostgresStores{db: db}, nil
}

func (p *PostgresStores) Close() error { return p.db.Close() }

func (p *PostgresStores) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

type rideRow struct {
	ID            string    `db:"id"`
	OwnerID       string    `db:"owner_id"`
	Kind          string    `db:"kind"`
	Status        string    `db:"status"`
	DepartureDate time.Time `db:"departure_date"`
}

type routePointRow struct {
	RideID  string          `db:"ride_id"`
	Role    string          `db:"role"`
	Address string          `db:"address"`
	Lat     sql.NullFloat64 `db:"lat"`
	Lng     sql.NullFloat64 `db:"lng"`
	Ord     uint            `db:"ord"`
}

func (p *PostgresStores) QueryActiveRides(ctx context.Context, f RideFilter) ([]models.Ride, error) {
	var (
		conds = []string{"r.status = 'active'"}
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.Kind != nil {
		conds = append(conds, "r.kind = "+arg(string(*f.Kind)))
	}
	if f.ExcludeOwner != "" {
		conds = append(conds, "r.owner_id <> "+arg(f.ExcludeOwner))
	}
	if f.From != nil {
		conds = append(conds, "r.departure_date >= "+arg(*f.From))
	}
	if f.To != nil {
		conds = append(conds, "r.departure_date <= "+arg(*f.To))
	}
	if f.Near != nil && f.NearRadiusKm > 0 {
		// coarse bounding-box pre-filter on waypoints; exact distance
		// math happens in the match service
		latMin, latMax, lngMin, lngMax := nearBounds(*f.Near, f.NearRadiusKm)
		conds = append(conds, fmt.Sprintf(
			`EXISTS (SELECT 1 FROM ride_points rp WHERE rp.ride_id = r.id
			   AND rp.lat BETWEEN %s AND %s AND rp.lng BETWEEN %s AND %s)`,
			arg(latMin), arg(latMax), arg(lngMin), arg(lngMax)))
	}
	query := `SELECT r.id, r.owner_id, r.kind, r.status, r.departure_date
		FROM rides r WHERE ` + strings.Join(conds, " AND ") + ` ORDER BY r.departure_date, r.id`
	if f.Limit > 0 {
		query += " LIMIT " + arg(f.Limit)
	}

	var rows []rideRow
	if err := p.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("query active rides: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	var pointRows []routePointRow
	err := p.db.SelectContext(ctx, &pointRows,
		`SELECT ride_id, role, address, lat, lng, ord FROM ride_points
		 WHERE ride_id = ANY($1) ORDER BY ride_id, ord`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("query ride points: %w", err)
	}

	pointsByRide := make(map[string][]models.RoutePoint, len(rows))
	for _, pr := range pointRows {
		rp := models.RoutePoint{
			Role:    models.PointRole(pr.Role),
			Address: pr.Address,
			Order:   pr.Ord,
		}
		if pr.Lat.Valid && pr.Lng.Valid {
			rp.Coord = &models.GeoPoint{Lat: pr.Lat.Float64, Lng: pr.Lng.Float64}
		}
		pointsByRide[pr.RideID] = append(pointsByRide[pr.RideID], rp)
	}

	out := make([]models.Ride, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.Ride{
			ID:            r.ID,
			OwnerID:       r.OwnerID,
			Kind:          models.RideKind(r.Kind),
			Status:        models.RideStatus(r.Status),
			DepartureDate: r.DepartureDate,
			RoutePoints:   pointsByRide[r.ID],
		})
	}
	return out, nil
}

// nearBounds returns a lat/lng box guaranteed to contain every point
// within radiusKm of p. The longitude delta scales with the cosine of
// the latitude so the box never under-covers away from the equator; a
// pre-filter that drops true candidates can't be repaired downstream.
// The cosine is clamped near the poles, where a degree of longitude
// shrinks toward zero.
func nearBounds(p models.GeoPoint, radiusKm float64) (latMin, latMax, lngMin, lngMax float64) {
	const kmPerDegree = 111.0
	latDelta := radiusKm / kmPerDegree
	cosLat := math.Cos(p.Lat * math.Pi / 180)
	if cosLat < 0.2 {
		cosLat = 0.2
	}
	lngDelta := radiusKm / (kmPerDegree * cosLat)
	return p.Lat - latDelta, p.Lat + latDelta, p.Lng - lngDelta, p.Lng + lngDelta
}

type watchRow struct {
	ID             string          `db:"id"`
	OwnerID        string          `db:"owner_id"`
	Name           string          `db:"name"`
	Kind           string          `db:"kind"`
	RideKindFilter string          `db:"ride_kind_filter"`
	Active         bool            `db:"active"`
	PushEnabled    bool            `db:"push_enabled"`
	CenterLat      sql.NullFloat64 `db:"center_lat"`
	CenterLng      sql.NullFloat64 `db:"center_lng"`
	RadiusKm       sql.NullFloat64 `db:"radius_km"`
	StartLat       sql.NullFloat64 `db:"start_lat"`
	StartLng       sql.NullFloat64 `db:"start_lng"`
	EndLat         sql.NullFloat64 `db:"end_lat"`
	EndLng         sql.NullFloat64 `db:"end_lng"`
}

func (p *PostgresStores) QueryActiveWatches(ctx context.Context, excludeOwner string, kind models.RideKind) ([]models.RouteWatch, error) {
	var rows []watchRow
	err := p.db.SelectContext(ctx, &rows,
		`SELECT id, owner_id, name, kind, ride_kind_filter, active, push_enabled,
		        center_lat, center_lng, radius_km, start_lat, start_lng, end_lat, end_lng
		 FROM route_watches
		 WHERE active AND owner_id <> $1 AND ride_kind_filter IN ('both', $2)`,
		excludeOwner, string(kind))
	if err != nil {
		return nil, fmt.Errorf("query active watches: %w", err)
	}

	out := make([]models.RouteWatch, 0, len(rows))
	for _, r := range rows {
		w := models.RouteWatch{
			ID:             r.ID,
			OwnerID:        r.OwnerID,
			Name:           r.Name,
			Kind:           models.WatchKind(r.Kind),
			RideKindFilter: models.KindFilter(r.RideKindFilter),
			Active:         r.Active,
			PushEnabled:    r.PushEnabled,
		}
		if r.CenterLat.Valid && r.CenterLng.Valid {
			w.Center = &models.GeoPoint{Lat: r.CenterLat.Float64, Lng: r.CenterLng.Float64}
		}
		if r.RadiusKm.Valid {
			w.RadiusKm = r.RadiusKm.Float64
		}
		if r.StartLat.Valid && r.StartLng.Valid {
			w.Start = &models.GeoPoint{Lat: r.StartLat.Float64, Lng: r.StartLng.Float64}
		}
		if r.EndLat.Valid && r.EndLng.Valid {
			w.End = &models.GeoPoint{Lat: r.EndLat.Float64, Lng: r.EndLng.Float64}
		}
		out = append(out, w)
	}
	return out, nil
}

func (p *PostgresStores) InsertNotifications(ctx context.Context, batch []models.Notification) error {
	if len(batch) == 0 {
		return nil
	}
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin notifications tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.NamedExecContext(ctx,
		`INSERT INTO notifications (id, user_id, watch_id, ride_id, title, body, created_at)
		 VALUES (:id, :user_id, :watch_id, :ride_id, :title, :body, :created_at)`, batch)
	if err != nil {
		return fmt.Errorf("insert notifications: %w", err)
	}
	return tx.Commit()
}

func (p *PostgresStores) EndpointsForUser(ctx context.Context, userID string) ([]models.PushEndpoint, error) {
	var out []models.PushEndpoint
	err := p.db.SelectContext(ctx, &out,
		`SELECT id, user_id, url, created_at FROM push_endpoints WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("query push endpoints: %w", err)
	}
	return out, nil
}

func (p *PostgresStores) DeleteEndpoints(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := p.db.ExecContext(ctx, `DELETE FROM push_endpoints WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("delete push endpoints: %w", err)
	}
	return nil
}
