package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/liftmatch/internal/models"
)

// CachedRouter memoizes provider results in redis. Routes between two
// fixed points don't change within the TTL, and provider calls are
// the slowest thing this service does.
type CachedRouter struct {
	Inner  Router
	Client *redis.Client
	TTL    time.Duration
	Logger *slog.Logger
}

func NewCachedRouter(inner Router, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedRouter {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CachedRouter{Inner: inner, Client: client, TTL: ttl, Logger: logger}
}

func (c *CachedRouter) DrivingRoute(ctx context.Context, from, to models.GeoPoint) (*RouteResult, error) {
	key := cacheKey(from, to)
	if raw, err := c.Client.Get(ctx, key).Bytes(); err == nil {
		var cached RouteResult
		if err := json.Unmarshal(raw, &cached); err == nil {
			return &cached, nil
		}
	}

	res, err := c.Inner.DrivingRoute(ctx, from, to)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(res); err == nil {
		if err := c.Client.Set(ctx, key, raw, c.TTL).Err(); err != nil {
			c.Logger.Debug("route cache write failed", "error", err)
		}
	}
	return res, nil
}

func cacheKey(from, to models.GeoPoint) string {
	// 5 decimals is ~1m resolution, plenty for display routes
	return fmt.Sprintf("route:%.5f,%.5f->%.5f,%.5f", from.Lat, from.Lng, to.Lat, to.Lng)
}
