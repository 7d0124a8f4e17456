package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/example/liftmatch/internal/models"
)

// OSRMClient performs route lookups against an OSRM HTTP server.
type OSRMClient struct {
	Endpoint string
	Client   *http.Client
}

func NewOSRMClient(endpoint string, timeout time.Duration) *OSRMClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &OSRMClient{Endpoint: endpoint, Client: &http.Client{Timeout: timeout}}
}

type osrmResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Geometry string  `json:"geometry"`
		Distance float64 `json:"distance"` // meters
		Duration float64 `json:"duration"` // seconds
	} `json:"routes"`
}

func (o *OSRMClient) DrivingRoute(ctx context.Context, from, to models.GeoPoint) (*RouteResult, error) {
	url := fmt.Sprintf("%s/route/v1/driving/%.6f,%.6f;%.6f,%.6f?overview=full&geometries=polyline",
		o.Endpoint, from.Lng, from.Lat, to.Lng, to.Lat)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	resp, err := o.Client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var out osrmResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrUnavailable, err)
	}
	if out.Code == "NoRoute" || (out.Code == "Ok" && len(out.Routes) == 0) {
		return nil, ErrNoRoute
	}
	if out.Code != "Ok" {
		return nil, fmt.Errorf("%w: osrm code %s", ErrUnavailable, out.Code)
	}
	r := out.Routes[0]
	return &RouteResult{
		Polyline:   r.Geometry,
		DistanceKm: r.Distance / 1000,
		Duration:   time.Duration(r.Duration * float64(time.Second)),
	}, nil
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
