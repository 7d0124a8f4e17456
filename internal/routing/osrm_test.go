package routing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/example/liftmatch/internal/models"
)

var (
	from = models.GeoPoint{Lat: 52.52, Lng: 13.405}
	to   = models.GeoPoint{Lat: 48.137, Lng: 11.575}
)

func osrmServer(t *testing.T, handler http.HandlerFunc) *OSRMClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOSRMClient(srv.URL, time.Second)
}

func TestDrivingRouteOK(t *testing.T) {
	c := osrmServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"Ok","routes":[{"geometry":"abc123","distance":584000,"duration":19800}]}`))
	})
	res, err := c.DrivingRoute(context.Background(), from, to)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Polyline != "abc123" {
		t.Fatalf("bad polyline %q", res.Polyline)
	}
	if res.DistanceKm != 584 {
		t.Fatalf("expected 584km, got %f", res.DistanceKm)
	}
	if res.Duration != 19800*time.Second {
		t.Fatalf("bad duration %s", res.Duration)
	}
}

func TestDrivingRouteNoRoute(t *testing.T) {
	c := osrmServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"NoRoute","routes":[]}`))
	})
	_, err := c.DrivingRoute(context.Background(), from, to)
	if !errors.Is(err, ErrNoRoute) {
		t.Fatalf("expected ErrNoRoute, got %v", err)
	}
}

func TestDrivingRouteRateLimited(t *testing.T) {
	c := osrmServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	_, err := c.DrivingRoute(context.Background(), from, to)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestDrivingRouteServerError(t *testing.T) {
	c := osrmServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	_, err := c.DrivingRoute(context.Background(), from, to)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestDrivingRouteTimeout(t *testing.T) {
	c := osrmServer(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	})
	c.Client.Timeout = 50 * time.Millisecond
	_, err := c.DrivingRoute(context.Background(), from, to)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestTimeoutDistinctFromNoRoute(t *testing.T) {
	if errors.Is(ErrTimeout, ErrNoRoute) || errors.Is(ErrNoRoute, ErrTimeout) {
		t.Fatal("timeout and no-route must stay distinct error kinds")
	}
}
