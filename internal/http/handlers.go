package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/example/liftmatch/internal/models"
	"github.com/example/liftmatch/internal/routing"
)

type matchRouteRequest struct {
	RequesterID string              `json:"requester_id" validate:"required"`
	Kind        models.RideKind     `json:"kind" validate:"required,oneof=offer request"`
	Route       []models.RoutePoint `json:"route" validate:"required,min=2"`
	Date        *time.Time          `json:"date,omitempty"`
	ThresholdKm float64             `json:"threshold_km,omitempty" validate:"gte=0"`
}

func (s *Server) handleMatchRoute(w http.ResponseWriter, r *http.Request) {
	var req matchRouteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	threshold := req.ThresholdKm
	if threshold == 0 {
		threshold = s.cfg.OnRouteKm
	}
	results, err := s.matches.FindMatchesForRoute(r.Context(), req.Route, req.Kind, req.RequesterID, req.Date, threshold)
	if err != nil {
		s.logger.Error("match route query failed", "error", err)
		http.Error(w, "match query failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": emptyAsList(results)})
}

type nearbyQuery struct {
	Lat         float64 `validate:"gte=-90,lte=90"`
	Lng         float64 `validate:"gte=-180,lte=180"`
	RadiusKm    float64 `validate:"gt=0,lte=500"`
	Kind        *models.RideKind
	RequesterID string
	From        time.Time
}

func (s *Server) handleMatchNearby(w http.ResponseWriter, r *http.Request) {
	q, err := parseNearbyQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.validate.Struct(q); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	results, err := s.matches.FindMatchesNearPoint(r.Context(),
		models.GeoPoint{Lat: q.Lat, Lng: q.Lng}, q.RadiusKm, q.Kind, q.RequesterID, q.From)
	if err != nil {
		s.logger.Error("nearby query failed", "error", err)
		http.Error(w, "match query failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": emptyAsList(results)})
}

func parseNearbyQuery(r *http.Request) (nearbyQuery, error) {
	var q nearbyQuery
	var err error
	if q.Lat, err = strconv.ParseFloat(r.URL.Query().Get("lat"), 64); err != nil {
		return q, errors.New("invalid lat")
	}
	if q.Lng, err = strconv.ParseFloat(r.URL.Query().Get("lng"), 64); err != nil {
		return q, errors.New("invalid lng")
	}
	if q.RadiusKm, err = strconv.ParseFloat(r.URL.Query().Get("radius_km"), 64); err != nil {
		return q, errors.New("invalid radius_km")
	}
	if v := r.URL.Query().Get("kind"); v != "" {
		k := models.RideKind(v)
		if k != models.KindOffer && k != models.KindRequest {
			return q, errors.New("invalid kind")
		}
		q.Kind = &k
	}
	q.RequesterID = r.URL.Query().Get("requester_id")
	q.From = time.Now()
	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return q, errors.New("invalid from date")
		}
		q.From = t
	}
	return q, nil
}

type triggerRequest struct {
	RideID        string              `json:"ride_id" validate:"required"`
	OwnerID       string              `json:"owner_id" validate:"required"`
	Kind          models.RideKind     `json:"kind" validate:"required,oneof=offer request"`
	Route         []models.RoutePoint `json:"route" validate:"required,min=2"`
	DepartureDate time.Time           `json:"departure_date"`
}

// handleTriggerWatches evaluates watches for a freshly created ride.
// Evaluation is synchronous so the response carries the real match
// count; delivery is fire-and-forget unless ?sync=true. Not
// idempotent: calling twice for the same ride duplicates
// notifications, at-most-once invocation is the caller's job.
func (s *Server) handleTriggerWatches(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ride := models.Ride{
		ID:            req.RideID,
		OwnerID:       req.OwnerID,
		Kind:          req.Kind,
		RoutePoints:   req.Route,
		DepartureDate: req.DepartureDate,
		Status:        models.StatusActive,
	}

	matches, err := s.watcher.MatchesForRide(r.Context(), ride)
	if err != nil {
		s.logger.Error("watch evaluation failed", "ride_id", ride.ID, "error", err)
		http.Error(w, "watch evaluation failed", http.StatusInternalServerError)
		return
	}

	if r.URL.Query().Get("sync") == "true" {
		res := s.dispatch.Dispatch(r.Context(), ride, matches)
		writeJSON(w, http.StatusOK, res)
		return
	}

	if s.kafka != nil {
		// separate worker deployments consume the event; dispatching
		// here too would double-notify
		if err := s.kafka.PublishRideCreated(ride); err != nil {
			s.logger.Error("ride event publish failed, dispatching in process",
				"ride_id", ride.ID, "error", err)
			s.dispatch.Go(ride, matches)
		}
	} else {
		s.dispatch.Go(ride, matches)
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"matched_count":      len(matches),
		"notifications_sent": 0,
		"push_sent":          0,
	})
}

func (s *Server) handleDrivingRoute(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err1 := parsePoint(q.Get("from_lat"), q.Get("from_lng"))
	to, err2 := parsePoint(q.Get("to_lat"), q.Get("to_lng"))
	if err1 != nil || err2 != nil {
		http.Error(w, "invalid coordinates", http.StatusBadRequest)
		return
	}
	res, err := s.router.DrivingRoute(r.Context(), from, to)
	if err != nil {
		switch {
		case errors.Is(err, routing.ErrNoRoute):
			http.Error(w, "no route found", http.StatusNotFound)
		case errors.Is(err, routing.ErrTimeout):
			http.Error(w, "routing timed out", http.StatusGatewayTimeout)
		case errors.Is(err, routing.ErrRateLimited):
			http.Error(w, "routing rate limited", http.StatusTooManyRequests)
		default:
			s.logger.Error("routing failed", "error", err)
			http.Error(w, "routing unavailable", http.StatusBadGateway)
		}
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func parsePoint(latStr, lngStr string) (models.GeoPoint, error) {
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return models.GeoPoint{}, err
	}
	lng, err := strconv.ParseFloat(lngStr, 64)
	if err != nil {
		return models.GeoPoint{}, err
	}
	p := models.GeoPoint{Lat: lat, Lng: lng}
	if !p.Valid() {
		return models.GeoPoint{}, errors.New("out of range")
	}
	return p, nil
}

// handleHealthz reports readiness. With postgres wired in, a failing
// ping flips the check so load balancers stop routing here.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if s.ping != nil {
		if err := s.ping(r.Context()); err != nil {
			s.logger.Warn("health check failed", "error", err)
			http.Error(w, "store unreachable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

var upgrader = websocket.Upgrader{}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["user_id"]
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "upgrade failed", http.StatusBadRequest)
		return
	}
	s.wsreg.Add(id, conn)

	// clients never send payloads we use; the reader exists to notice
	// the close and drop the session
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.wsreg.Remove(id, conn)
				conn.Close()
				return
			}
		}
	}()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func emptyAsList(results []models.MatchResult) []models.MatchResult {
	if results == nil {
		return []models.MatchResult{}
	}
	return results
}
