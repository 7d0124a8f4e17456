// Package httpapi exposes the matching engine over HTTP.
package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/example/liftmatch/internal/config"
	"github.com/example/liftmatch/internal/ingest"
	"github.com/example/liftmatch/internal/logging"
	"github.com/example/liftmatch/internal/match"
	"github.com/example/liftmatch/internal/notify"
	"github.com/example/liftmatch/internal/routing"
	"github.com/example/liftmatch/internal/score"
	"github.com/example/liftmatch/internal/storage"
	"github.com/example/liftmatch/internal/watch"
)

// Deps are the collaborators a Server needs. Split out so tests can
// hand in fakes without any env wiring.
type Deps struct {
	Rides         storage.RideStore
	Watches       storage.WatchStore
	Notifications storage.NotificationStore
	Endpoints     storage.PushEndpointStore
	Push          notify.PushGateway
	Router        routing.Router
	Kafka         *ingest.KafkaProducer

	// Ping is optional; when set, /healthz reports the backing store's
	// reachability instead of always succeeding.
	Ping func(context.Context) error
}

type Server struct {
	cfg      config.ServerConfig
	logger   *slog.Logger
	matches  *match.Service
	watcher  *watch.Matcher
	dispatch *notify.Dispatcher
	router   routing.Router
	kafka    *ingest.KafkaProducer
	wsreg    *notify.WSRegistry
	validate *validator.Validate
	ping     func(context.Context) error
	mux      *mux.Router
}

func NewServer(cfg config.ServerConfig, logger *slog.Logger, deps Deps) *Server {
	th := score.Thresholds{
		DirectKm:      cfg.DirectKm,
		SmallDetourKm: cfg.SmallDetourKm,
		DetourKm:      cfg.DetourKm,
	}
	matches := match.NewService(deps.Rides, th, logging.ForComponent(logger, "match"))
	matches.FetchLimit = cfg.MatchFetchLimit
	matches.PageSize = cfg.MatchPageSize
	matches.NearFetchLimit = cfg.NearbyFetchLimit
	matches.NearPageSize = cfg.NearbyPageSize
	matches.DateWindowDays = cfg.MatchDateWindowDays

	wsreg := notify.NewWSRegistry()
	s := &Server{
		cfg:     cfg,
		logger:  logger,
		matches: matches,
		watcher: watch.NewMatcher(deps.Watches, cfg.CorridorKm, logging.ForComponent(logger, "watch")),
		dispatch: notify.NewDispatcher(deps.Notifications, deps.Endpoints, deps.Push, wsreg,
			logging.ForComponent(logger, "notify")),
		router:   deps.Router,
		kafka:    deps.Kafka,
		wsreg:    wsreg,
		validate: validator.New(),
		ping:     deps.Ping,
		mux:      mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

// NewServerFromConfig wires production dependencies: postgres stores
// when PG_DSN is set (memory otherwise), the configured routing
// provider with an optional redis cache, and a kafka producer when
// brokers are configured.
func NewServerFromConfig(cfg config.ServerConfig, logger *slog.Logger) (*Server, error) {
	deps := Deps{Push: notify.NewHTTPPushGateway(cfg.PushTimeout)}

	if cfg.PGDSN != "" {
		pg, err := storage.NewPostgresStores(cfg.PGDSN)
		if err != nil {
			return nil, err
		}
		deps.Rides, deps.Watches, deps.Notifications, deps.Endpoints = pg, pg, pg, pg
		deps.Ping = pg.Ping
	} else {
		logger.Warn("PG_DSN not set, using in-memory stores")
		deps.Rides = storage.NewMemoryRideStore()
		deps.Watches = storage.NewMemoryWatchStore()
		deps.Notifications = storage.NewMemoryNotificationStore()
		deps.Endpoints = storage.NewMemoryPushEndpointStore()
	}

	var router routing.Router
	if cfg.RoutingProvider == "google" && cfg.GoogleAPIKey != "" {
		g, err := routing.NewGoogleRouter(cfg.GoogleAPIKey, cfg.RoutingTimeout)
		if err != nil {
			return nil, err
		}
		router = g
	} else {
		router = routing.NewOSRMClient(cfg.OSRMEndpoint, cfg.RoutingTimeout)
	}
	if cfg.RedisAddr != "" {
		rc := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		router = routing.NewCachedRouter(router, rc, cfg.RouteCacheTTL,
			logging.ForComponent(logger, "routing"))
	}
	deps.Router = router

	if len(cfg.KafkaBrokers) > 0 {
		deps.Kafka = ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	}

	return NewServer(cfg, logger, deps), nil
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/v1/match/route", s.handleMatchRoute).Methods("POST")
	s.mux.HandleFunc("/api/v1/match/nearby", s.handleMatchNearby).Methods("GET")
	s.mux.HandleFunc("/api/v1/match/trigger-watches", s.handleTriggerWatches).Methods("POST")
	s.mux.HandleFunc("/api/v1/routes/driving", s.handleDrivingRoute).Methods("GET")
	s.mux.HandleFunc("/healthz", s.handleHealthz).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/ws/{user_id}", s.handleWS)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func newID() string { b := make([]byte, 8); _, _ = rand.Read(b); return hex.EncodeToString(b) }
