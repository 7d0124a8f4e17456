package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ServerConfig captures all tunable parameters for the HTTP API
// process. Values are primarily loaded from environment variables
// with sane defaults so the binary can run locally without excessive
// setup.
type ServerConfig struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	PGDSN string

	RedisAddr     string
	RedisPassword string
	RouteCacheTTL time.Duration

	KafkaBrokers []string
	KafkaTopic   string

	RoutingProvider string // "osrm" or "google"
	OSRMEndpoint    string
	GoogleAPIKey    string
	RoutingTimeout  time.Duration

	// detour classification cut points; call sites used to disagree
	// on these literals, so they live in one configurable set now
	DirectKm      float64
	SmallDetourKm float64
	DetourKm      float64
	OnRouteKm     float64
	CorridorKm    float64

	MatchFetchLimit     int
	MatchPageSize       int
	NearbyFetchLimit    int
	NearbyPageSize      int
	MatchDateWindowDays int

	PushTimeout time.Duration

	LogLevel      string
	RunMigrations bool
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:        ":8080",
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    10 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 15 * time.Second,

		RouteCacheTTL: 10 * time.Minute,

		KafkaTopic: "ride-created",

		RoutingProvider: "osrm",
		OSRMEndpoint:    "http://localhost:5000",
		RoutingTimeout:  15 * time.Second,

		DirectKm:      2,
		SmallDetourKm: 20,
		DetourKm:      25,
		OnRouteKm:     20,
		CorridorKm:    20,

		MatchFetchLimit:     100,
		MatchPageSize:       20,
		NearbyFetchLimit:    200,
		NearbyPageSize:      30,
		MatchDateWindowDays: 3,

		PushTimeout: 3 * time.Second,

		LogLevel: "info",
	}
}

func LoadServerConfig() (ServerConfig, error) {
	cfg := defaultServerConfig()
	var errs []error

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	cfg.PGDSN = os.Getenv("PG_DSN")

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setDurationFromEnv(&cfg.RouteCacheTTL, "ROUTE_CACHE_TTL", &errs)

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")

	setStringFromEnv(&cfg.RoutingProvider, "ROUTING_PROVIDER")
	setStringFromEnv(&cfg.OSRMEndpoint, "OSRM_ENDPOINT")
	cfg.GoogleAPIKey = os.Getenv("GOOGLE_MAPS_API_KEY")
	setDurationFromEnv(&cfg.RoutingTimeout, "ROUTING_TIMEOUT", &errs)

	setFloatFromEnv(&cfg.DirectKm, "MATCH_DIRECT_KM", &errs)
	setFloatFromEnv(&cfg.SmallDetourKm, "MATCH_SMALL_DETOUR_KM", &errs)
	setFloatFromEnv(&cfg.DetourKm, "MATCH_DETOUR_KM", &errs)
	setFloatFromEnv(&cfg.OnRouteKm, "MATCH_ON_ROUTE_KM", &errs)
	setFloatFromEnv(&cfg.CorridorKm, "WATCH_CORRIDOR_KM", &errs)

	setIntFromEnv(&cfg.MatchFetchLimit, "MATCH_FETCH_LIMIT", &errs)
	setIntFromEnv(&cfg.MatchPageSize, "MATCH_PAGE_SIZE", &errs)
	setIntFromEnv(&cfg.NearbyFetchLimit, "NEARBY_FETCH_LIMIT", &errs)
	setIntFromEnv(&cfg.NearbyPageSize, "NEARBY_PAGE_SIZE", &errs)
	setIntFromEnv(&cfg.MatchDateWindowDays, "MATCH_DATE_WINDOW_DAYS", &errs)

	setDurationFromEnv(&cfg.PushTimeout, "PUSH_TIMEOUT", &errs)

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	cfg.RunMigrations = strings.EqualFold(os.Getenv("MIGRATE"), "true")

	if cfg.DirectKm > cfg.SmallDetourKm || cfg.SmallDetourKm > cfg.DetourKm {
		errs = append(errs, fmt.Errorf("detour thresholds must be non-decreasing: %v/%v/%v",
			cfg.DirectKm, cfg.SmallDetourKm, cfg.DetourKm))
	}
	if cfg.MatchPageSize <= 0 || cfg.NearbyPageSize <= 0 {
		errs = append(errs, fmt.Errorf("page sizes must be > 0"))
	}
	if cfg.RoutingProvider != "osrm" && cfg.RoutingProvider != "google" {
		errs = append(errs, fmt.Errorf("unknown ROUTING_PROVIDER %q", cfg.RoutingProvider))
	}

	return cfg, errors.Join(errs...)
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setFloatFromEnv(target *float64, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = f
	}
}

func setIntFromEnv(target *int, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
