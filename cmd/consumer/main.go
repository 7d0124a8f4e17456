package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"github.com/example/liftmatch/internal/config"
	"github.com/example/liftmatch/internal/logging"
	"github.com/example/liftmatch/internal/models"
	"github.com/example/liftmatch/internal/notify"
	"github.com/example/liftmatch/internal/storage"
	"github.com/example/liftmatch/internal/watch"
)

var (
	eventsConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_ride_events_consumed_total",
		Help: "Total ride-created events consumed",
	})
	eventsInvalid = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_ride_events_invalid_total",
		Help: "Total invalid events received",
	})
	triggersProcessed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_triggers_processed_total",
		Help: "Total trigger events fully processed",
	})
	triggerErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_trigger_errors_total",
		Help: "Total trigger events abandoned after retries",
	})
)

func init() {
	prometheus.MustRegister(eventsConsumed, eventsInvalid, triggersProcessed, triggerErrors)
}

func main() {
	var metricsAddr string
	flag.StringVar(&metricsAddr, "metrics-addr", ":2112", "address to serve prometheus metrics on")
	flag.Parse()

	cfg, err := config.LoadServerConfig()
	if err != nil {
		logging.NewLogger("error").Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.NewLogger(cfg.LogLevel)

	brokers := cfg.KafkaBrokers
	if len(brokers) == 0 {
		brokers = []string{"localhost:9092"}
	}
	group := os.Getenv("KAFKA_GROUP")
	if group == "" {
		group = "liftmatch-trigger-consumer"
	}

	var (
		watchStore        storage.WatchStore
		notificationStore storage.NotificationStore
		endpointStore     storage.PushEndpointStore
	)
	if cfg.PGDSN != "" {
		pg, err := storage.NewPostgresStores(cfg.PGDSN)
		if err != nil {
			logger.Error("postgres connect failed", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		watchStore, notificationStore, endpointStore = pg, pg, pg
	} else {
		logger.Warn("PG_DSN not set, using in-memory stores")
		watchStore = storage.NewMemoryWatchStore()
		notificationStore = storage.NewMemoryNotificationStore()
		endpointStore = storage.NewMemoryPushEndpointStore()
	}

	matcher := watch.NewMatcher(watchStore, cfg.CorridorKm, logging.ForComponent(logger, "watch"))
	dispatcher := notify.NewDispatcher(notificationStore, endpointStore,
		notify.NewHTTPPushGateway(cfg.PushTimeout), nil, logging.ForComponent(logger, "notify"))

	// metrics and health side server
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
		logger.Info("metrics listening", "addr", metricsAddr)
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			logger.Error("metrics server stopped", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := kafka.NewReader(kafka.ReaderConfig{Brokers: brokers, Topic: cfg.KafkaTopic, GroupID: group, MinBytes: 10e3, MaxBytes: 10e6})
	defer r.Close()

	logger.Info("trigger consumer listening", "topic", cfg.KafkaTopic, "brokers", brokers, "group", group)

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("shutting down consumer")
				return
			}
			logger.Error("kafka read error", "error", err, "backoff", backoff)
			time.Sleep(backoff)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = time.Second
		eventsConsumed.Inc()

		var ev models.RideCreatedEvent
		if err := json.Unmarshal(m.Value, &ev); err != nil {
			eventsInvalid.Inc()
			logger.Error("invalid ride event", "error", err)
			continue
		}

		res, err := processWithRetry(ctx, matcher, dispatcher, ev.Ride, 3, 200*time.Millisecond)
		if err != nil {
			triggerErrors.Inc()
			logger.Error("trigger processing failed", "ride_id", ev.Ride.ID, "error", err)
			continue
		}
		triggersProcessed.Inc()
		logger.Info("trigger processed",
			"ride_id", ev.Ride.ID,
			"matched", res.MatchedCount,
			"notifications", res.NotificationsSent,
			"pushes", res.PushSent)
	}
}

// watchEvaluator is the subset of the watch matcher the consumer
// needs; narrowed for tests.
type watchEvaluator interface {
	MatchesForRide(ctx context.Context, ride models.Ride) ([]models.WatchMatch, error)
}

// matchDispatcher mirrors the dispatcher entry point.
type matchDispatcher interface {
	Dispatch(ctx context.Context, trigger models.Ride, matches []models.WatchMatch) notify.DispatchResult
}

// processWithRetry evaluates watches with retry/backoff around the
// store read, then dispatches once. Dispatch itself is best-effort
// and not retried: repeating it would duplicate notifications.
func processWithRetry(ctx context.Context, ev watchEvaluator, disp matchDispatcher, ride models.Ride, attempts int, delay time.Duration) (notify.DispatchResult, error) {
	var (
		matches []models.WatchMatch
		err     error
	)
	for i := 0; i < attempts; i++ {
		matches, err = ev.MatchesForRide(ctx, ride)
		if err == nil {
			break
		}
		if i == attempts-1 {
			return notify.DispatchResult{}, err
		}
		time.Sleep(delay)
		delay *= 2
	}
	return disp.Dispatch(ctx, ride, matches), nil
}
