package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/ecobazaar/storefront/internal/catalog"
	"github.com/ecobazaar/storefront/internal/config"
	"github.com/ecobazaar/storefront/internal/event"
	"github.com/ecobazaar/storefront/internal/fulfillment"
	handler "github.com/ecobazaar/storefront/internal/handler/http"
	"github.com/ecobazaar/storefront/internal/recommend"
	"github.com/ecobazaar/storefront/internal/storage"
	"github.com/ecobazaar/storefront/internal/storage/memory"
	postgreskv "github.com/ecobazaar/storefront/internal/storage/postgres"
	rediskv "github.com/ecobazaar/storefront/internal/storage/redis"
	"github.com/ecobazaar/storefront/internal/store"
	"github.com/ecobazaar/storefront/pkg/database"
	"github.com/ecobazaar/storefront/pkg/health"
	pkgkafka "github.com/ecobazaar/storefront/pkg/kafka"
	"github.com/ecobazaar/storefront/pkg/middleware"
	"github.com/ecobazaar/storefront/pkg/tracing"
)

const serviceName = "storefront"

// App wires together all dependencies and runs the storefront service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	rdb            *redis.Client
	pool           *pgxpool.Pool
	producer       *pkgkafka.Producer
	registry       *store.Registry
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
// An unreachable storage backend is not fatal: carts are then kept in process
// memory and readiness reports storage as degraded.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, cfg.Tracing(serviceName))
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.tracerShutdown = tracerShutdown

	if cfg.SlowQueryThresholdMs > 0 {
		database.SetSlowQueryLogging(time.Duration(cfg.SlowQueryThresholdMs)*time.Millisecond, logger)
	}

	healthHandler := health.NewHandler()
	kv := a.openStorage(ctx, healthHandler)

	// Every placed order lands on the seller's board.
	board := fulfillment.NewBoard(kv, logger)
	opts := []store.Option{store.WithOrderListener(board)}

	// Order events are optional.
	if cfg.EventsEnabled() {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		opts = append(opts, store.WithOrderListener(event.NewProducer(a.producer, logger)))
		healthHandler.RegisterOptional("kafka", a.producer.Ping)
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	} else {
		logger.Info("KAFKA_BROKERS not set, order events disabled")
	}

	a.registry = store.NewRegistry(kv, logger, cfg.Sessions(), opts...)

	products := catalog.NewService(catalog.NewKVRepository(kv), a.openSearch(ctx, healthHandler), logger)

	recommender := recommend.New(recommend.Config{
		BaseURL:    cfg.RecommenderURL,
		Timeout:    cfg.RecommenderTimeout,
		MaxRetries: cfg.RecommenderMaxRetries,
	}, logger)
	healthHandler.RegisterOptional("recommender", recommender.Ping)

	cors := middleware.DefaultCORSConfig()
	cors.AllowedOrigins = cfg.CORSAllowedOrigins

	router := handler.NewRouter(a.registry, products, board, recommender, healthHandler, cors, cfg.RateLimit(), logger)

	// Cart streams stay open until the client leaves, so they are ended
	// through the base context when shutdown begins.
	baseCtx, stopStreams := context.WithCancel(context.Background())

	// No WriteTimeout: it would cut event streams. API routes carry their own
	// timeout in the router.
	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return baseCtx },
	}
	a.httpServer.RegisterOnShutdown(stopStreams)

	return a, nil
}

// openStorage connects the configured backend and returns it namespaced under
// STORAGE_KEY_PREFIX.
func (a *App) openStorage(ctx context.Context, healthHandler *health.Handler) storage.KV {
	var kv storage.KV

	switch a.cfg.StorageBackend {
	case config.BackendRedis:
		rdb, err := database.NewRedisClient(ctx, a.cfg.Redis(), a.logger)
		if err != nil {
			return a.memoryFallback(healthHandler, err)
		}
		a.rdb = rdb
		kv = rediskv.New(rdb, a.cfg.StorageTTL())
		a.logger.Info("connected to Redis",
			slog.String("addr", a.cfg.RedisAddr),
			slog.Int("db", a.cfg.RedisDB),
		)

	case config.BackendPostgres:
		pgCfg := a.cfg.Postgres()
		pool, err := database.NewPostgresPool(ctx, &pgCfg, a.logger)
		if err != nil {
			return a.memoryFallback(healthHandler, err)
		}
		if err := postgreskv.Migrate(ctx, pool, a.logger); err != nil {
			pool.Close()
			return a.memoryFallback(healthHandler, fmt.Errorf("run migrations: %w", err))
		}
		if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, serviceName); err != nil {
			a.logger.Warn("postgres pool metrics not registered", slog.String("error", err.Error()))
		}
		a.pool = pool
		kv = postgreskv.New(pool)
		a.logger.Info("connected to PostgreSQL",
			slog.String("host", a.cfg.PostgresHost),
			slog.Int("port", a.cfg.PostgresPort),
			slog.String("database", a.cfg.PostgresDB),
		)

	default:
		a.logger.Info("using in-memory storage, carts will not survive a restart")
		kv = memory.New()
	}

	kv = storage.Namespace(kv, a.cfg.StorageKeyPrefix)
	if p, ok := kv.(storage.Pinger); ok {
		healthHandler.RegisterOptional("storage", p.Ping)
	}
	return kv
}

// openSearch connects Elasticsearch when configured. Without it, or when it
// cannot be reached at startup, product queries match by substring.
func (a *App) openSearch(ctx context.Context, healthHandler *health.Handler) catalog.Searcher {
	if !a.cfg.SearchEnabled() {
		a.logger.Info("ELASTICSEARCH_URL not set, product search matches by substring")
		return nil
	}
	searcher, err := catalog.NewElasticSearcher(ctx, catalog.ElasticConfig{
		URL:       a.cfg.ElasticsearchURL,
		IndexName: a.cfg.ElasticsearchIndex,
	}, a.logger)
	if err != nil {
		a.logger.Warn("elasticsearch unavailable, product search matches by substring",
			slog.String("url", a.cfg.ElasticsearchURL),
			slog.String("error", err.Error()),
		)
		unavailable := fmt.Errorf("elasticsearch unavailable: %w", err)
		healthHandler.RegisterOptional("search", func(context.Context) error { return unavailable })
		return nil
	}
	healthHandler.RegisterOptional("search", searcher.Ping)
	a.logger.Info("connected to Elasticsearch", slog.String("index", a.cfg.ElasticsearchIndex))
	return searcher
}

func (a *App) memoryFallback(healthHandler *health.Handler, cause error) storage.KV {
	a.logger.Warn("storage backend unavailable, keeping carts in memory",
		slog.String("backend", a.cfg.StorageBackend),
		slog.String("error", cause.Error()),
	)
	unavailable := fmt.Errorf("%s unavailable, using memory: %w", a.cfg.StorageBackend, cause)
	healthHandler.RegisterOptional("storage", func(context.Context) error { return unavailable })
	return memory.New()
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		_ = a.Shutdown()
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in order:
// 1. HTTP server (drain in-flight requests, end streams)
// 2. Store registry (flush carts and orders, wait for order listeners such as
//    the seller board)
// 3. Tracer (flush pending spans)
// 4. Kafka producer
// 5. Storage connections
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	// 1. Drain in-flight HTTP requests (5s budget).
	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 2. Persist every session's latest state (5s budget).
	storeCtx, storeCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer storeCancel()
	if err := a.registry.Close(storeCtx); err != nil {
		a.logger.Error("store flush error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 3. Flush spans after the store so persistence spans are captured.
	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// 4. Close Kafka producer.
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// 5. Close storage connections.
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
