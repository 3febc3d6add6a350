package dispatchservice

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"shipease/internal/general/config"
	"shipease/internal/general/jwt"
	"shipease/internal/general/logger"
	"shipease/internal/general/postgres"
	"shipease/internal/general/rabbitmq"
	"shipease/internal/general/redis"
	"shipease/internal/general/websocket"
	"shipease/internal/matching"
	"shipease/internal/software/dispatch/handler"
	"shipease/internal/software/dispatch/service"

	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// Run wires the dispatch service and blocks until ctx is cancelled.
func Run(ctx context.Context, configPath string, maxConcurrent, prefetch int) error {
	// set up a new logger and context for the dispatch service with a static request ID for startup logs
	logger := logger.New("dispatch-service")
	ctx = logger.WithRequestID(ctx, "startup-001")

	// load a config from file
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		logger.Error(ctx, "config_load_failed", "Failed to load configuration", err, map[string]any{"path": configPath})
		return err
	}

	// set up a Postgres connection pool and make sure the tables exist
	pool, err := postgres.NewPool(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "db_connection_failed", "Failed to initialize Postgres pool", err, nil)
		return err
	}
	defer pool.Close()

	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		logger.Error(ctx, "db_schema_failed", "Failed to apply database schema", err, nil)
		return err
	}

	// connect to Redis for the live driver index
	rdb, err := redis.NewClient(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "redis_connection_failed", "Failed to connect to Redis", err, nil)
		return err
	}
	defer rdb.Close()

	// connect to RabbitMQ
	rmq, err := rabbitmq.ConnectRabbitMQ(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "rabbitmq_connection_failed", "Failed to connect to RabbitMQ", err, nil)
		return err
	}
	defer rmq.Close()

	pub := rabbitmq.NewMQPublisher(rmq)
	jwtManager := jwt.NewManager(cfg.JWT.SecretKey, cfg.JWT.AccessTTL)

	drivers := redis.NewDriverIndex(rdb, redis.IndexOptions{
		KeyPrefix:      cfg.Redis.KeyPrefix,
		SearchRadiusKM: cfg.Redis.SearchRadiusKM,
		MaxCandidates:  cfg.Redis.MaxCandidates,
		LocationTTL:    cfg.Redis.LocationTTL,
	})

	// set up the websocket gateway
	ws := websocket.NewWebSocket(logger, jwtManager, pub, drivers)

	// set up the dispatch service
	svc, err := service.NewDispatchService(service.Deps{
		Logger:    logger,
		UoW:       postgres.NewUnitOfWork(pool),
		Bookings:  postgres.NewBookingRepo(),
		Events:    postgres.NewMatchEventRepo(),
		Publisher: pub,
		Notifier:  ws,
		Consumer:  rmq,
		Feed:      drivers,
		Transport: ws,
		Prefetch:  prefetch,
	}, matching.Config{
		GlobalDeadline:   cfg.Matching.GlobalDeadline,
		OfferTimeout:     cfg.Matching.OfferTimeout,
		CandidateRefresh: cfg.Matching.CandidateRefresh,
	})
	if err != nil {
		logger.Error(ctx, "service_init_failed", "Failed to build dispatch service", err, nil)
		return err
	}
	ws.AttachCanceller(svc)

	// set up the HTTP handler and its routes
	mux := http.NewServeMux()
	httpHandler := handler.NewDispatchHTTPHandler(svc, logger, jwtManager, ws.ConnectDriver, ws.ConnectRider)
	httpHandler.AddHealthCheck("postgres", pool.Ping)
	httpHandler.AddHealthCheck("redis", func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	httpHandler.AddHealthCheck("rabbitmq", func(context.Context) error {
		if !rmq.Ready() {
			return errors.New("not connected")
		}
		return nil
	})
	httpHandler.RegisterRoutes(mux)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Services.DispatchServicePort),
		Handler:           withConcurrencyLimit(maxConcurrent, mux),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	logger.Info(ctx, "service_started",
		fmt.Sprintf("Dispatch Service started on port %d", cfg.Services.DispatchServicePort),
		map[string]any{"port": cfg.Services.DispatchServicePort, "max_concurrent": maxConcurrent, "prefetch": prefetch},
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "http_server_error", "HTTP server terminated with error", err,
				map[string]any{"port": cfg.Services.DispatchServicePort})
			return err
		}
		return nil
	})

	g.Go(func() error {
		return svc.RunResponseConsumer(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info(ctx, "shutdown_started", "Starting graceful shutdown", nil)

		shCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		// stop accepting requests first so no new attempt can begin
		if err := srv.Shutdown(shCtx); err != nil {
			logger.Error(ctx, "http_shutdown_failed", "Failed to gracefully shut down HTTP server", err, nil)
		}
		if err := svc.Shutdown(shCtx); err != nil {
			logger.Error(ctx, "dispatcher_shutdown_failed", "Live attempts did not stop in time", err, nil)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info(context.WithoutCancel(ctx), "service_stopped", "Dispatch Service stopped", nil)
	return nil
}

// withConcurrencyLimit wraps an http.Handler with a semaphore-based limiter.
// It controls how many HTTP requests can be in-progress at the same time.
func withConcurrencyLimit(n int, next http.Handler) http.Handler {
	if n <= 0 {
		return next
	}
	sem := make(chan struct{}, n)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case sem <- struct{}{}: // acquire
			defer func() { <-sem }() // release
			next.ServeHTTP(w, r)
		case <-r.Context().Done():
			// client canceled or server is shutting down
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		}
	})
}
