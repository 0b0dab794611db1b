package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"deliverus/internal/cache"
	"deliverus/internal/config"
	"deliverus/internal/database"
	"deliverus/internal/database/sqlite"
	"deliverus/internal/httpx"
	"deliverus/internal/logger"
	"deliverus/internal/messaging"
	"deliverus/internal/metrics"
	"deliverus/internal/seed"
	"deliverus/internal/services/analytics"
	"deliverus/internal/services/notification"
	"deliverus/internal/services/order"
	"deliverus/internal/services/tracking"
	"deliverus/internal/storage"
)

func main() {
	var (
		mode       = flag.String("mode", "", "Service mode (order-service, notification-subscriber, migrate, seed)")
		configFile = flag.String("config", "config.yaml", "Path to the YAML configuration file")
		port       = flag.Int("port", 0, "HTTP port, overrides server.port")
		seedFile   = flag.String("seed-file", "seed.yaml", "Catalog to load in seed mode")
		prefetch   = flag.Int("prefetch", 0, "RabbitMQ prefetch count, overrides rabbitmq.prefetch")
	)
	flag.Parse()

	if *mode == "" {
		fmt.Fprintf(os.Stderr, "Error: --mode flag is required\n")
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}
	if *prefetch > 0 {
		cfg.RabbitMQ.Prefetch = *prefetch
	}

	log := logger.New(*mode)
	requestID := logger.GenerateRequestID()

	log.Info("service_started", fmt.Sprintf("Starting %s", *mode), requestID, map[string]interface{}{
		"mode":      *mode,
		"port":      cfg.Server.Port,
		"db_driver": cfg.Database.Driver,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithRequestID(ctx, requestID)

	switch *mode {
	case "order-service":
		err = runOrderService(ctx, cfg, log)
	case "notification-subscriber":
		err = runNotificationSubscriber(ctx, cfg, log)
	case "migrate":
		err = runMigrate(ctx, cfg, log)
	case "seed":
		err = runSeed(ctx, cfg, log, *seedFile)
	default:
		log.Error("validation_failed", fmt.Sprintf("Unknown mode: %s", *mode), requestID, nil, nil)
		os.Exit(1)
	}
	if err != nil {
		log.Error("service_failed", fmt.Sprintf("%s failed", *mode), requestID, err, nil)
		os.Exit(1)
	}

	log.Info("service_stopped", "Service stopped gracefully", requestID, nil)
}

// openStore connects to the configured database and brings its schema up
// to date.
func openStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (storage.Store, error) {
	requestID := logger.RequestIDFromContext(ctx)

	switch cfg.Database.Driver {
	case "sqlite":
		s, err := sqlite.Open(ctx, cfg.Database.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		log.Info("db_connected", "Opened SQLite database", requestID, map[string]interface{}{
			"path": cfg.Database.Path,
		})
		return s, nil

	case "postgres", "":
		db, err := database.New(cfg, log)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		log.Info("db_connected", "Connected to PostgreSQL database", requestID, nil)

		if err := db.RunMigrations(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		if err := db.VerifySchema(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("schema check failed: %w", err)
		}
		return db, nil
	}
	return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
}

// runOrderService serves the order, tracking and analytics HTTP API
func runOrderService(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	requestID := logger.RequestIDFromContext(ctx)

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	opts := []order.Option{order.WithLocation(loc)}

	if cfg.RabbitMQ.Enabled {
		conn, err := messaging.New(ctx, cfg, log)
		if err != nil {
			return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
		}
		publisher := messaging.NewPublisher(conn, log)
		defer publisher.Close()
		opts = append(opts, order.WithPublisher(publisher))
		log.Info("rabbitmq_connected", "Connected to RabbitMQ", requestID, nil)
	}

	if cfg.Redis.Enabled {
		c, closeCache, err := cache.NewRedisCache(ctx, &redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, "order-service")
		if err != nil {
			return err
		}
		defer closeCache()
		opts = append(opts, order.WithIdempotency(cache.NewIdempotency(c, cfg.Redis.IdempotencyTTL)))
		log.Info("redis_connected", "Connected to Redis", requestID, map[string]interface{}{
			"addr": cfg.Redis.Addr,
		})
	}

	orders := order.NewService(store, log, opts...)
	history := tracking.NewService(orders, store, log)
	stats := analytics.NewService(store, log, loc, nil)

	router := httpx.NewRouter(log, metrics.NewServerMetrics("order_service"),
		order.NewHandler(orders, log, cfg.Server.RequestTimeout),
		tracking.NewHandler(history, log),
		analytics.NewHandler(stats, cfg.Server.RequestTimeout),
	)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.Server.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http_server_started", fmt.Sprintf("Listening on %s", server.Addr), requestID, nil)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("graceful_shutdown", "Shutting down HTTP server", requestID, nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// runNotificationSubscriber prints order notifications from the fanout queue
func runNotificationSubscriber(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	conn, err := messaging.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	consumer := messaging.NewConsumer(conn, log, messaging.NotificationsQueue,
		fmt.Sprintf("notification-subscriber-%d", os.Getpid()), cfg.RabbitMQ.Prefetch)
	return notification.NewSubscriber(consumer, log, os.Stdout).Start(ctx)
}

// runMigrate applies pending migrations and exits
func runMigrate(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	log.Info("migrations_applied", "Database schema is up to date", logger.RequestIDFromContext(ctx), nil)
	return store.Close()
}

// runSeed loads a restaurant catalog from YAML
func runSeed(ctx context.Context, cfg *config.Config, log *logger.Logger, path string) error {
	f, err := seed.Load(path)
	if err != nil {
		return err
	}

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	created, err := seed.Apply(ctx, store, f, log)
	if err != nil {
		return err
	}
	log.Info("seed_completed", fmt.Sprintf("Seeded %d restaurants", len(created)), logger.RequestIDFromContext(ctx), nil)
	return nil
}
