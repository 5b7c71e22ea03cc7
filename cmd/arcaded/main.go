package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"arcade-rental-backend/config"
	"arcade-rental-backend/internal/api"
	"arcade-rental-backend/internal/booking"
	"arcade-rental-backend/internal/db"
	"arcade-rental-backend/internal/events"
	"arcade-rental-backend/internal/kst"
	"arcade-rental-backend/internal/reconcile"
	"arcade-rental-backend/internal/store"
)

func main() {
	// Setup logger
	logger := log.New(os.Stdout, "arcade-backend ", log.LstdFlags)

	// A missing .env is normal outside local development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Printf("failed to read .env: %v", err)
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB)
	clock := kst.RealClock{}

	// Lifecycle events go to RabbitMQ when configured, otherwise to the log.
	var publisher events.Publisher = events.LogPublisher{}
	if cfg.Events.AMQPURL != "" {
		amqpPublisher := events.NewAMQPPublisher(cfg.Events.AMQPURL, cfg.Events.Exchange, cfg.Events.RoutingKey)
		defer amqpPublisher.Close()
		publisher = amqpPublisher
		logger.Printf("publishing lifecycle events to exchange %s", cfg.Events.Exchange)
	}
	eventPool := events.NewWorkerPool(cfg.Events.WorkerSize, cfg.Events.QueueSize, publisher)
	eventPool.Start(ctx)

	gate, closeGate := newGate(ctx, cfg, appStore, logger)
	defer closeGate()

	svc := booking.NewService(appStore, clock, booking.PolicyFromConfig(cfg.Booking), eventPool)
	reconciler := reconcile.New(appStore, clock, gate, eventPool, reconcile.Options{
		Grace:         cfg.Sync.NoShowGrace,
		InlineTimeout: cfg.Sync.InlineTimeout,
	})

	if cfg.Sync.RunnerEnabled {
		go reconcile.NewRunner(reconciler, cfg.Sync.RunnerInterval).Run(ctx)
	}

	router := api.NewRouter(api.Deps{
		Store:      appStore,
		Booking:    svc,
		Reconciler: reconciler,
		Server:     cfg.Server,
	})
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Println("Shutdown signal received, stopping services...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}
	cancel()

	logger.Println("Server gracefully stopped")
}

// newGate builds the configured reconcile debounce gate.
func newGate(ctx context.Context, cfg *config.Config, s store.Store, logger *log.Logger) (reconcile.Gate, func()) {
	interval := cfg.Sync.GateInterval
	switch cfg.Sync.Gate {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, pingCancel := context.WithTimeout(ctx, 3*time.Second)
		defer pingCancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			// The gate fails open, so keep serving and let redis come back.
			logger.Printf("redis ping to %s failed: %v", cfg.Redis.Addr, err)
		}
		logger.Printf("using redis reconcile gate at %s", cfg.Redis.Addr)
		return reconcile.NewRedisGate(client, interval), func() { _ = client.Close() }
	case "db":
		logger.Println("using database reconcile gate")
		return reconcile.NewDBGate(s, interval), func() {}
	default:
		logger.Println("using in-memory reconcile gate")
		return reconcile.NewMemoryGate(interval), func() {}
	}
}
