/**
 * @description
 * This is the main entry point for the treasury-service. It initializes
 * and wires together all the components of the application:
 * configuration, the wallet registry (PostgreSQL or file-backed), the
 * Circle API client, the event producer, the rate limiter, the
 * registry reconciliation job, and the HTTP router. Finally, it starts
 * the HTTP server to listen for incoming requests.
 */
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/subguard/treasury-service/internal/api"
	"github.com/subguard/treasury-service/internal/app"
	"github.com/subguard/treasury-service/internal/config"
	"github.com/subguard/treasury-service/internal/store"
	"github.com/subguard/treasury-service/pkg/circleclient"
	appmw "github.com/subguard/treasury-service/pkg/middleware"
	"github.com/subguard/treasury-service/pkg/rabbitmq"
)

func main() {
	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// Load .env for local development; absence is fine in production.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Wallet registry: PostgreSQL when configured, file mirror otherwise.
	var repo store.Repository
	if cfg.DatabaseURL != "" {
		dbpool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("unable to connect to database", "error", err)
			os.Exit(1)
		}
		defer dbpool.Close()
		repo = store.NewPostgresRepository(dbpool)
		logger.Info("wallet registry backed by PostgreSQL")
	} else {
		fileRepo, err := store.NewFileRepository(cfg.WalletStorePath)
		if err != nil {
			logger.Error("unable to open wallet registry file", "error", err, "path", cfg.WalletStorePath)
			os.Exit(1)
		}
		repo = fileRepo
		logger.Info("wallet registry backed by file", "path", cfg.WalletStorePath)
	}

	circle := circleclient.NewClient(cfg.CircleAPIBaseURL, cfg.CircleAPIKey, cfg.CircleEntitySecret, cfg.CircleUSDCTokenID)

	// Event producer: fall back to a logging no-op when the broker is
	// unavailable so the service can still start.
	var events rabbitmq.Publisher
	if cfg.RabbitMQURL != "" {
		producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
		if err != nil {
			logger.Warn("rabbitmq unavailable, events will be logged only", "error", err)
			events = &rabbitmq.NoopPublisher{}
		} else {
			events = producer
		}
	} else {
		events = &rabbitmq.NoopPublisher{}
	}
	defer events.Close()

	service := app.NewService(repo, circle, events, cfg.CircleWalletSetID, cfg.AdminWalletAddress)

	// Rate limiter: Redis-backed when configured, in-memory otherwise.
	window := time.Duration(cfg.RateLimitWindowSeconds) * time.Second
	var limiter appmw.Limiter
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		limiter = appmw.NewRedisLimiter(redis.NewClient(opts), "subguard:rate_limit", cfg.RateLimitRequests, window)
		logger.Info("rate limiter backed by redis")
	} else {
		limiter = appmw.NewSlidingWindowLimiter(cfg.RateLimitRequests, window)
	}

	// Optional scheduled reconciliation of the registry against Circle.
	if cfg.ReconcileSchedule != "" {
		reconciler := app.NewReconciler(service, logger, cfg.ReconcileSchedule)
		reconciler.Start()
		defer reconciler.Stop()
	}

	verifier := api.NewJWKSVerifier(cfg.PrivyJWKSURL, cfg.PrivyIssuer)
	handler := api.NewHandler(service)
	router := api.NewRouter(handler, verifier, limiter)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: router,
	}

	go func() {
		logger.Info("starting server", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-sigCh
	logger.Info("shutdown signal received, gracefully shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}

	logger.Info("server stopped")
}
