// Command ocpp-sync pulls OCPP logs for every tracked charging port,
// normalizes them, and reconciles net-new records into PostgreSQL.
//
// Usage:
//
//	ocpp-sync          # serve /healthz, /readyz, /status and /metrics; sync every SYNC_INTERVAL
//	ocpp-sync -once    # run a single pass and exit non-zero on failure
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/couchcryptid/ocpp-log-etl/internal/adapter/charger"
	httpadapter "github.com/couchcryptid/ocpp-log-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/ocpp-log-etl/internal/adapter/kafka"
	"github.com/couchcryptid/ocpp-log-etl/internal/adapter/postgres"
	redisadapter "github.com/couchcryptid/ocpp-log-etl/internal/adapter/redis"
	"github.com/couchcryptid/ocpp-log-etl/internal/config"
	"github.com/couchcryptid/ocpp-log-etl/internal/observability"
	"github.com/couchcryptid/ocpp-log-etl/internal/pipeline"
	"github.com/couchcryptid/ocpp-log-etl/internal/store"
)

func main() {
	once := flag.Bool("once", false, "run a single sync pass and exit")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env", "error", err)
	}

	os.Exit(run(*once))
}

func run(once bool) int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.MigrateOnStart {
		if err := postgres.Migrate(cfg.DatabaseURL, logger); err != nil {
			logger.Error("database migration failed", "error", err)
			return 1
		}
	}

	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return 1
	}
	defer db.Close()
	pgStore := postgres.NewStore(db, logger)

	var ports store.PortRegistry = pgStore
	if cfg.ChargersFile != "" {
		list, err := config.LoadPorts(cfg.ChargersFile)
		if err != nil {
			logger.Error("failed to load chargers file", "path", cfg.ChargersFile, "error", err)
			return 1
		}
		ports = config.StaticPorts(list)
		logger.Info("port registry loaded from file", "path", cfg.ChargersFile, "ports", len(list))
	}

	opts := pipeline.Options{
		Window:      cfg.DedupWindow,
		Concurrency: cfg.FetchConcurrency,
		Interval:    cfg.SyncInterval,
	}

	// Run lock (enabled via REDIS_ADDR).
	if cfg.LockEnabled() {
		client, err := redisadapter.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			logger.Error("failed to connect to redis", "error", err)
			return 1
		}
		defer client.Close()
		opts.Locker = redisadapter.NewLocker(client, redisadapter.LockKey, cfg.LockTTL, logger)
		logger.Info("run lock enabled", "addr", cfg.RedisAddr, "ttl", cfg.LockTTL)
	}

	// Downstream publish (enabled via KAFKA_BROKERS).
	if cfg.PublishEnabled() {
		writer := kafkaadapter.NewWriter(cfg, logger)
		defer func() {
			if err := writer.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}()
		opts.Publisher = writer
		logger.Info("kafka publish enabled", "topic", cfg.KafkaTopic)
	}

	source := charger.NewClient(cfg, metrics, logger)
	rec := pipeline.New(ports, source, pgStore, logger, metrics, opts)

	if once {
		if _, err := rec.RunPass(ctx); err != nil {
			logger.Error("sync pass failed", "error", err)
			return 1
		}
		return 0
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, rec, logger,
		httpadapter.Check{Name: "sync", Checker: rec},
		httpadapter.Check{Name: "database", Checker: httpadapter.CheckFunc(pgStore.Ping)},
	)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	if err := rec.Run(ctx); err != nil {
		logger.Error("reconciler error", "error", err)
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
	return 0
}
