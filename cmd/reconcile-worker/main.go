package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/skydrivehq/skydrive-backend/internal/cron"
	"github.com/skydrivehq/skydrive-backend/internal/files"
	"github.com/skydrivehq/skydrive-backend/pkg/bunny/storage"
	"github.com/skydrivehq/skydrive-backend/pkg/bunny/stream"
	"github.com/skydrivehq/skydrive-backend/pkg/config"
	"github.com/skydrivehq/skydrive-backend/pkg/db"
	"github.com/skydrivehq/skydrive-backend/pkg/instance"
	"github.com/skydrivehq/skydrive-backend/pkg/logger"
	"github.com/skydrivehq/skydrive-backend/pkg/metrics"
	"github.com/skydrivehq/skydrive-backend/pkg/migrate"
	"github.com/skydrivehq/skydrive-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "reconcile-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "reconcile-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	sweepParams := cron.OrphanSweepJobParams{
		Logger:    logg,
		Repo:      files.NewRepository(dbClient.DB()),
		Retention: cfg.Reconcile.Retention,
		DryRun:    cfg.Reconcile.DryRun,
	}
	// The sweep covers whichever vendors this deployment has credentials for.
	if cfg.Storage.Configured() {
		storageClient, err := storage.NewClient(cfg.Storage, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to create storage client", err)
			os.Exit(1)
		}
		sweepParams.Blobs = storageClient
	} else {
		logg.Warn(context.Background(), "storage credentials missing, skipping blob sweep")
	}
	if cfg.Stream.Configured() {
		streamClient, err := stream.NewClient(cfg.Stream, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to create stream client", err)
			os.Exit(1)
		}
		sweepParams.Videos = streamClient
	} else {
		logg.Warn(context.Background(), "stream credentials missing, skipping video sweep")
	}

	sweepJob, err := cron.NewOrphanSweepJob(sweepParams)
	if err != nil {
		logg.Error(context.Background(), "failed to create orphan sweep job", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, cfg.Reconcile.LockKey, cfg.Reconcile.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create reconcile lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(sweepJob),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Reconcile.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"instance": instance.GetID(),
		"dry_run":  cfg.Reconcile.DryRun,
	})
	logg.Info(ctx, "starting reconcile worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "reconcile worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "reconcile worker shutting down gracefully")
}
