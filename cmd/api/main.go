package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/skydrivehq/skydrive-backend/api/routes"
	"github.com/skydrivehq/skydrive-backend/internal/files"
	"github.com/skydrivehq/skydrive-backend/internal/uploads"
	"github.com/skydrivehq/skydrive-backend/pkg/bunny/storage"
	"github.com/skydrivehq/skydrive-backend/pkg/bunny/stream"
	"github.com/skydrivehq/skydrive-backend/pkg/config"
	"github.com/skydrivehq/skydrive-backend/pkg/db"
	"github.com/skydrivehq/skydrive-backend/pkg/logger"
	"github.com/skydrivehq/skydrive-backend/pkg/metrics"
	"github.com/skydrivehq/skydrive-backend/pkg/migrate"
	"github.com/skydrivehq/skydrive-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	storageClient, err := storage.NewClient(cfg.Storage, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create storage client", err)
		os.Exit(1)
	}
	streamClient, err := stream.NewClient(cfg.Stream, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create stream client", err)
		os.Exit(1)
	}

	fileRepo := files.NewRepository(dbClient.DB())
	fileService, err := files.NewService(fileRepo, storageClient, streamClient, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create file service", err)
		os.Exit(1)
	}

	uploadMetrics := metrics.NewUploadMetrics(prometheus.DefaultRegisterer)
	uploadRegistry := uploads.NewRegistry(cfg.Upload.TaskLinger)
	uploadService, err := uploads.NewService(
		fileRepo,
		storageClient,
		streamClient,
		uploadRegistry,
		uploadMetrics,
		logg,
		int64(cfg.Upload.MaxUploadMB)<<20,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create upload service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:    addr,
		Handler: routes.NewRouter(cfg, logg, dbClient, redisClient, storageClient, streamClient, fileService, uploadService),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
