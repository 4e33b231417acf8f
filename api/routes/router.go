package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/skydrivehq/skydrive-backend/api/controllers"
	"github.com/skydrivehq/skydrive-backend/api/middleware"
	"github.com/skydrivehq/skydrive-backend/internal/files"
	"github.com/skydrivehq/skydrive-backend/internal/uploads"
	"github.com/skydrivehq/skydrive-backend/pkg/bunny/storage"
	"github.com/skydrivehq/skydrive-backend/pkg/bunny/stream"
	"github.com/skydrivehq/skydrive-backend/pkg/config"
	"github.com/skydrivehq/skydrive-backend/pkg/db"
	"github.com/skydrivehq/skydrive-backend/pkg/logger"
	"github.com/skydrivehq/skydrive-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	database *db.Client,
	cache *redis.Client,
	storageClient *storage.Client,
	streamClient *stream.Client,
	fileService files.Service,
	uploadService *uploads.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	relayPolicy := middleware.NewRateLimitPolicy(
		"relay",
		cfg.RelayLimit.Window,
		cfg.RelayLimit.IPLimit,
		cfg.RelayLimit.UserLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, database, cache, logg))
	})

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Get("/ping", controllers.PrivatePing())

		r.Route("/files", func(r chi.Router) {
			r.Post("/", controllers.CreateFolder(fileService, logg))
			r.Get("/", controllers.ListFiles(fileService, logg))
			r.Get("/stats", controllers.FileStats(fileService, logg))
			r.Post("/trash/empty", controllers.EmptyTrash(fileService, logg))
			r.Route("/{fileId}", func(r chi.Router) {
				r.Patch("/", controllers.RenameFile(fileService, logg))
				r.Delete("/", controllers.DeleteFile(fileService, logg))
				r.Post("/star", controllers.ToggleStar(fileService, logg))
				r.Post("/share", controllers.ToggleShare(fileService, logg))
				r.Get("/share-link", controllers.ShareLink(fileService, logg))
				r.Post("/restore", controllers.RestoreFile(fileService, logg))
			})
		})

		r.Route("/uploads", func(r chi.Router) {
			r.Post("/", controllers.UploadBatch(uploadService, cfg.Upload.MaxBatchFiles, logg))
			r.Get("/", controllers.ListUploadTasks(uploadService, logg))
			r.Delete("/{taskId}", controllers.CancelUploadTask(uploadService, logg))
		})
	})

	// Relay surface kept wire-compatible with the legacy edge functions.
	r.Route("/functions/v1", func(r chi.Router) {
		r.Use(
			middleware.Auth(cfg.JWT, logg),
			middleware.PlatformKey(cfg.App.APIKey, logg),
			middleware.RateLimit(relayPolicy, cache, logg),
		)
		r.HandleFunc("/bunny-storage", controllers.StorageRelay(storageClient, logg))
		r.HandleFunc("/bunny-stream", controllers.StreamRelay(streamClient, logg))
	})

	return r
}
