package controllers

import (
	"context"
	"net/http"

	"github.com/skydrivehq/skydrive-backend/api/responses"
	"github.com/skydrivehq/skydrive-backend/pkg/config"
	pkgerrors "github.com/skydrivehq/skydrive-backend/pkg/errors"
	"github.com/skydrivehq/skydrive-backend/pkg/logger"
)

type pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-SkyDrive-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady reports the state of each dependency. It returns 503 when the
// database or redis is unreachable; missing vendor config is reported but is
// not fatal, the relays degrade on their own.
func HealthReady(cfg *config.Config, database, cache pinger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-SkyDrive-Env", cfg.App.Env)

		checks := map[string]string{
			"db":    "ok",
			"redis": "ok",
		}
		healthy := true

		if database == nil {
			checks["db"] = "unconfigured"
			healthy = false
		} else if err := database.Ping(r.Context()); err != nil {
			checks["db"] = "unreachable"
			healthy = false
		}

		if cache == nil {
			checks["redis"] = "unconfigured"
			healthy = false
		} else if err := cache.Ping(r.Context()); err != nil {
			checks["redis"] = "unreachable"
			healthy = false
		}

		checks["bunny_storage"] = vendorState(cfg.Storage.Configured())
		checks["bunny_stream"] = vendorState(cfg.Stream.Configured())

		if !healthy {
			err := pkgerrors.New(pkgerrors.CodeDependency, "not ready").WithDetails(checks)
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}

func vendorState(configured bool) string {
	if configured {
		return "ok"
	}
	return "unconfigured"
}
