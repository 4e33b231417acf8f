package controllers

import (
	"net/http"
	"strings"

	"github.com/skydrivehq/skydrive-backend/api/responses"
	"github.com/skydrivehq/skydrive-backend/api/validators"
	"github.com/skydrivehq/skydrive-backend/pkg/bunny/storage"
	pkgerrors "github.com/skydrivehq/skydrive-backend/pkg/errors"
	"github.com/skydrivehq/skydrive-backend/pkg/logger"
)

type storageDeleteRequest struct {
	Path string `json:"path" validate:"required"`
}

// StorageRelay dispatches blob-storage operations by the `action` query
// parameter, mirroring the envelope its callers already depend on.
func StorageRelay(client *storage.Client, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if client == nil {
			responses.WriteRelayError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConfig, "bunny storage credentials not configured"))
			return
		}

		switch action := r.URL.Query().Get("action"); action {
		case "upload":
			relayStorageUpload(client, logg, w, r)
		case "delete":
			relayStorageDelete(client, logg, w, r)
		case "list":
			relayStorageList(client, logg, w, r)
		default:
			responses.WriteRelayError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "unknown action: "+action))
		}
	}
}

func relayStorageUpload(client *storage.Client, logg *logger.Logger, w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		responses.WriteRelayError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid multipart body"))
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	path := strings.TrimSpace(r.FormValue("path"))
	if path == "" {
		responses.WriteRelayError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "path field is required"))
		return
	}

	part, _, err := r.FormFile("file")
	if err != nil {
		responses.WriteRelayError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "file part is required"))
		return
	}
	defer func() {
		_ = part.Close()
	}()

	result, err := client.Upload(ctx, path, part)
	if err != nil {
		responses.WriteRelayError(ctx, logg, w, err)
		return
	}
	responses.WriteRelaySuccess(w, map[string]any{"url": result.URL, "path": result.Path})
}

func relayStorageDelete(client *storage.Client, logg *logger.Logger, w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var payload storageDeleteRequest
	if err := validators.DecodeJSONBody(r, &payload); err != nil {
		responses.WriteRelayError(ctx, logg, w, err)
		return
	}
	if err := client.Delete(ctx, payload.Path); err != nil {
		responses.WriteRelayError(ctx, logg, w, err)
		return
	}
	responses.WriteRelaySuccess(w, nil)
}

func relayStorageList(client *storage.Client, logg *logger.Logger, w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	prefix := r.URL.Query().Get("path")
	if prefix == "" {
		prefix = "/"
	}
	raw, err := client.List(ctx, prefix)
	if err != nil {
		responses.WriteRelayError(ctx, logg, w, err)
		return
	}
	responses.WriteRelayJSON(w, raw)
}
