package controllers

import (
	"mime"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/skydrivehq/skydrive-backend/api/responses"
	"github.com/skydrivehq/skydrive-backend/api/validators"
	"github.com/skydrivehq/skydrive-backend/internal/uploads"
	pkgerrors "github.com/skydrivehq/skydrive-backend/pkg/errors"
	"github.com/skydrivehq/skydrive-backend/pkg/logger"
)

// Multipart form fields spill to disk past this much memory.
const multipartMemoryLimit = 32 << 10

// UploadBatch handles POST /uploads: a multipart batch of `files` parts with
// an optional `parent_id` field. Files are processed strictly in order.
func UploadBatch(svc *uploads.Service, maxBatchFiles int, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, err := ownerFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid multipart body"))
			return
		}
		defer func() {
			_ = r.MultipartForm.RemoveAll()
		}()

		parentID, err := validators.ParseFormUUID(r, "parent_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		headers := r.MultipartForm.File["files"]
		if len(headers) == 0 {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "at least one file part named 'files' is required"))
			return
		}
		if maxBatchFiles > 0 && len(headers) > maxBatchFiles {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "too many files in batch"))
			return
		}

		inputs := make([]uploads.Input, 0, len(headers))
		opened := make([]interface{ Close() error }, 0, len(headers))
		defer func() {
			for _, part := range opened {
				_ = part.Close()
			}
		}()
		for _, header := range headers {
			part, err := header.Open()
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "open file part"))
				return
			}
			opened = append(opened, part)
			inputs = append(inputs, uploads.Input{
				FileName: header.Filename,
				MimeType: partMimeType(header.Header.Get("Content-Type"), header.Filename),
				Size:     header.Size,
				Body:     part,
			})
		}

		results, err := svc.UploadBatch(r.Context(), ownerID, parentID, inputs)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]any{"results": results})
	}
}

// ListUploadTasks handles GET /uploads.
func ListUploadTasks(svc *uploads.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := ownerFromContext(r); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"tasks": svc.Registry().Snapshots()})
	}
}

// CancelUploadTask handles DELETE /uploads/{taskId}.
func CancelUploadTask(svc *uploads.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := ownerFromContext(r); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Cancel(chi.URLParam(r, "taskId")); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "cancelling"})
	}
}

func partMimeType(declared, fileName string) string {
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	if byExt := mime.TypeByExtension(filepath.Ext(fileName)); byExt != "" {
		return byExt
	}
	if declared != "" {
		return declared
	}
	return "application/octet-stream"
}
