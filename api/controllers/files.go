package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/skydrivehq/skydrive-backend/api/middleware"
	"github.com/skydrivehq/skydrive-backend/api/responses"
	"github.com/skydrivehq/skydrive-backend/api/validators"
	"github.com/skydrivehq/skydrive-backend/internal/files"
	pkgerrors "github.com/skydrivehq/skydrive-backend/pkg/errors"
	"github.com/skydrivehq/skydrive-backend/pkg/logger"
)

type createFolderRequest struct {
	Name     string  `json:"name" validate:"required,max=255"`
	ParentID *string `json:"parent_id" validate:"omitempty,uuid"`
}

type renameFileRequest struct {
	Name string `json:"name" validate:"required,max=255"`
}

// CreateFolder handles POST /files.
func CreateFolder(svc files.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, err := ownerFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createFolderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var parentID *uuid.UUID
		if payload.ParentID != nil {
			parsed, err := uuid.Parse(*payload.ParentID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid parent_id"))
				return
			}
			parentID = &parsed
		}

		folder, err := svc.CreateFolder(r.Context(), ownerID, payload.Name, parentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, folder)
	}
}

// ListFiles handles GET /files?view=&parentId=.
func ListFiles(svc files.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, err := ownerFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := files.ParseListView(r.URL.Query().Get("view"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		parentID, err := validators.ParseQueryUUID(r, "parentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := svc.List(r.Context(), ownerID, view, parentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"items": rows, "view": view})
	}
}

// FileStats handles GET /files/stats.
func FileStats(svc files.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, err := ownerFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		stats, err := svc.Stats(r.Context(), ownerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, stats)
	}
}

// RenameFile handles PATCH /files/{fileId}.
func RenameFile(svc files.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, fileID, err := ownerAndFileID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload renameFileRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		updated, err := svc.Rename(r.Context(), ownerID, fileID, payload.Name)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, updated)
	}
}

// ToggleStar handles POST /files/{fileId}/star.
func ToggleStar(svc files.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, fileID, err := ownerAndFileID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		updated, err := svc.ToggleStar(r.Context(), ownerID, fileID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, updated)
	}
}

// ToggleShare handles POST /files/{fileId}/share.
func ToggleShare(svc files.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, fileID, err := ownerAndFileID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ToggleShare(r.Context(), ownerID, fileID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// ShareLink handles GET /files/{fileId}/share-link.
func ShareLink(svc files.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, fileID, err := ownerAndFileID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		link, err := svc.ShareLink(r.Context(), ownerID, fileID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"share_link": link})
	}
}

// DeleteFile handles DELETE /files/{fileId}. The first delete trashes, the
// second removes permanently.
func DeleteFile(svc files.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, fileID, err := ownerAndFileID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Delete(r.Context(), ownerID, fileID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "deleted"})
	}
}

// RestoreFile handles POST /files/{fileId}/restore.
func RestoreFile(svc files.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, fileID, err := ownerAndFileID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		restored, err := svc.Restore(r.Context(), ownerID, fileID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, restored)
	}
}

// EmptyTrash handles POST /files/trash/empty.
func EmptyTrash(svc files.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, err := ownerFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		removed, err := svc.EmptyTrash(r.Context(), ownerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"removed": removed})
	}
}

func ownerFromContext(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	ownerID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	return ownerID, nil
}

func ownerAndFileID(r *http.Request) (uuid.UUID, uuid.UUID, error) {
	ownerID, err := ownerFromContext(r)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	fileID, err := uuid.Parse(chi.URLParam(r, "fileId"))
	if err != nil {
		return uuid.Nil, uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid file id")
	}
	return ownerID, fileID, nil
}
