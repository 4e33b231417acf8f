package controllers

import (
	"net/http"
	"strings"

	"github.com/skydrivehq/skydrive-backend/api/responses"
	"github.com/skydrivehq/skydrive-backend/api/validators"
	"github.com/skydrivehq/skydrive-backend/pkg/bunny/stream"
	pkgerrors "github.com/skydrivehq/skydrive-backend/pkg/errors"
	"github.com/skydrivehq/skydrive-backend/pkg/logger"
)

type streamCreateRequest struct {
	Title string `json:"title" validate:"required,max=255"`
}

type streamVideoIDRequest struct {
	VideoID string `json:"videoId" validate:"required"`
}

// StreamRelay dispatches video-library operations by the `action` query
// parameter, same envelope as the storage relay.
func StreamRelay(client *stream.Client, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if client == nil {
			responses.WriteRelayError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConfig, "bunny stream credentials not configured"))
			return
		}

		switch action := r.URL.Query().Get("action"); action {
		case "create-video":
			relayStreamCreate(client, logg, w, r)
		case "upload-video":
			relayStreamUpload(client, logg, w, r)
		case "delete-video":
			relayStreamDelete(client, logg, w, r)
		case "get-video":
			relayStreamGet(client, logg, w, r)
		case "list-videos":
			relayStreamList(client, logg, w, r)
		default:
			responses.WriteRelayError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "unknown action: "+action))
		}
	}
}

func relayStreamCreate(client *stream.Client, logg *logger.Logger, w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var payload streamCreateRequest
	if err := validators.DecodeJSONBody(r, &payload); err != nil {
		responses.WriteRelayError(ctx, logg, w, err)
		return
	}
	created, err := client.CreateVideo(ctx, payload.Title)
	if err != nil {
		responses.WriteRelayError(ctx, logg, w, err)
		return
	}
	responses.WriteRelaySuccess(w, map[string]any{
		"videoId":   created.VideoID,
		"libraryId": created.LibraryID,
		"uploadUrl": created.UploadURL,
		"apiKey":    created.APIKey,
	})
}

// The video payload travels as the raw request body, with the target video
// in the query string.
func relayStreamUpload(client *stream.Client, logg *logger.Logger, w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	videoID := strings.TrimSpace(r.URL.Query().Get("videoId"))
	if videoID == "" {
		responses.WriteRelayError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "videoId parameter is required"))
		return
	}

	result, err := client.UploadVideo(ctx, videoID, r.Body)
	if err != nil {
		responses.WriteRelayError(ctx, logg, w, err)
		return
	}
	responses.WriteRelaySuccess(w, map[string]any{
		"videoId":       result.VideoID,
		"embedUrl":      result.EmbedURL,
		"directPlayUrl": result.DirectPlayURL,
	})
}

func relayStreamDelete(client *stream.Client, logg *logger.Logger, w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var payload streamVideoIDRequest
	if err := validators.DecodeJSONBody(r, &payload); err != nil {
		responses.WriteRelayError(ctx, logg, w, err)
		return
	}
	if err := client.DeleteVideo(ctx, payload.VideoID); err != nil {
		responses.WriteRelayError(ctx, logg, w, err)
		return
	}
	responses.WriteRelaySuccess(w, nil)
}

func relayStreamGet(client *stream.Client, logg *logger.Logger, w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	videoID := strings.TrimSpace(r.URL.Query().Get("videoId"))
	if videoID == "" {
		responses.WriteRelayError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "videoId parameter is required"))
		return
	}
	metadata, err := client.GetVideo(ctx, videoID)
	if err != nil {
		responses.WriteRelayError(ctx, logg, w, err)
		return
	}
	responses.WriteRelayJSON(w, metadata)
}

func relayStreamList(client *stream.Client, logg *logger.Logger, w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	page, err := validators.ParseQueryInt(r, "page", 1, 1, 10000)
	if err != nil {
		responses.WriteRelayError(ctx, logg, w, err)
		return
	}
	raw, err := client.ListVideos(ctx, page)
	if err != nil {
		responses.WriteRelayError(ctx, logg, w, err)
		return
	}
	responses.WriteRelayJSON(w, raw)
}
