package responses

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	pkgerrors "github.com/skydrivehq/skydrive-backend/pkg/errors"
	"github.com/skydrivehq/skydrive-backend/pkg/logger"
	"github.com/skydrivehq/skydrive-backend/pkg/types"
)

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, types.SuccessEnvelope{Data: data})
}

func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}

	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}

	meta := pkgerrors.MetadataFor(typed.Code())

	msg := meta.PublicMessage
	switch typed.Code() {
	case pkgerrors.CodeValidation,
		pkgerrors.CodeForbidden,
		pkgerrors.CodeUnauthorized,
		pkgerrors.CodeNotFound,
		pkgerrors.CodeConflict,
		pkgerrors.CodeRateLimit:
		if m := typed.Message(); m != "" {
			msg = m
		}
	}

	payload := types.ErrorEnvelope{
		Error: types.APIError{
			Code:    string(typed.Code()),
			Message: msg,
		},
	}

	if meta.DetailsAllowed {
		if details := typed.Details(); details != nil {
			payload.Error.Details = details
		}
	}

	logError(ctx, logg, typed, err)
	writeJSON(w, meta.HTTPStatus, payload)
}

// WriteRelaySuccess emits the flat `{"success":true,...}` shape the relay
// endpoints promise their callers.
func WriteRelaySuccess(w http.ResponseWriter, fields map[string]any) {
	payload := map[string]any{"success": true}
	for key, value := range fields {
		payload[key] = value
	}
	writeJSON(w, http.StatusOK, payload)
}

// WriteRelayJSON forwards a vendor payload as the whole response body, with
// no envelope. Listing and metadata relay actions are wire-compatible with
// callers that read the vendor shape directly.
func WriteRelayJSON(w http.ResponseWriter, payload any) {
	writeJSON(w, http.StatusOK, payload)
}

// WriteRelayError emits the relay failure shape. Relay callers only branch
// on `success`, so every failure is a 500 with the real message inline.
func WriteRelayError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	logError(ctx, logg, typed, err)
	writeJSON(w, http.StatusInternalServerError, map[string]any{
		"success": false,
		"error":   typed.Error(),
	})
}

func logError(ctx context.Context, logg *logger.Logger, typed *pkgerrors.Error, err error) {
	if logg == nil {
		return
	}
	ctx = logg.WithFields(ctx, map[string]any{
		"error":       typed.Message(),
		"error_code":  string(typed.Code()),
		"error_chain": pkgerrors.Chain(err),
	})
	logg.Error(ctx, "request.error", err)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf(`{"level":"error","msg":"failed to encode response","err":"%v"}`, err)
	}
}
