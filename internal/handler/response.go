package handler

// Every error response has the same shape:
//
//	{"error": "not_found", "message": "class not found with id abc123"}
//
// so clients can read the kind of failure without parsing status codes.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sakif/classplanner/internal/apperror"
	"github.com/sakif/classplanner/internal/auth"
	"github.com/sakif/classplanner/internal/model"
)

// maxBodyBytes bounds request bodies; every payload here is a small form.
const maxBodyBytes = 1 << 20

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// AccountResolver turns the session's account id into an account.
type AccountResolver interface {
	Account(ctx context.Context, id int64) (*model.Account, error)
}

// writeJSON sets headers, then status, then the body. Nothing written after
// the status reaches the client as a header.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error onto a status code. errors.Is walks the
// wrap chain, so a service error wrapped several times still maps.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		// Never echo internal errors: they can carry queries and paths.
		logger.Error("request failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "An internal error occurred",
		})
		return
	}

	status, kind := http.StatusInternalServerError, "internal_error"
	switch {
	case errors.Is(err, apperror.ErrValidation):
		status, kind = http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrInvalidToken):
		status, kind = http.StatusBadRequest, "invalid_token"
	case errors.Is(err, apperror.ErrUnauthorized):
		status, kind = http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, apperror.ErrForbidden):
		status, kind = http.StatusForbidden, "forbidden"
	case errors.Is(err, apperror.ErrNotFound):
		status, kind = http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrConflict):
		status, kind = http.StatusConflict, "conflict"
	}

	writeJSON(w, status, ErrorResponse{Error: kind, Message: appErr.Message, Field: appErr.Field})
}

// decodeJSON reads a bounded JSON body into dst. Malformed bodies are
// validation errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		msg := err.Error()
		var syntax *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		switch {
		case errors.As(err, &syntax):
			msg = fmt.Sprintf("malformed JSON at offset %d", syntax.Offset)
		case errors.As(err, &typeErr):
			msg = fmt.Sprintf("%s has the wrong type", typeErr.Field)
		case strings.HasPrefix(msg, "json: unknown field"):
			msg = strings.TrimPrefix(msg, "json: ")
		}
		return apperror.ValidationFailed("body", msg)
	}
	return nil
}

// actor resolves the acting account from the session middleware's context
// value. Requests without a session act as the anonymous account.
func actor(r *http.Request, accounts AccountResolver) (*model.Account, error) {
	id, _ := auth.AccountIDFromContext(r.Context())
	return accounts.Account(r.Context(), id)
}
