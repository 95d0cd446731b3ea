package handler

// RESPONSE HELPERS:
// Every handler answers through writeJSON or writeError, so every error
// body has the same shape:
//
//	{"error": "not_found", "message": "post not found with id abc123"}
//
// The "error" field is machine-readable, "message" is meant for people.

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/sakif/postboard/internal/apperror"
)

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`   // machine-readable kind, e.g. "not_found"
	Message string `json:"message"` // human-readable description
}

// MessageResponse is the body of endpoints that only confirm an action.
type MessageResponse struct {
	Message string `json:"message"`
}

// writeJSON sends data as JSON with the given status code. Headers must be
// set before WriteHeader, which Encode would otherwise trigger.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to an HTTP status and sends it.
//
//	ErrValidation         → 400 validation_error
//	ErrConflict           → 400 conflict
//	ErrInvalidCredentials → 400 invalid_credentials
//	ErrUnauthorized       → 401 unauthorized
//	ErrNotFound           → 404 not_found
//	anything else         → 500 internal_error
//
// Internal errors are logged with full detail and answered with a generic
// message; the raw error may contain SQL or file paths.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError
		errorType := "internal_error"

		switch {
		case errors.Is(err, apperror.ErrValidation):
			status = http.StatusBadRequest
			errorType = "validation_error"
		case errors.Is(err, apperror.ErrConflict):
			status = http.StatusBadRequest
			errorType = "conflict"
		case errors.Is(err, apperror.ErrInvalidCredentials):
			status = http.StatusBadRequest
			errorType = "invalid_credentials"
		case errors.Is(err, apperror.ErrUnauthorized):
			status = http.StatusUnauthorized
			errorType = "unauthorized"
		case errors.Is(err, apperror.ErrNotFound):
			status = http.StatusNotFound
			errorType = "not_found"
		}

		if status != http.StatusInternalServerError {
			writeJSON(w, status, ErrorResponse{
				Error:   errorType,
				Message: appErr.Message,
			})
			return
		}
	}

	logger.Error("request failed",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "Server error",
	})
}

// decodeJSON reads a JSON request body into dst. An empty body leaves dst
// untouched so the service reports the missing fields; a malformed body is
// a validation error.
func decodeJSON(r *http.Request, dst any) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err != nil && !errors.Is(err, io.EOF) {
		return apperror.ValidationFailed("", "Invalid request body")
	}
	return nil
}
