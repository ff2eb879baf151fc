package handler

// RESPONSE HELPERS:
// These functions standardise how we send JSON responses and errors.
//
//   writeJSON(w, http.StatusOK, data)
//   writeError(w, err)
//
// CONSISTENT ERROR FORMAT:
// Every error response from our API has the same shape:
//   {"error": "not_found", "message": "snippet not found with id abc123"}
//
// Validation errors add "field"; quota errors add "code": "LIMIT_REACHED"
// so the front end can show the upgrade prompt.

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/sakif/snippet-vault/internal/apperror"
	"github.com/sakif/snippet-vault/internal/auth"
	"github.com/sakif/snippet-vault/internal/storage"
	"github.com/sakif/snippet-vault/internal/validation"
)

// maxJSONBody caps JSON request bodies. Snippet code is limited to ~100KB,
// so 1MB leaves room for tags, files and escaping.
const maxJSONBody = 1 << 20

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`           // Machine-readable error type (e.g., "not_found")
	Message string `json:"message"`         // Human-readable description
	Field   string `json:"field,omitempty"` // Offending field for validation errors
	Code    string `json:"code,omitempty"`  // e.g. LIMIT_REACHED
}

// writeJSON sends a JSON response with the given status code.
//
// HEADER ORDER MATTERS:
// Headers and status must be set BEFORE writing the body. Once the body
// starts, header changes are silently ignored.
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

// writeError maps a domain error to the appropriate HTTP status code.
//
// ERROR MAPPING:
//
//	ErrValidation    → 400
//	ErrUnauthorized  → 401
//	ErrForbidden     → 403
//	ErrLimitReached  → 403 + code LIMIT_REACHED
//	ErrNotFound      → 404
//	ErrConflict      → 409
//	storage disabled → 503
//	anything else    → 500 with a generic message
//
// The service layer never sees HTTP status codes; this is the only place
// they are decided.
func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrNotConfigured) {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{
			Error:   "unavailable",
			Message: "file uploads are not configured on this server",
		})
		return
	}

	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError
		errorType := "internal_error"

		switch {
		case errors.Is(err, apperror.ErrValidation):
			status = http.StatusBadRequest
			errorType = "validation_error"
		case errors.Is(err, apperror.ErrUnauthorized):
			status = http.StatusUnauthorized
			errorType = "unauthorized"
		case errors.Is(err, apperror.ErrLimitReached):
			status = http.StatusForbidden
			errorType = "limit_reached"
		case errors.Is(err, apperror.ErrForbidden):
			status = http.StatusForbidden
			errorType = "forbidden"
		case errors.Is(err, apperror.ErrNotFound):
			status = http.StatusNotFound
			errorType = "not_found"
		case errors.Is(err, apperror.ErrConflict):
			status = http.StatusConflict
			errorType = "conflict"
		}

		if status != http.StatusInternalServerError {
			writeJSON(w, status, ErrorResponse{
				Error:   errorType,
				Message: appErr.Message,
				Field:   appErr.Field,
				Code:    appErr.Code,
			})
			return
		}
	}

	// NEVER expose internal error details to the client: the raw message
	// might contain SQL, file paths or bucket names.
	slog.Error("internal error", slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}

// decodeJSON reads a size-limited JSON body into dst and runs the struct's
// validate tags. Both failures come back as validation errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperror.ValidationFailed("body", "request body too large")
		}
		return apperror.ValidationFailed("body", "could not read request body")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return apperror.ValidationFailed("body", "invalid JSON body")
	}
	return validation.ValidateStruct(dst)
}

// currentUser returns the authenticated user id. Routes using it sit behind
// auth.RequireAuth, so a missing id is a wiring bug surfaced as 401.
func currentUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("valid authentication required"))
		return "", false
	}
	return userID, true
}
