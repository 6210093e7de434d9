package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/devicesync-core/internal/auth"
	"github.com/nerrad567/devicesync-core/internal/device"
	"github.com/nerrad567/devicesync-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/devicesync-core/internal/reconciler"
	"github.com/nerrad567/devicesync-core/internal/registration"
	"github.com/nerrad567/devicesync-core/internal/store"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  any    `json:"detail,omitempty"`
}

// Common error codes.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeUnauthorized = "unauthorised"
	ErrCodeConflict     = "conflict"
	ErrCodePartial      = "partial_registration"
	ErrCodeInternal     = "internal_error"
	ErrCodeValidation   = "validation_error"
	ErrCodeUnavailable  = "unavailable"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// partialDetail is the detail of a 207 response.
type partialDetail struct {
	Serial    string   `json:"serial"`
	Succeeded []string `json:"succeeded"`
	Failed    []string `json:"failed"`
}

// writeServiceError maps a service error to its HTTP status.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var partial *registration.PartialError

	switch {
	case errors.As(err, &partial):
		writeJSON(w, http.StatusMultiStatus, Error{
			Status:  http.StatusMultiStatus,
			Code:    ErrCodePartial,
			Message: err.Error(),
			Detail:  partialDetail{Serial: partial.Serial, Succeeded: partial.Succeeded, Failed: partial.Failed},
		})
	case errors.Is(err, auth.ErrUnauthenticated),
		errors.Is(err, registration.ErrUserRequired),
		errors.Is(err, reconciler.ErrUserRequired):
		writeUnauthorized(w, "authentication required")
	case errors.Is(err, registration.ErrDeviceNotFound),
		errors.Is(err, reconciler.ErrDeviceNotFound),
		errors.Is(err, registration.ErrUnknownSerial):
		writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, registration.ErrAlreadyInUserAccount),
		errors.Is(err, registration.ErrAlreadyClaimed),
		errors.Is(err, registration.ErrRegistrationInProgress):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, registration.ErrInvalidDashboard),
		errors.Is(err, reconciler.ErrInvalidCommand),
		errors.Is(err, device.ErrInvalidName),
		errors.Is(err, device.ErrInvalidKey),
		errors.Is(err, device.ErrInvalidState):
		writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, err.Error())
	case errors.Is(err, reconciler.ErrPublishFailed),
		errors.Is(err, mqtt.ErrNotConnected),
		errors.Is(err, mqtt.ErrConnectionFailed),
		errors.Is(err, store.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
	default:
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
			"request_id", r.Context().Value(ctxKeyRequestID),
		)
		writeInternalError(w, "internal server error")
	}
}
