package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/remotelink-core/internal/auth"
	"github.com/nerrad567/remotelink-core/internal/device"
)

// Error represents a structured error response.
type Error struct {
	Status   int    `json:"status"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	DeviceID string `json:"device_id,omitempty"`
	Field    string `json:"field,omitempty"`
}

// Error codes.
const (
	ErrCodeBadRequest        = "bad_request"
	ErrCodeValidation        = "validation_error"
	ErrCodeNotFound          = "not_found"
	ErrCodeConflict          = "conflict"
	ErrCodeNotPaired         = "not_paired"
	ErrCodeOffline           = "offline"
	ErrCodeInvalidCredential = "invalid_credential"
	ErrCodeTimeout           = "timeout"
	ErrCodeUpstream          = "upstream_error"
	ErrCodeUnauthorized      = "unauthorised"
	ErrCodeForbidden         = "forbidden"
	ErrCodeInternal          = "internal_error"
)

// errorMapping is the HTTP rendering of one error kind.
type errorMapping struct {
	status  int
	code    string
	message string
}

var kindMappings = map[error]errorMapping{
	device.ErrValidation:        {http.StatusBadRequest, ErrCodeValidation, "invalid request"},
	device.ErrInvalidCredential: {http.StatusForbidden, ErrCodeInvalidCredential, "invalid PIN"},
	device.ErrNotFound:          {http.StatusNotFound, ErrCodeNotFound, "device not found"},
	device.ErrConflict:          {http.StatusConflict, ErrCodeConflict, "device is not in a valid state for this operation"},
	device.ErrNotPaired:         {http.StatusConflict, ErrCodeNotPaired, "device is not paired"},
	device.ErrOffline:           {http.StatusServiceUnavailable, ErrCodeOffline, "device is offline"},
	device.ErrTimeout:           {http.StatusGatewayTimeout, ErrCodeTimeout, "device did not respond in time"},
	device.ErrUpstream:          {http.StatusBadGateway, ErrCodeUpstream, "device transport failed"},
}

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

// writeForbidden writes a 403 error response.
func writeForbidden(w http.ResponseWriter, message string) {
	writeError(w, http.StatusForbidden, ErrCodeForbidden, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeDeviceError renders a session error from any component. Errors
// outside the taxonomy become a 500 without leaking their text.
func (s *Server) writeDeviceError(w http.ResponseWriter, r *http.Request, err error) {
	m, ok := kindMappings[device.KindOf(err)]
	if !ok {
		s.logger.Error("unclassified error",
			"error", err,
			"path", r.URL.Path,
			"request_id", r.Context().Value(ctxKeyRequestID),
		)
		writeInternalError(w, "internal server error")
		return
	}

	resp := Error{Status: m.status, Code: m.code, Message: m.message}
	var derr *device.Error
	if errors.As(err, &derr) {
		resp.DeviceID = derr.DeviceID
		resp.Field = derr.Field
		if derr.Kind == device.ErrValidation {
			resp.Message = validationMessage(derr)
		}
	}
	if m.status >= http.StatusInternalServerError {
		s.logger.Warn("device operation failed", "error", err, "path", r.URL.Path)
	}
	writeJSON(w, m.status, resp)
}

func validationMessage(e *device.Error) string {
	switch {
	case e.Field != "" && e.Detail != "":
		return e.Field + ": " + e.Detail
	case e.Detail != "":
		return e.Detail
	case e.Field != "":
		return e.Field + " is invalid"
	}
	return "invalid request"
}

// writeAuthError renders an entitlement gate failure.
func writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrNotEntitled):
		writeForbidden(w, "an active subscription is required")
	case errors.Is(err, auth.ErrTokenMissing):
		writeUnauthorized(w, "bearer token required")
	default:
		writeUnauthorized(w, "invalid or expired token")
	}
}
