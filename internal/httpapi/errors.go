package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"replyd/internal/convo"
	"replyd/internal/dispatch"
	"replyd/internal/manager"
	"replyd/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	var he HTTPError
	switch {
	case errors.As(err, &he):
		return he.StatusCode()
	case convo.IsSessionNotFound(err), manager.IsHandleNotFound(err):
		return http.StatusNotFound
	case dispatch.IsSessionBusy(err):
		return http.StatusConflict
	case dispatch.IsInvalidRequest(err):
		return http.StatusBadRequest
	case errors.Is(err, manager.ErrShuttingDown):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// errorReason is the short reason sent on WebSocket error frames.
func errorReason(err error) string {
	switch statusFor(err) {
	case http.StatusNotFound:
		return "session_not_found"
	case http.StatusConflict:
		return "session_busy"
	case http.StatusBadRequest:
		return "invalid_request"
	case http.StatusServiceUnavailable:
		return "shutting_down"
	default:
		return "internal_error"
	}
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger().Error().Err(err).Msg("encode response")
	}
}
