package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tgpanel/core/internal/command"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Outcome string `json:"outcome,omitempty"`
}

// Common error codes.
const (
	ErrCodeBadRequest    = "bad_request"
	ErrCodeNotFound      = "not_found"
	ErrCodeUnauthorized  = "unauthorised"
	ErrCodeForbidden     = "forbidden"
	ErrCodeConflict      = "conflict"
	ErrCodeInternal      = "internal_error"
	ErrCodeValidation    = "validation_error"
	ErrCodeRejected      = "rejected"
	ErrCodeTimeout       = "device_timeout"
	ErrCodeUnavailable   = "transport_unavailable"
	ErrCodeSuperseded    = "superseded"
	ErrCodeClientClosed  = "client_closed_request"
	ErrCodeNotConfigured = "not_configured"
)

// StatusClientClosedRequest is the non-standard status logged when the
// client went away before the device answered.
const StatusClientClosedRequest = 499

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

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

func writeForbidden(w http.ResponseWriter, message string) {
	writeError(w, http.StatusForbidden, ErrCodeForbidden, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// commandStatus maps a command error onto an HTTP status and error code.
func commandStatus(err error) (int, string) {
	switch {
	case errors.Is(err, command.ErrInvalidArgument):
		return http.StatusBadRequest, ErrCodeValidation
	case errors.Is(err, command.ErrRejected):
		return http.StatusBadRequest, ErrCodeRejected
	case errors.Is(err, command.ErrDeviceNotFound):
		return http.StatusNotFound, ErrCodeNotFound
	case errors.Is(err, command.ErrAlreadyPaired):
		return http.StatusConflict, ErrCodeConflict
	case errors.Is(err, command.ErrTimeout):
		return http.StatusGatewayTimeout, ErrCodeTimeout
	case errors.Is(err, command.ErrTransportUnavailable):
		return http.StatusServiceUnavailable, ErrCodeUnavailable
	case errors.Is(err, command.ErrSuperseded):
		return http.StatusConflict, ErrCodeSuperseded
	case errors.Is(err, command.ErrCancelled):
		return StatusClientClosedRequest, ErrCodeClientClosed
	default:
		return http.StatusInternalServerError, ErrCodeInternal
	}
}

// commandMessage is the client-facing text for a command error. Device
// refusals carry the device's own message.
func commandMessage(err error) string {
	var rej *command.RejectedError
	if errors.As(err, &rej) && rej.Message != "" {
		return rej.Message
	}
	switch {
	case errors.Is(err, command.ErrTimeout):
		return "device did not respond"
	case errors.Is(err, command.ErrTransportUnavailable):
		return "device bus unavailable, try again"
	case errors.Is(err, command.ErrSuperseded):
		return "request replaced by a newer one"
	case errors.Is(err, command.ErrDeviceNotFound):
		return "device not found"
	case errors.Is(err, command.ErrAlreadyPaired):
		return "device is already paired"
	case errors.Is(err, command.ErrCancelled):
		return "request cancelled"
	case errors.Is(err, command.ErrInvalidArgument), errors.Is(err, command.ErrRejected):
		return err.Error()
	default:
		return "command failed"
	}
}

// writeCommandError writes a command failure with its outcome attached.
func (s *Server) writeCommandError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := commandStatus(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("device command failed",
			"error", err,
			"path", r.URL.Path,
			"request_id", r.Context().Value(ctxKeyRequestID),
		)
	}
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: commandMessage(err),
		Outcome: string(command.OutcomeOf(err)),
	})
}
