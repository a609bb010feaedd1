// Package httpjson writes JSON responses and maps gateway errors to
// the client-facing envelope {error, message, details, status_code}.
package httpjson

import (
	"encoding/json"
	"net/http"

	"github.com/dalemusser/esiagate/internal/app/system/gwerr"
	"go.uber.org/zap"
)

// Write encodes v as JSON with the given status code.
func Write(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// envelope is the error body returned to API clients.
type envelope struct {
	Error      string         `json:"error"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	StatusCode int            `json:"status_code"`
}

// WriteError maps err to the JSON error envelope. Internal errors are
// logged with full context and sanitized before leaving the process.
func WriteError(w http.ResponseWriter, logger *zap.Logger, err error) {
	if e, ok := gwerr.As(err); ok {
		status := e.HTTPStatus()
		if e.Kind == gwerr.KindInternal {
			logger.Error("internal error", zap.Error(err))
			Write(w, status, envelope{
				Error:      e.Kind.String(),
				Message:    "unexpected error while processing the request",
				StatusCode: status,
			})
			return
		}
		Write(w, status, envelope{
			Error:      e.Kind.String(),
			Message:    e.Message,
			Details:    e.Details,
			StatusCode: status,
		})
		return
	}

	logger.Error("unhandled error", zap.Error(err))
	Write(w, http.StatusInternalServerError, envelope{
		Error:      "internal_error",
		Message:    "unexpected error while processing the request",
		StatusCode: http.StatusInternalServerError,
	})
}
