package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dontdude/jobstream/internal/domain"
)

// StatusFor maps queue errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, domain.ErrDuplicateJob), errors.Is(err, domain.ErrIsRunning):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNotQueued):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidJob):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrAppendFailed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// rejectReason labels refused operations in metrics.
func rejectReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrDuplicateJob):
		return "duplicate"
	case errors.Is(err, domain.ErrIsRunning):
		return "running"
	case errors.Is(err, domain.ErrNotQueued):
		return "not_queued"
	case errors.Is(err, domain.ErrInvalidJob):
		return "invalid"
	default:
		return "error"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError hides internal error details behind the status text.
func writeError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		msg = http.StatusText(status)
	}
	writeJSON(w, status, map[string]string{"error": msg})
}
