package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/growbal/discovery/pkg/queue"
	"github.com/growbal/discovery/pkg/services"
)

// mapServiceError maps service-layer errors to an HTTP status and a
// user-safe message.
func mapServiceError(err error) (int, string) {
	var validErr *services.ValidationError
	if errors.As(err, &validErr) {
		return http.StatusBadRequest, validErr.Error()
	}
	if errors.Is(err, services.ErrNotFound) {
		return http.StatusNotFound, "resource not found"
	}
	if errors.Is(err, services.ErrForbidden) {
		return http.StatusForbidden, "session belongs to another user"
	}
	if errors.Is(err, services.ErrSessionClosed) {
		return http.StatusConflict, "session is no longer active"
	}
	if errors.Is(err, queue.ErrTurnActive) {
		return http.StatusConflict, "a turn is already being processed for this session"
	}
	if errors.Is(err, queue.ErrShuttingDown) {
		return http.StatusServiceUnavailable, "server is shutting down"
	}

	// Unexpected error
	slog.Error("Unexpected service error", "error", err)
	return http.StatusInternalServerError, "internal server error"
}
