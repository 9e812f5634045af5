package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/aretw0/parley/internal/sanitize"
	"github.com/aretw0/parley/pkg/conversation"
	"github.com/aretw0/parley/pkg/domain"
)

// ErrorResponse is the body of every failed turn.
type ErrorResponse struct {
	Error string `json:"error"`
	// Retryable marks a generation failure. SessionState then holds the
	// committed turn, which can be sent to the retry endpoint.
	Retryable    bool                 `json:"retryable"`
	SessionState *domain.SessionState `json:"sessionState,omitempty"`
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrGenerationFailure):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrVignetteNotFound), errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrSessionEnded), errors.Is(err, conversation.ErrTranscriptStarted):
		return http.StatusConflict
	case errors.Is(err, sanitize.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrInvalidResumeState),
		errors.Is(err, domain.ErrInvalidDifficulty),
		errors.Is(err, domain.ErrEmptyUtterance),
		errors.Is(err, domain.ErrNoPendingReply),
		errors.Is(err, domain.ErrUnknownModel),
		errors.Is(err, sanitize.ErrInvalidUTF8):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError answers a failed operation. state is the snapshot committed
// before the failure, if any.
func writeError(w http.ResponseWriter, op string, err error, state *domain.SessionState) {
	status := statusFor(err)
	resp := ErrorResponse{Error: err.Error()}
	if status == http.StatusServiceUnavailable {
		resp.Retryable = true
		resp.SessionState = state
	}
	if status >= http.StatusInternalServerError {
		slog.Error(op+" failed", "error", err, "status", status)
	} else {
		slog.Warn(op+" rejected", "error", err, "status", status)
	}
	writeJSON(w, status, resp)
}
