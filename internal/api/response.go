package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sunshineDad/poping/internal/agent"
	"github.com/sunshineDad/poping/internal/auth"
	"github.com/sunshineDad/poping/internal/catalog"
	"github.com/sunshineDad/poping/internal/chat"
	"github.com/sunshineDad/poping/internal/dataset"
	"github.com/sunshineDad/poping/internal/session"
)

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// writeJSON writes a JSON response with the given status code.
// Buffer-first: headers are only sent after successful encoding, so an
// encoding failure can still produce a proper 500.
func writeJSON(w http.ResponseWriter, status int, data any) {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		// Client disconnects are common and expected.
		slog.Debug("failed to write response body", "error", err)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}

// writeDomainError maps domain sentinel errors onto HTTP statuses. Unknown
// errors become opaque 500s; the detail stays in the logs.
func writeDomainError(w http.ResponseWriter, err error, logger *slog.Logger) {
	switch {
	case errors.Is(err, session.ErrNotFound),
		errors.Is(err, agent.ErrNotFound),
		errors.Is(err, dataset.ErrNotFound),
		errors.Is(err, catalog.ErrUnknownProvider),
		errors.Is(err, catalog.ErrConfigNotFound),
		errors.Is(err, auth.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "not_found", "resource not found")

	case errors.Is(err, session.ErrForbidden),
		errors.Is(err, agent.ErrForbidden),
		errors.Is(err, dataset.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", "resource not accessible")

	case errors.Is(err, agent.ErrInactive):
		writeError(w, http.StatusConflict, "agent_inactive", "agent is inactive")

	case errors.Is(err, chat.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, "empty_message", "message must not be empty")

	case errors.Is(err, dataset.ErrEmptyFile):
		writeError(w, http.StatusBadRequest, "empty_file", "uploaded file is empty")

	case errors.Is(err, auth.ErrEmailTaken):
		writeError(w, http.StatusConflict, "email_taken", "email already registered")

	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid email or password")

	default:
		logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

// decodeJSON parses a request body into dst with unknown fields rejected.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	return nil
}
