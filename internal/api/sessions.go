package api

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/sunshineDad/poping/internal/chat"
	"github.com/sunshineDad/poping/internal/session"
)

type sessionHandler struct {
	service *chat.Service
	store   *session.Store
	logger  *slog.Logger
}

func (h *sessionHandler) list(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())

	sessions, err := h.service.Sessions(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (h *sessionHandler) get(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "session id must be a UUID")
		return
	}

	sess, err := h.service.Session(r.Context(), id, userID)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *sessionHandler) messages(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "session id must be a UUID")
		return
	}

	messages, err := h.service.Messages(r.Context(), id, userID)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

type updateSessionRequest struct {
	Title  string `json:"title,omitempty"`
	Status string `json:"status,omitempty"`
}

// update renames a session and/or transitions its status.
func (h *sessionHandler) update(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "session id must be a UUID")
		return
	}

	var req updateSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "malformed request body")
		return
	}
	if req.Title == "" && req.Status == "" {
		writeError(w, http.StatusBadRequest, "empty_update", "title or status is required")
		return
	}

	if req.Status != "" {
		switch req.Status {
		case session.StatusActive, session.StatusEnded, session.StatusArchived:
		default:
			writeError(w, http.StatusBadRequest, "invalid_status", "status must be active, ended or archived")
			return
		}
		if err := h.store.UpdateStatus(r.Context(), id, userID, req.Status); err != nil {
			writeDomainError(w, err, h.logger)
			return
		}
	}
	if req.Title != "" {
		if err := h.store.UpdateTitle(r.Context(), id, userID, req.Title); err != nil {
			writeDomainError(w, err, h.logger)
			return
		}
	}

	sess, err := h.service.Session(r.Context(), id, userID)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *sessionHandler) delete(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "session id must be a UUID")
		return
	}

	if err := h.service.DeleteSession(r.Context(), id, userID); err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
