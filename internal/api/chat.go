package api

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/sunshineDad/poping/internal/chat"
)

type chatHandler struct {
	service *chat.Service
	logger  *slog.Logger
}

type sendMessageRequest struct {
	AgentID   string         `json:"agent_id"`
	SessionID string         `json:"session_id,omitempty"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context,omitempty"`
}

func (h *chatHandler) send(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())

	var req sendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "malformed request body")
		return
	}

	agentID, err := uuid.Parse(req.AgentID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_agent_id", "agent_id must be a UUID")
		return
	}

	sendReq := chat.SendRequest{
		AgentID: agentID,
		Message: req.Message,
		Context: req.Context,
	}
	if req.SessionID != "" {
		sessionID, err := uuid.Parse(req.SessionID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_session_id", "session_id must be a UUID")
			return
		}
		sendReq.SessionID = &sessionID
	}

	result, err := h.service.SendMessage(r.Context(), userID, sendReq)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
