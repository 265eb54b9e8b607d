package api

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/sunshineDad/poping/internal/agent"
)

type agentHandler struct {
	store  *agent.Store
	logger *slog.Logger
}

type agentRequest struct {
	Name          string `json:"name"`
	Description   string `json:"description"`
	SessionConfig string `json:"session_config"`
	Status        string `json:"status"`
	IsPublic      bool   `json:"is_public"`
}

func (h *agentHandler) create(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())

	var req agentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "malformed request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "missing_name", "agent name is required")
		return
	}

	a, err := h.store.Create(r.Context(), userID, req.Name, req.Description, req.SessionConfig, req.IsPublic)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (h *agentHandler) list(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())

	agents, err := h.store.ListVisible(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": agents})
}

func (h *agentHandler) get(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "agent id must be a UUID")
		return
	}

	a, err := h.store.Get(r.Context(), id, userID)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *agentHandler) update(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "agent id must be a UUID")
		return
	}

	var req agentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "malformed request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "missing_name", "agent name is required")
		return
	}
	status := req.Status
	if status == "" {
		status = agent.StatusActive
	}
	if status != agent.StatusActive && status != agent.StatusInactive {
		writeError(w, http.StatusBadRequest, "invalid_status", "status must be active or inactive")
		return
	}

	a, err := h.store.Update(r.Context(), id, userID, req.Name, req.Description, req.SessionConfig, status, req.IsPublic)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *agentHandler) delete(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "agent id must be a UUID")
		return
	}

	if err := h.store.Delete(r.Context(), id, userID); err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
