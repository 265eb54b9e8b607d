package api

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"github.com/sunshineDad/poping/internal/catalog"
)

type providerHandler struct {
	store   *catalog.Store
	checker *catalog.Checker
	logger  *slog.Logger
}

func (h *providerHandler) list(w http.ResponseWriter, r *http.Request) {
	providers, err := h.store.Providers(r.Context())
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"providers": providers})
}

func (h *providerHandler) listConfigs(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())

	configs, err := h.store.UserConfigs(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"configs": configs})
}

type saveConfigRequest struct {
	ProviderID uuid.UUID `json:"provider_id"`
	APIURL     string    `json:"api_url"`
	APIKey     string    `json:"api_key"`
	ExtConfig  string    `json:"ext_config"`
}

func (h *providerHandler) saveConfig(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())

	var req saveConfigRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "malformed request body")
		return
	}
	if req.ProviderID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "missing_provider", "provider_id is required")
		return
	}
	if _, err := url.ParseRequestURI(req.APIURL); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_api_url", "api_url must be a valid URL")
		return
	}
	if req.APIKey == "" {
		writeError(w, http.StatusBadRequest, "missing_api_key", "api_key is required")
		return
	}

	cfg, err := h.store.SaveConfig(r.Context(), userID, req.ProviderID, req.APIURL, req.APIKey, req.ExtConfig)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (h *providerHandler) deleteConfig(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())
	providerID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "provider id must be a UUID")
		return
	}

	if err := h.store.DeleteConfig(r.Context(), userID, providerID); err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// testConfig probes the provider with the stored credentials. Unreachable
// providers are a 200 with success=false, not an error.
func (h *providerHandler) testConfig(w http.ResponseWriter, r *http.Request) {
	cfg, ok := h.loadConfig(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.checker.Ping(r.Context(), cfg))
}

func (h *providerHandler) models(w http.ResponseWriter, r *http.Request) {
	cfg, ok := h.loadConfig(w, r)
	if !ok {
		return
	}

	models, err := h.checker.Models(r.Context(), cfg)
	if err != nil {
		h.logger.Warn("listing provider models", "provider", cfg.ProviderName, "error", err)
		writeError(w, http.StatusBadGateway, "provider_unreachable", "could not fetch model listing")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": models})
}

func (h *providerHandler) loadConfig(w http.ResponseWriter, r *http.Request) (*catalog.Config, bool) {
	userID, _ := userIDFromContext(r.Context())
	providerID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "provider id must be a UUID")
		return nil, false
	}

	cfg, err := h.store.Config(r.Context(), userID, providerID)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return nil, false
	}
	return cfg, true
}
