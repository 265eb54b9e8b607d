package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/sunshineDad/poping/internal/auth"
)

type authHandler struct {
	users  *auth.Store
	tokens *auth.TokenManager
	logger *slog.Logger
}

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenResponse struct {
	Token        string     `json:"token"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	User         *auth.User `json:"user"`
}

const minPasswordLength = 8

func (h *authHandler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "malformed request body")
		return
	}
	if !strings.Contains(req.Email, "@") {
		writeError(w, http.StatusBadRequest, "invalid_email", "a valid email is required")
		return
	}
	if len(req.Password) < minPasswordLength {
		writeError(w, http.StatusBadRequest, "weak_password", "password must be at least 8 characters")
		return
	}

	user, err := h.users.Register(r.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	token, refresh, err := h.issuePair(user)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	h.logger.Info("user registered", "user_id", user.ID)
	writeJSON(w, http.StatusCreated, tokenResponse{Token: token, RefreshToken: refresh, User: user})
}

func (h *authHandler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "malformed request body")
		return
	}

	user, err := h.users.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	token, refresh, err := h.issuePair(user)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{Token: token, RefreshToken: refresh, User: user})
}

// refresh exchanges a valid refresh token for a fresh access token. The
// refresh token itself is returned unchanged; it stays valid until expiry.
func (h *authHandler) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "malformed request body")
		return
	}

	userID, err := h.tokens.VerifyRefresh(req.RefreshToken)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_token", "invalid or expired refresh token")
		return
	}

	user, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	token, err := h.tokens.Issue(user)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{Token: token, RefreshToken: req.RefreshToken, User: user})
}

func (h *authHandler) issuePair(user *auth.User) (token, refresh string, err error) {
	if token, err = h.tokens.Issue(user); err != nil {
		return "", "", err
	}
	if refresh, err = h.tokens.IssueRefresh(user.ID); err != nil {
		return "", "", err
	}
	return token, refresh, nil
}

func (h *authHandler) me(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_token", "authorization required")
		return
	}

	user, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
