package handler

import (
	"net/http"

	"github.com/yndnr/tokgate/internal/core/domain"
)

// handleRegister handles POST /api/auth/register.
func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	user, err := h.identity.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusCreated, user.View())
}

// handleLogin handles POST /api/auth/login.
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	pair, err := h.identity.Login(r.Context(), req.Email, req.Password,
		domain.TruncateDevice(r.UserAgent()), ClientIP(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, pair)
}

// handleRefresh handles POST /api/auth/refresh.
func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.RefreshToken == "" {
		h.writeError(w, r, domain.ErrTokenInvalid.WithDetails("refreshToken is required"))
		return
	}
	pair, err := h.tokens.Refresh(r.Context(), req.RefreshToken,
		domain.TruncateDevice(r.UserAgent()), ClientIP(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, pair)
}

// handleLogout handles POST /api/auth/logout.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	p, err := h.principal(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.revocation.Logout(r.Context(), p); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleLogoutAll handles POST /api/auth/logout-all.
func (h *Handler) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	p, err := h.principal(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if _, err := h.revocation.LogoutAll(r.Context(), p); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRotateKey handles POST /api/auth/developer/rotate-key.
func (h *Handler) handleRotateKey(w http.ResponseWriter, r *http.Request) {
	var req RotateKeyRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	apiKey, dev, err := h.developers.RotateKey(r.Context(), req.ClientID, req.ClientSecret)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	h.writeJSON(w, r, http.StatusOK, RotateKeyResponse{
		APIKey:     apiKey,
		APIKeyHint: dev.APIKeyHint,
	})
}
