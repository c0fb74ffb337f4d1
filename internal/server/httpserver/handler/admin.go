package handler

import (
	"net/http"

	"github.com/yndnr/tokgate/internal/core/domain"
)

// handleCreateDeveloper handles POST /api/admin/developers.
func (h *Handler) handleCreateDeveloper(w http.ResponseWriter, r *http.Request) {
	var req CreateDeveloperRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	dev, creds, err := h.developers.Register(r.Context(), req.AppID, req.RateLimit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	h.writeJSON(w, r, http.StatusCreated, CreateDeveloperResponse{
		Developer:   dev.View(),
		Credentials: *creds,
	})
}

// handleListDevelopers handles GET /api/admin/developers.
func (h *Handler) handleListDevelopers(w http.ResponseWriter, r *http.Request) {
	devs, err := h.developers.List(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if devs == nil {
		devs = []domain.DeveloperView{}
	}
	h.writeJSON(w, r, http.StatusOK, ListDevelopersResponse{Developers: devs})
}

// handleSetDeveloperActive handles the disable and enable endpoints.
func (h *Handler) handleSetDeveloperActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if err := h.developers.SetActive(r.Context(), id, active); err != nil {
			h.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleListUserSessions handles GET /api/admin/users/{id}/sessions.
func (h *Handler) handleListUserSessions(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	sessions, err := h.tokens.ListSessions(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []domain.SessionView{}
	}
	h.writeJSON(w, r, http.StatusOK, ListSessionsResponse{UserID: userID, Sessions: sessions})
}

// handleRevokeUser handles POST /api/admin/users/{id}/revoke-all.
func (h *Handler) handleRevokeUser(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	n, err := h.revocation.RevokeAllForUser(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, RevokeAllResponse{UserID: userID, Revoked: n})
}

// handleRevokeSession handles POST /api/admin/sessions/{id}/revoke.
func (h *Handler) handleRevokeSession(w http.ResponseWriter, r *http.Request) {
	if err := h.revocation.RevokeSession(r.Context(), r.PathValue("id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
