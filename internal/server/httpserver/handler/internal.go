package handler

import (
	"net/http"
	"strconv"

	"github.com/yndnr/tokgate/internal/core/domain"
	"github.com/yndnr/tokgate/internal/ratelimit"
)

// handleValidateKey handles POST /api/auth/internal/validate-key.
//
// 204 admits the request and counts it against the developer's window.
// 401 is an unknown, malformed or disabled key; 429 carries Retry-After.
func (h *Handler) handleValidateKey(w http.ResponseWriter, r *http.Request) {
	apiKey := r.Header.Get(HeaderAPIKey)
	if apiKey == "" {
		h.writeError(w, r, domain.ErrInvalidAPIKey.WithDetails("X-API-KEY header is required"))
		return
	}

	adm, err := h.developers.Admit(r.Context(), apiKey)
	if adm != nil {
		h.setRateLimitHeaders(w, adm.Decision)
	}
	if err != nil {
		if domain.IsKind(err, domain.KindRateLimited) && adm != nil {
			retry := adm.Decision.RetryAfter(h.now())
			w.Header().Set("Retry-After", strconv.FormatInt(int64(retry.Seconds()), 10))
		}
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) setRateLimitHeaders(w http.ResponseWriter, d ratelimit.Decision) {
	w.Header().Set(HeaderRateLimitLimit, strconv.FormatInt(d.Limit, 10))
	w.Header().Set(HeaderRateLimitRemaining, strconv.FormatInt(d.Remaining, 10))
	w.Header().Set(HeaderRateLimitReset, strconv.FormatInt(d.ResetAt.Unix(), 10))
}

// handleVerifyToken handles POST /api/auth/internal/verify-token.
func (h *Handler) handleVerifyToken(w http.ResponseWriter, r *http.Request) {
	p, err := h.principal(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, p)
}
