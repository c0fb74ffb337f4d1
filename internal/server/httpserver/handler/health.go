package handler

import (
	"net/http"

	"github.com/yndnr/tokgate/internal/infra/buildinfo"
)

// handleHealth handles GET /health. It reports liveness only; storage is
// not probed.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	bi := buildinfo.Get()
	h.writeJSON(w, r, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: bi.Version,
		Commit:  bi.Commit,
		Time:    h.now().UnixMilli(),
	})
}
