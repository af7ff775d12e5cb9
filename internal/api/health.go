package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// HandleHealth handles GET /api/health. The database is pinged with a
// short deadline so a wedged connection surfaces as unhealthy rather
// than hanging the probe.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.repo.Ping(ctx); err != nil {
		slog.Error("Health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  "database unreachable",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"configured": h.chat.Configured(),
	})
}
