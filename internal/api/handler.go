// Package api provides the HTTP surface of the agent hub: chat
// completion endpoints (buffered and SSE), document extraction, and
// health checks.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kcwrites/agenthub/internal/chat"
	"github.com/kcwrites/agenthub/internal/config"
	"github.com/kcwrites/agenthub/internal/convlog"
	"github.com/kcwrites/agenthub/internal/extract"
	"github.com/kcwrites/agenthub/internal/store"
)

// Handler handles agent hub HTTP requests.
type Handler struct {
	chat        *chat.Service
	extractor   *extract.Service
	repo        store.Repository
	rateLimiter *RateLimiter
	log         convlog.Logger
	cfg         *config.Config
}

// NewHandler creates the API handler.
func NewHandler(chatSvc *chat.Service, extractor *extract.Service, repo store.Repository, logger convlog.Logger, cfg *config.Config) *Handler {
	if logger == nil {
		logger = convlog.Noop{}
	}
	return &Handler{
		chat:        chatSvc,
		extractor:   extractor,
		repo:        repo,
		rateLimiter: NewRateLimiter(cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.WindowDuration),
		log:         logger,
		cfg:         cfg,
	}
}

// RegisterRoutes registers all API routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.HandleHealth)
		r.Get("/agents", h.HandleAgents)

		r.Route("/chat", func(r chi.Router) {
			r.Post("/", h.HandleChat)
			r.Post("/stream", h.HandleChatStream)
			r.Get("/history", h.HandleChatHistory)
			r.Delete("/", h.HandleChatReset)
		})

		r.Post("/extractions", h.HandleExtract)
		r.Get("/extractions", h.HandleListExtractions)
		r.Post("/generate-label", h.HandleGenerateLabel)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
