package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kcwrites/agenthub/internal/domain"
	"github.com/kcwrites/agenthub/internal/identity"
)

// extractRequest is the request body for POST /api/extractions. Text is the
// already-decoded document content; binary decoding happens client side.
type extractRequest struct {
	Text     string `json:"text"`
	FileName string `json:"file_name"`
	FileType string `json:"file_type"`
}

// HandleExtract handles POST /api/extractions.
func (h *Handler) HandleExtract(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if !h.chat.Configured() {
		writeError(w, http.StatusInternalServerError, "assistant is not configured")
		return
	}
	if !h.rateLimiter.Allow(userID) {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.Stream.MaxRequestBodySize)

	var req extractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	extraction, err := h.extractor.Extract(r.Context(), req.Text, req.FileName, req.FileType)
	if err != nil {
		slog.Error("Document extraction failed", "error", err, "user_id", userID, "file_name", req.FileName)
		writeError(w, http.StatusInternalServerError, "failed to extract document data")
		return
	}

	if err := h.repo.InsertExtraction(r.Context(), extraction); err != nil {
		slog.Error("Failed to store extraction", "error", err, "extraction_id", extraction.ID)
		writeError(w, http.StatusInternalServerError, "failed to store extraction")
		return
	}

	writeJSON(w, http.StatusOK, extraction)
}

// HandleListExtractions handles GET /api/extractions.
func (h *Handler) HandleListExtractions(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	extractions, err := h.repo.ListExtractions(r.Context())
	if err != nil {
		slog.Error("Failed to list extractions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list extractions")
		return
	}
	if extractions == nil {
		extractions = []*domain.Extraction{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"extractions": extractions})
}

// HandleGenerateLabel handles POST /api/generate-label. The body is the
// extraction record to render, typically one previously returned by
// HandleExtract.
func (h *Handler) HandleGenerateLabel(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if !h.chat.Configured() {
		writeError(w, http.StatusInternalServerError, "assistant is not configured")
		return
	}
	if !h.rateLimiter.Allow(userID) {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.Stream.MaxRequestBodySize)

	var extraction domain.Extraction
	if err := json.NewDecoder(r.Body).Decode(&extraction); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	label, err := h.extractor.GenerateLabel(r.Context(), &extraction)
	if err != nil {
		slog.Error("Label generation failed", "error", err, "user_id", userID)
		writeError(w, http.StatusInternalServerError, "failed to generate label")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"label": label})
}
