package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/kcwrites/agenthub/internal/agent"
	"github.com/kcwrites/agenthub/internal/chat"
	"github.com/kcwrites/agenthub/internal/convlog"
	"github.com/kcwrites/agenthub/internal/domain"
	"github.com/kcwrites/agenthub/internal/identity"
)

// chatRequest is the request body for the chat endpoints.
type chatRequest struct {
	Message string `json:"message"`
	AgentID string `json:"agent_id"`
}

// HandleChat handles POST /api/chat. It answers in one buffered JSON
// reply and exists as the degraded path for clients that cannot hold an
// event stream open.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	turn, ok := h.beginTurn(w, r)
	if !ok {
		return
	}

	answer, err := h.chat.Respond(r.Context(), turn)
	if err != nil {
		slog.Error("Chat completion failed", "error", err, "user_id", turn.UserID)
		writeError(w, http.StatusInternalServerError, "failed to generate response")
		return
	}

	h.logAssistantMessage(r, turn, answer, 0, false, "")
	writeJSON(w, http.StatusOK, map[string]string{"response": answer})
}

// HandleChatStream handles POST /api/chat/stream. The answer is emitted
// as server-sent events, one JSON object per data line: text_delta
// frames carrying fragments, then a done frame. Failures after the
// stream has started are reported as an error frame since the status
// line is already committed.
func (h *Handler) HandleChatStream(w http.ResponseWriter, r *http.Request) {
	turn, ok := h.beginTurn(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ctx := r.Context()

	type streamEvent struct {
		fragment string
		err      error
	}
	events := make(chan streamEvent)
	go func() {
		defer close(events)
		for fragment, err := range h.chat.Stream(ctx, turn) {
			select {
			case events <- streamEvent{fragment: fragment, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	keepaliveInterval := h.cfg.Stream.KeepaliveInterval
	if keepaliveInterval <= 0 {
		keepaliveInterval = 10 * time.Second
	}
	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	var answer strings.Builder
	chunks := 0

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				if err := writeFrame(w, map[string]string{"type": "done"}); err != nil {
					slog.Warn("failed to write SSE done frame", "error", err)
				}
				flusher.Flush()
				h.logAssistantMessage(r, turn, answer.String(), chunks, false, "")
				return
			}
			if ev.err != nil {
				slog.Error("Chat stream failed", "error", ev.err, "user_id", turn.UserID)
				h.logAssistantMessage(r, turn, answer.String(), chunks, true, ev.err.Error())
				if writeErr := writeFrame(w, map[string]string{"type": "error", "error": ev.err.Error()}); writeErr != nil {
					slog.Warn("failed to write SSE error frame", "error", writeErr)
					return
				}
				flusher.Flush()
				return
			}

			chunks++
			answer.WriteString(ev.fragment)
			if writeErr := writeFrame(w, map[string]string{"type": "text_delta", "content": ev.fragment}); writeErr != nil {
				slog.Warn("failed to write SSE delta frame", "error", writeErr)
				h.logAssistantMessage(r, turn, answer.String(), chunks, true, writeErr.Error())
				return
			}
			flusher.Flush()

		case <-keepalive.C:
			// Comment line per the SSE protocol; clients skip non-data lines.
			if _, err := io.WriteString(w, ": keepalive\n\n"); err != nil {
				slog.Warn("failed to write SSE keepalive", "error", err)
				return
			}
			flusher.Flush()

		case <-ctx.Done():
			slog.Info("Chat stream client disconnected", "user_id", turn.UserID)
			return
		}
	}
}

// HandleChatHistory handles GET /api/chat/history.
func (h *Handler) HandleChatHistory(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	sessionID := identity.SessionIDFromContext(r.Context())

	messages, err := h.chat.History(r.Context(), userID, sessionID)
	if err != nil {
		slog.Error("Failed to load chat history", "error", err, "user_id", userID)
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	if messages == nil {
		messages = []domain.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

// HandleChatReset handles DELETE /api/chat.
func (h *Handler) HandleChatReset(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	sessionID := identity.SessionIDFromContext(r.Context())

	if err := h.chat.Reset(r.Context(), userID, sessionID); err != nil {
		slog.Error("Failed to reset conversation", "error", err, "user_id", userID)
		writeError(w, http.StatusInternalServerError, "failed to reset conversation")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// HandleAgents handles GET /api/agents.
func (h *Handler) HandleAgents(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"agents":  agent.IDs(),
		"default": agent.DefaultID,
	})
}

// beginTurn runs the shared admission checks for the chat endpoints and
// decodes the request into a turn. It writes the error response itself
// and returns ok=false when the request must not proceed.
func (h *Handler) beginTurn(w http.ResponseWriter, r *http.Request) (chat.Turn, bool) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return chat.Turn{}, false
	}
	sessionID := identity.SessionIDFromContext(r.Context())

	if !h.chat.Configured() {
		writeError(w, http.StatusInternalServerError, "assistant is not configured")
		return chat.Turn{}, false
	}

	if !h.rateLimiter.Allow(userID) {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return chat.Turn{}, false
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.Stream.MaxRequestBodySize)

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return chat.Turn{}, false
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return chat.Turn{}, false
	}

	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return chat.Turn{}, false
	}

	turn := chat.Turn{
		UserID:    userID,
		SessionID: sessionID,
		AgentID:   req.AgentID,
		Message:   req.Message,
	}

	slog.Info("Chat request",
		"user_id", userID,
		"session_id", sessionID,
		"agent_id", turn.AgentID,
		"message_length", len(turn.Message),
	)
	h.log.Log(convlog.Event{
		UserID:     userID,
		SessionID:  sessionID,
		Channel:    "chat_http",
		Direction:  "outbound",
		EventType:  "chat_user_message",
		ContentRaw: turn.Message,
		Meta: map[string]any{
			"request_id": chiMiddleware.GetReqID(r.Context()),
			"agent_id":   turn.AgentID,
		},
	})
	return turn, true
}

func (h *Handler) logAssistantMessage(r *http.Request, turn chat.Turn, content string, chunks int, partial bool, streamErrMsg string) {
	h.log.Log(convlog.Event{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		UserID:     turn.UserID,
		SessionID:  turn.SessionID,
		Channel:    "chat_http",
		Direction:  "inbound",
		EventType:  "chat_assistant_message",
		ContentRaw: content,
		Meta: map[string]any{
			"stream_chunks": chunks,
			"partial":       partial,
			"stream_error":  streamErrMsg,
			"request_id":    chiMiddleware.GetReqID(r.Context()),
		},
	})
}

// writeFrame writes one SSE data frame carrying a JSON payload.
func writeFrame(w io.Writer, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
