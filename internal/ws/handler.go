package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/kcwrites/agenthub/internal/chat"
	"github.com/kcwrites/agenthub/internal/convlog"
	"github.com/kcwrites/agenthub/internal/identity"
)

// wsMessage is the WebSocket chat message structure, both directions.
// Client to server: type "chat" with content and optional agent_id, or
// "ping". Server to client: "text_delta", "done", "error", "pong".
type wsMessage struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	AgentID string `json:"agent_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Handler handles WebSocket-based chat sessions.
type Handler struct {
	chat          *chat.Service
	sm            *SessionManager
	log           convlog.Logger
	allowedOrigin string
	isDev         bool
}

// NewHandler creates a new WebSocket chat handler.
func NewHandler(chatSvc *chat.Service, sm *SessionManager, logger convlog.Logger, allowedOrigin string, isDev bool) *Handler {
	if logger == nil {
		logger = convlog.Noop{}
	}
	return &Handler{
		chat:          chatSvc,
		sm:            sm,
		log:           logger,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	slog.Info("WebSocket chat connection request", "user_id", userID, "session_id", sessionID, "ip", r.RemoteAddr)

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	h.sm.Register(userID, sessionID, ws)
	defer h.sm.Unregister(userID, sessionID, ws)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	h.readLoop(ctx, ws, userID, sessionID)
	slog.Info("Chat socket session ended", "user_id", userID, "session_id", sessionID)
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

// readLoop processes client messages. Turns run inline, so a socket
// carries one turn at a time; the next chat message is read once the
// previous answer finished streaming.
func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, userID, sessionID string) {
	for {
		_, message, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "user_id", userID)
			} else {
				slog.Warn("WebSocket read error", "error", err, "user_id", userID)
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			if writeErr := h.writeJSON(ws, wsMessage{Type: "error", Error: "invalid message"}); writeErr != nil {
				return
			}
			continue
		}

		switch msg.Type {
		case "chat":
			if strings.TrimSpace(msg.Content) == "" {
				if err := h.writeJSON(ws, wsMessage{Type: "error", Error: "message is required"}); err != nil {
					return
				}
				continue
			}
			if !h.runTurn(ctx, ws, chat.Turn{
				UserID:    userID,
				SessionID: sessionID,
				AgentID:   msg.AgentID,
				Message:   msg.Content,
			}) {
				return
			}
		case "ping":
			if err := h.writeJSON(ws, wsMessage{Type: "pong"}); err != nil {
				slog.Debug("Failed to send pong", "error", err)
				return
			}
		default:
			if err := h.writeJSON(ws, wsMessage{Type: "error", Error: "unknown message type"}); err != nil {
				return
			}
		}
	}
}

// runTurn streams one answer over the socket. Returns false when the
// socket is no longer writable and the session should end.
func (h *Handler) runTurn(ctx context.Context, ws *websocket.Conn, turn chat.Turn) bool {
	if !h.chat.Configured() {
		return h.writeJSON(ws, wsMessage{Type: "error", Error: "assistant is not configured"}) == nil
	}

	h.log.Log(convlog.Event{
		UserID:     turn.UserID,
		SessionID:  turn.SessionID,
		Channel:    "chat_ws",
		Direction:  "outbound",
		EventType:  "chat_user_message",
		ContentRaw: turn.Message,
		Meta:       map[string]any{"agent_id": turn.AgentID},
	})

	var answer strings.Builder
	chunks := 0
	for fragment, err := range h.chat.Stream(ctx, turn) {
		if err != nil {
			slog.Error("Chat socket stream failed", "error", err, "user_id", turn.UserID)
			h.logAssistantMessage(turn, answer.String(), chunks, true, err.Error())
			return h.writeJSON(ws, wsMessage{Type: "error", Error: err.Error()}) == nil
		}
		chunks++
		answer.WriteString(fragment)
		if err := h.writeJSON(ws, wsMessage{Type: "text_delta", Content: fragment}); err != nil {
			slog.Debug("Chat socket write failed", "error", err, "user_id", turn.UserID)
			h.logAssistantMessage(turn, answer.String(), chunks, true, err.Error())
			return false
		}
	}

	h.logAssistantMessage(turn, answer.String(), chunks, false, "")
	return h.writeJSON(ws, wsMessage{Type: "done"}) == nil
}

func (h *Handler) logAssistantMessage(turn chat.Turn, content string, chunks int, partial bool, streamErrMsg string) {
	h.log.Log(convlog.Event{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		UserID:     turn.UserID,
		SessionID:  turn.SessionID,
		Channel:    "chat_ws",
		Direction:  "inbound",
		EventType:  "chat_assistant_message",
		ContentRaw: content,
		Meta: map[string]any{
			"stream_chunks": chunks,
			"partial":       partial,
			"stream_error":  streamErrMsg,
		},
	})
}

func (h *Handler) writeJSON(ws *websocket.Conn, v wsMessage) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return ws.Write(context.Background(), websocket.MessageText, data)
}
