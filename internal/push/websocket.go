package push

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ashureev/pjsk-cards/internal/command"
	"github.com/ashureev/pjsk-cards/internal/domain"
	"github.com/ashureev/pjsk-cards/internal/identity"
	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// Commander runs one chat line for an identity.
type Commander interface {
	Handle(ctx context.Context, id domain.Identity, line string) (command.Reply, error)
}

// WebSocketHandler upgrades card feed requests and reads commands from the
// client.
type WebSocketHandler struct {
	hub           *Hub
	commands      Commander
	allowedOrigin string
	isDev         bool
}

// NewWebSocketHandler creates a new WebSocket handler. commands may be nil
// for a read-only feed.
func NewWebSocketHandler(hub *Hub, commands Commander, allowedOrigin string, isDev bool) *WebSocketHandler {
	return &WebSocketHandler{
		hub:           hub,
		commands:      commands,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// wsMessage represents an inbound WebSocket message.
type wsMessage struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ServeHTTP implements http.Handler for WebSocket upgrade. The identity
// must already be in the request context.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, ok := identity.FromContext(r.Context())
	if !ok {
		http.Error(w, "identity required", http.StatusBadRequest)
		return
	}
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "platform", id.Platform, "conversation", id.Conversation)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "feed ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	connID := uuid.NewString()
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	h.hub.Register(ctx, id, connID, ws)
	defer h.hub.Unregister(id, connID, ws)

	h.inputLoop(ctx, ws, id)
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" || h.allowedOrigin == "" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func (h *WebSocketHandler) inputLoop(ctx context.Context, ws *websocket.Conn, id domain.Identity) {
	for {
		_, message, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || ctx.Err() != nil {
				slog.Debug("WebSocket closed by client", "platform", id.Platform, "conversation", id.Conversation)
			} else {
				slog.Warn("WebSocket read error", "error", err, "platform", id.Platform)
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			msg = wsMessage{Type: "command", Text: string(message)}
		}

		switch msg.Type {
		case "ping":
			if err := writeEvent(ctx, ws, Event{Type: "pong"}); err != nil {
				slog.Debug("Failed to send pong", "error", err)
			}
		case "command":
			if h.commands == nil {
				continue
			}
			reply, err := h.commands.Handle(ctx, id, msg.Text)
			if err != nil {
				slog.Debug("Command over websocket failed", "error", err, "platform", id.Platform)
			}
			if reply.Text == "" {
				continue
			}
			if err := writeEvent(ctx, ws, Event{Type: "reply", Text: reply.Text}); err != nil {
				slog.Debug("Failed to send reply", "error", err)
				return
			}
		}
	}
}
