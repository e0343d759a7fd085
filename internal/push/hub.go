// Package push delivers card results to browsers over websocket and lets
// them send chat commands back on the same connection.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/pjsk-cards/internal/domain"
	"github.com/coder/websocket"
)

const writeTimeout = 5 * time.Second

// Event is the JSON frame sent to clients. Image is base64 PNG.
type Event struct {
	Type  string `json:"type"`
	Text  string `json:"text,omitempty"`
	Image []byte `json:"image,omitempty"`
}

// Hub tracks live connections per identity and implements
// domain.Dispatcher by fanning each message out to all of them.
type Hub struct {
	mu     sync.RWMutex
	active map[domain.Identity]map[string]*websocket.Conn
	last   map[domain.Identity]Event
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		active: make(map[domain.Identity]map[string]*websocket.Conn),
		last:   make(map[domain.Identity]Event),
	}
}

// Register adds a connection for id. The last card sent while another feed
// for id was open is replayed, so a second tab shows the current card.
func (h *Hub) Register(ctx context.Context, id domain.Identity, connID string, conn *websocket.Conn) {
	h.mu.Lock()
	if _, exists := h.active[id]; !exists {
		h.active[id] = make(map[string]*websocket.Conn)
	}
	replaced := h.active[id][connID]
	h.active[id][connID] = conn
	last, hasLast := h.last[id]
	h.mu.Unlock()

	if replaced != nil && replaced != conn {
		_ = replaced.Close(websocket.StatusNormalClosure, "connection replaced")
	}

	slog.Info("Card feed registered", "platform", id.Platform, "conversation", id.Conversation, "conn_id", connID)
	if hasLast {
		if err := writeEvent(ctx, conn, last); err != nil {
			slog.Debug("Failed to replay last card", "error", err, "conn_id", connID)
		}
	}
}

// Unregister removes a connection for id.
func (h *Hub) Unregister(id domain.Identity, connID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conns, ok := h.active[id]; ok {
		if current, exists := conns[connID]; exists && current == conn {
			delete(conns, connID)
			if len(conns) == 0 {
				delete(h.active, id)
				delete(h.last, id)
			}
			slog.Info("Card feed unregistered", "platform", id.Platform, "conversation", id.Conversation, "conn_id", connID)
		}
	}
}

// Close terminates every connection for id and forgets its last card.
// The close handshakes run after the hub lock is released.
func (h *Hub) Close(id domain.Identity) {
	h.mu.Lock()
	conns := h.active[id]
	delete(h.active, id)
	delete(h.last, id)
	h.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close(websocket.StatusNormalClosure, "card closed")
	}
}

// Connections returns the number of live connections for id.
func (h *Hub) Connections(id domain.Identity) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.active[id])
}

// Dispatch sends msg to every connection of id. Having no listeners is
// not an error. The last card is kept only while id has an open feed.
func (h *Hub) Dispatch(ctx context.Context, id domain.Identity, msg domain.Message) error {
	ev := Event{Type: "card", Text: msg.Text, Image: msg.Image}
	if len(msg.Image) == 0 {
		ev.Type = "notice"
	}

	h.mu.Lock()
	if ev.Type == "card" && len(h.active[id]) > 0 {
		h.last[id] = ev
	}
	conns := make(map[string]*websocket.Conn, len(h.active[id]))
	for cid, c := range h.active[id] {
		conns[cid] = c
	}
	h.mu.Unlock()

	var errs []error
	for cid, c := range conns {
		if err := writeEvent(ctx, c, ev); err != nil {
			errs = append(errs, fmt.Errorf("conn %s: %w", cid, err))
		}
	}
	return errors.Join(errs...)
}

func writeEvent(ctx context.Context, conn *websocket.Conn, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}
