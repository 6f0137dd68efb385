package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const writeTimeout = 5 * time.Second

// event is the wire format pushed to subscribed front ends.
type event struct {
	Type      string   `json:"type"`
	UserID    int64    `json:"user_id"`
	ChatID    int64    `json:"chat_id,omitempty"`
	MessageID int64    `json:"message_id,omitempty"`
	Text      string   `json:"text,omitempty"`
	Keywords  []string `json:"keywords,omitempty"`
	Outcome   string   `json:"outcome,omitempty"`
}

// Hub implements Notifier by broadcasting JSON events to WebSocket
// subscribers. Subscribers that fail a write are dropped; event delivery is
// best-effort by design of the ingestion path.
type Hub struct {
	mu   sync.RWMutex
	subs map[*websocket.Conn]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[*websocket.Conn]struct{})}
}

// MeetingDetected broadcasts a detection event.
func (h *Hub) MeetingDetected(ctx context.Context, d MeetingDetection) {
	h.broadcast(ctx, event{
		Type:      "meeting_detected",
		UserID:    d.UserID,
		ChatID:    d.ChatID,
		MessageID: d.MessageID,
		Text:      d.Text,
		Keywords:  d.Keywords,
	})
}

// LoginOutcome broadcasts a login outcome event.
func (h *Hub) LoginOutcome(ctx context.Context, userID int64, outcome string) {
	h.broadcast(ctx, event{
		Type:    "login_outcome",
		UserID:  userID,
		Outcome: outcome,
	})
}

// SubscriberCount returns the number of attached front-end connections.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) broadcast(ctx context.Context, ev event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		slog.Error("failed to encode notification", "type", ev.Type, "error", err)
		return
	}

	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.subs))
	for conn := range h.subs {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	if len(conns) == 0 {
		slog.Warn("notification dropped, no subscribers", "type", ev.Type, "user_id", ev.UserID)
		return
	}

	for _, conn := range conns {
		writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
		err := conn.Write(writeCtx, websocket.MessageText, payload)
		cancel()
		if err != nil {
			slog.Debug("notification write failed, dropping subscriber", "error", err)
			h.remove(conn)
			_ = conn.Close(websocket.StatusNormalClosure, "write failed")
		}
	}
}

func (h *Hub) add(conn *websocket.Conn) {
	h.mu.Lock()
	h.subs[conn] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.subs, conn)
	h.mu.Unlock()
}

// ServeHTTP upgrades the request to a WebSocket subscription. The connection
// stays registered until the peer closes it; inbound frames are discarded.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("failed to accept event subscriber", "error", err)
		return
	}

	h.add(conn)
	slog.Info("event subscriber attached", "ip", r.RemoteAddr)

	defer func() {
		h.remove(conn)
		_ = conn.Close(websocket.StatusNormalClosure, "subscription ended")
		slog.Info("event subscriber detached", "ip", r.RemoteAddr)
	}()

	// Drain inbound frames; the stream is one-way.
	for {
		if _, _, err := conn.Read(r.Context()); err != nil {
			return
		}
	}
}
