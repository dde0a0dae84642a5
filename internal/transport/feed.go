// Package transport broadcasts live plugin violations to connected
// operators over WebSocket, grounded on
// apps/backend/internal/transport/websocket.go in the teacher: the same
// gorilla/websocket upgrader-plus-ping/pong-deadline shape, generalized
// from a bidirectional MCP message transport to a one-way fan-out feed.
package transport

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/latchmesh/pluginchain/internal/hook"
	"github.com/latchmesh/pluginchain/internal/pluginerr"
)

const (
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
	pongTimeout  = 60 * time.Second
)

// ViolationEvent is the wire shape pushed to every subscriber.
type ViolationEvent struct {
	Timestamp time.Time       `json:"timestamp"`
	RequestID string          `json:"request_id"`
	HookKind  string          `json:"hook_kind"`
	Violation hook.Violation  `json:"violation"`
}

// Hub fans out ViolationEvents to every currently-connected subscriber.
// Grounded on the teacher's per-connection mutex-guarded write pattern,
// generalized to many concurrent subscribers instead of one.
type Hub struct {
	mu        sync.RWMutex
	conns     map[*subscriber]struct{}
	upgrader  websocket.Upgrader
	logger    pluginerr.Logger
}

type subscriber struct {
	conn *websocket.Conn
	send chan ViolationEvent
}

// NewHub returns an empty Hub. CheckOrigin is left permissive, matching
// the teacher's development-mode default; operators deploying this
// behind a public endpoint should wrap ServeHTTP with their own origin
// check.
func NewHub(logger pluginerr.Logger) *Hub {
	return &Hub{
		conns: make(map[*subscriber]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logger,
	}
}

// ServeHTTP upgrades the connection and registers it as a subscriber
// until the client disconnects or a write fails.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if h.logger != nil {
			h.logger.Printf("violation feed: upgrade failed: %v", err)
		}
		return
	}

	sub := &subscriber{conn: conn, send: make(chan ViolationEvent, 32)}
	h.register(sub)
	defer h.unregister(sub)

	go h.readPump(sub)
	h.writePump(sub)
}

func (h *Hub) register(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[sub] = struct{}{}
}

func (h *Hub) unregister(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[sub]; ok {
		delete(h.conns, sub)
		close(sub.send)
		sub.conn.Close()
	}
}

// readPump only exists to drain control frames (pong) and notice
// disconnects; this feed is one-way, so any data frame from the client is
// discarded.
func (h *Hub) readPump(sub *subscriber) {
	sub.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	sub.conn.SetPongHandler(func(string) error {
		sub.conn.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(sub *subscriber) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-sub.send:
			sub.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				sub.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				continue
			}
			if err := sub.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			sub.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := sub.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Broadcast pushes event to every connected subscriber. A subscriber
// whose send buffer is full misses this event rather than being allowed
// to block the broadcaster — a slow viewer never stalls violation
// reporting.
func (h *Hub) Broadcast(event ViolationEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.conns {
		select {
		case sub.send <- event:
		default:
			if h.logger != nil {
				h.logger.Printf("violation feed: subscriber buffer full, dropping event")
			}
		}
	}
}

// SubscriberCount reports how many clients are currently connected.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}
