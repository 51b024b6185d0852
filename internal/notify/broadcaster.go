// Package notify provides WebSocket fan-out of escalation notifications to
// the notification center clients of each audience.
package notify

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sigaedu/siga/internal/escalation"
)

// Notification is the wire payload pushed to subscribed clients.
type Notification struct {
	ID        string            `json:"id"`
	Level     string            `json:"level"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Broadcaster manages WebSocket connections per audience and pushes
// notifications to them. Thread-safe.
type Broadcaster struct {
	mu          sync.RWMutex
	connections map[escalation.Audience]map[*websocket.Conn]bool
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		connections: make(map[escalation.Audience]map[*websocket.Conn]bool),
	}
}

// Subscribe registers a connection for an audience.
func (b *Broadcaster) Subscribe(audience escalation.Audience, conn *websocket.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.connections[audience] == nil {
		b.connections[audience] = make(map[*websocket.Conn]bool)
	}
	b.connections[audience][conn] = true
}

// Unsubscribe removes a connection from every audience.
func (b *Broadcaster) Unsubscribe(conn *websocket.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for audience, conns := range b.connections {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(b.connections, audience)
		}
	}
}

// ConnectionCount returns the number of active connections for an audience.
func (b *Broadcaster) ConnectionCount(audience escalation.Audience) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if conns, ok := b.connections[audience]; ok {
		return len(conns)
	}
	return 0
}

// Broadcast pushes the notification to every connection of each audience.
func (b *Broadcaster) Broadcast(audiences []escalation.Audience, n *Notification) {
	data, err := json.Marshal(n)
	if err != nil {
		slog.Error("failed to marshal notification", "error", err)
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, audience := range audiences {
		for conn := range b.connections[audience] {
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				slog.Warn("failed to push notification to websocket client",
					"error", err,
					"audience", string(audience),
				)
				// Connection is cleaned up when the client disconnects.
			}
		}
	}
}
