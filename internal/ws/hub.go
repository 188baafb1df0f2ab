package ws

import (
	"encoding/json"
	"log"
	"sync"
)

// Hub maintains the set of connected clients keyed by session id. A second
// connection for the same session replaces the first (reconnect).
type Hub struct {
	clients map[string]*Client
	mu      sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{clients: make(map[string]*Client)}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	old, exists := h.clients[c.sessionID]
	h.clients[c.sessionID] = c
	h.mu.Unlock()

	if exists {
		log.Printf("[WS] Replacing connection for session %s", c.sessionID)
		close(old.send)
	}
}

// unregister removes the client only if it is still the current one for its
// session; a replaced connection must not evict its replacement.
func (h *Hub) unregister(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c.sessionID] == c {
		delete(h.clients, c.sessionID)
		close(c.send)
		return true
	}
	return false
}

// Broadcast sends a message to every connected client. Slow clients drop the
// message rather than stall the tick loop.
func (h *Hub) Broadcast(message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		log.Printf("[WS] Error marshaling broadcast: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		select {
		case client.send <- data:
		default:
			log.Printf("[WS] Send buffer full for session %s, dropping message", client.sessionID)
		}
	}
}

// SendToSession sends a message to one session's client, if connected.
func (h *Hub) SendToSession(sessionID string, message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		log.Printf("[WS] Error marshaling message: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if client, exists := h.clients[sessionID]; exists {
		select {
		case client.send <- data:
		default:
			log.Printf("[WS] Send buffer full for session %s, dropping message", sessionID)
		}
	}
}

// Connected reports whether a live connection exists for the session.
func (h *Hub) Connected(sessionID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[sessionID]
	return ok
}
