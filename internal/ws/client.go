package ws

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/massarena/backend/internal/game"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in development
	},
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 1024
)

// Session is the room-side view of one connected player the ws layer reports
// into: inputs, exit requests, and disconnects.
type Session interface {
	HandleInput(sessionID string, in game.Input)
	HandleExit(sessionID string)
	HandleDisconnect(sessionID string)
}

// Client is one player's WebSocket connection.
type Client struct {
	conn      *websocket.Conn
	sessionID string
	send      chan []byte
	limiter   *rate.Limiter
}

// Message is the envelope for client-to-server traffic.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Serve upgrades the request and runs the connection until it closes. The
// caller has already authenticated sessionID.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, sessionID string, room Session) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := &Client{
		conn:      conn,
		sessionID: sessionID,
		send:      make(chan []byte, 64),
		// Tick-rate inputs plus headroom; abusive senders get dropped frames.
		limiter: rate.NewLimiter(rate.Limit(60), 120),
	}
	h.register(client)

	log.Printf("[WS] Session %s connected", sessionID)

	go client.writePump()
	client.readPump(h, room)
	return nil
}

func (c *Client) readPump(h *Hub, room Session) {
	defer func() {
		if h.unregister(c) {
			room.HandleDisconnect(c.sessionID)
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[WS] Read error for session %s: %v", c.sessionID, err)
			}
			return
		}

		if !c.limiter.Allow() {
			continue
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("[WS] Invalid message from session %s: %v", c.sessionID, err)
			continue
		}

		switch msg.Type {
		case "input":
			var in game.Input
			if err := json.Unmarshal(msg.Data, &in); err != nil {
				log.Printf("[WS] Invalid input from session %s: %v", c.sessionID, err)
				continue
			}
			room.HandleInput(c.sessionID, in)
		case "exit":
			room.HandleExit(c.sessionID)
		default:
			log.Printf("[WS] Unknown message type %q from session %s", msg.Type, c.sessionID)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Connection replaced or cleaned up. Best-effort close frame.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("[WS] Write error for session %s: %v", c.sessionID, err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
