package websocket

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 64 * 1024 // 64KB; bridge messages are short
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Game servers connect from arbitrary hosts; auth is per message
		return true
	},
}

// Client is a middleman between one game-server websocket connection and the
// dispatcher. A client carries no authenticated state: every message is
// re-authenticated independently.
type Client struct {
	hub *Hub

	// The websocket connection
	conn *websocket.Conn

	// Buffered channel of outbound response envelopes
	send chan *OutboundMessage

	// mu guards closed; a dispatch goroutine may finish after the hub has
	// unregistered the client
	mu     sync.Mutex
	closed bool

	// RemoteAddr identifies the peer for logging
	RemoteAddr string

	// Connection-scoped context for message handling
	ctx context.Context
}

// Send queues a response envelope for the write pump. The envelope is dropped
// when the client's buffer is full (a stalled peer must not block a handler)
// or when the connection already closed mid-flight.
func (c *Client) Send(msg *OutboundMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		log.Printf("ws client %s: connection closed, dropping response type=%s", c.RemoteAddr, msg.Type)
		return
	}
	select {
	case c.send <- msg:
	default:
		log.Printf("ws client %s: send buffer full, dropping response type=%s", c.RemoteAddr, msg.Type)
	}
}

// close marks the client closed and releases the write pump. Idempotent;
// called from the hub's run loop on unregister.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// readPump pumps messages from the websocket connection to the dispatcher.
// Each message is handled in its own goroutine so a slow handler never blocks
// the read loop.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("websocket error from %s: %v", c.RemoteAddr, err)
			}
			break
		}

		if d := c.hub.dispatcher; d != nil {
			go d.Dispatch(c.ctx, c, message)
		}
	}
}

// writePump pumps response envelopes to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case out, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			if err := json.NewEncoder(w).Encode(out); err != nil {
				log.Printf("error encoding outbound message: %v", err)
			}

			// Drain queued responses into the same frame writer
			n := len(c.send)
			for i := 0; i < n; i++ {
				if err := json.NewEncoder(w).Encode(<-c.send); err != nil {
					log.Printf("error encoding queued message: %v", err)
				}
			}

			if err := w.Close(); err != nil {
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
