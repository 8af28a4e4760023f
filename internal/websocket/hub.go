package websocket

import (
	"log"
	"sync"
)

// Hub tracks the set of live game-server connections. Responses are written
// to the originating client only; there is no cross-connection broadcast in
// the bridge protocol.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Register requests from new connections
	register chan *Client

	// Unregister requests from closing connections
	unregister chan *Client

	// Dispatcher for inbound messages; set at construction, never mutated,
	// so the read pumps may read it without the lock
	dispatcher *Dispatcher

	// Mutex for thread-safe access
	mu sync.RWMutex
}

// NewHub creates a new Hub.
func NewHub(dispatcher *Dispatcher) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		dispatcher: dispatcher,
	}
}

// Run starts the hub's main loop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			log.Printf("ws client registered addr=%s total=%d", client.RemoteAddr, total)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.close()
			}
			total := len(h.clients)
			h.mu.Unlock()
			log.Printf("ws client unregistered addr=%s total=%d", client.RemoteAddr, total)
		}
	}
}

// ClientCount returns the number of connected game servers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
