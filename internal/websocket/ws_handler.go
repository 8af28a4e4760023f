package websocket

import (
	"context"
	"log"
	"net/http"
)

// WSHandler upgrades bridge connections from game servers. There is no auth
// at upgrade time: every message carries its own identity/token pair and is
// validated independently.
type WSHandler struct {
	hub *Hub
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(hub *Hub) *WSHandler {
	return &WSHandler{hub: hub}
}

// HandleBridge handles GET /ws upgrade requests from game servers.
func (h *WSHandler) HandleBridge(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error from %s: %v", r.RemoteAddr, err)
		return
	}

	// Use Background so message handling is not tied to the HTTP request
	// lifecycle; the request context is canceled once this handler returns.
	client := &Client{
		hub:        h.hub,
		conn:       conn,
		send:       make(chan *OutboundMessage, 256),
		RemoteAddr: r.RemoteAddr,
		ctx:        context.Background(),
	}

	client.hub.register <- client

	// Start goroutines for reading and writing
	go client.writePump()
	go client.readPump()
}
