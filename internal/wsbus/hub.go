// Package wsbus is the fan-out hub behind the DWN client facade's
// RecordsSubscribe: newly processed records are published once and
// delivered to every websocket client connected to the same topic (one
// topic per author DID). In-process Go channel subscribers are not served
// here; dwn.Node delivers to those itself. Adapted from the teacher's
// websocket hub/broadcast pattern.
package wsbus

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sage-x-project/dwn-agent-core/logger"
)

// Hub multiplexes published messages for one topic to any number of
// websocket connections.
type Hub struct {
	log *logger.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]bool

	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	broadcast  chan []byte

	done chan struct{}
}

// NewHub constructs a Hub and starts its run loop.
func NewHub() *Hub {
	h := &Hub{
		log:        logger.GetLogger().WithField("component", "wsbus"),
		clients:    make(map[*websocket.Conn]bool),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		broadcast:  make(chan []byte, 64),
		done:       make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			h.mu.Unlock()
		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			h.mu.Unlock()
		case msg := <-h.broadcast:
			h.mu.Lock()
			for conn := range h.clients {
				conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					h.log.Warnf("wsbus: write failed, dropping client: %v", err)
					delete(h.clients, conn)
					conn.Close()
				}
			}
			h.mu.Unlock()
		case <-h.done:
			h.mu.Lock()
			for conn := range h.clients {
				conn.Close()
			}
			h.clients = nil
			h.mu.Unlock()
			return
		}
	}
}

// Register adds conn as a recipient of future Publish calls.
func (h *Hub) Register(conn *websocket.Conn) { h.register <- conn }

// Unregister removes and closes conn.
func (h *Hub) Unregister(conn *websocket.Conn) { h.unregister <- conn }

// Publish fans msg out to every registered connection.
func (h *Hub) Publish(msg []byte) { h.broadcast <- msg }

// Close stops the hub's run loop and closes every registered connection.
func (h *Hub) Close() { close(h.done) }
