// Package notify carries the two fire-and-forget signals the adapter
// emits — container-changed and metadata-changed — from their producers
// to any observer connected over the admin surface's WebSocket endpoint.
package notify

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alexander-bruun/localtagfs/internal/keyreg"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = (pongWait * 9) / 10
	maxMsgSize   = 4096
)

var upgrader = websocket.Upgrader{
	HandshakeTimeout: 10 * time.Second,
	CheckOrigin:      func(_ *http.Request) bool { return true },
}

// SignalKind distinguishes the two signal shapes §6 names.
type SignalKind string

const (
	ContainerChanged SignalKind = "container-changed"
	MetadataChanged  SignalKind = "metadata-changed"
)

// Signal is one emitted event, ready to serialize onto the wire.
type Signal struct {
	Kind     SignalKind `json:"kind"`
	ObjectID string     `json:"object_id"`
}

// Hub fans out signals to every connected observer. It never blocks a
// producer: a slow or disconnected observer has its signal dropped
// rather than stalling emission for everyone else.
type Hub struct {
	clients    map[*client]struct{}
	mu         sync.RWMutex
	broadcast  chan Signal
	register   chan *client
	unregister chan *client
	done       chan struct{}
	once       sync.Once
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub returns a Hub with its fan-out loop not yet started; call Run in
// its own goroutine.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*client]struct{}),
		broadcast:  make(chan Signal, 64),
		register:   make(chan *client, 8),
		unregister: make(chan *client, 8),
		done:       make(chan struct{}),
	}
}

// Run drives the hub's fan-out loop until Shutdown is called. It is meant
// to run in its own goroutine for the lifetime of the process.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			return
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
		case sig := <-h.broadcast:
			payload, err := json.Marshal(sig)
			if err != nil {
				slog.Error("notify: marshal signal", "error", err)
				continue
			}
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- payload:
				default:
					slog.Warn("notify: dropping signal for slow observer", "kind", sig.Kind)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Shutdown stops the fan-out loop. Safe to call more than once.
func (h *Hub) Shutdown() {
	h.once.Do(func() { close(h.done) })
}

// Emit queues a signal for broadcast. Non-blocking: if the hub's internal
// queue is full the signal is dropped and logged, matching the "silently
// drop on slow observer" policy rather than stalling the caller.
func (h *Hub) Emit(sig Signal) {
	select {
	case h.broadcast <- sig:
	default:
		slog.Warn("notify: broadcast queue full, dropping signal", "kind", sig.Kind)
	}
}

// EmitContainerChanged emits a container-changed signal for the synthetic
// root of the given service (music or videos), per §6's partitioning by
// ServiceKind.
func (h *Hub) EmitContainerChanged(kind keyreg.ServiceKind, rootObjectID string) {
	h.Emit(Signal{Kind: ContainerChanged, ObjectID: rootObjectID})
}

// EmitMetadataChanged emits a metadata-changed signal for one object,
// fired after a successful set_metadata.
func (h *Hub) EmitMetadataChanged(objectID string) {
	h.Emit(Signal{Kind: MetadataChanged, ObjectID: objectID})
}

// ServeWS upgrades an HTTP request to a WebSocket connection and
// registers it as an observer until the connection closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("notify: upgrade failed", "error", err)
		return
	}
	c := &client{conn: conn, send: make(chan []byte, 16)}
	h.register <- c

	go h.writePump(c)
	h.readPump(c)
}

// readPump discards inbound frames (observers are read-only) and exists
// only to detect disconnects and keep the pong deadline alive.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMsgSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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
