// Package ws fans JSON events out to WebSocket clients. Newly connected
// clients first receive a snapshot so they do not have to wait for the
// next heartbeat to learn the daemon's state.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	pingInterval  = 20 * time.Second
	readTimeout   = 60 * time.Second
	writeTimeout  = 3 * time.Second
	broadcastSize = 256
)

// Broadcaster is what event producers need from a Hub.
type Broadcaster interface {
	BroadcastJSON(v any)
}

// Hub owns the client set. Register, unregister and broadcast all go
// through channels serviced by Run.
type Hub struct {
	clients    map[*websocket.Conn]struct{}
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	broadcast  chan []byte
	upgrader   websocket.Upgrader
	count      atomic.Int64
	dropped    atomic.Int64

	// Snapshot, when set, produces the first message sent to each new
	// client.
	Snapshot func() any
}

// NewHub allocates a hub. Call Run in a goroutine to start it.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]struct{}),
		register:   make(chan *websocket.Conn, 16),
		unregister: make(chan *websocket.Conn, 16),
		broadcast:  make(chan []byte, broadcastSize),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Run services the hub until ctx is cancelled, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				_ = c.Close()
			}
			h.count.Store(0)
			return

		case c := <-h.register:
			if h.Snapshot != nil {
				if b, err := json.Marshal(h.Snapshot()); err == nil {
					_ = c.SetWriteDeadline(time.Now().Add(writeTimeout))
					if err := c.WriteMessage(websocket.TextMessage, b); err != nil {
						_ = c.Close()
						continue
					}
				}
			}
			h.clients[c] = struct{}{}
			h.count.Store(int64(len(h.clients)))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				_ = c.Close()
			}
			h.count.Store(int64(len(h.clients)))

		case msg := <-h.broadcast:
			h.writeAll(websocket.TextMessage, msg, writeTimeout)

		case <-ping.C:
			h.writeAll(websocket.PingMessage, nil, 2*time.Second)
		}
	}
}

func (h *Hub) writeAll(kind int, msg []byte, timeout time.Duration) {
	for c := range h.clients {
		_ = c.SetWriteDeadline(time.Now().Add(timeout))
		if err := c.WriteMessage(kind, msg); err != nil {
			delete(h.clients, c)
			_ = c.Close()
		}
	}
	h.count.Store(int64(len(h.clients)))
}

// Handler upgrades requests to WebSocket connections and registers them.
func (h *Hub) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already replied.
			return
		}
		h.register <- conn

		go func() {
			defer func() { h.unregister <- conn }()
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
			conn.SetPongHandler(func(string) error {
				_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
				return nil
			})
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	})
}

// BroadcastJSON queues v for every client. When the queue is full the
// message is dropped rather than blocking the producer.
func (h *Hub) BroadcastJSON(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case h.broadcast <- b:
	default:
		h.dropped.Add(1)
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int { return int(h.count.Load()) }

// Dropped returns how many broadcasts were discarded on a full queue.
func (h *Hub) Dropped() int64 { return h.dropped.Load() }
