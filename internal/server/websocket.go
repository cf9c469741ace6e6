// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pljakobs/distroget/internal/logger"
	"github.com/pljakobs/distroget/pkg/distroget"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The UI is served from this process, so same-origin checks would
	// only reject reverse-proxied setups.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSMessage is the envelope for everything sent over the socket:
// "init" with the current jobs and engine snapshot on connect, then
// "event" per engine progress event and "job" per job update.
type WSMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// WSClient is one connected socket.
type WSClient struct {
	conn *websocket.Conn
	send chan []byte
	hub  *WSHub
}

// WSHub fans broadcast messages out to connected clients.
type WSHub struct {
	clients    map[*WSClient]bool
	broadcast  chan []byte
	register   chan *WSClient
	unregister chan *WSClient
	done       chan struct{}
	mu         sync.RWMutex
}

// NewWSHub creates a hub; Run must be started for it to do anything.
func NewWSHub() *WSHub {
	return &WSHub{
		clients:    make(map[*WSClient]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *WSClient),
		unregister: make(chan *WSClient),
		done:       make(chan struct{}),
	}
}

// Run loops until ctx is cancelled, then disconnects every client.
func (h *WSHub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			logger.Debug("websocket client connected", logger.Fields{"total": n})

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			logger.Debug("websocket client disconnected", logger.Fields{"total": n})

		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// Buffer full, the client is not keeping up.
					close(c.send)
					delete(h.clients, c)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast queues a typed message for every client. Messages are
// dropped rather than letting a full hub block the engine.
func (h *WSHub) Broadcast(msgType string, data any) {
	raw, err := json.Marshal(WSMessage{Type: msgType, Data: data})
	if err != nil {
		logger.Warn("websocket marshal failed", logger.Fields{"error": err.Error()})
		return
	}
	select {
	case h.broadcast <- raw:
	default:
		logger.Debug("websocket broadcast dropped, channel full")
	}
}

// BroadcastJob sends a job update to all clients.
func (h *WSHub) BroadcastJob(job *Job) {
	h.Broadcast("job", job)
}

// BroadcastEvent sends an engine progress event to all clients.
func (h *WSHub) BroadcastEvent(ev distroget.ProgressEvent) {
	h.Broadcast("event", ev)
}

// ClientCount returns the number of connected clients.
func (h *WSHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// handleWebSocket upgrades the connection and attaches it to the hub.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Debug("websocket upgrade failed", logger.Fields{"error": err.Error()})
		return
	}

	client := &WSClient{
		conn: conn,
		send: make(chan []byte, 256),
		hub:  s.hub,
	}
	select {
	case s.hub.register <- client:
	case <-s.hub.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()

	s.sendInitialState(client)
}

// sendInitialState gives a fresh client the jobs and the engine
// snapshot so it does not have to replay history.
func (s *Server) sendInitialState(client *WSClient) {
	init := WSMessage{
		Type: "init",
		Data: map[string]any{
			"jobs":   s.jobs.List(),
			"status": s.engineStatus(),
		},
	}
	raw, err := json.Marshal(init)
	if err != nil {
		return
	}
	select {
	case client.send <- raw:
	default:
	}
}

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
)

// writePump drains the send buffer onto the socket and keeps the
// connection alive with pings.
func (c *WSClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)

			// Piggyback everything already queued.
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte("\n"))
				w.Write(<-c.send)
			}
			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump consumes the socket until it closes. Clients send nothing
// today; reading is still required to process pongs and close frames.
func (c *WSClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Debug("websocket read error", logger.Fields{"error": err.Error()})
			}
			return
		}
	}
}
