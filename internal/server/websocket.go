// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// CORS is enforced at the HTTP middleware layer (server.go); the
		// upgrade itself accepts any origin.
		return true
	},
}

// WSMessage is the envelope for every value sent over the WebSocket.
type WSMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// JobUpdateEvent is the payload of a "job_update" message: a narrower,
// progress-focused view of Job rather than the full REST representation,
// since that is all a live-updating client needs on every tick.
type JobUpdateEvent struct {
	ID        string      `json:"id"`
	Status    JobStatus   `json:"status"`
	Progress  JobProgress `json:"progress"`
	FinalPath string      `json:"finalPath,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// wsOutbound is a broadcast in flight: the marshaled envelope plus the job
// it concerns, if any. jobID is empty for non-job messages (init, generic
// events), which every client receives regardless of subscription.
type wsOutbound struct {
	data  []byte
	jobID string
}

// subscribeRequest is sent by a client to narrow the job_update messages it
// receives to a single job. An empty JobID resubscribes to all jobs.
type subscribeRequest struct {
	Type  string `json:"type"`
	JobID string `json:"jobId"`
}

// WSClient is one connected WebSocket client.
type WSClient struct {
	conn   *websocket.Conn
	send   chan []byte
	hub    *WSHub
	closed bool
	mu     sync.Mutex

	subMu       sync.RWMutex
	subscribeID string // "" means: deliver job_update for every job
}

func (c *WSClient) wantsJob(jobID string) bool {
	if jobID == "" {
		return true
	}
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return c.subscribeID == "" || c.subscribeID == jobID
}

func (c *WSClient) setSubscription(jobID string) {
	c.subMu.Lock()
	c.subscribeID = jobID
	c.subMu.Unlock()
}

// WSHub fans job and progress events out to every connected WebSocket
// client, filtering job_update messages by each client's subscription.
type WSHub struct {
	clients    map[*WSClient]bool
	broadcast  chan wsOutbound
	register   chan *WSClient
	unregister chan *WSClient
	logger     *slog.Logger
	mu         sync.RWMutex
}

// NewWSHub creates a hub ready to Run.
func NewWSHub() *WSHub {
	return &WSHub{
		clients:    make(map[*WSClient]bool),
		broadcast:  make(chan wsOutbound, 256),
		register:   make(chan *WSClient),
		unregister: make(chan *WSClient),
		logger:     slog.Default(),
	}
}

// Run drives the hub's register/unregister/broadcast loop. Call it once in
// its own goroutine before accepting connections.
func (h *WSHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("ws client connected", "total", n)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("ws client disconnected", "total", n)

		case out := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				if !client.wantsJob(out.jobID) {
					continue
				}
				select {
				case client.send <- out.data:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Broadcast sends an arbitrary message to every connected client.
func (h *WSHub) Broadcast(msgType string, data any) {
	h.send(WSMessage{Type: msgType, Data: data}, "")
}

// BroadcastJob sends a job_update for job, delivered only to clients
// subscribed to job.ID or to no particular job (spec §7's "live progress
// updates" surfaced per job rather than as one firehose).
func (h *WSHub) BroadcastJob(job *Job) {
	h.send(WSMessage{
		Type: "job_update",
		Data: JobUpdateEvent{
			ID:        job.ID,
			Status:    job.Status,
			Progress:  job.Progress,
			FinalPath: job.FinalPath,
			Error:     job.Error,
		},
	}, job.ID)
}

// BroadcastEvent sends a progress event to all clients, unfiltered.
func (h *WSHub) BroadcastEvent(event any) {
	h.Broadcast("event", event)
}

func (h *WSHub) send(msg WSMessage, jobID string) {
	jsonData, err := json.Marshal(msg)
	if err != nil {
		h.logger.Warn("failed to marshal ws message", "type", msg.Type, "error", err)
		return
	}

	select {
	case h.broadcast <- wsOutbound{data: jsonData, jobID: jobID}:
	default:
		h.logger.Warn("ws broadcast channel full, dropping message", "type", msg.Type)
	}
}

// ClientCount returns the number of connected clients.
func (h *WSHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// handleWebSocket upgrades the request and registers a new client.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "error", err)
		return
	}

	client := &WSClient{
		conn: conn,
		send: make(chan []byte, 256),
		hub:  s.wsHub,
	}

	s.wsHub.register <- client

	go client.writePump()
	go client.readPump()

	s.sendInitialState(client)
}

// sendInitialState sends the current job list to a newly connected client.
func (s *Server) sendInitialState(client *WSClient) {
	jobs := s.jobs.ListJobs()

	msg := WSMessage{
		Type: "init",
		Data: map[string]any{
			"jobs": jobs,
		},
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	client.mu.Lock()
	defer client.mu.Unlock()
	if !client.closed {
		select {
		case client.send <- data:
		default:
		}
	}
}

// writePump pumps messages from the hub to the WebSocket connection. One
// per client, exited when the hub closes client.send.
func (c *WSClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Batch any queued messages into the same WebSocket frame.
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte("\n"))
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump pumps client messages into the hub, applying the one inbound
// message type this protocol understands: a subscribe request narrowing
// job_update delivery to a single job.
func (c *WSClient) readPump() {
	defer func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512 * 1024)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("ws read error", "error", err)
			}
			break
		}

		var req subscribeRequest
		if err := json.Unmarshal(message, &req); err != nil {
			continue
		}
		if req.Type == "subscribe" {
			c.setSubscription(req.JobID)
		}
	}
}
