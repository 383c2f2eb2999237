// Package ws bridges the event router to browser clients over WebSocket.
package ws

import (
	"context"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/moroshma/jstail/internal/domain/entity"
	"github.com/moroshma/jstail/internal/router"
	"github.com/moroshma/jstail/pkg/logger"
)

// Path is the upgrade endpoint.
const Path = "/ws"

const defaultSendBuffer = 256

// Submitter accepts decoded commands. *app.Worker implements it.
type Submitter interface {
	Submit(ctx context.Context, cmd entity.Command) error
}

// Hub broadcasts every event to all connected clients and forwards their
// commands to the worker.
type Hub struct {
	ctx      context.Context
	submit   Submitter
	upgrader websocket.Upgrader
	logger   *logger.Logger

	mu      sync.RWMutex
	clients map[string]*client
}

// NewHub creates a hub. Commands are submitted with ctx.
func NewHub(ctx context.Context, submit Submitter, log *logger.Logger) *Hub {
	return &Hub{
		ctx:    ctx,
		submit: submit,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The bridge is meant for a local UI on another port.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger:  log.Named("ws"),
		clients: make(map[string]*client),
	}
}

// Register mounts the hub on r.
func (h *Hub) Register(r *mux.Router) {
	r.Handle(Path, h).Methods(http.MethodGet)
}

// ServeHTTP upgrades the request and runs the client until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Upgrade failed", logger.Error(err))
		return
	}

	c := newClient(uuid.NewString(), conn, defaultSendBuffer)
	h.add(c)
	h.logger.Info("Client connected",
		logger.String("client_id", c.id),
		logger.String("remote_addr", r.RemoteAddr),
	)

	go c.writePump()
	h.readPump(c)
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.id] = c
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c.id]
	delete(h.clients, c.id)
	h.mu.Unlock()

	c.close()
	if ok {
		h.logger.Info("Client disconnected", logger.String("client_id", c.id))
	}
}

func (h *Hub) readPump(c *client) {
	defer h.remove(c)

	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("Read failed", logger.String("client_id", c.id), logger.Error(err))
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}

		cmd, err := router.DecodeCommand(data)
		if err != nil {
			h.logger.Error("Rejected command", logger.String("client_id", c.id), logger.Error(err))
			h.reply(c, err)
			continue
		}
		if err := h.submit.Submit(h.ctx, cmd); err != nil {
			h.reply(c, err)
			if h.ctx.Err() != nil {
				return
			}
		}
	}
}

// reply sends err to one client as an error status frame.
func (h *Hub) reply(c *client, err error) {
	frame, encErr := router.EncodeEvent(entity.ConnectivityChangedEvent{Status: entity.StatusError, Message: err.Error()})
	if encErr != nil {
		return
	}
	c.enqueue(frame)
}

// Deliver implements router.Sink. A client whose buffer is full is
// disconnected.
func (h *Hub) Deliver(ev entity.Event) {
	frame, err := router.EncodeEvent(ev)
	if err != nil {
		h.logger.Error("Failed to encode event", logger.Error(err))
		return
	}

	h.mu.RLock()
	var slow []*client
	for _, c := range h.clients {
		if !c.enqueue(frame) {
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("Dropping slow client", logger.String("client_id", c.id))
		h.remove(c)
	}
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]*client)
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}
