package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/xelth-com/riveredgego/internal/logger"
	"github.com/xelth-com/riveredgego/internal/statemachine"
)

// Message is the envelope of every pushed event.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

const TypeStateTransition = "STATE_TRANSITION"

// Hub maintains the set of active clients, grouped by tenant. Events are
// delivered only to clients of the tenant they belong to.
type Hub struct {
	// Registered clients: tenant -> client id -> client
	clients map[uint]map[string]*Client

	// Register requests
	register chan *Client

	// Unregister requests
	unregister chan *Client

	// Closed when Run returns
	done chan struct{}

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[uint]map[string]*Client),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop. It returns when ctx is done, closing
// every client.
func (h *Hub) Run(ctx context.Context) {
	log := logger.L()
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for tenantID, group := range h.clients {
				for _, c := range group {
					close(c.send)
				}
				delete(h.clients, tenantID)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			group, ok := h.clients[client.tenantID]
			if !ok {
				group = make(map[string]*Client)
				h.clients[client.tenantID] = group
			}
			group[client.ID] = client
			h.mu.Unlock()
			log.Debug("📱 Client connected", zap.String("client", client.ID), zap.Uint("tenant_id", client.tenantID))

		case client := <-h.unregister:
			h.mu.Lock()
			if group, ok := h.clients[client.tenantID]; ok {
				if _, ok := group[client.ID]; ok {
					delete(group, client.ID)
					close(client.send)
					if len(group) == 0 {
						delete(h.clients, client.tenantID)
					}
				}
			}
			h.mu.Unlock()
			log.Debug("📴 Client disconnected", zap.String("client", client.ID))
		}
	}
}

// Count returns the number of connected clients of a tenant.
func (h *Hub) Count(tenantID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[tenantID])
}

// SendToTenant queues a message for every client of the tenant and returns
// how many accepted it. Clients with a full buffer miss the message.
func (h *Hub) SendToTenant(tenantID uint, message interface{}) int {
	jsonMsg, err := json.Marshal(message)
	if err != nil {
		logger.L().Error("Error marshaling message", zap.Error(err))
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	sent := 0
	for _, client := range h.clients[tenantID] {
		select {
		case client.send <- jsonMsg:
			sent++
		default:
			// Buffer full or client dead
		}
	}
	return sent
}

// NotifyTransition pushes a committed state transition to the tenant.
func (h *Hub) NotifyTransition(tenantID uint, ev statemachine.Event) {
	h.SendToTenant(tenantID, Message{Type: TypeStateTransition, Data: ev})
}
