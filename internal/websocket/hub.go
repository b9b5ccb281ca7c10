package websocket

import (
	"log/slog"
	"sync"
)

// Hub tracks connected clients by contract and fans progress messages out
// to the clients watching that contract.
type Hub struct {
	mu     sync.RWMutex
	topics map[int64]map[*Client]struct{}
	logger *slog.Logger
}

// NewHub creates a new Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		topics: make(map[int64]map[*Client]struct{}),
		logger: logger,
	}
}

// Register adds a client to its contract's subscriber set.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.topics[c.contractID]
	if !ok {
		subs = make(map[*Client]struct{})
		h.topics[c.contractID] = subs
	}
	subs[c] = struct{}{}
}

// Unregister removes a client and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.topics[c.contractID]
	if !ok {
		return
	}
	if _, ok := subs[c]; !ok {
		return
	}
	delete(subs, c)
	close(c.send)
	if len(subs) == 0 {
		delete(h.topics, c.contractID)
	}
}

// Publish sends msg to every client watching contractID. Slow clients whose
// buffer is full miss the message.
func (h *Hub) Publish(contractID int64, msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.topics[contractID] {
		select {
		case c.send <- msg:
		default:
			h.logger.Debug("websocket client buffer full, dropping message", "contract_id", contractID)
		}
	}
}

// Subscribers returns the number of clients watching contractID.
func (h *Hub) Subscribers(contractID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[contractID])
}

// ClientCount returns the number of connected clients across all contracts.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, subs := range h.topics {
		n += len(subs)
	}
	return n
}
