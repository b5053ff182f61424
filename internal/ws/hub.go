package ws

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/dgnsrekt/gamma-exposure/internal/data"
)

// Hub manages WebSocket connections and ticker subscriptions, and pushes
// gamma snapshots to subscribers as they are produced.
type Hub struct {
	clients    map[*Client]bool
	groups     map[string]map[*Client]bool // group -> clients
	unregister chan *Client
	done       chan struct{}
	closed     bool
	mu         sync.RWMutex

	sendBuffer int
	tracked    func(string) bool
	encoder    *Encoder
	logger     *zap.Logger
}

// NewHub creates a new Hub. tracked reports whether a ticker may be
// subscribed to; nil accepts every ticker.
func NewHub(sendBuffer int, tracked func(string) bool, logger *zap.Logger) (*Hub, error) {
	encoder, err := NewEncoder()
	if err != nil {
		return nil, fmt.Errorf("create encoder: %w", err)
	}
	if sendBuffer < 1 {
		sendBuffer = 1
	}
	if tracked == nil {
		tracked = func(string) bool { return true }
	}

	return &Hub{
		clients:    make(map[*Client]bool),
		groups:     make(map[string]map[*Client]bool),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		sendBuffer: sendBuffer,
		tracked:    tracked,
		encoder:    encoder,
		logger:     logger,
	}, nil
}

// Run processes hub events. Call this in a goroutine.
// Returns when context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("websocket hub shutting down", zap.Int("clients", h.ClientCount()))
			h.shutdown()
			return

		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

// shutdown closes every client connection and rejects new ones.
func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	close(h.done)

	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
	h.groups = make(map[string]map[*Client]bool)
	h.encoder.Close()
}

func (h *Hub) addClient(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}
	h.clients[client] = true
	h.logger.Debug("client registered", zap.String("connID", client.connID))
	return true
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	for group := range client.groups {
		h.leaveLocked(client, group)
	}
	close(client.send)

	h.logger.Debug("client unregistered", zap.String("connID", client.connID))
}

// scheduleUnregister hands a client to Run without blocking the caller.
func (h *Hub) scheduleUnregister(client *Client) {
	go func() {
		select {
		case h.unregister <- client:
		case <-h.done:
		}
	}()
}

// JoinGroup subscribes a client to a ticker, or to every ticker via AllGroup.
func (h *Hub) JoinGroup(client *Client, group string) error {
	if group != AllGroup && !h.tracked(group) {
		return fmt.Errorf("ticker not tracked: %s", group)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.clients[client] {
		return fmt.Errorf("client %s is not connected", client.connID)
	}
	if h.groups[group] == nil {
		h.groups[group] = make(map[*Client]bool)
	}
	h.groups[group][client] = true
	client.groups[group] = true

	h.logger.Debug("client joined group",
		zap.String("connID", client.connID),
		zap.String("group", group),
	)
	return nil
}

// LeaveGroup removes a client from a group.
func (h *Hub) LeaveGroup(client *Client, group string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.leaveLocked(client, group)

	h.logger.Debug("client left group",
		zap.String("connID", client.connID),
		zap.String("group", group),
	)
}

func (h *Hub) leaveLocked(client *Client, group string) {
	if clients, ok := h.groups[group]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.groups, group)
		}
	}
	delete(client.groups, group)
}

// ActiveGroups returns all groups with at least one subscriber, sorted.
func (h *Hub) ActiveGroups() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	groups := make([]string, 0, len(h.groups))
	for group, clients := range h.groups {
		if len(clients) > 0 {
			groups = append(groups, group)
		}
	}
	sort.Strings(groups)
	return groups
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// PublishGamma pushes a snapshot to subscribers of its ticker and of AllGroup.
// Clients whose send buffer is full are disconnected.
func (h *Hub) PublishGamma(snap *data.GammaSnapshot) {
	if snap == nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return
	}

	recipients := make(map[*Client]bool)
	for client := range h.groups[snap.Ticker] {
		recipients[client] = true
	}
	for client := range h.groups[AllGroup] {
		recipients[client] = true
	}
	if len(recipients) == 0 {
		return
	}

	msg := &Message{Type: TypeGamma, Group: snap.Ticker, Data: snap}
	payloads := make(map[string][]byte, 2)
	for client := range recipients {
		payload, ok := payloads[client.protocol]
		if !ok {
			var err error
			payload, err = h.encoder.Encode(client.protocol, msg)
			if err != nil {
				h.logger.Error("failed to encode gamma snapshot",
					zap.String("ticker", snap.Ticker),
					zap.String("protocol", client.protocol),
					zap.Error(err),
				)
				continue
			}
			payloads[client.protocol] = payload
		}

		select {
		case client.send <- payload:
		default:
			h.logger.Warn("client send buffer full, disconnecting",
				zap.String("connID", client.connID),
			)
			h.scheduleUnregister(client)
		}
	}

	h.logger.Debug("gamma snapshot published",
		zap.String("ticker", snap.Ticker),
		zap.Int("recipients", len(recipients)),
	)
}

// send queues a message for a single client. It reports false when the client
// is gone or its buffer is full.
func (h *Hub) send(client *Client, msg *Message) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.clients[client] {
		return false
	}

	payload, err := h.encoder.Encode(client.protocol, msg)
	if err != nil {
		h.logger.Error("failed to encode message",
			zap.String("connID", client.connID),
			zap.String("type", msg.Type),
			zap.Error(err),
		)
		return false
	}
	select {
	case client.send <- payload:
		return true
	default:
		h.scheduleUnregister(client)
		return false
	}
}
