package ws

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Only control messages flow upstream.
	maxMessageSize = 4 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
	Subprotocols:    []string{ProtocolJSON, ProtocolProtobuf},
}

// Client represents a WebSocket client connection.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	connID   string
	groups   map[string]bool // guarded by hub.mu
	logger   *zap.Logger
	protocol string
}

// ServeWS upgrades the request and subscribes the connection to the tickers
// named in the comma-separated "tickers" query parameter. "*" subscribes to
// every ticker.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	groups, err := h.parseGroups(r.URL.Query().Get("tickers"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	protocol := conn.Subprotocol()
	if protocol == "" {
		protocol = ProtocolJSON
	}

	client := &Client{
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, h.sendBuffer),
		connID:   uuid.New().String(),
		groups:   make(map[string]bool),
		logger:   h.logger,
		protocol: protocol,
	}

	h.logger.Debug("websocket subprotocol negotiated",
		zap.String("connID", client.connID),
		zap.String("protocol", protocol),
		zap.Strings("requested", websocket.Subprotocols(r)),
	)

	// Queue the welcome before any snapshot can reach the client.
	welcome, err := h.encoder.Encode(protocol, &Message{
		Type:         TypeConnected,
		ConnectionID: client.connID,
		Groups:       groups,
	})
	if err != nil {
		h.logger.Error("failed to encode welcome message", zap.Error(err))
		conn.Close()
		return
	}
	client.send <- welcome

	if !h.addClient(client) {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}
	for _, group := range groups {
		if err := h.JoinGroup(client, group); err != nil {
			h.logger.Debug("initial subscription failed",
				zap.String("connID", client.connID),
				zap.String("group", group),
				zap.Error(err),
			)
		}
	}

	// Start read/write pumps
	go client.writePump()
	go client.readPump()
}

func (h *Hub) parseGroups(raw string) ([]string, error) {
	var groups []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(raw, ",") {
		group := normalizeGroup(part)
		if group == "" || seen[group] {
			continue
		}
		if group != AllGroup && !h.tracked(group) {
			return nil, fmt.Errorf("Ticker not tracked: %s", group)
		}
		seen[group] = true
		groups = append(groups, group)
	}
	return groups, nil
}

// readPump reads messages from the WebSocket connection.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Debug("websocket read error",
					zap.String("connID", c.connID),
					zap.Error(err),
				)
			}
			break
		}
		c.handleMessage(message)
	}
}

// writePump writes messages to the WebSocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	msgType := websocket.TextMessage
	if c.protocol == ProtocolProtobuf {
		msgType = websocket.BinaryMessage
	}

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Channel closed, send close message
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(msgType, message); err != nil {
				c.logger.Debug("websocket write error",
					zap.String("connID", c.connID),
					zap.Error(err),
				)
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

// handleMessage processes an incoming upstream message.
func (c *Client) handleMessage(data []byte) {
	msg, err := parseUpstreamMessage(data)
	if err != nil {
		c.logger.Debug("failed to parse upstream message",
			zap.String("connID", c.connID),
			zap.Error(err),
		)
		return
	}

	switch m := msg.(type) {
	case *joinGroupRequest:
		err := c.hub.JoinGroup(c, m.group)
		if err != nil {
			c.logger.Debug("join group rejected",
				zap.String("connID", c.connID),
				zap.String("group", m.group),
				zap.Error(err),
			)
		}
		if m.ackID != nil {
			if err != nil {
				c.hub.send(c, ackMessage(*m.ackID, false, err.Error()))
			} else {
				c.hub.send(c, ackMessage(*m.ackID, true, ""))
			}
		}

	case *leaveGroupRequest:
		c.hub.LeaveGroup(c, m.group)
		if m.ackID != nil {
			c.hub.send(c, ackMessage(*m.ackID, true, ""))
		}

	case *pingRequest:
		c.hub.send(c, &Message{Type: TypePong})
	}
}
