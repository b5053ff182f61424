package ws

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Negotiated subprotocols.
const (
	ProtocolJSON     = "json.gex.v1"
	ProtocolProtobuf = "protobuf.gex.v1"
)

// AllGroup receives snapshots for every ticker.
const AllGroup = "*"

// Downstream message types.
const (
	TypeConnected = "connected"
	TypeGamma     = "gamma"
	TypeAck       = "ack"
	TypePong      = "pong"
)

// Message is the downstream envelope. JSON clients receive it as a text frame;
// protobuf clients receive it as a zstd-compressed google.protobuf.Struct.
type Message struct {
	Type         string   `json:"type"`
	ConnectionID string   `json:"connectionId,omitempty"`
	Group        string   `json:"group,omitempty"`
	Groups       []string `json:"groups,omitempty"`
	AckID        *uint64  `json:"ackId,omitempty"`
	Success      *bool    `json:"success,omitempty"`
	Error        string   `json:"error,omitempty"`
	Data         any      `json:"data,omitempty"`
}

// Upstream message types for internal routing
type (
	joinGroupRequest struct {
		group string
		ackID *uint64
	}
	leaveGroupRequest struct {
		group string
		ackID *uint64
	}
	pingRequest struct{}
)

type upstreamMessage struct {
	Type  string  `json:"type"`
	Group string  `json:"group"`
	AckID *uint64 `json:"ackId"`
}

// parseUpstreamMessage parses a client control message. Control messages are
// JSON for both subprotocols.
func parseUpstreamMessage(data []byte) (any, error) {
	var msg upstreamMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal upstream message: %w", err)
	}

	switch msg.Type {
	case "joinGroup":
		return &joinGroupRequest{group: normalizeGroup(msg.Group), ackID: msg.AckID}, nil
	case "leaveGroup":
		return &leaveGroupRequest{group: normalizeGroup(msg.Group), ackID: msg.AckID}, nil
	case "ping":
		return &pingRequest{}, nil
	default:
		return nil, fmt.Errorf("unknown message type: %q", msg.Type)
	}
}

func normalizeGroup(group string) string {
	return strings.ToUpper(strings.TrimSpace(group))
}

func ackMessage(ackID uint64, success bool, errMsg string) *Message {
	return &Message{Type: TypeAck, AckID: &ackID, Success: &success, Error: errMsg}
}
