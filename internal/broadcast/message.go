package broadcast

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/JohnnyButtersfingers/my-hamballer-game/internal/domain"
)

// Control message types. They bypass channel filtering.
const (
	TypeConnectionAck = "connection_ack"
	TypeSubscribed    = "subscribed"
	TypePong          = "pong"
	TypeHeartbeat     = "heartbeat"
)

// Client message types.
const (
	ClientSubscribe = "subscribe"
	ClientPing      = "ping"
)

type envelope struct {
	Type  string          `json:"type"`
	Event string          `json:"event,omitempty"`
	Data  json.RawMessage `json:"data"`
}

// ClientMessage is anything a client sends over the socket.
type ClientMessage struct {
	Type     string   `json:"type"`
	Channels []string `json:"channels,omitempty"`
}

// EncodeEvent renders the wire envelope for a channel event. The payload's
// fields are placed under "data" together with an RFC 3339 timestamp.
func EncodeEvent(event domain.Event) ([]byte, error) {
	data, err := withTimestamp(event.Payload, event.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("encode %s/%s: %w", event.Channel, event.Type, err)
	}
	return json.Marshal(envelope{Type: event.Channel.WireType(), Event: event.Type, Data: data})
}

// EncodeControl renders a control message addressed outside any channel.
func EncodeControl(msgType string, payload any, ts time.Time) ([]byte, error) {
	data, err := withTimestamp(payload, ts)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msgType, err)
	}
	return json.Marshal(envelope{Type: msgType, Data: data})
}

// ParseClientMessage decodes a client frame. Channel names are returned as-is;
// filtering unknown names is the registry's job.
func ParseClientMessage(raw []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return ClientMessage{}, fmt.Errorf("malformed client message: %w", err)
	}
	if msg.Type == "" {
		return ClientMessage{}, fmt.Errorf("client message without type")
	}
	return msg, nil
}

// ChannelsOf converts raw names to channels without validating them.
func (m ClientMessage) ChannelsOf() []domain.Channel {
	out := make([]domain.Channel, len(m.Channels))
	for i, name := range m.Channels {
		out[i] = domain.Channel(name)
	}
	return out
}

func withTimestamp(payload any, ts time.Time) (json.RawMessage, error) {
	stamp, err := json.Marshal(ts.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, err
	}

	if payload == nil {
		return json.Marshal(map[string]json.RawMessage{"timestamp": stamp})
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	if !bytes.HasPrefix(bytes.TrimSpace(raw), []byte("{")) {
		return json.Marshal(map[string]json.RawMessage{"value": raw, "timestamp": stamp})
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = make(map[string]json.RawMessage, 1)
	}
	if _, ok := fields["timestamp"]; !ok {
		fields["timestamp"] = stamp
	}
	return json.Marshal(fields)
}
