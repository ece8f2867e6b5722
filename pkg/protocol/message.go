// Package protocol defines the wire types shared by the agent, the
// collaborator server and viewers: comments, AI responses, animation
// updates, and the WebSocket envelope that carries them.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Server → Viewer messages
	TypeEvent MessageType = "event" // Named agent event, see EventName
	TypeError MessageType = "error" // Rejected client frame

	// Viewer → Server messages
	TypeSubscribe   MessageType = "subscribe"   // Start receiving events for AgentID
	TypeUnsubscribe MessageType = "unsubscribe" // Stop receiving events for AgentID
	TypeNewComment  MessageType = "new_comment" // Scraped chat comment

	// Bidirectional
	TypePing MessageType = "ping" // Health check
	TypePong MessageType = "pong" // Health check response
)

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Event     string          `json:"event,omitempty"`   // Set for TypeEvent
	AgentID   string          `json:"agentId,omitempty"` // Subscription target or event owner
	Timestamp int64           `json:"ts,omitempty"`      // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data any) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// NewEvent creates an event message named {agentID}_{kind}.
func NewEvent(agentID string, kind EventKind, data any) (*Message, error) {
	msg, err := NewMessage(TypeEvent, data)
	if err != nil {
		return nil, err
	}
	msg.Event = EventName(agentID, kind)
	msg.AgentID = agentID
	return msg, nil
}

// NewSubscribe creates a subscribe or unsubscribe frame for agentID.
func NewSubscribe(agentID string, subscribe bool) *Message {
	t := TypeSubscribe
	if !subscribe {
		t = TypeUnsubscribe
	}
	return &Message{Type: t, AgentID: agentID, Timestamp: time.Now().UnixMilli()}
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v any) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("failed to parse message: missing type")
	}
	return &msg, nil
}
