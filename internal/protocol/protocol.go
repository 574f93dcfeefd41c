// Package protocol defines the event-typed wire format shared by the chat
// server and client. Every frame is a JSON envelope carrying an event name and
// an event-specific payload.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Client-to-server event names.
const (
	EventCreate = "create"
	EventJoin   = "join"
	EventChat   = "chat"
	EventLeave  = "leave"
)

// Server-to-client event names. EventChat is used in both directions.
const (
	EventRoomCreated = "roomCreated"
	EventRoomJoined  = "roomJoined"
	EventUserJoined  = "userJoined"
	EventUserLeft    = "userLeft"
	EventError       = "error"
)

// Envelope frames every message exchanged over the connection.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// JoinRequest asks the server to add the sender to an existing room.
type JoinRequest struct {
	Username string `json:"username"`
	RoomID   string `json:"roomId"`
}

// ChatRequest submits a message for fanout to a room.
type ChatRequest struct {
	Message string `json:"message"`
	RoomID  string `json:"roomId"`
}

// RoomCreated acknowledges a create request to its sender.
type RoomCreated struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

// RoomJoined acknowledges a join request to its sender.
type RoomJoined struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// UserJoined announces a new member to the rest of the room.
type UserJoined struct {
	Username string `json:"username"`
	UserID   string `json:"userId"`
	Message  string `json:"message"`
}

// UserLeft announces a departure (leave or disconnect) to the rest of the room.
type UserLeft struct {
	UserID  string `json:"userId"`
	Message string `json:"message"`
}

// ChatMessage is a chat event delivered to every member of a room, the sender
// included. The ID is generated by the server at send time and is the key used
// by client-side deduplication.
type ChatMessage struct {
	ID        string `json:"id"`
	Message   string `json:"message"`
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	RoomID    string `json:"roomId"`
	Timestamp string `json:"timestamp"`
}

// ErrorMessage reports a request failure to the requesting session only.
type ErrorMessage struct {
	Message string `json:"message"`
}

// Encode marshals an event and payload into a single wire frame.
func Encode(event string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Payload: raw})
}

// Decode parses a wire frame into its envelope.
func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Event == "" {
		return nil, fmt.Errorf("decode envelope: missing event name")
	}
	return &env, nil
}

// Bind unmarshals the envelope payload into the given event struct.
func (e *Envelope) Bind(v any) error {
	if len(e.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("bind %s payload: %w", e.Event, err)
	}
	return nil
}
