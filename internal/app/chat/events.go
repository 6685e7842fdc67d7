package chat

import (
	"bytes"
	"encoding/json"

	"chatrelay/internal/app/message"
)

// EventType names a relay event in either direction.
type EventType string

// Inbound events (client → relay).
const (
	EventSetUsername EventType = "setUsername"
	EventMessage     EventType = "message"
	EventReaction    EventType = "reaction"
	EventTyping      EventType = "typing"
	EventMessageRead EventType = "messageRead"
	EventUserStatus  EventType = "userStatus"
)

// Outbound events (relay → client).
const (
	EventMessageHistory        EventType = "messageHistory"
	EventReceiveMessage        EventType = "receiveMessage"
	EventUpdateUsers           EventType = "updateUsers"
	EventUserTyping            EventType = "userTyping"
	EventMessageReactionUpdate EventType = "messageReactionUpdate"
	EventMessageReadUpdate     EventType = "messageReadUpdate"
	EventError                 EventType = "error"
)

// Envelope is the JSON frame exchanged over the WebSocket.
type Envelope struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload,omitempty"`
}

// inboundFrame is an Envelope whose payload has not been decoded yet.
type inboundFrame struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SetUsernamePayload announces the connection's profile.
type SetUsernamePayload struct {
	Username    string `json:"username"`
	AvatarColor string `json:"avatarColor,omitempty"`
}

// ReactionPayload toggles a reaction. UserID and Username are taken from the client as sent.
type ReactionPayload struct {
	MessageID string `json:"messageId"`
	Type      string `json:"type"`
	UserID    string `json:"userId"`
	Username  string `json:"username"`
}

// UserTypingPayload is broadcast when a profile's typing flag changes.
type UserTypingPayload struct {
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

// ReactionUpdatePayload carries the full reaction list of one message.
type ReactionUpdatePayload struct {
	MessageID string             `json:"messageId"`
	Reactions []message.Reaction `json:"reactions"`
}

// ReadUpdatePayload carries the full read-receipt list of one message.
type ReadUpdatePayload struct {
	MessageID string   `json:"messageId"`
	ReadBy    []string `json:"readBy"`
}

// ErrorPayload is sent to a single connection when one of its events is rejected.
type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// decodePayload unmarshals raw into dst. An absent or null payload leaves dst at its zero value.
func decodePayload(raw json.RawMessage, dst any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	return json.Unmarshal(trimmed, dst)
}
