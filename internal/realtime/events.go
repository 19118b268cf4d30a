package realtime

import (
	"encoding/json"

	"github.com/collabform/collabform/internal/response"
)

// MessageType names a realtime event on either direction of the wire.
type MessageType string

// Server -> room event types.
const (
	MsgFieldUpdated MessageType = "field-updated"
	MsgUserJoined   MessageType = "user-joined"
	MsgUserLeft     MessageType = "user-left"
	MsgUserTyping   MessageType = "user-typing"
	// MsgCursorMoved is relayed end to end but no client path renders
	// it; reserved.
	MsgCursorMoved MessageType = "cursor-moved"
)

// Client -> server message types.
const (
	MsgJoinForm    MessageType = "join-form"
	MsgUpdateField MessageType = "update-field"
	MsgTyping      MessageType = "typing"
	MsgCursorMove  MessageType = "cursor-move"
)

// Message is the wire envelope on both directions.
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Server -> room payloads. Timestamps are unix milliseconds, set by
// the gateway when it issues the broadcast; they are informational
// and never used to order or reject events.

type FieldUpdatedPayload struct {
	ResponseID string         `json:"responseId"`
	FieldID    string         `json:"fieldId"`
	Value      response.Value `json:"value"`
	UserID     string         `json:"userId"`
	Username   string         `json:"username,omitempty"`
	Timestamp  int64          `json:"timestamp"`
}

type UserJoinedPayload struct {
	ConnectionID string `json:"connectionId"`
	Timestamp    int64  `json:"timestamp"`
}

type UserLeftPayload struct {
	ConnectionID string `json:"connectionId"`
	Timestamp    int64  `json:"timestamp"`
}

type UserTypingPayload struct {
	FieldID   string `json:"fieldId"`
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	IsTyping  bool   `json:"isTyping"`
	Timestamp int64  `json:"timestamp"`
}

type CursorMovedPayload struct {
	FieldID   string `json:"fieldId"`
	Position  int    `json:"position"`
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	Timestamp int64  `json:"timestamp"`
}

// Client -> server payloads.

type JoinFormRequest struct {
	FormID string `json:"formId"`
}

type UpdateFieldRequest struct {
	ResponseID string         `json:"responseId"`
	FieldID    string         `json:"fieldId"`
	Value      response.Value `json:"value"`
	UserID     string         `json:"userId"`
	Username   string         `json:"username,omitempty"`
}

type TypingRequest struct {
	FormID   string `json:"formId"`
	FieldID  string `json:"fieldId"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
	IsTyping bool   `json:"isTyping"`
}

type CursorMoveRequest struct {
	FormID   string `json:"formId"`
	FieldID  string `json:"fieldId"`
	Position int    `json:"position"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}
