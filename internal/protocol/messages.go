// Package protocol defines the WebSocket message types and structures used
// for communication between the client and the messaging server. All messages
// are serialized as JSON and follow a consistent envelope format with a type
// discriminator.
package protocol

import (
	"encoding/json"
	"fmt"
)

// ---------------------------------------------------------------------------
// Message type constants
// ---------------------------------------------------------------------------

// Client -> Server message types.
const (
	TypeJoinChat    = "join_chat"
	TypeLeaveChat   = "leave_chat"
	TypeSendMessage = "send_message"
	TypeTypingStart = "typing_start"
	TypeTypingStop  = "typing_stop"
	TypeMarkRead    = "mark_read"
	TypePing        = "ping"
)

// Server -> Client message types.
const (
	TypeChatJoined          = "chat_joined"
	TypeNewMessage          = "new_message"
	TypeMessageNotification = "message_notification"
	TypeMessageEdited       = "message_edited"
	TypeMessageDeleted      = "message_deleted"
	TypeUserTyping          = "user_typing"
	TypeMessagesRead        = "messages_read"
	TypePresence            = "presence"
	TypeError               = "error"
	TypePong                = "pong"
)

// Presence status values carried by PresenceMsg.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// ---------------------------------------------------------------------------
// Envelope — used for initial JSON parsing to extract the type discriminator.
// ---------------------------------------------------------------------------

// Envelope holds the message type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON implements the json.Unmarshaler interface. It captures the
// full raw bytes and extracts only the "type" field so that the rest of the
// payload can be decoded later into the appropriate concrete struct.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	// Capture the full raw message for deferred parsing.
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	// Extract only the type field.
	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Client -> Server message structs
// ---------------------------------------------------------------------------

// JoinChatMsg is sent by the client to join the conversation with a peer so
// that subsequent events for that conversation are delivered in full.
type JoinChatMsg struct {
	Type   string `json:"type"`
	PeerID int64  `json:"peer_id"`
}

// LeaveChatMsg is sent by the client to leave a conversation it previously
// joined, dropping back to notification-only delivery for that peer.
type LeaveChatMsg struct {
	Type   string `json:"type"`
	PeerID int64  `json:"peer_id"`
}

// SendMessageMsg is sent by the client to deliver a direct message to a peer.
// Kind is optional and defaults to "text".
type SendMessageMsg struct {
	Type       string `json:"type"`
	ReceiverID int64  `json:"receiver_id"`
	Content    string `json:"content"`
	Kind       string `json:"kind"`
}

// TypingStartMsg signals that the client has started typing to a peer.
type TypingStartMsg struct {
	Type   string `json:"type"`
	PeerID int64  `json:"peer_id"`
}

// TypingStopMsg signals that the client has stopped typing to a peer. The
// server never expires typing state on its own; clients own clearing it.
type TypingStopMsg struct {
	Type   string `json:"type"`
	PeerID int64  `json:"peer_id"`
}

// MarkReadMsg marks messages from a peer as read. If MessageIDs is empty,
// every unread message from the peer is marked.
type MarkReadMsg struct {
	Type       string  `json:"type"`
	PeerID     int64   `json:"peer_id"`
	MessageIDs []int64 `json:"message_ids,omitempty"`
}

// PingMsg is a client-initiated keepalive ping.
type PingMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Server -> Client message structs
// ---------------------------------------------------------------------------

// MessageBody is the wire representation of a persisted direct message,
// shared by the live path and the HTTP API. Timestamps are unix seconds.
type MessageBody struct {
	ID         int64  `json:"id"`
	SenderID   int64  `json:"sender_id"`
	ReceiverID int64  `json:"receiver_id"`
	Content    string `json:"content"`
	Kind       string `json:"kind"`
	IsRead     bool   `json:"is_read"`
	IsEdited   bool   `json:"is_edited"`
	EditedAt   *int64 `json:"edited_at,omitempty"`
	CreatedAt  int64  `json:"created_at"`
}

// ChatJoinedMsg confirms that the connection joined a conversation.
type ChatJoinedMsg struct {
	Type            string `json:"type"`
	ConversationKey string `json:"conversation_key"`
	PeerID          int64  `json:"peer_id"`
}

// NewMessageMsg carries a freshly persisted message to every connection
// joined to the conversation.
type NewMessageMsg struct {
	Type    string      `json:"type"`
	Message MessageBody `json:"message"`
}

// MessageNotificationMsg is the lightweight variant delivered to a receiver
// who is online but has no connection joined to the conversation.
type MessageNotificationMsg struct {
	Type           string `json:"type"`
	SenderID       int64  `json:"sender_id"`
	SenderName     string `json:"sender_name"`
	ContentPreview string `json:"content_preview"`
	MessageID      int64  `json:"message_id"`
}

// MessageEditedMsg announces an in-place edit to joined connections.
type MessageEditedMsg struct {
	Type    string      `json:"type"`
	Message MessageBody `json:"message"`
}

// MessageDeletedMsg announces a hard delete to joined connections.
type MessageDeletedMsg struct {
	Type      string `json:"type"`
	MessageID int64  `json:"message_id"`
	SenderID  int64  `json:"sender_id"`
}

// UserTypingMsg relays a peer's typing indicator.
type UserTypingMsg struct {
	Type     string `json:"type"`
	UserID   int64  `json:"user_id"`
	UserName string `json:"user_name"`
	IsTyping bool   `json:"is_typing"`
}

// MessagesReadMsg announces a read-state transition. MessageIDs is null when
// the reader marked the whole conversation.
type MessagesReadMsg struct {
	Type       string  `json:"type"`
	ReaderID   int64   `json:"reader_id"`
	MessageIDs []int64 `json:"message_ids"`
}

// PresenceMsg announces a user's online/offline transition to all other
// connections.
type PresenceMsg struct {
	Type   string `json:"type"`
	UserID int64  `json:"user_id"`
	Status string `json:"status"`
	Ts     int64  `json:"ts"`
}

// ErrorMsg is sent by the server to communicate an error condition, scoped to
// the single connection whose action failed.
type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PongMsg is the server's response to a client ping.
type PongMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// ParseClientMessage parses raw WebSocket bytes into a typed client message.
// It returns the message type string, the decoded struct, and any error
// encountered during parsing. An error is returned for unknown or
// server-only message types.
func ParseClientMessage(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse message: %w", err)
	}

	var (
		msg interface{}
		err error
	)

	switch env.Type {
	case TypeJoinChat:
		var m JoinChatMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeLeaveChat:
		var m LeaveChatMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeSendMessage:
		var m SendMessageMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeTypingStart:
		var m TypingStartMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeTypingStop:
		var m TypingStopMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeMarkRead:
		var m MarkReadMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypePing:
		var m PingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown client message type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}

// NewServerMessage creates a JSON-encoded byte slice for a server message.
// The msgType is injected into the payload under the "type" key. The payload
// should be one of the *Msg structs; this function marshals it to JSON,
// injects the type field, and returns the final bytes.
func NewServerMessage(msgType string, payload interface{}) ([]byte, error) {
	// Marshal the payload struct to a generic map so we can ensure the "type"
	// field is present and correct.
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal payload into map: %w", err)
	}

	m["type"] = msgType

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal server message: %w", err)
	}
	return out, nil
}
