// Package chat implements the direct-messaging core: the message model, the
// conversation key resolver, the Postgres-backed message store, and the
// shared dispatch service that both the live WebSocket path and the HTTP API
// call into.
package chat

import (
	"fmt"
	"time"

	"github.com/skilltrack/messenger/internal/protocol"
)

// Message kinds.
const (
	KindText  = "text"
	KindImage = "image"
	KindFile  = "file"
)

// Message is a persisted direct message between two users. The store assigns
// the identity; identities are monotonically increasing and serve as the
// ordering tiebreaker within a creation timestamp.
type Message struct {
	ID         int64
	SenderID   int64
	ReceiverID int64
	Content    string
	Kind       string
	IsRead     bool
	IsEdited   bool
	EditedAt   *time.Time
	CreatedAt  time.Time
}

// ConversationKey returns the canonical identifier for the 1:1 conversation
// between two users. The key is order-independent: swapping the arguments
// yields the same key. It is used only to route live events to broadcast
// groups, never as a storage key.
func ConversationKey(a, b int64) string {
	if b < a {
		a, b = b, a
	}
	return fmt.Sprintf("chat_%d_%d", a, b)
}

// Wire converts a message to its wire representation shared by the live path
// and the HTTP API.
func Wire(m *Message) protocol.MessageBody {
	body := protocol.MessageBody{
		ID:         m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Content:    m.Content,
		Kind:       m.Kind,
		IsRead:     m.IsRead,
		IsEdited:   m.IsEdited,
		CreatedAt:  m.CreatedAt.Unix(),
	}
	if m.EditedAt != nil {
		ts := m.EditedAt.Unix()
		body.EditedAt = &ts
	}
	return body
}
