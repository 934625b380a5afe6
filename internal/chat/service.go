package chat

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/skilltrack/messenger/internal/metrics"
	"github.com/skilltrack/messenger/internal/protocol"
)

// previewLen caps the content preview carried by message notifications.
const previewLen = 80

// MessageStore is the persistence surface the service dispatches to. It is
// implemented by *Store; tests substitute an in-memory fake.
type MessageStore interface {
	Create(ctx context.Context, senderID, receiverID int64, content, kind string) (*Message, error)
	Conversation(ctx context.Context, userA, userB int64, page, pageSize int) ([]Message, int, error)
	RecentPerPeer(ctx context.Context, userID int64, page, pageSize int) ([]PeerConversation, int, error)
	Edit(ctx context.Context, messageID, requesterID int64, content string) (*Message, error)
	Delete(ctx context.Context, messageID, requesterID int64) (*Message, error)
	MarkRead(ctx context.Context, peerID, userID int64, ids []int64) ([]int64, error)
}

// FriendChecker reports whether two users have an accepted relationship. It
// is consulted on every send so that a relationship revoked mid-session
// blocks further messages without requiring a disconnect.
type FriendChecker interface {
	Allowed(ctx context.Context, userID, peerID int64) (bool, error)
}

// Directory resolves user identities for presentation and existence checks.
type Directory interface {
	DisplayName(ctx context.Context, userID int64) (string, error)
	Exists(ctx context.Context, userID int64) (bool, error)
}

// Sender delivers an already-encoded event to a single live connection.
// Implementations must not block on the peer's socket: the transport enqueues
// onto a per-connection egress queue and reports a full queue as an error.
type Sender interface {
	Send(connID string, data []byte) error
}

// PresenceView is the read side of the presence registry.
type PresenceView interface {
	IsOnline(userID int64) bool
	ConnectionsOf(userID int64) []string
}

// MembershipView is the read side of the channel membership registry.
type MembershipView interface {
	Members(key string) []string
}

// Hook receives fire-and-forget notifications after successful mutations so
// that downstream collaborators (achievements, activity log) can react.
// Implementations swallow their own failures.
type Hook interface {
	MessageSent(m *Message)
	MessagesRead(readerID, peerID int64, ids []int64)
}

// Service is the real-time dispatcher: the one component that calls the
// friend gate and the message store and performs fan-out. The live event
// handlers and the HTTP facade are both thin adapters over it, so
// authorization and persistence rules never diverge between the two paths.
type Service struct {
	store    MessageStore
	gate     FriendChecker
	dir      Directory
	presence PresenceView
	members  MembershipView
	sender   Sender
	hook     Hook

	// Per-conversation locks held across persist+fan-out so events reach
	// joined connections in commit order. Entries live for the process
	// lifetime; the set is bounded by the number of active conversations.
	keyMu sync.Mutex
	keys  map[string]*sync.Mutex
}

// NewService wires a dispatcher from its collaborators. hook may be nil.
func NewService(store MessageStore, gate FriendChecker, dir Directory,
	presence PresenceView, members MembershipView, sender Sender, hook Hook) *Service {
	return &Service{
		store:    store,
		gate:     gate,
		dir:      dir,
		presence: presence,
		members:  members,
		sender:   sender,
		hook:     hook,
		keys:     make(map[string]*sync.Mutex),
	}
}

func (s *Service) keyLock(key string) *sync.Mutex {
	s.keyMu.Lock()
	defer s.keyMu.Unlock()
	mu, ok := s.keys[key]
	if !ok {
		mu = &sync.Mutex{}
		s.keys[key] = mu
	}
	return mu
}

// Send validates, persists and fans out a new message. Validation failures
// happen before any write; a storage failure aborts with no fan-out.
func (s *Service) Send(ctx context.Context, senderID, receiverID int64, content, kind string) (*Message, error) {
	if senderID == receiverID {
		return nil, fmt.Errorf("%w: cannot message yourself", ErrInvalidArgument)
	}
	content, err := NormalizeContent(content)
	if err != nil {
		return nil, err
	}
	kind, err = NormalizeKind(kind)
	if err != nil {
		return nil, err
	}

	exists, err := s.dir.Exists(ctx, receiverID)
	if err != nil {
		return nil, fmt.Errorf("%w: receiver lookup: %v", ErrInternal, err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: receiver %d does not exist", ErrInvalidArgument, receiverID)
	}

	allowed, err := s.gate.Allowed(ctx, senderID, receiverID)
	if err != nil {
		return nil, fmt.Errorf("%w: relationship check: %v", ErrInternal, err)
	}
	if !allowed {
		return nil, fmt.Errorf("%w: users %d and %d are not connected", ErrForbidden, senderID, receiverID)
	}

	key := ConversationKey(senderID, receiverID)
	mu := s.keyLock(key)
	mu.Lock()
	defer mu.Unlock()

	m, err := s.store.Create(ctx, senderID, receiverID, content, kind)
	if err != nil {
		return nil, err
	}

	s.broadcastNew(ctx, key, m)
	metrics.MessagesTotal.WithLabelValues("sent").Inc()

	if s.hook != nil {
		s.hook.MessageSent(m)
	}
	return m, nil
}

// broadcastNew delivers a created message to every connection joined to the
// conversation and, when the receiver is online but has nothing joined,
// a lightweight notification to the receiver's connections instead.
func (s *Service) broadcastNew(ctx context.Context, key string, m *Message) {
	start := time.Now()
	joined := s.members.Members(key)

	data, err := protocol.NewServerMessage(protocol.TypeNewMessage, protocol.NewMessageMsg{
		Message: Wire(m),
	})
	if err != nil {
		log.Printf("[dispatch] encode new_message id=%d: %v", m.ID, err)
		return
	}
	joinedSet := make(map[string]struct{}, len(joined))
	for _, connID := range joined {
		joinedSet[connID] = struct{}{}
		s.deliver(connID, data)
	}

	// Receiver online with no joined connection: send the notification
	// variant to that user's connections only.
	recvConns := s.presence.ConnectionsOf(m.ReceiverID)
	if len(recvConns) > 0 {
		receiverJoined := false
		for _, connID := range recvConns {
			if _, ok := joinedSet[connID]; ok {
				receiverJoined = true
				break
			}
		}
		if !receiverJoined {
			s.notify(ctx, recvConns, m)
		}
	}
	metrics.BroadcastLatency.Observe(time.Since(start).Seconds())
}

func (s *Service) notify(ctx context.Context, conns []string, m *Message) {
	senderName, err := s.dir.DisplayName(ctx, m.SenderID)
	if err != nil {
		log.Printf("[dispatch] display name for %d: %v", m.SenderID, err)
	}

	preview := m.Content
	if len(preview) > previewLen {
		// Cut on a rune boundary so the preview stays valid UTF-8.
		cut := previewLen
		for cut > 0 && !utf8.RuneStart(preview[cut]) {
			cut--
		}
		preview = preview[:cut]
	}

	data, err := protocol.NewServerMessage(protocol.TypeMessageNotification, protocol.MessageNotificationMsg{
		SenderID:       m.SenderID,
		SenderName:     senderName,
		ContentPreview: preview,
		MessageID:      m.ID,
	})
	if err != nil {
		log.Printf("[dispatch] encode message_notification id=%d: %v", m.ID, err)
		return
	}
	for _, connID := range conns {
		s.deliver(connID, data)
	}
	metrics.NotificationsTotal.Inc()
}

// Edit applies an in-place content edit and broadcasts the change to joined
// connections. Ownership (not the friend gate) guards edits: an existing
// conversation implies prior authorization.
func (s *Service) Edit(ctx context.Context, messageID, requesterID int64, content string) (*Message, error) {
	content, err := NormalizeContent(content)
	if err != nil {
		return nil, err
	}

	m, err := s.store.Edit(ctx, messageID, requesterID, content)
	if err != nil {
		return nil, err
	}

	key := ConversationKey(m.SenderID, m.ReceiverID)
	data, err := protocol.NewServerMessage(protocol.TypeMessageEdited, protocol.MessageEditedMsg{
		Message: Wire(m),
	})
	if err != nil {
		log.Printf("[dispatch] encode message_edited id=%d: %v", m.ID, err)
		return m, nil
	}
	for _, connID := range s.members.Members(key) {
		s.deliver(connID, data)
	}
	metrics.MessagesTotal.WithLabelValues("edited").Inc()
	return m, nil
}

// Delete removes a message permanently and broadcasts the deletion to joined
// connections.
func (s *Service) Delete(ctx context.Context, messageID, requesterID int64) error {
	m, err := s.store.Delete(ctx, messageID, requesterID)
	if err != nil {
		return err
	}

	key := ConversationKey(m.SenderID, m.ReceiverID)
	data, err := protocol.NewServerMessage(protocol.TypeMessageDeleted, protocol.MessageDeletedMsg{
		MessageID: m.ID,
		SenderID:  m.SenderID,
	})
	if err != nil {
		log.Printf("[dispatch] encode message_deleted id=%d: %v", m.ID, err)
		return nil
	}
	for _, connID := range s.members.Members(key) {
		s.deliver(connID, data)
	}
	metrics.MessagesTotal.WithLabelValues("deleted").Inc()
	return nil
}

// MarkRead marks messages from peerID to userID as read and broadcasts the
// transition to joined connections. It is idempotent: a repeat call marks
// nothing and broadcasts nothing. An empty requestedIDs (nil or zero-length)
// means "everything unread"; the broadcast then carries a null id list.
func (s *Service) MarkRead(ctx context.Context, peerID, userID int64, requestedIDs []int64) ([]int64, error) {
	marked, err := s.store.MarkRead(ctx, peerID, userID, requestedIDs)
	if err != nil {
		return nil, err
	}
	if len(marked) == 0 {
		return marked, nil
	}

	key := ConversationKey(peerID, userID)
	announce := marked
	if len(requestedIDs) == 0 {
		announce = nil // whole-conversation transition
	}
	data, err := protocol.NewServerMessage(protocol.TypeMessagesRead, protocol.MessagesReadMsg{
		ReaderID:   userID,
		MessageIDs: announce,
	})
	if err != nil {
		log.Printf("[dispatch] encode messages_read reader=%d: %v", userID, err)
		return marked, nil
	}
	for _, connID := range s.members.Members(key) {
		s.deliver(connID, data)
	}
	metrics.MessagesTotal.WithLabelValues("read").Inc()

	if s.hook != nil {
		s.hook.MessagesRead(userID, peerID, marked)
	}
	return marked, nil
}

// Typing broadcasts a typing indicator to the conversation's joined
// connections, excluding the typist's own. Typing state is ephemeral: it
// never touches the store and the server never expires it.
func (s *Service) Typing(ctx context.Context, userID, peerID int64, isTyping bool) error {
	name, err := s.dir.DisplayName(ctx, userID)
	if err != nil {
		log.Printf("[dispatch] display name for %d: %v", userID, err)
	}

	data, err := protocol.NewServerMessage(protocol.TypeUserTyping, protocol.UserTypingMsg{
		UserID:   userID,
		UserName: name,
		IsTyping: isTyping,
	})
	if err != nil {
		return fmt.Errorf("%w: encode user_typing: %v", ErrInternal, err)
	}

	own := make(map[string]struct{})
	for _, connID := range s.presence.ConnectionsOf(userID) {
		own[connID] = struct{}{}
	}

	key := ConversationKey(userID, peerID)
	for _, connID := range s.members.Members(key) {
		if _, self := own[connID]; self {
			continue
		}
		s.deliver(connID, data)
	}
	return nil
}

// History returns one page of conversation history with a peer. It requires
// an accepted relationship and, as a side effect, marks the peer's unread
// messages as read (announcing the transition to joined connections).
func (s *Service) History(ctx context.Context, userID, peerID int64, page, pageSize int) ([]Message, int, error) {
	allowed, err := s.gate.Allowed(ctx, userID, peerID)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: relationship check: %v", ErrInternal, err)
	}
	if !allowed {
		return nil, 0, fmt.Errorf("%w: users %d and %d are not connected", ErrForbidden, userID, peerID)
	}

	messages, total, err := s.store.Conversation(ctx, userID, peerID, page, pageSize)
	if err != nil {
		return nil, 0, err
	}

	if _, err := s.MarkRead(ctx, peerID, userID, nil); err != nil {
		// The fetch succeeded; a failed read-mark must not fail it.
		log.Printf("[dispatch] mark read on history user=%d peer=%d: %v", userID, peerID, err)
	}
	return messages, total, nil
}

// RecentPerPeer returns one page of the caller's conversation list.
func (s *Service) RecentPerPeer(ctx context.Context, userID int64, page, pageSize int) ([]PeerConversation, int, error) {
	return s.store.RecentPerPeer(ctx, userID, page, pageSize)
}

// Authorized exposes the friend gate for callers that need a pre-check
// (e.g. joining a conversation) without duplicating gate logic.
func (s *Service) Authorized(ctx context.Context, userID, peerID int64) (bool, error) {
	allowed, err := s.gate.Allowed(ctx, userID, peerID)
	if err != nil {
		return false, fmt.Errorf("%w: relationship check: %v", ErrInternal, err)
	}
	return allowed, nil
}

// deliver writes one event to one connection. Failures are logged and never
// propagate: a dead connection is cleaned up by the transport layer.
func (s *Service) deliver(connID string, data []byte) {
	if err := s.sender.Send(connID, data); err != nil {
		log.Printf("[dispatch] send to %s: %v", connID, err)
	}
}
