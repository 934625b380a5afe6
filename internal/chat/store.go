package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// Default and maximum page sizes for paginated queries.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Store is the single source of truth for conversation history, read state
// and edit state. It persists messages in PostgreSQL; row-level atomicity of
// single-statement updates is the only concurrency control it needs.
type Store struct {
	db *sql.DB
}

// NewStore creates a message store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// PeerConversation is one entry in the "list my conversations" view: the most
// recent message exchanged with a peer plus the number of unread messages
// from that peer.
type PeerConversation struct {
	PeerID      int64
	LastMessage Message
	UnreadCount int
}

const messageColumns = `id, sender_id, receiver_id, content, kind, is_read, is_edited, edited_at, created_at`

func scanMessage(row interface{ Scan(...interface{}) error }) (*Message, error) {
	var (
		m        Message
		editedAt sql.NullTime
	)
	err := row.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Content, &m.Kind,
		&m.IsRead, &m.IsEdited, &editedAt, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	if editedAt.Valid {
		t := editedAt.Time
		m.EditedAt = &t
	}
	return &m, nil
}

// Create persists a new message and returns it with the store-assigned
// identity and creation timestamp. Content and kind are assumed to be
// normalized by the caller.
func (s *Store) Create(ctx context.Context, senderID, receiverID int64, content, kind string) (*Message, error) {
	const query = `
		INSERT INTO messages (sender_id, receiver_id, content, kind)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	m := &Message{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		Kind:       kind,
	}
	err := s.db.QueryRowContext(ctx, query, senderID, receiverID, content, kind).
		Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: insert message: %v", ErrInternal, err)
	}
	return m, nil
}

// Get returns a single message by identity.
func (s *Store) Get(ctx context.Context, id int64) (*Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = $1`

	m, err := scanMessage(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: message %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get message: %v", ErrInternal, err)
	}
	return m, nil
}

// Conversation returns one page of the message history between two users in
// chronological order (oldest first), plus the total message count for
// page-count computation. The storage query is newest-first so that page 1
// always holds the latest messages; the page is reversed before returning.
func (s *Store) Conversation(ctx context.Context, userA, userB int64, page, pageSize int) ([]Message, int, error) {
	page, pageSize = normalizePage(page, pageSize)

	const countQuery = `
		SELECT COUNT(*) FROM messages
		WHERE (sender_id = $1 AND receiver_id = $2)
		   OR (sender_id = $2 AND receiver_id = $1)`

	var total int
	if err := s.db.QueryRowContext(ctx, countQuery, userA, userB).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("%w: count conversation: %v", ErrInternal, err)
	}

	query := `
		SELECT ` + messageColumns + ` FROM messages
		WHERE (sender_id = $1 AND receiver_id = $2)
		   OR (sender_id = $2 AND receiver_id = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4`

	rows, err := s.db.QueryContext(ctx, query, userA, userB, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: query conversation: %v", ErrInternal, err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: scan message: %v", ErrInternal, err)
		}
		messages = append(messages, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("%w: iterate conversation: %v", ErrInternal, err)
	}

	// Reverse newest-first storage order into chronological order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, total, nil
}

// RecentPerPeer returns, for each distinct peer the user has exchanged
// messages with, the single most recent message plus the count of unread
// messages from that peer. Peers are discovered by scanning every message
// touching the user and grouping by the other participant in application
// logic. The returned slice is ordered by the last message's recency; total
// is the number of distinct peers.
func (s *Store) RecentPerPeer(ctx context.Context, userID int64, page, pageSize int) ([]PeerConversation, int, error) {
	page, pageSize = normalizePage(page, pageSize)

	query := `
		SELECT ` + messageColumns + ` FROM messages
		WHERE sender_id = $1 OR receiver_id = $1
		ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: query recent per peer: %v", ErrInternal, err)
	}
	defer rows.Close()

	var (
		order  []int64
		latest = make(map[int64]*PeerConversation)
	)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: scan message: %v", ErrInternal, err)
		}

		peer := m.SenderID
		if peer == userID {
			peer = m.ReceiverID
		}

		entry, seen := latest[peer]
		if !seen {
			// First hit in newest-first order is the most recent message.
			entry = &PeerConversation{PeerID: peer, LastMessage: *m}
			latest[peer] = entry
			order = append(order, peer)
		}
		if m.ReceiverID == userID && !m.IsRead {
			entry.UnreadCount++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("%w: iterate recent per peer: %v", ErrInternal, err)
	}

	total := len(order)
	start := (page - 1) * pageSize
	if start >= total {
		return []PeerConversation{}, total, nil
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	result := make([]PeerConversation, 0, end-start)
	for _, peer := range order[start:end] {
		result = append(result, *latest[peer])
	}
	return result, total, nil
}

// Edit replaces a message's content. Only the sender may edit; the first edit
// sets is_edited permanently and every edit refreshes edited_at. The update is
// a single statement conditioned on id AND sender, so a concurrent delete can
// never be observed as anything but not-found.
func (s *Store) Edit(ctx context.Context, messageID, requesterID int64, content string) (*Message, error) {
	query := `
		UPDATE messages
		SET content = $1, is_edited = TRUE, edited_at = NOW()
		WHERE id = $2 AND sender_id = $3
		RETURNING ` + messageColumns

	m, err := scanMessage(s.db.QueryRowContext(ctx, query, content, messageID, requesterID))
	if errors.Is(err, sql.ErrNoRows) {
		// Zero rows: the message is gone or the requester is not the sender.
		// Look it up to report which.
		if _, getErr := s.Get(ctx, messageID); getErr != nil {
			return nil, getErr
		}
		return nil, fmt.Errorf("%w: only the sender may edit message %d", ErrForbidden, messageID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: update message: %v", ErrInternal, err)
	}
	return m, nil
}

// Delete removes a message permanently. Only the sender may delete; there is
// no tombstone. Like Edit, the statement is conditioned on id AND sender.
func (s *Store) Delete(ctx context.Context, messageID, requesterID int64) (*Message, error) {
	query := `
		DELETE FROM messages
		WHERE id = $1 AND sender_id = $2
		RETURNING ` + messageColumns

	m, err := scanMessage(s.db.QueryRowContext(ctx, query, messageID, requesterID))
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := s.Get(ctx, messageID); getErr != nil {
			return nil, getErr
		}
		return nil, fmt.Errorf("%w: only the sender may delete message %d", ErrForbidden, messageID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: delete message: %v", ErrInternal, err)
	}
	return m, nil
}

// MarkRead marks messages from peerID to userID as read and returns the
// identities of the messages that actually transitioned. When ids is empty,
// every unread message from the peer is marked. The operation is idempotent:
// already-read messages are left untouched and a repeat call marks nothing.
func (s *Store) MarkRead(ctx context.Context, peerID, userID int64, ids []int64) ([]int64, error) {
	query := `
		UPDATE messages
		SET is_read = TRUE
		WHERE sender_id = $1 AND receiver_id = $2 AND is_read = FALSE`
	args := []interface{}{peerID, userID}

	if len(ids) > 0 {
		query += ` AND id = ANY($3)`
		args = append(args, pq.Array(ids))
	}
	query += ` RETURNING id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: mark read: %v", ErrInternal, err)
	}
	defer rows.Close()

	var marked []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%w: scan marked id: %v", ErrInternal, err)
		}
		marked = append(marked, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate marked ids: %v", ErrInternal, err)
	}
	return marked, nil
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return page, pageSize
}
