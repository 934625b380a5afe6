// Package friends answers the one question the messaging service asks about
// relationships: may these two users message each other? The relationship
// data itself is owned by the main application; this package only reads it.
package friends

import (
	"context"
	"database/sql"
	"fmt"
)

// Gate reports whether two users have an accepted relationship. It is
// consulted on every send and on every history fetch, never cached, so that
// a revoked relationship takes effect immediately.
type Gate interface {
	Allowed(ctx context.Context, userID, peerID int64) (bool, error)
}

// SQLGate checks the friendships table directly. A row counts in either
// direction (requester/addressee) as long as its status is accepted.
type SQLGate struct {
	db *sql.DB
}

// NewSQLGate creates a gate over the given database handle.
func NewSQLGate(db *sql.DB) *SQLGate {
	return &SQLGate{db: db}
}

// Allowed reports whether userID and peerID share an accepted friendship.
// A user is never friends with themselves.
func (g *SQLGate) Allowed(ctx context.Context, userID, peerID int64) (bool, error) {
	if userID == peerID {
		return false, nil
	}

	var exists bool
	err := g.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM friendships
			WHERE status = 'accepted'
			  AND ((user_id = $1 AND friend_id = $2)
			    OR (user_id = $2 AND friend_id = $1))
		)`, userID, peerID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("friends: check %d<->%d: %w", userID, peerID, err)
	}
	return exists, nil
}
