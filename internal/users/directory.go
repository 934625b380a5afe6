// Package users adapts the main application's user records for the messaging
// service: display names for notification payloads and existence checks for
// send validation. Names are cached in Redis because notification fan-out
// looks them up on the hot path.
package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	nameCachePrefix = "user:name:"
	nameCacheTTL    = 10 * time.Minute
)

// Profile is the slice of a user record the messaging service exposes.
type Profile struct {
	ID          int64
	DisplayName string
	AvatarURL   string
}

// Directory reads user records from Postgres with a Redis read-through cache
// for display names. Cache failures degrade to database reads.
type Directory struct {
	db  *sql.DB
	rdb *redis.Client
}

// NewDirectory creates a directory. rdb may be nil to disable caching.
func NewDirectory(db *sql.DB, rdb *redis.Client) *Directory {
	return &Directory{db: db, rdb: rdb}
}

// Exists reports whether a user record exists.
func (d *Directory) Exists(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	err := d.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("users: exists %d: %w", userID, err)
	}
	return exists, nil
}

// DisplayName returns the user's display name, from cache when possible.
// Unknown users resolve to an empty name without error; callers render
// notifications with whatever they get.
func (d *Directory) DisplayName(ctx context.Context, userID int64) (string, error) {
	key := fmt.Sprintf("%s%d", nameCachePrefix, userID)

	if d.rdb != nil {
		name, err := d.rdb.Get(ctx, key).Result()
		if err == nil {
			return name, nil
		}
		if !errors.Is(err, redis.Nil) {
			log.Printf("[users] redis GET %s: %v (falling back to database)", key, err)
		}
	}

	var name string
	err := d.db.QueryRowContext(ctx,
		`SELECT display_name FROM users WHERE id = $1`, userID).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("users: display name %d: %w", userID, err)
	}

	if d.rdb != nil {
		if err := d.rdb.Set(ctx, key, name, nameCacheTTL).Err(); err != nil {
			log.Printf("[users] redis SET %s: %v", key, err)
		}
	}
	return name, nil
}

// Get returns the user's profile, or nil when no such user exists.
func (d *Directory) Get(ctx context.Context, userID int64) (*Profile, error) {
	p := &Profile{ID: userID}
	var avatar sql.NullString
	err := d.db.QueryRowContext(ctx,
		`SELECT display_name, avatar_url FROM users WHERE id = $1`, userID).
		Scan(&p.DisplayName, &avatar)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("users: get %d: %w", userID, err)
	}
	p.AvatarURL = avatar.String
	return p, nil
}
