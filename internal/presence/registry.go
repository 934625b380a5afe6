// Package presence tracks which users currently hold live WebSocket
// connections. A user is online while at least one connection is registered;
// the registry detects the offline->online and online->offline edges so that
// callers can broadcast each transition exactly once.
package presence

import "sync"

// entry holds the live connection set for one user. Each entry carries its
// own mutex so that concurrent connects and disconnects for the same user
// serialize without contending with other users.
type entry struct {
	mu    sync.Mutex
	conns map[string]struct{}
}

// Registry is an in-memory user -> connection-set index. Entries are retained
// after a user's last disconnect; the map only grows with the number of
// distinct users seen, which keeps lock ordering trivial (registry lock, then
// entry lock, never both held across user boundaries).
type Registry struct {
	mu    sync.RWMutex
	users map[int64]*entry
}

// NewRegistry creates an empty presence registry.
func NewRegistry() *Registry {
	return &Registry{users: make(map[int64]*entry)}
}

func (r *Registry) entryFor(userID int64) *entry {
	r.mu.RLock()
	e, ok := r.users[userID]
	r.mu.RUnlock()
	if ok {
		return e
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok = r.users[userID]; ok {
		return e
	}
	e = &entry{conns: make(map[string]struct{})}
	r.users[userID] = e
	return e
}

// Connect registers a connection for a user. It returns true when this is the
// user's first live connection, i.e. the user just came online.
func (r *Registry) Connect(userID int64, connID string) (cameOnline bool) {
	e := r.entryFor(userID)
	e.mu.Lock()
	defer e.mu.Unlock()

	cameOnline = len(e.conns) == 0
	e.conns[connID] = struct{}{}
	return cameOnline
}

// Disconnect removes a connection for a user. It returns true when this was
// the user's last live connection, i.e. the user just went offline.
// Disconnecting an unknown connection is a no-op.
func (r *Registry) Disconnect(userID int64, connID string) (wentOffline bool) {
	e := r.entryFor(userID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.conns[connID]; !ok {
		return false
	}
	delete(e.conns, connID)
	return len(e.conns) == 0
}

// IsOnline reports whether the user has at least one live connection.
func (r *Registry) IsOnline(userID int64) bool {
	r.mu.RLock()
	e, ok := r.users[userID]
	r.mu.RUnlock()
	if !ok {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.conns) > 0
}

// ConnectionsOf returns a snapshot of the user's live connection IDs.
func (r *Registry) ConnectionsOf(userID int64) []string {
	r.mu.RLock()
	e, ok := r.users[userID]
	r.mu.RUnlock()
	if !ok {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.conns) == 0 {
		return nil
	}
	conns := make([]string, 0, len(e.conns))
	for connID := range e.conns {
		conns = append(conns, connID)
	}
	return conns
}

// OnlineCount returns the number of distinct users currently online.
func (r *Registry) OnlineCount() int {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.users))
	for _, e := range r.users {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	count := 0
	for _, e := range entries {
		e.mu.Lock()
		if len(e.conns) > 0 {
			count++
		}
		e.mu.Unlock()
	}
	return count
}
