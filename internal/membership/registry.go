// Package membership maps live connections to the conversations they have
// joined. Joining a conversation is what switches a connection from receiving
// lightweight notifications to receiving full message broadcasts.
package membership

import "sync"

// Registry is an in-memory two-way index between connection IDs and
// conversation keys. Every mutation keeps both directions consistent.
type Registry struct {
	mu     sync.RWMutex
	byConn map[string]map[string]struct{} // connID -> conversation keys
	byKey  map[string]map[string]struct{} // conversation key -> connIDs
}

// NewRegistry creates an empty membership registry.
func NewRegistry() *Registry {
	return &Registry{
		byConn: make(map[string]map[string]struct{}),
		byKey:  make(map[string]map[string]struct{}),
	}
}

// Join adds the connection to the conversation. Joining twice is a no-op.
func (r *Registry) Join(connID, key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.byConn[connID] == nil {
		r.byConn[connID] = make(map[string]struct{})
	}
	r.byConn[connID][key] = struct{}{}

	if r.byKey[key] == nil {
		r.byKey[key] = make(map[string]struct{})
	}
	r.byKey[key][connID] = struct{}{}
}

// Leave removes the connection from one conversation.
func (r *Registry) Leave(connID, key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if keys, ok := r.byConn[connID]; ok {
		delete(keys, key)
		if len(keys) == 0 {
			delete(r.byConn, connID)
		}
	}
	if conns, ok := r.byKey[key]; ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(r.byKey, key)
		}
	}
}

// DropConnection removes the connection from every conversation it joined.
// Called on disconnect so that dead connections never receive broadcasts.
func (r *Registry) DropConnection(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys, ok := r.byConn[connID]
	if !ok {
		return
	}
	for key := range keys {
		if conns, ok := r.byKey[key]; ok {
			delete(conns, connID)
			if len(conns) == 0 {
				delete(r.byKey, key)
			}
		}
	}
	delete(r.byConn, connID)
}

// Members returns a snapshot of the connection IDs joined to a conversation.
func (r *Registry) Members(key string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns, ok := r.byKey[key]
	if !ok || len(conns) == 0 {
		return nil
	}
	out := make([]string, 0, len(conns))
	for connID := range conns {
		out = append(out, connID)
	}
	return out
}

// IsMember reports whether the connection has joined the conversation.
func (r *Registry) IsMember(connID, key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns, ok := r.byKey[key]
	if !ok {
		return false
	}
	_, member := conns[connID]
	return member
}
