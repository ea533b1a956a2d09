// Package presence tracks which users hold a live connection to this process.
package presence

import "sync"

// Handle is a live connection as seen by the registry.
type Handle interface {
	comparable
	ConnectionID() string
}

// Entry pairs a user with the connection currently registered for them.
type Entry[C Handle] struct {
	UserID string
	Conn   C
}

// Registry maps user identities to exactly one connection each.
// The most recent registration for a user wins.
type Registry[C Handle] struct {
	mu      sync.RWMutex
	byUser  map[string]C
	ordered []string // user ids in insertion order
}

// NewRegistry creates an empty registry.
func NewRegistry[C Handle]() *Registry[C] {
	return &Registry[C]{
		byUser: make(map[string]C),
	}
}

// Register inserts or replaces the entry for userID and returns the
// resulting snapshot. A replaced entry moves to the end of the order.
func (r *Registry[C]) Register(userID string, conn C) []Entry[C] {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byUser[userID]; exists {
		r.removeOrderLocked(userID)
	}
	r.byUser[userID] = conn
	r.ordered = append(r.ordered, userID)

	return r.snapshotLocked()
}

// Unregister removes the entry whose connection equals conn.
// It reports whether anything was removed; a connection that was already
// superseded by a newer registration is left alone.
func (r *Registry[C]) Unregister(conn C) (bool, []Entry[C]) {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := false
	for userID, registered := range r.byUser {
		if registered != conn {
			continue
		}
		delete(r.byUser, userID)
		r.removeOrderLocked(userID)
		removed = true
	}

	return removed, r.snapshotLocked()
}

// Lookup returns the connection registered for userID.
func (r *Registry[C]) Lookup(userID string) (C, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.byUser[userID]
	return conn, ok
}

// Snapshot returns all entries in insertion order.
func (r *Registry[C]) Snapshot() []Entry[C] {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.snapshotLocked()
}

// Len returns the number of online users.
func (r *Registry[C]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.byUser)
}

func (r *Registry[C]) snapshotLocked() []Entry[C] {
	entries := make([]Entry[C], 0, len(r.ordered))
	for _, userID := range r.ordered {
		entries = append(entries, Entry[C]{UserID: userID, Conn: r.byUser[userID]})
	}
	return entries
}

func (r *Registry[C]) removeOrderLocked(userID string) {
	for i, id := range r.ordered {
		if id == userID {
			r.ordered = append(r.ordered[:i], r.ordered[i+1:]...)
			return
		}
	}
}
