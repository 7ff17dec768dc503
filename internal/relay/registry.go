package relay

import (
	"sync"
)

// Registry maps connection ids to live connections.
// Writers only run on connect and disconnect; readers take snapshots.
type Registry struct {
	conns map[uint64]*Connection
	mu    sync.RWMutex
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[uint64]*Connection),
	}
}

// Insert adds a connection. Returns ErrDuplicateID if its id is present.
func (r *Registry) Insert(c *Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.conns[c.ID]; exists {
		return ErrDuplicateID
	}
	r.conns[c.ID] = c
	return nil
}

// Remove deletes a connection. Removing an absent id is a no-op.
func (r *Registry) Remove(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, id)
}

// Lookup returns the connections among ids that are still registered,
// in the order of ids.
func (r *Registry) Lookup(ids []uint64) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*Connection, 0, len(ids))
	for _, id := range ids {
		if c, ok := r.conns[id]; ok {
			conns = append(conns, c)
		}
	}
	return conns
}

// Snapshot returns the connections registered at the time of the call.
func (r *Registry) Snapshot() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	return conns
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
