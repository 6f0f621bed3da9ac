package ws

import (
	"slices"
	"sync"
)

// Connection is a live push channel to one client.
type Connection interface {
	ID() string
	Send(payload []byte) error
	Close() error
}

// Registry maps a user id to the set of that user's open connections.
type Registry struct {
	mu    sync.RWMutex
	conns map[int64]map[Connection]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[int64]map[Connection]struct{})}
}

// Register adds conn to the user's live set.
func (r *Registry) Register(userID int64, conn Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.conns[userID]
	if !ok {
		set = make(map[Connection]struct{})
		r.conns[userID] = set
	}
	set[conn] = struct{}{}
}

// Unregister removes conn and drops the user once no connection is left.
// It reports whether conn was registered.
func (r *Registry) Unregister(userID int64, conn Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.conns[userID]
	if !ok {
		return false
	}
	if _, ok := set[conn]; !ok {
		return false
	}
	delete(set, conn)
	if len(set) == 0 {
		delete(r.conns, userID)
	}
	return true
}

// ConnectionsFor returns a snapshot of the user's connections.
func (r *Registry) ConnectionsFor(userID int64) []Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.conns[userID]
	out := make([]Connection, 0, len(set))
	for conn := range set {
		out = append(out, conn)
	}
	return out
}

// Count returns how many connections userID has open.
func (r *Registry) Count(userID int64) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns[userID])
}

// Users lists the ids with at least one connection, ascending.
func (r *Registry) Users() []int64 {
	r.mu.RLock()
	ids := make([]int64, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	slices.Sort(ids)
	return ids
}
