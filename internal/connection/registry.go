package connection

import (
	"sync"

	"github.com/1ureka/drawsync/internal/transport"
	"github.com/1ureka/drawsync/internal/util"
)

// Registry maps session ids to Connections. It hands out the same instance
// for an id until that instance retires, and holds at most max entries.
type Registry struct {
	dialer transport.Dialer
	max    int

	mu    sync.Mutex
	conns map[string]*Connection

	evictHooks hookList[func(id string, c *Connection)]
}

// NewRegistry returns a registry whose connections dial through dialer.
// max <= 0 means unbounded.
func NewRegistry(dialer transport.Dialer, max int) *Registry {
	return &Registry{
		dialer: dialer,
		max:    max,
		conns:  make(map[string]*Connection),
	}
}

// OnEvict registers fn for every connection that leaves the registry,
// whether evicted explicitly, pushed out by the size bound, or replaced
// after retiring. fn runs after the connection has been closed.
func (r *Registry) OnEvict(fn func(id string, c *Connection)) func() {
	return r.evictHooks.add(fn)
}

// Resolve returns the connection for id, creating one when none exists or
// the existing one has retired. created reports whether a new instance
// was made; a replacement inherits its predecessor's queued messages.
//
// Reuse is decided by Retired, not IsHealthy: an unhealthy connection that
// is still Connecting or Reconnecting is returned as is, and its own
// supervisor brings it back. Only a connection that gave up (Failed) or was
// closed on request is replaced.
func (r *Registry) Resolve(id string) (c *Connection, created bool) {
	r.mu.Lock()

	old, ok := r.conns[id]
	if ok && !old.Retired() {
		r.mu.Unlock()
		return old, false
	}

	var removed []*Connection
	var removedIDs []string
	if ok {
		delete(r.conns, id)
		removed = append(removed, old)
		removedIDs = append(removedIDs, id)
	}
	for r.max > 0 && len(r.conns) >= r.max {
		vid, victim := r.leastRecentlyHealthyLocked()
		delete(r.conns, vid)
		removed = append(removed, victim)
		removedIDs = append(removedIDs, vid)
	}

	c = New(id, r.dialer)
	if old != nil {
		c.Adopt(old.TakePending())
	}
	r.conns[id] = c
	r.mu.Unlock()

	for i, gone := range removed {
		if gone != old {
			util.LogInfo("evicting connection %s (registry full)", removedIDs[i])
		}
		r.retire(removedIDs[i], gone)
	}
	return c, true
}

// Get returns the registered connection for id without creating one.
func (r *Registry) Get(id string) (*Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[id]
	return c, ok
}

// Evict closes and removes the connection for id. It reports whether one
// was registered.
func (r *Registry) Evict(id string) bool {
	r.mu.Lock()
	c, ok := r.conns[id]
	if ok {
		delete(r.conns, id)
	}
	r.mu.Unlock()

	if ok {
		r.retire(id, c)
	}
	return ok
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// IDs returns the registered session ids in no particular order.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	return ids
}

// CloseAll evicts every connection.
func (r *Registry) CloseAll() {
	for _, id := range r.IDs() {
		r.Evict(id)
	}
}

func (r *Registry) leastRecentlyHealthyLocked() (string, *Connection) {
	var (
		victimID string
		victim   *Connection
	)
	for id, c := range r.conns {
		if victim == nil || c.LastHealthy().Before(victim.LastHealthy()) {
			victimID, victim = id, c
		}
	}
	return victimID, victim
}

func (r *Registry) retire(id string, c *Connection) {
	if err := c.Close(); err != nil {
		util.LogDebug("[%s] close during eviction: %v", id, err)
	}
	r.evictHooks.each("evict", func(fn func(string, *Connection)) { fn(id, c) })
}
