package websocket

import (
	"sync"

	"livechat-service/internal/models"
)

// Registry maps client identities to their live connections. At most one
// visitor connection exists per clientId (a new registration supersedes
// the old one); any number of admin connections may coexist, one per
// open console tab.
//
// The hub dispatches from a single goroutine, but the HTTP fallback
// surface reads the registry from request goroutines, so access is
// guarded.
type Registry struct {
	mu       sync.RWMutex
	visitors map[string]*Client
	admins   map[*Client]struct{}
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		visitors: make(map[string]*Client),
		admins:   make(map[*Client]struct{}),
	}
}

// Register adds a client under its bound identity. For a visitor whose
// clientId already has a live connection it returns the superseded
// client, which the caller must close; the newer connection wins.
func (r *Registry) Register(c *Client) (superseded *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c.Role == models.RoleAdmin {
		r.admins[c] = struct{}{}
		return nil
	}

	prev := r.visitors[c.ID]
	r.visitors[c.ID] = c
	if prev == c {
		return nil
	}
	return prev
}

// Unregister removes a client. A visitor entry is only removed if it
// still points at this exact connection, so unregistering a superseded
// connection never evicts its successor.
func (r *Registry) Unregister(c *Client) (removed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c.Role == models.RoleAdmin {
		if _, ok := r.admins[c]; ok {
			delete(r.admins, c)
			return true
		}
		return false
	}

	if r.visitors[c.ID] == c {
		delete(r.visitors, c.ID)
		return true
	}
	return false
}

// FindVisitor returns the live connection for clientID, or nil.
func (r *Registry) FindVisitor(clientID string) *Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.visitors[clientID]
}

// AllAdmins returns every live admin connection; broadcasts to "admin"
// reach every open console tab.
func (r *Registry) AllAdmins() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	admins := make([]*Client, 0, len(r.admins))
	for c := range r.admins {
		admins = append(admins, c)
	}
	return admins
}

// VisitorCount returns how many visitors currently hold a live
// connection.
func (r *Registry) VisitorCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.visitors)
}
