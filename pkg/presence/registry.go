package presence

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrSendBufferFull is returned by a Conn whose outbound queue is saturated.
var ErrSendBufferFull = errors.New("send buffer full")

// Conn is a live client connection.
type Conn interface {
	// Send queues an outbound event without blocking.
	Send(v any) error
	Close() error
}

// Departure describes a room a client was removed from and who is left.
type Departure struct {
	RoomID    string
	Remaining []string
}

// Membership releases every room a client belongs to.
type Membership interface {
	LeaveAll(clientID string) []Departure
}

// Registry maps live connections to stable client identifiers.
type Registry struct {
	mu         sync.RWMutex
	conns      map[string]Conn
	membership Membership
	newID      func() string
}

// NewRegistry builds a registry that releases memberships through m on unregister.
func NewRegistry(m Membership) *Registry {
	return &Registry{
		conns:      make(map[string]Conn),
		membership: m,
		newID:      uuid.NewString,
	}
}

// Register assigns a fresh identifier to conn. Identifiers are never reused.
func (r *Registry) Register(conn Conn) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.newID()
	for _, taken := r.conns[id]; taken; _, taken = r.conns[id] {
		id = r.newID()
	}
	r.conns[id] = conn
	return id
}

// Unregister removes the client and all of its memberships, returning the
// rooms it departed. Unknown or already removed ids yield nil.
func (r *Registry) Unregister(id string) []Departure {
	r.mu.Lock()
	_, ok := r.conns[id]
	delete(r.conns, id)
	r.mu.Unlock()
	if !ok || r.membership == nil {
		return nil
	}
	return r.membership.LeaveAll(id)
}

// Lookup resolves a client identifier to its live connection.
func (r *Registry) Lookup(id string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	return c, ok
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Conns returns the live connections at the time of the call.
func (r *Registry) Conns() []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Conn, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}
