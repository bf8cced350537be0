// Package server keeps the live-client registry: the single shared mapping
// from session id to connection handle.
package server

import (
	"fmt"
	"slices"
	"sync"

	"github.com/samber/lo"
)

// RegistryEntry is one element of a registry snapshot.
type RegistryEntry struct {
	ID   string
	Conn Conn
}

type registered struct {
	conn  Conn
	order uint64
}

// Registry maps session ids to their connection handles. Every operation holds
// the lock only for the map access itself, never across network I/O.
type Registry struct {
	mu      sync.Mutex
	clients map[string]registered
	next    uint64
	closed  bool
}

// NewRegistry returns an empty registry ready for use.
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]registered),
	}
}

// Register inserts a live session. A second registration of an id that is
// still present fails with ErrDuplicateSession; after Drain every call fails
// with ErrServerClosed.
func (r *Registry) Register(id string, conn Conn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrServerClosed
	}
	if _, exists := r.clients[id]; exists {
		return fmt.Errorf("register %s: %w", id, ErrDuplicateSession)
	}
	r.next++
	r.clients[id] = registered{conn: conn, order: r.next}
	return nil
}

// Unregister removes id and reports whether it was present. Removing an absent
// id is a no-op.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.clients[id]; !exists {
		return false
	}
	delete(r.clients, id)
	return true
}

// remove deletes id only while it still maps to conn, so a stale snapshot or a
// rejected duplicate can never evict a different live session.
func (r *Registry) remove(id string, conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.clients[id]
	if !exists || entry.conn != conn {
		return false
	}
	delete(r.clients, id)
	return true
}

// Snapshot returns a point-in-time copy of the registry in registration order.
// Callers iterate the copy, never the live map.
func (r *Registry) Snapshot() []RegistryEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.snapshotLocked()
}

// Drain takes a final snapshot, clears the registry and refuses further
// registrations.
func (r *Registry) Drain() []RegistryEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.snapshotLocked()
	r.clients = make(map[string]registered)
	r.closed = true
	return entries
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// IDs lists the registered session ids in registration order.
func (r *Registry) IDs() []string {
	return lo.Map(r.Snapshot(), func(e RegistryEntry, _ int) string {
		return e.ID
	})
}

func (r *Registry) snapshotLocked() []RegistryEntry {
	type ordered struct {
		RegistryEntry
		order uint64
	}
	items := make([]ordered, 0, len(r.clients))
	for id, entry := range r.clients {
		items = append(items, ordered{RegistryEntry{ID: id, Conn: entry.conn}, entry.order})
	}
	slices.SortFunc(items, func(a, b ordered) int {
		switch {
		case a.order < b.order:
			return -1
		case a.order > b.order:
			return 1
		}
		return 0
	})
	return lo.Map(items, func(item ordered, _ int) RegistryEntry {
		return item.RegistryEntry
	})
}
