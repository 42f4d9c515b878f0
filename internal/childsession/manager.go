// Package childsession implements the Child Session Manager: for adapters that use a reverse
// `startDebugging` request (js-debug attaching to a worker thread or a
// forked process), this package adopts the child's own DAP endpoint and
// tracks which child is currently the active routing target for
// debuggee-scoped commands. Newer child creations replace the active
// pointer.
package childsession

import (
	"context"
	"sync"
	"time"

	"github.com/oriys/dapbridge/internal/dapwire"
)

// Child is one adopted secondary DAP endpoint.
type Child struct {
	ID        string
	Client    *dapwire.Client
	CreatedAt time.Time

	mu    sync.Mutex
	ready bool
}

// MarkReady flags the child as configured and able to serve debuggee-scoped
// commands (its own configurationDone has completed).
func (c *Child) MarkReady() {
	c.mu.Lock()
	c.ready = true
	c.mu.Unlock()
}

// Ready reports whether the child has completed its own configuration.
func (c *Child) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

// Manager tracks every child adopted for one parent Proxy Worker.
type Manager struct {
	mu       sync.Mutex
	children map[string]*Child
	active   *Child
}

// NewManager returns an empty child session manager.
func NewManager() *Manager {
	return &Manager{children: make(map[string]*Child)}
}

// Adopt registers a newly connected child and makes it the active routing
// target, superseding whatever was active before (latest-wins).
func (m *Manager) Adopt(id string, client *dapwire.Client) *Child {
	m.mu.Lock()
	defer m.mu.Unlock()

	child := &Child{ID: id, Client: client, CreatedAt: time.Now()}
	m.children[id] = child
	m.active = child
	return child
}

// Remove drops a child that has disconnected. If it was the active one,
// the active pointer falls back to the most recently created remaining
// child, or none.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.children, id)
	if m.active != nil && m.active.ID == id {
		m.active = nil
		var latest *Child
		for _, c := range m.children {
			if latest == nil || c.CreatedAt.After(latest.CreatedAt) {
				latest = c
			}
		}
		m.active = latest
	}
}

// Active returns the currently active child, if any.
func (m *Manager) Active() (*Child, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return nil, false
	}
	return m.active, true
}

// Count returns how many children are currently tracked.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.children)
}

// WaitActiveReady blocks until the active child (if any) is ready, a new
// child is adopted and becomes ready, or the timeout elapses. Used by
// stackTrace routing.
func (m *Manager) WaitActiveReady(ctx context.Context, timeout time.Duration) (*Child, bool) {
	deadline := time.Now().Add(timeout)
	for {
		if c, ok := m.Active(); ok && c.Ready() {
			return c, true
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, false
		}
		wait := remaining
		if wait > 50*time.Millisecond {
			wait = 50 * time.Millisecond
		}
		select {
		case <-ctx.Done():
			return nil, false
		case <-time.After(wait):
		}
	}
}

// CloseAll disconnects every adopted child, used during parent shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	children := m.children
	m.children = make(map[string]*Child)
	m.active = nil
	m.mu.Unlock()

	for _, c := range children {
		_ = c.Client.Close()
	}
}
