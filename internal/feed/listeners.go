// Package feed covers both ends of the snapshot-push pipe: the Hub fans full
// task snapshots out to subscribers after every write, and the listener
// Manager guarantees at most one live subscription per logical feed key.
package feed

import "sync"

// Teardown closes one subscription handle.
type Teardown func()

// Manager tracks exactly one active subscription per logical feed name, e.g.
// "tasks" or "tasks:ws:<conn>". Components never hold raw handles themselves;
// everything goes through here so a re-subscribe can never leak the previous
// handle or leave two callbacks firing for one feed.
type Manager struct {
	mu      sync.Mutex
	handles map[string]Teardown
}

func NewManager() *Manager {
	return &Manager{
		handles: make(map[string]Teardown),
	}
}

// Subscribe tears down any existing handle for key, then calls establish and
// registers the handle it returns. If establish fails nothing is registered
// and the error surfaces to the caller, which owns retry policy.
func (m *Manager) Subscribe(key string, establish func() (Teardown, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prior, ok := m.handles[key]; ok {
		delete(m.handles, key)
		prior()
	}

	td, err := establish()
	if err != nil {
		return err
	}
	m.handles[key] = td
	return nil
}

// Unsubscribe tears down the handle for key, if any, and reports whether one
// existed.
func (m *Manager) Unsubscribe(key string) bool {
	m.mu.Lock()
	td, ok := m.handles[key]
	delete(m.handles, key)
	m.mu.Unlock()

	if ok {
		td()
	}
	return ok
}

// UnsubscribeAll tears down every handle and clears the registry. Called on
// session end.
func (m *Manager) UnsubscribeAll() {
	m.mu.Lock()
	handles := m.handles
	m.handles = make(map[string]Teardown)
	m.mu.Unlock()

	for _, td := range handles {
		td()
	}
}

func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handles)
}
