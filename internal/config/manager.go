package config

import (
	"sync/atomic"
)

// Manager holds the current settings snapshot. Readers capture a snapshot
// once per operation and run to completion under it; Replace swaps the
// pointer atomically, so readers never lock.
type Manager struct {
	cur atomic.Pointer[Settings]
}

func NewManager(initial *Settings) *Manager {
	m := &Manager{}
	m.cur.Store(initial)
	return m
}

// Snapshot returns the current settings. The returned value must be treated
// as read-only.
func (m *Manager) Snapshot() *Settings {
	return m.cur.Load()
}

// Replace validates next and, only if valid, makes it the authoritative
// snapshot. Invalid submissions leave the previous snapshot untouched.
func (m *Manager) Replace(next Settings) error {
	if err := next.Validate(); err != nil {
		return err
	}
	m.cur.Store(&next)
	return nil
}
