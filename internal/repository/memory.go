package repository

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	updatedAt time.Time
}

// MemorySessionRepository is a thread-safe, in-memory session store for
// single-instance deployments and tests
type MemorySessionRepository struct {
	mu    sync.RWMutex
	items map[string]map[string]memoryEntry
	now   func() time.Time
}

// NewMemorySessionRepository creates an empty in-memory store
func NewMemorySessionRepository() *MemorySessionRepository {
	return &MemorySessionRepository{
		items: make(map[string]map[string]memoryEntry),
		now:   time.Now,
	}
}

// Get returns a copy of the value stored under key for the session
func (m *MemorySessionRepository) Get(_ context.Context, sessionID, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.items[sessionID][key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), entry.value...), true, nil
}

// Set stores a copy of value under key for the session
func (m *MemorySessionRepository) Set(_ context.Context, sessionID, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.items[sessionID]
	if !ok {
		session = make(map[string]memoryEntry)
		m.items[sessionID] = session
	}
	session[key] = memoryEntry{value: append([]byte(nil), value...), updatedAt: m.now()}
	return nil
}

// Purge deletes values not written since before
func (m *MemorySessionRepository) Purge(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for sessionID, session := range m.items {
		for key, entry := range session {
			if entry.updatedAt.Before(before) {
				delete(session, key)
				n++
			}
		}
		if len(session) == 0 {
			delete(m.items, sessionID)
		}
	}
	return n, nil
}

// Sessions returns the number of sessions holding at least one value
func (m *MemorySessionRepository) Sessions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}
