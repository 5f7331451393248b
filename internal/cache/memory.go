package cache

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process TTL cache. Entries expire but are never evicted
// by size; the working set here is one key per looked-up species, which
// stays small. Expired entries are removed lazily on read and swept on
// write once per TTL window.
type Memory struct {
	mu        sync.RWMutex
	entries   map[string]memoryEntry
	ttl       time.Duration
	lastSweep time.Time

	// now is swappable in tests.
	now func() time.Time
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemory creates an in-memory cache with the given TTL.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		entries:   make(map[string]memoryEntry),
		ttl:       ttl,
		lastSweep: time.Now(),
		now:       time.Now,
	}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if m.now().After(e.expiresAt) {
		m.mu.Lock()
		// Re-check under the write lock; a concurrent Set may have refreshed it.
		if cur, still := m.entries[key]; still && m.now().After(cur.expiresAt) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return nil, false
	}
	return e.value, true
}

func (m *Memory) Set(_ context.Context, key string, value []byte) {
	now := m.now()
	m.mu.Lock()
	m.entries[key] = memoryEntry{value: value, expiresAt: now.Add(m.ttl)}
	if now.Sub(m.lastSweep) > m.ttl {
		for k, e := range m.entries {
			if now.After(e.expiresAt) {
				delete(m.entries, k)
			}
		}
		m.lastSweep = now
	}
	m.mu.Unlock()
}

// Len reports the number of stored entries, including any not yet swept.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
