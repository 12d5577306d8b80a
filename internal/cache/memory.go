package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultMemoryEntries = 256

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryStore is an in-process Store bounded by entry count.
type MemoryStore struct {
	entries *lru.Cache[string, memoryEntry]
	now     func() time.Time

	mu       sync.Mutex
	mutation map[string]uint64
}

// NewMemoryStore creates a store holding at most size entries (0 picks a default).
func NewMemoryStore(size int) (*MemoryStore, error) {
	if size <= 0 {
		size = defaultMemoryEntries
	}
	entries, err := lru.New[string, memoryEntry](size)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}
	return &MemoryStore{entries: entries, now: time.Now, mutation: make(map[string]uint64)}, nil
}

func (m *MemoryStore) Get(_ context.Context, key string, dst any) (bool, error) {
	entry, ok := m.entries.Get(key)
	if !ok {
		return false, nil
	}
	if !entry.expiresAt.IsZero() && !m.now().Before(entry.expiresAt) {
		m.entries.Remove(key)
		return false, nil
	}
	if err := json.Unmarshal(entry.data, dst); err != nil {
		return false, fmt.Errorf("decode cache entry %s: %w", key, err)
	}
	return true, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache entry %s: %w", key, err)
	}
	entry := memoryEntry{data: data}
	if ttl > 0 {
		entry.expiresAt = m.now().Add(ttl)
	}
	m.entries.Add(key, entry)
	return nil
}

func (m *MemoryStore) Mutate(_ context.Context, key string) error {
	m.entries.Remove(key)
	m.mu.Lock()
	m.mutation[key]++
	m.mu.Unlock()
	return nil
}

// Mutations reports how many times key has been invalidated.
func (m *MemoryStore) Mutations(key string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mutation[key]
}
