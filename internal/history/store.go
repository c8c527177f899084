// Package history keeps a bounded log of past assessments.
package history

import (
	"context"
	"sync"

	"github.com/Skufu/cardiorisk/internal/model"
)

// DefaultCapacity is how many entries are kept when no capacity is configured.
const DefaultCapacity = 100

// Store is an append-only, capacity-bounded history. When full, the oldest
// entry is evicted.
type Store interface {
	Add(ctx context.Context, e model.HistoryEntry) error
	// List returns up to limit entries, newest first. limit <= 0 means all.
	List(ctx context.Context, limit int) ([]model.HistoryEntry, error)
	Ping(ctx context.Context) error
	Close() error
}

func capacityOrDefault(n int) int {
	if n <= 0 {
		return DefaultCapacity
	}
	return n
}

// MemoryStore holds entries in process memory.
type MemoryStore struct {
	mu       sync.Mutex
	entries  []model.HistoryEntry
	capacity int
}

// NewMemory creates an in-memory store.
func NewMemory(capacity int) *MemoryStore {
	return &MemoryStore{capacity: capacityOrDefault(capacity)}
}

func (m *MemoryStore) Add(_ context.Context, e model.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	if over := len(m.entries) - m.capacity; over > 0 {
		m.entries = append([]model.HistoryEntry(nil), m.entries[over:]...)
	}
	return nil
}

func (m *MemoryStore) List(_ context.Context, limit int) ([]model.HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.entries)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]model.HistoryEntry, 0, n)
	for i := len(m.entries) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, m.entries[i])
	}
	return out, nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }
