package store

import (
	"context"
	"sync"

	"github.com/dailydrops/drops/internal/models"
)

// MemoryBackend keeps entries in process memory. Used when no
// database is configured, and as the backend in tests.
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[string]*models.OptimisticEntry
}

// NewMemoryBackend creates an empty in-memory backend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string]*models.OptimisticEntry)}
}

func (m *MemoryBackend) Get(ctx context.Context, localID string) (*models.OptimisticEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[localID]
	if !ok {
		return nil, ErrNotFound
	}
	return entry.Clone(), nil
}

func (m *MemoryBackend) Insert(ctx context.Context, entry *models.OptimisticEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[entry.LocalID]; ok {
		return ErrDuplicateLocalID
	}
	m.entries[entry.LocalID] = entry.Clone()
	return nil
}

func (m *MemoryBackend) Put(ctx context.Context, entry *models.OptimisticEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[entry.LocalID]; !ok {
		return ErrNotFound
	}
	m.entries[entry.LocalID] = entry.Clone()
	return nil
}

func (m *MemoryBackend) Delete(ctx context.Context, localID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[localID]; !ok {
		return ErrNotFound
	}
	delete(m.entries, localID)
	return nil
}

func (m *MemoryBackend) List(ctx context.Context) ([]*models.OptimisticEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.OptimisticEntry, 0, len(m.entries))
	for _, entry := range m.entries {
		out = append(out, entry.Clone())
	}
	return out, nil
}
