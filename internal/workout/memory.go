package workout

import (
	"context"
	"sync"
)

// MemoryStore is a process-local SnapshotStore.
type MemoryStore struct {
	mu        sync.Mutex
	snapshots map[int64]Snapshot
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snapshots: make(map[int64]Snapshot)}
}

func (m *MemoryStore) SaveTimer(_ context.Context, userID int64, s Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[userID] = s
	return nil
}

func (m *MemoryStore) LoadTimer(_ context.Context, userID int64) (Snapshot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.snapshots[userID]
	return s, ok, nil
}

func (m *MemoryStore) DeleteTimer(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snapshots, userID)
	return nil
}
