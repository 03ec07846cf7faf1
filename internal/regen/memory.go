package regen

import (
	"context"
	"sync"
)

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu     sync.Mutex
	states map[int64]State
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[int64]State)}
}

func (m *MemoryStore) LoadHP(_ context.Context, userID int64) (State, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[userID]
	return s, ok, nil
}

func (m *MemoryStore) SaveHP(_ context.Context, userID int64, s State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[userID] = s
	return nil
}
