package checkpoint

import (
	"context"
	"sync"
	"time"
)

// MemoryManager keeps snapshots in a map. Used by tests and single-node dev
// setups where durability across restarts does not matter.
type MemoryManager struct {
	mu    sync.RWMutex
	snaps map[string]Snapshot

	// FailSaves makes every Save return this error, for exercising the
	// persistence failure path in tests.
	FailSaves error
}

func NewMemory() *MemoryManager {
	return &MemoryManager{snaps: make(map[string]Snapshot)}
}

func (m *MemoryManager) Load(_ context.Context, threadID string) (Snapshot, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.snaps[threadID]
	return snap, ok, nil
}

func (m *MemoryManager) Save(_ context.Context, snap Snapshot) error {
	if m.FailSaves != nil {
		return m.FailSaves
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	snap.UpdatedAt = time.Now().UTC()
	m.snaps[snap.ThreadID] = snap
	return nil
}

func (m *MemoryManager) Delete(_ context.Context, threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snaps, threadID)
	return nil
}

func (m *MemoryManager) PruneBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, snap := range m.snaps {
		if snap.UpdatedAt.Before(cutoff) {
			delete(m.snaps, id)
			n++
		}
	}
	return n, nil
}
