package services

import (
	"context"
	"sync"

	"github.com/ceramicnetwork/go-registry/models"
)

// MemorySnapshotStore keeps the last snapshot per account for the lifetime of the process.
type MemorySnapshotStore struct {
	lock      sync.RWMutex
	snapshots map[string]*models.Snapshot
}

func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{snapshots: make(map[string]*models.Snapshot)}
}

func (m *MemorySnapshotStore) Load(_ context.Context, account string) (*models.Snapshot, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.snapshots[account], nil
}

func (m *MemorySnapshotStore) Save(_ context.Context, account string, snapshot *models.Snapshot) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.snapshots[account] = snapshot
	return nil
}
