package store

import (
	"context"
	"sync"

	"github.com/cros-updates/cros-updates/internal/fingerprint"
)

// MemoryStore keeps fingerprints for the lifetime of the process.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]fingerprint.Fingerprint
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]fingerprint.Fingerprint)}
}

func (m *MemoryStore) Get(_ context.Context, deviceID string) (fingerprint.Fingerprint, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fp, ok := m.data[deviceID]
	return fp, ok, nil
}

func (m *MemoryStore) Put(_ context.Context, deviceID string, fp fingerprint.Fingerprint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[deviceID] = fp
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}
