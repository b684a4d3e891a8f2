package store

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/optiforge/platform/optiforge/internal/models"
)

// MemoryStore keeps runs in a map. Records are cloned on the way in and
// out so callers never share state with the store.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string]models.RunRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: map[string]models.RunRecord{}}
}

func (m *MemoryStore) CreateRun(ctx context.Context, rec models.RunRecord) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.runs[rec.ID]; exists {
		return "", ErrConflict
	}
	m.runs[rec.ID] = rec.Clone()
	return rec.ID, nil
}

func (m *MemoryStore) GetRun(ctx context.Context, id string) (models.RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.runs[id]
	if !ok {
		return models.RunRecord{}, ErrNotFound
	}
	return rec.Clone(), nil
}

func (m *MemoryStore) PutRun(ctx context.Context, rec models.RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[rec.ID]; !ok {
		return ErrNotFound
	}
	m.runs[rec.ID] = rec.Clone()
	return nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}
