package modelstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/radon-h2020/radon-defect-predictor/core"
)

// MemoryStore holds one model in process memory. It backs tests and
// dry runs where nothing should touch the file system. The stored
// model is shared, not copied; treat it as read-only after Save.
type MemoryStore struct {
	mu    sync.RWMutex
	model *core.SelectedModel
}

// NewMemory builds an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{}
}

// Save replaces the stored model.
func (s *MemoryStore) Save(ctx context.Context, m *core.SelectedModel) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.model = m
	return nil
}

// Load returns the stored model, or an io failure when nothing was
// saved yet.
func (s *MemoryStore) Load(ctx context.Context) (*core.SelectedModel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.model == nil {
		return nil, fmt.Errorf("no model in store: %w", core.ErrIO)
	}
	return s.model, nil
}
