// Package memory provides a process-local basket store for development and
// tests.
package memory

import (
	"context"
	"sync"

	"github.com/xenking/tiffin/internal/domain/basket"
)

var _ basket.Store = (*BasketStore)(nil)

// BasketStore keeps encoded snapshots in a map so that stored state cannot
// alias live basket lines.
type BasketStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewBasketStore creates an empty BasketStore.
func NewBasketStore() *BasketStore {
	return &BasketStore{data: make(map[string][]byte)}
}

func (s *BasketStore) Save(_ context.Context, sessionID string, snap basket.Snapshot) error {
	encoded := basket.EncodeSnapshot(snap)
	s.mu.Lock()
	s.data[sessionID] = encoded
	s.mu.Unlock()
	return nil
}

func (s *BasketStore) Load(_ context.Context, sessionID string) (basket.Snapshot, error) {
	s.mu.RLock()
	data, ok := s.data[sessionID]
	s.mu.RUnlock()
	if !ok {
		return basket.Snapshot{}, nil
	}
	return basket.DecodeSnapshot(data)
}

func (s *BasketStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.data, sessionID)
	s.mu.Unlock()
	return nil
}
