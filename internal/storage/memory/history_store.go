package memory

import (
	"context"
	"sync"

	"solana-burn-engine/internal/domain"
	"solana-burn-engine/internal/storage"
)

// HistoryStore is an in-memory implementation of storage.HistoryStore.
type HistoryStore struct {
	mu      sync.RWMutex
	entries []*domain.HistoryEntry
}

// NewHistoryStore creates a new in-memory history store.
func NewHistoryStore() *HistoryStore {
	return &HistoryStore{}
}

// Compile-time interface check.
var _ storage.HistoryStore = (*HistoryStore)(nil)

// Append adds one entry to the end of the chain.
func (s *HistoryStore) Append(_ context.Context, e *domain.HistoryEntry) error {
	if e == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entryCopy := *e
	s.entries = append(s.entries, &entryCopy)
	return nil
}

// Last returns the most recent entry.
func (s *HistoryStore) Last(_ context.Context) (*domain.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.entries) == 0 {
		return nil, storage.ErrNotFound
	}
	entryCopy := *s.entries[len(s.entries)-1]
	return &entryCopy, nil
}

// Tail returns up to n most recent entries in chain order (oldest first).
func (s *HistoryStore) Tail(_ context.Context, n int) ([]*domain.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n <= 0 || n > len(s.entries) {
		n = len(s.entries)
	}
	out := make([]*domain.HistoryEntry, n)
	for i, e := range s.entries[len(s.entries)-n:] {
		entryCopy := *e
		out[i] = &entryCopy
	}
	return out, nil
}
