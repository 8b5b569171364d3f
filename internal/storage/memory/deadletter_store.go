package memory

import (
	"context"
	"sync"

	"solana-burn-engine/internal/domain"
	"solana-burn-engine/internal/storage"
)

// DeadLetterStore is an in-memory implementation of storage.DeadLetterStore.
type DeadLetterStore struct {
	mu      sync.RWMutex
	entries []*domain.DeadLetterEntry
}

// NewDeadLetterStore creates a new in-memory dead-letter store.
func NewDeadLetterStore() *DeadLetterStore {
	return &DeadLetterStore{}
}

// Compile-time interface check.
var _ storage.DeadLetterStore = (*DeadLetterStore)(nil)

// Load returns all entries in insertion order.
func (s *DeadLetterStore) Load(_ context.Context) ([]*domain.DeadLetterEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Return copies to prevent external mutation
	out := make([]*domain.DeadLetterEntry, len(s.entries))
	for i, e := range s.entries {
		entryCopy := *e
		out[i] = &entryCopy
	}
	return out, nil
}

// Save replaces the stored entries with the given list.
func (s *DeadLetterStore) Save(_ context.Context, entries []*domain.DeadLetterEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]*domain.DeadLetterEntry, len(entries))
	for i, e := range entries {
		if e == nil {
			return storage.ErrInvalidInput
		}
		entryCopy := *e
		stored[i] = &entryCopy
	}
	s.entries = stored
	return nil
}
