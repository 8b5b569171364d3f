package memory

import (
	"context"
	"sort"
	"sync"

	"solana-burn-engine/internal/domain"
	"solana-burn-engine/internal/storage"
)

// FeeEventStore is an in-memory implementation of storage.FeeEventStore.
type FeeEventStore struct {
	mu   sync.RWMutex
	fees []*domain.AttributedFee
}

// NewFeeEventStore creates a new in-memory fee event store.
func NewFeeEventStore() *FeeEventStore {
	return &FeeEventStore{}
}

// Compile-time interface check.
var _ storage.FeeEventStore = (*FeeEventStore)(nil)

// InsertBulk adds multiple attributed fees.
func (s *FeeEventStore) InsertBulk(_ context.Context, fees []*domain.AttributedFee) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, f := range fees {
		if f == nil || f.AssetID == "" {
			return storage.ErrInvalidInput
		}
		feeCopy := *f
		s.fees = append(s.fees, &feeCopy)
	}
	return nil
}

// GetByAsset retrieves all attributed fees for an asset, ordered by slot ASC.
func (s *FeeEventStore) GetByAsset(_ context.Context, assetID string) ([]*domain.AttributedFee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.AttributedFee
	for _, f := range s.fees {
		if f.AssetID == assetID {
			feeCopy := *f
			result = append(result, &feeCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Slot < result[j].Slot
	})

	return result, nil
}
