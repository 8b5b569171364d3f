// Package attribution maps observed fee events to the asset that caused them
// by inspecting the transactions behind each balance change.
package attribution

import (
	"container/list"
	"sync"
	"time"

	"solana-burn-engine/internal/domain"
)

// DefaultRegistryCap bounds the number of asset records kept in memory.
const DefaultRegistryCap = 1024

// Registry holds known asset records and their accumulated fee stats.
// Records are bounded by an LRU cap; stats are never evicted so running
// totals survive record eviction.
type Registry struct {
	mu       sync.RWMutex
	capacity int
	records  map[string]*list.Element
	order    *list.List
	stats    map[string]*domain.AssetFeeStats

	orphanedCount    uint64
	orphanedLamports uint64
}

type registryEntry struct {
	record domain.AssetRecord
}

// NewRegistry creates a registry with the given record capacity.
// A non-positive capacity falls back to DefaultRegistryCap.
func NewRegistry(capacity int) *Registry {
	if capacity <= 0 {
		capacity = DefaultRegistryCap
	}
	return &Registry{
		capacity: capacity,
		records:  make(map[string]*list.Element, capacity),
		order:    list.New(),
		stats:    make(map[string]*domain.AssetFeeStats),
	}
}

// Resolve looks up a record by asset id, refreshing its recency.
func (r *Registry) Resolve(assetID string) (domain.AssetRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	elem, ok := r.records[assetID]
	if !ok {
		return domain.AssetRecord{}, false
	}
	r.order.MoveToFront(elem)
	return elem.Value.(*registryEntry).record, true
}

// Register adds or updates a record. When the cap is exceeded the least
// recently used record is evicted; its stats are kept. Returns the evicted
// asset id, or "" when nothing was evicted.
func (r *Registry) Register(record domain.AssetRecord) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if elem, ok := r.records[record.AssetID]; ok {
		r.order.MoveToFront(elem)
		elem.Value.(*registryEntry).record = record
		return ""
	}

	evicted := ""
	if r.order.Len() >= r.capacity {
		back := r.order.Back()
		if back != nil {
			r.order.Remove(back)
			evicted = back.Value.(*registryEntry).record.AssetID
			delete(r.records, evicted)
		}
	}

	r.records[record.AssetID] = r.order.PushFront(&registryEntry{record: record})
	return evicted
}

// RecordAttribution folds one attributed fee into the asset's running stats.
func (r *Registry) RecordAttribution(assetID string, amount uint64, slot int64, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.stats[assetID]
	if !ok {
		s = &domain.AssetFeeStats{AssetID: assetID}
		r.stats[assetID] = s
	}
	s.TotalAttributed += amount
	s.EventCount++
	if slot > s.LastSlot {
		s.LastSlot = slot
	}
	s.LastSeenAt = at.UnixMilli()
}

// Stats returns a copy of the accumulated stats for one asset.
func (r *Registry) Stats(assetID string) (domain.AssetFeeStats, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.stats[assetID]
	if !ok {
		return domain.AssetFeeStats{}, false
	}
	return *s, true
}

// AllStats returns copies of every asset's stats.
func (r *Registry) AllStats() []domain.AssetFeeStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.AssetFeeStats, 0, len(r.stats))
	for _, s := range r.stats {
		out = append(out, *s)
	}
	return out
}

// RecordOrphaned counts one fee event that could not be attributed.
func (r *Registry) RecordOrphaned(lamports uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orphanedCount++
	r.orphanedLamports += lamports
}

// OrphanedTotals returns the number of orphaned events and their lamport sum.
func (r *Registry) OrphanedTotals() (count, lamports uint64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.orphanedCount, r.orphanedLamports
}

// Len returns the number of records currently held.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.order.Len()
}
