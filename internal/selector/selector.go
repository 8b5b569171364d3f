// Package selector picks which asset's cycle runs next. Selection uses the
// chain's slot counter as the modulus source: every pass gets a different,
// fully reproducible outcome with exactly uniform 1/N probability and O(1)
// cost. No sorting, no weighting, no stored cursor.
package selector

import "solana-burn-engine/internal/domain"

// Eligible filters allocations to non-primary assets whose pending fees meet
// the minimum threshold. Input order is preserved.
func Eligible(allocations []*domain.TokenAllocation, minFee uint64) []*domain.TokenAllocation {
	var eligible []*domain.TokenAllocation
	for _, a := range allocations {
		if a == nil || a.IsPrimary {
			continue
		}
		if a.PendingFees >= minFee {
			eligible = append(eligible, a)
		}
	}
	return eligible
}

// SelectForCycle returns eligible[slot mod len(eligible)], or nil if the
// eligible set is empty. The caller supplies the slot; the selector never
// derives its own, so every selection stays auditable against the transaction
// it preceded.
func SelectForCycle(eligible []*domain.TokenAllocation, slot int64) *domain.TokenAllocation {
	if len(eligible) == 0 {
		return nil
	}
	idx := slot % int64(len(eligible))
	if idx < 0 {
		idx += int64(len(eligible))
	}
	return eligible[idx]
}
