// Package allocation computes each asset's share of the distributable fee
// pool. All arithmetic is integer-exact: allocations are non-negative and sum
// to exactly the pool by construction.
package allocation

import (
	"context"
	"fmt"
	"math/big"
	"sort"

	"solana-burn-engine/internal/domain"
	"solana-burn-engine/internal/solana"
)

// AssetFeeSource identifies where an asset's pending fees are read from.
type AssetFeeSource struct {
	AssetID    string
	FeeAccount string // SPL token account holding the asset's accrued fees
	IsPrimary  bool
}

// Allocator reads authoritative pending fees from chain state and computes
// proportional allocations.
type Allocator struct {
	rpc     solana.RPCClient
	sources []AssetFeeSource
}

// NewAllocator creates an allocator over the given fee sources.
func NewAllocator(rpc solana.RPCClient, sources []AssetFeeSource) *Allocator {
	return &Allocator{rpc: rpc, sources: sources}
}

// QueryPendingFees reads the current pending fee balance for every configured
// asset. Raw totals only; allocations are computed separately.
func (a *Allocator) QueryPendingFees(ctx context.Context) ([]*domain.TokenAllocation, error) {
	allocations := make([]*domain.TokenAllocation, 0, len(a.sources))
	for _, src := range a.sources {
		pending, err := a.rpc.GetTokenAccountBalance(ctx, src.FeeAccount)
		if err != nil {
			return nil, fmt.Errorf("query pending fees for %s: %w", src.AssetID, err)
		}
		allocations = append(allocations, &domain.TokenAllocation{
			AssetID:     src.AssetID,
			AccountID:   src.FeeAccount,
			PendingFees: pending,
			IsPrimary:   src.IsPrimary,
		})
	}
	return allocations, nil
}

// NormalizeAllocations distributes pool proportionally to each allocation's
// share of totalFees using the largest-remainder method: floor shares first,
// then the leftover units go one at a time to the entries with the largest
// fractional remainder. Ties favor input order. The allocated sum equals pool
// exactly whenever totalFees > 0.
func NormalizeAllocations(allocations []*domain.TokenAllocation, pool, totalFees uint64) {
	if totalFees == 0 || len(allocations) == 0 {
		for _, a := range allocations {
			if a != nil {
				a.Allocation = 0
			}
		}
		return
	}

	type remainder struct {
		index int
		frac  uint64
	}

	poolBig := new(big.Int).SetUint64(pool)
	totalBig := new(big.Int).SetUint64(totalFees)

	var allocated uint64
	remainders := make([]remainder, 0, len(allocations))

	for i, a := range allocations {
		if a == nil {
			continue
		}
		// floor(pool * fees / totalFees), exact in big integers
		num := new(big.Int).Mul(poolBig, new(big.Int).SetUint64(a.PendingFees))
		quo, rem := new(big.Int).QuoRem(num, totalBig, new(big.Int))
		a.Allocation = quo.Uint64()
		allocated += a.Allocation
		remainders = append(remainders, remainder{index: i, frac: rem.Uint64()})
	}

	// Floor shares can only exceed the pool when totalFees understates the
	// true fee sum; stop there rather than let the leftover wrap around.
	if allocated >= pool {
		return
	}

	// Stable sort keeps input order for equal remainders.
	sort.SliceStable(remainders, func(i, j int) bool {
		return remainders[i].frac > remainders[j].frac
	})

	leftover := pool - allocated
	for i := uint64(0); i < leftover && int(i) < len(remainders); i++ {
		allocations[remainders[i].index].Allocation++
	}
}

// CalculateDynamicAllocation caps the distributable pool at the smaller of
// the requested total (sum of pending fees) and the available vault balance,
// then normalizes allocations against that pool. Returns the pool actually
// distributed.
func CalculateDynamicAllocation(vaultBalance uint64, allocations []*domain.TokenAllocation) uint64 {
	var requested uint64
	for _, a := range allocations {
		if a != nil {
			requested += a.PendingFees
		}
	}

	pool := requested
	if vaultBalance < pool {
		pool = vaultBalance
	}

	NormalizeAllocations(allocations, pool, requested)
	return pool
}

// KeepForwardSplit divides an amount into the portion kept locally and the
// portion forwarded up the fee hierarchy. keepBps is in basis points.
func KeepForwardSplit(amount uint64, keepBps uint64) (keep, forward uint64) {
	if keepBps > 10000 {
		keepBps = 10000
	}
	// Split the multiplication to stay exact without overflowing uint64.
	keep = (amount/10000)*keepBps + (amount%10000)*keepBps/10000
	forward = amount - keep
	return keep, forward
}
