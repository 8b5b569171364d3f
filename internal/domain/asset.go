package domain

// AssetRecord is the identity of a revenue-generating asset.
// Created on first successful attribution or pre-registered from config.
type AssetRecord struct {
	AssetID        string // mint address
	DisplayName    string
	CausingAccount string // account whose activity produced the fees
}

// AssetFeeStats accumulates attribution results for one asset.
// Mutated only by successful attribution, never deleted.
type AssetFeeStats struct {
	AssetID         string
	TotalAttributed uint64 // lamports
	EventCount      int64
	LastSlot        int64
	LastSeenAt      int64 // unix ms
}

// TokenAllocation is one asset's share of the distributable pool for a single
// orchestration pass. Recomputed from on-chain state every pass, never persisted.
type TokenAllocation struct {
	AssetID     string
	AccountID   string // token account the pending fees were read from
	PendingFees uint64 // lamports
	Allocation  uint64 // lamports
	IsPrimary   bool
}
