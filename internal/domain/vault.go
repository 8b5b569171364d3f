package domain

// VaultKind identifies which custodial vault a balance change belongs to.
type VaultKind string

const (
	// VaultPrimary is the root fee vault receiving protocol-level fees.
	VaultPrimary VaultKind = "PRIMARY"
	// VaultSecondary is the per-asset fee vault.
	VaultSecondary VaultKind = "SECONDARY"
)

// VaultSnapshot is the last-known state of a watched vault account.
// It is mutated only by the balance watcher, one snapshot per account,
// and reseeded from a fresh on-chain read at startup.
type VaultSnapshot struct {
	AccountID   string
	Kind        VaultKind
	LastBalance uint64 // lamports
	LastSlot    int64
}

// FeeEvent is a positive balance delta observed on a vault account.
// Created by the watcher, consumed exactly once by the resolver, never mutated.
type FeeEvent struct {
	VaultKind  VaultKind
	AccountID  string
	Amount     int64 // lamports, always > 0 when emitted
	Slot       int64
	ObservedAt int64 // unix ms
}

// AttributedFee is a fee event that has been mapped to a causing asset.
// The signature ties the attribution back to the on-chain transaction for audit.
type AttributedFee struct {
	AssetID     string
	AccountID   string
	VaultKind   VaultKind
	Amount      int64
	Slot        int64
	TxSignature string
	ObservedAt  int64 // unix ms
}
