package storage

import (
	"context"

	"solana-burn-engine/internal/domain"
)

// DeadLetterStore persists the bounded list of failed cycle attempts.
// Entries are ordered by insertion; the queue mutates them through a full
// load-modify-save cycle so implementations never see partial updates.
type DeadLetterStore interface {
	// Load returns all entries in insertion order.
	Load(ctx context.Context) ([]*domain.DeadLetterEntry, error)

	// Save replaces the stored entries with the given list.
	Save(ctx context.Context, entries []*domain.DeadLetterEntry) error
}

// HistoryStore persists the append-only hash-chained history ledger.
type HistoryStore interface {
	// Append adds one entry to the end of the chain.
	Append(ctx context.Context, e *domain.HistoryEntry) error

	// Last returns the most recent entry. Returns ErrNotFound on an empty chain.
	Last(ctx context.Context) (*domain.HistoryEntry, error)

	// Tail returns up to n most recent entries in chain order (oldest first).
	Tail(ctx context.Context, n int) ([]*domain.HistoryEntry, error)
}

// FeeEventStore persists attributed fee events for analytics.
type FeeEventStore interface {
	// InsertBulk adds multiple attributed fees.
	InsertBulk(ctx context.Context, fees []*domain.AttributedFee) error

	// GetByAsset retrieves all attributed fees for an asset, ordered by slot ASC.
	GetByAsset(ctx context.Context, assetID string) ([]*domain.AttributedFee, error)
}
