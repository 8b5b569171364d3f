package postgres

import (
	"context"
	"fmt"

	"solana-burn-engine/internal/domain"
	"solana-burn-engine/internal/storage"
)

// DeadLetterStore implements storage.DeadLetterStore using PostgreSQL.
// Entries are keyed by insertion position; Save replaces the whole list so
// the queue's load-modify-save cycle maps to one transaction.
type DeadLetterStore struct {
	pool *Pool
}

// NewDeadLetterStore creates a new DeadLetterStore.
func NewDeadLetterStore(pool *Pool) *DeadLetterStore {
	return &DeadLetterStore{pool: pool}
}

// Compile-time interface check.
var _ storage.DeadLetterStore = (*DeadLetterStore)(nil)

// Load returns all entries in insertion order.
func (s *DeadLetterStore) Load(ctx context.Context) ([]*domain.DeadLetterEntry, error) {
	query := `
		SELECT timestamp, asset_id, account_id, error_text, is_transient,
		       is_cycle_too_soon, pending_fees_at_failure, allocation_at_failure,
		       retry_count, next_retry_at, status
		FROM dead_letters
		ORDER BY position ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query dead letters: %w", err)
	}
	defer rows.Close()

	var entries []*domain.DeadLetterEntry
	for rows.Next() {
		e := &domain.DeadLetterEntry{}
		var pendingFees, allocation int64
		err := rows.Scan(
			&e.Timestamp,
			&e.AssetID,
			&e.AccountID,
			&e.ErrorText,
			&e.IsTransient,
			&e.IsCycleTooSoon,
			&pendingFees,
			&allocation,
			&e.RetryCount,
			&e.NextRetryAt,
			&e.Status,
		)
		if err != nil {
			return nil, fmt.Errorf("scan dead letter: %w", err)
		}
		e.PendingFeesAtFailure = uint64(pendingFees)
		e.AllocationAtFailure = uint64(allocation)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dead letters: %w", err)
	}
	return entries, nil
}

// Save replaces the stored entries with the given list, atomically.
func (s *DeadLetterStore) Save(ctx context.Context, entries []*domain.DeadLetterEntry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM dead_letters`); err != nil {
		return fmt.Errorf("clear dead letters: %w", err)
	}

	query := `
		INSERT INTO dead_letters (
			position, timestamp, asset_id, account_id, error_text, is_transient,
			is_cycle_too_soon, pending_fees_at_failure, allocation_at_failure,
			retry_count, next_retry_at, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	for i, e := range entries {
		if e == nil {
			return storage.ErrInvalidInput
		}
		_, err := tx.Exec(ctx, query,
			i,
			e.Timestamp,
			e.AssetID,
			e.AccountID,
			e.ErrorText,
			e.IsTransient,
			e.IsCycleTooSoon,
			int64(e.PendingFeesAtFailure),
			int64(e.AllocationAtFailure),
			e.RetryCount,
			e.NextRetryAt,
			string(e.Status),
		)
		if err != nil {
			return fmt.Errorf("insert dead letter %d: %w", i, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
