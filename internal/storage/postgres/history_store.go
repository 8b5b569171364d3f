package postgres

import (
	"context"
	"fmt"

	"solana-burn-engine/internal/domain"
	"solana-burn-engine/internal/storage"
)

// HistoryStore implements storage.HistoryStore using PostgreSQL.
// The sequence column is the primary key, so a replayed append of an already
// persisted entry surfaces as ErrDuplicateKey instead of forking the chain.
type HistoryStore struct {
	pool *Pool
}

// NewHistoryStore creates a new HistoryStore.
func NewHistoryStore(pool *Pool) *HistoryStore {
	return &HistoryStore{pool: pool}
}

// Compile-time interface check.
var _ storage.HistoryStore = (*HistoryStore)(nil)

// Append adds one entry to the end of the chain.
func (s *HistoryStore) Append(ctx context.Context, e *domain.HistoryEntry) error {
	if e == nil {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO history_entries (
			sequence, prev_hash, payload_hash, kind, timestamp, hash
		) VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := s.pool.Exec(ctx, query,
		int64(e.Sequence),
		e.PrevHash,
		e.PayloadHash,
		string(e.Kind),
		e.Timestamp,
		e.Hash,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert history entry: %w", err)
	}
	return nil
}

// Last returns the most recent entry. Returns ErrNotFound on an empty chain.
func (s *HistoryStore) Last(ctx context.Context) (*domain.HistoryEntry, error) {
	query := `
		SELECT sequence, prev_hash, payload_hash, kind, timestamp, hash
		FROM history_entries
		ORDER BY sequence DESC
		LIMIT 1
	`

	e := &domain.HistoryEntry{}
	var seq int64
	err := s.pool.QueryRow(ctx, query).Scan(
		&seq, &e.PrevHash, &e.PayloadHash, &e.Kind, &e.Timestamp, &e.Hash,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("query last history entry: %w", err)
	}
	e.Sequence = uint64(seq)
	return e, nil
}

// Tail returns up to n most recent entries in chain order (oldest first).
func (s *HistoryStore) Tail(ctx context.Context, n int) ([]*domain.HistoryEntry, error) {
	if n <= 0 {
		return nil, nil
	}

	query := `
		SELECT sequence, prev_hash, payload_hash, kind, timestamp, hash
		FROM (
			SELECT sequence, prev_hash, payload_hash, kind, timestamp, hash
			FROM history_entries
			ORDER BY sequence DESC
			LIMIT $1
		) recent
		ORDER BY sequence ASC
	`

	rows, err := s.pool.Query(ctx, query, n)
	if err != nil {
		return nil, fmt.Errorf("query history tail: %w", err)
	}
	defer rows.Close()

	var entries []*domain.HistoryEntry
	for rows.Next() {
		e := &domain.HistoryEntry{}
		var seq int64
		if err := rows.Scan(&seq, &e.PrevHash, &e.PayloadHash, &e.Kind, &e.Timestamp, &e.Hash); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		e.Sequence = uint64(seq)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history entries: %w", err)
	}
	return entries, nil
}
