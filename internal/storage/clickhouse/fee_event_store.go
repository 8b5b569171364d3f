package clickhouse

import (
	"context"
	"fmt"

	"solana-burn-engine/internal/domain"
	"solana-burn-engine/internal/storage"
)

// FeeEventStore implements storage.FeeEventStore using ClickHouse.
type FeeEventStore struct {
	conn *Conn
}

// NewFeeEventStore creates a new FeeEventStore.
func NewFeeEventStore(conn *Conn) *FeeEventStore {
	return &FeeEventStore{conn: conn}
}

// Compile-time interface check.
var _ storage.FeeEventStore = (*FeeEventStore)(nil)

// InsertBulk adds multiple attributed fees in one batch.
func (s *FeeEventStore) InsertBulk(ctx context.Context, fees []*domain.AttributedFee) error {
	if len(fees) == 0 {
		return nil
	}
	for _, f := range fees {
		if f == nil {
			return storage.ErrInvalidInput
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO attributed_fees (
			asset_id, account_id, vault_kind, amount, slot, tx_signature, observed_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, f := range fees {
		err = batch.Append(
			f.AssetID, f.AccountID, string(f.VaultKind),
			f.Amount, uint64(f.Slot), f.TxSignature, uint64(f.ObservedAt),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByAsset retrieves all attributed fees for an asset, ordered by slot ASC.
func (s *FeeEventStore) GetByAsset(ctx context.Context, assetID string) ([]*domain.AttributedFee, error) {
	query := `
		SELECT asset_id, account_id, vault_kind, amount, slot, tx_signature, observed_at
		FROM attributed_fees
		WHERE asset_id = ?
		ORDER BY slot ASC
	`

	rows, err := s.conn.Query(ctx, query, assetID)
	if err != nil {
		return nil, fmt.Errorf("query attributed fees: %w", err)
	}
	defer rows.Close()

	var fees []*domain.AttributedFee
	for rows.Next() {
		f := &domain.AttributedFee{}
		var vaultKind string
		var slot, observedAt uint64
		err := rows.Scan(
			&f.AssetID, &f.AccountID, &vaultKind,
			&f.Amount, &slot, &f.TxSignature, &observedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan attributed fee: %w", err)
		}
		f.VaultKind = domain.VaultKind(vaultKind)
		f.Slot = int64(slot)
		f.ObservedAt = int64(observedAt)
		fees = append(fees, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attributed fees: %w", err)
	}
	return fees, nil
}
