package memory

import (
	"context"
	"errors"
	"testing"

	"solana-burn-engine/internal/domain"
	"solana-burn-engine/internal/storage"
)

func historyEntry(seq uint64) *domain.HistoryEntry {
	return &domain.HistoryEntry{
		Sequence:    seq,
		PrevHash:    "prev",
		PayloadHash: "payload",
		Kind:        domain.HistoryCycleExecuted,
		Timestamp:   int64(seq) * 1000,
		Hash:        "hash",
	}
}

func TestHistoryStore_AppendAndLast(t *testing.T) {
	store := NewHistoryStore()
	ctx := context.Background()

	for seq := uint64(1); seq <= 3; seq++ {
		if err := store.Append(ctx, historyEntry(seq)); err != nil {
			t.Fatalf("Append %d failed: %v", seq, err)
		}
	}

	last, err := store.Last(ctx)
	if err != nil {
		t.Fatalf("Last failed: %v", err)
	}
	if last.Sequence != 3 {
		t.Errorf("Expected sequence 3, got %d", last.Sequence)
	}
}

func TestHistoryStore_LastEmpty(t *testing.T) {
	store := NewHistoryStore()

	_, err := store.Last(context.Background())
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestHistoryStore_Tail(t *testing.T) {
	store := NewHistoryStore()
	ctx := context.Background()

	for seq := uint64(1); seq <= 5; seq++ {
		if err := store.Append(ctx, historyEntry(seq)); err != nil {
			t.Fatalf("Append %d failed: %v", seq, err)
		}
	}

	tail, err := store.Tail(ctx, 2)
	if err != nil {
		t.Fatalf("Tail failed: %v", err)
	}
	if len(tail) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(tail))
	}
	if tail[0].Sequence != 4 || tail[1].Sequence != 5 {
		t.Errorf("Tail must be oldest first: %d, %d", tail[0].Sequence, tail[1].Sequence)
	}

	all, err := store.Tail(ctx, 100)
	if err != nil {
		t.Fatalf("Tail over length failed: %v", err)
	}
	if len(all) != 5 {
		t.Errorf("Oversized tail must return everything, got %d", len(all))
	}
}

func TestHistoryStore_NilEntryRejected(t *testing.T) {
	store := NewHistoryStore()

	err := store.Append(context.Background(), nil)
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}
