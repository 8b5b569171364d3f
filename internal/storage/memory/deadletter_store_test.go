package memory

import (
	"context"
	"errors"
	"testing"

	"solana-burn-engine/internal/domain"
	"solana-burn-engine/internal/storage"
)

func TestDeadLetterStore_SaveAndLoad(t *testing.T) {
	store := NewDeadLetterStore()
	ctx := context.Background()

	entries := []*domain.DeadLetterEntry{
		{Timestamp: 1000, AssetID: "mintA", ErrorText: "timed out", IsTransient: true, RetryCount: 1, Status: domain.DeadLetterPending},
		{Timestamp: 2000, AssetID: "mintB", ErrorText: "unknown instruction", RetryCount: 1, Status: domain.DeadLetterPending},
	}
	if err := store.Save(ctx, entries); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(loaded))
	}
	if loaded[0].AssetID != "mintA" || loaded[1].AssetID != "mintB" {
		t.Errorf("Order not preserved: %s, %s", loaded[0].AssetID, loaded[1].AssetID)
	}
}

func TestDeadLetterStore_EmptyLoad(t *testing.T) {
	store := NewDeadLetterStore()

	loaded, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded) != 0 {
		t.Errorf("Expected empty store, got %d entries", len(loaded))
	}
}

func TestDeadLetterStore_SaveReplaces(t *testing.T) {
	store := NewDeadLetterStore()
	ctx := context.Background()

	if err := store.Save(ctx, []*domain.DeadLetterEntry{{AssetID: "mintA"}, {AssetID: "mintB"}}); err != nil {
		t.Fatalf("First save failed: %v", err)
	}
	if err := store.Save(ctx, []*domain.DeadLetterEntry{{AssetID: "mintC"}}); err != nil {
		t.Fatalf("Second save failed: %v", err)
	}

	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded) != 1 || loaded[0].AssetID != "mintC" {
		t.Errorf("Save must replace the stored set, got %+v", loaded)
	}
}

func TestDeadLetterStore_LoadReturnsCopies(t *testing.T) {
	store := NewDeadLetterStore()
	ctx := context.Background()

	if err := store.Save(ctx, []*domain.DeadLetterEntry{{AssetID: "mintA", Status: domain.DeadLetterPending}}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, _ := store.Load(ctx)
	loaded[0].Status = domain.DeadLetterResolved

	reloaded, _ := store.Load(ctx)
	if reloaded[0].Status != domain.DeadLetterPending {
		t.Error("Mutating a loaded entry must not change the stored one")
	}
}

func TestDeadLetterStore_NilEntryRejected(t *testing.T) {
	store := NewDeadLetterStore()

	err := store.Save(context.Background(), []*domain.DeadLetterEntry{nil})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}
