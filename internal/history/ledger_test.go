package history

import (
	"context"
	"testing"
	"time"

	"solana-burn-engine/internal/domain"
	"solana-burn-engine/internal/storage/memory"
)

func newTestLedger(t *testing.T) (*Ledger, *memory.HistoryStore) {
	t.Helper()
	store := memory.NewHistoryStore()
	now := time.UnixMilli(1700000000000)
	ledger, err := NewLedger(context.Background(), store, WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewLedger failed: %v", err)
	}
	return ledger, store
}

func TestAppend_ChainsEntries(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	first, err := ledger.Append(ctx, domain.HistoryWatcherStarted, []byte("start"))
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if first.Sequence != 1 {
		t.Errorf("first sequence: got %d, want 1", first.Sequence)
	}
	if first.PrevHash != GenesisHash {
		t.Errorf("first entry must anchor at genesis, got %s", first.PrevHash)
	}

	second, err := ledger.Append(ctx, domain.HistoryCycleExecuted, []byte("cycle"))
	if err != nil {
		t.Fatalf("second Append failed: %v", err)
	}
	if second.Sequence != 2 {
		t.Errorf("second sequence: got %d, want 2", second.Sequence)
	}
	if second.PrevHash != first.Hash {
		t.Error("second entry must commit to the first")
	}
}

func TestAttestation(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	att := ledger.Attestation()
	if att.Sequence != 0 || att.LatestHash != GenesisHash {
		t.Errorf("empty chain attestation: %+v", att)
	}

	entry, err := ledger.Append(ctx, domain.HistoryError, []byte("boom"))
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	att = ledger.Attestation()
	if att.Sequence != 1 || att.LatestHash != entry.Hash {
		t.Errorf("attestation after append: %+v", att)
	}
}

func TestNewLedger_ResumesFromStore(t *testing.T) {
	ledger, store := newTestLedger(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := ledger.Append(ctx, domain.HistoryError, []byte("e")); err != nil {
			t.Fatalf("Append %d failed: %v", i, err)
		}
	}
	want := ledger.Attestation()

	resumed, err := NewLedger(ctx, store)
	if err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	got := resumed.Attestation()
	if got != want {
		t.Errorf("resumed attestation %+v, want %+v", got, want)
	}

	next, err := resumed.Append(ctx, domain.HistoryError, []byte("after resume"))
	if err != nil {
		t.Fatalf("Append after resume failed: %v", err)
	}
	if next.Sequence != 4 {
		t.Errorf("sequence after resume: got %d, want 4", next.Sequence)
	}
	if next.PrevHash != want.LatestHash {
		t.Error("resumed chain must continue from the stored head")
	}
}

func TestRecent_Bounded(t *testing.T) {
	store := memory.NewHistoryStore()
	ledger, err := NewLedger(context.Background(), store, WithRecentCap(2))
	if err != nil {
		t.Fatalf("NewLedger failed: %v", err)
	}
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := ledger.Append(ctx, domain.HistoryError, []byte{byte(i)}); err != nil {
			t.Fatalf("Append %d failed: %v", i, err)
		}
	}

	recent := ledger.Recent(0)
	if len(recent) != 2 {
		t.Fatalf("recent view: got %d entries, want 2", len(recent))
	}
	if recent[0].Sequence != 4 || recent[1].Sequence != 5 {
		t.Errorf("recent sequences: got %d, %d", recent[0].Sequence, recent[1].Sequence)
	}
}

func TestVerify_AcceptsValidChain(t *testing.T) {
	ledger, store := newTestLedger(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if _, err := ledger.Append(ctx, domain.HistoryError, []byte{byte(i)}); err != nil {
			t.Fatalf("Append %d failed: %v", i, err)
		}
	}

	entries, err := store.Tail(ctx, 4)
	if err != nil {
		t.Fatalf("Tail failed: %v", err)
	}
	if err := Verify(entries); err != nil {
		t.Errorf("valid chain must verify: %v", err)
	}
}

func TestVerify_DetectsTampering(t *testing.T) {
	ledger, store := newTestLedger(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := ledger.Append(ctx, domain.HistoryError, []byte{byte(i)}); err != nil {
			t.Fatalf("Append %d failed: %v", i, err)
		}
	}

	entries, err := store.Tail(ctx, 3)
	if err != nil {
		t.Fatalf("Tail failed: %v", err)
	}

	// Rewriting a payload hash invalidates that entry's own hash.
	entries[1].PayloadHash = "0000"
	if err := Verify(entries); err == nil {
		t.Error("tampered payload must break verification")
	}

	// Recomputing the hash hides the edit locally but breaks the link from
	// the successor.
	entries[1].Hash = EntryHash(entries[1])
	if err := Verify(entries); err == nil {
		t.Error("recomputed hash must still break the successor's commitment")
	}
}
