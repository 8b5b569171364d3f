// Package history provides the append-only, hash-chained ledger of daemon
// lifecycle and error events. Each entry commits to its predecessor, so any
// rewrite of a stored entry breaks verification from that point on.
package history

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"lukechampine.com/blake3"

	"solana-burn-engine/internal/domain"
	"solana-burn-engine/internal/storage"
)

// GenesisHash anchors the chain: the PrevHash of the first entry.
var GenesisHash = hashHex([]byte("solana-burn-engine/history/genesis"))

// DefaultRecentCap bounds the in-memory recent-entries view.
const DefaultRecentCap = 256

// ErrChainBroken is returned by Verify when an entry does not commit to its
// predecessor.
var ErrChainBroken = errors.New("history chain broken")

// Ledger is the writer for the history chain. All appends are serialized; the
// ledger owns the (sequence, lastHash) cursor and keeps a bounded recent view.
type Ledger struct {
	store storage.HistoryStore

	mu        sync.Mutex
	sequence  uint64
	lastHash  string
	recent    []*domain.HistoryEntry
	recentCap int

	nowFn func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithRecentCap sets the size of the in-memory recent-entries view.
func WithRecentCap(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.recentCap = n
		}
	}
}

// WithClock sets the time source, used by tests.
func WithClock(nowFn func() time.Time) Option {
	return func(l *Ledger) {
		l.nowFn = nowFn
	}
}

// NewLedger creates a ledger on top of a store, resuming the chain from the
// store's most recent entry if one exists.
func NewLedger(ctx context.Context, store storage.HistoryStore, opts ...Option) (*Ledger, error) {
	l := &Ledger{
		store:     store,
		lastHash:  GenesisHash,
		recentCap: DefaultRecentCap,
		nowFn:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}

	last, err := store.Last(ctx)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("load last history entry: %w", err)
	}
	if last != nil {
		l.sequence = last.Sequence
		l.lastHash = last.Hash
	}

	return l, nil
}

// Append adds one entry to the chain and persists it.
func (l *Ledger) Append(ctx context.Context, kind domain.HistoryKind, payload []byte) (*domain.HistoryEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := &domain.HistoryEntry{
		Sequence:    l.sequence + 1,
		PrevHash:    l.lastHash,
		PayloadHash: hashHex(payload),
		Kind:        kind,
		Timestamp:   l.nowFn().UnixMilli(),
	}
	entry.Hash = EntryHash(entry)

	if err := l.store.Append(ctx, entry); err != nil {
		return nil, fmt.Errorf("append history entry: %w", err)
	}

	l.sequence = entry.Sequence
	l.lastHash = entry.Hash

	l.recent = append(l.recent, entry)
	if len(l.recent) > l.recentCap {
		l.recent = l.recent[len(l.recent)-l.recentCap:]
	}

	return entry, nil
}

// Attestation returns the latest hash and sequence number, enough to later
// prove the chain has not been rewritten.
func (l *Ledger) Attestation() domain.Attestation {
	l.mu.Lock()
	defer l.mu.Unlock()
	return domain.Attestation{
		LatestHash: l.lastHash,
		Sequence:   l.sequence,
	}
}

// Recent returns up to n most recent entries from the in-memory view,
// oldest first.
func (l *Ledger) Recent(n int) []*domain.HistoryEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n <= 0 || n > len(l.recent) {
		n = len(l.recent)
	}
	out := make([]*domain.HistoryEntry, n)
	copy(out, l.recent[len(l.recent)-n:])
	return out
}

// EntryHash computes the chain hash of an entry. The hash commits to the
// sequence, the previous hash, the payload hash, the kind and the timestamp.
func EntryHash(e *domain.HistoryEntry) string {
	var buf []byte
	buf = binary.BigEndian.AppendUint64(buf, e.Sequence)
	buf = append(buf, e.PrevHash...)
	buf = append(buf, e.PayloadHash...)
	buf = append(buf, e.Kind...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(e.Timestamp))
	return hashHex(buf)
}

// Verify walks a contiguous run of entries and checks that every entry commits
// to its predecessor and that its own hash is consistent. The run must start
// either at the genesis anchor or at the entry whose hash equals prevHash of
// the first element.
func Verify(entries []*domain.HistoryEntry) error {
	for i, e := range entries {
		if EntryHash(e) != e.Hash {
			return fmt.Errorf("%w: entry %d hash mismatch", ErrChainBroken, e.Sequence)
		}
		if i == 0 {
			continue
		}
		prev := entries[i-1]
		if e.PrevHash != prev.Hash {
			return fmt.Errorf("%w: entry %d does not commit to entry %d", ErrChainBroken, e.Sequence, prev.Sequence)
		}
		if e.Sequence != prev.Sequence+1 {
			return fmt.Errorf("%w: sequence gap between %d and %d", ErrChainBroken, prev.Sequence, e.Sequence)
		}
	}
	return nil
}

func hashHex(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}
