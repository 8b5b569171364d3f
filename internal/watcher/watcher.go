// Package watcher observes custodial vault balances and turns positive
// deltas into fee events.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"solana-burn-engine/internal/domain"
	"solana-burn-engine/internal/history"
	"solana-burn-engine/internal/observability"
	"solana-burn-engine/internal/solana"
)

// Defaults for snapshot seeding.
const (
	DefaultSeedRetries = 5
	DefaultSeedBackoff = 2 * time.Second
)

// Attributor consumes fee events. Attribution failures never propagate back
// into the watcher loop.
type Attributor interface {
	Attribute(ctx context.Context, event domain.FeeEvent) error
}

// VaultConfig names one watched account.
type VaultConfig struct {
	AccountID string
	Kind      domain.VaultKind
}

// Watcher seeds per-vault snapshots from chain state, subscribes to balance
// notifications and emits one FeeEvent per positive delta. Snapshots always
// advance, positive delta or not, so later deltas stay correct.
type Watcher struct {
	rpc      solana.RPCClient
	ws       solana.WSClient
	resolver Attributor
	ledger   *history.Ledger
	vaults   []VaultConfig

	seedRetries int
	seedBackoff time.Duration
	logger      *log.Logger
	nowFn       func() time.Time

	mu        sync.RWMutex
	snapshots map[string]*domain.VaultSnapshot

	depositsSeen     uint64
	lamportsReceived uint64
}

// Options contains configuration for creating a Watcher.
type Options struct {
	RPC      solana.RPCClient
	WS       solana.WSClient
	Resolver Attributor
	Ledger   *history.Ledger
	Vaults   []VaultConfig

	SeedRetries int              // Default: 5
	SeedBackoff time.Duration    // Default: 2s
	Logger      *log.Logger      // Default: stdout with [watcher] prefix
	Clock       func() time.Time // Default: time.Now
}

// New creates a watcher.
func New(opts Options) *Watcher {
	w := &Watcher{
		rpc:         opts.RPC,
		ws:          opts.WS,
		resolver:    opts.Resolver,
		ledger:      opts.Ledger,
		vaults:      opts.Vaults,
		seedRetries: opts.SeedRetries,
		seedBackoff: opts.SeedBackoff,
		logger:      opts.Logger,
		nowFn:       opts.Clock,
		snapshots:   make(map[string]*domain.VaultSnapshot, len(opts.Vaults)),
	}
	if w.seedRetries == 0 {
		w.seedRetries = DefaultSeedRetries
	}
	if w.seedBackoff == 0 {
		w.seedBackoff = DefaultSeedBackoff
	}
	if w.logger == nil {
		w.logger = log.New(os.Stdout, "[watcher] ", log.LstdFlags|log.Lmicroseconds)
	}
	if w.nowFn == nil {
		w.nowFn = time.Now
	}
	return w
}

// Run seeds snapshots, subscribes to every vault and processes notifications
// until the context is cancelled. A closed subscription channel ends the run
// with an error; the daemon restarts it.
func (w *Watcher) Run(ctx context.Context) error {
	if len(w.vaults) == 0 {
		return errors.New("no vaults configured")
	}

	if err := w.seedSnapshots(ctx); err != nil {
		return err
	}

	if w.ledger != nil {
		if _, err := w.ledger.Append(ctx, domain.HistoryWatcherStarted,
			[]byte(fmt.Sprintf("watching %d vaults", len(w.vaults)))); err != nil {
			w.logger.Printf("append start entry: %v", err)
		}
	}
	defer func() {
		if w.ledger == nil {
			return
		}
		// Shutdown entry uses a fresh context; the run context is already done.
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := w.ledger.Append(stopCtx, domain.HistoryWatcherStopped, nil); err != nil {
			w.logger.Printf("append stop entry: %v", err)
		}
	}()

	updates := make(chan solana.AccountUpdate, 256)
	closed := make(chan string, len(w.vaults))

	for _, vault := range w.vaults {
		ch, err := w.ws.SubscribeAccount(ctx, vault.AccountID)
		if err != nil {
			return fmt.Errorf("subscribe vault %s: %w", vault.AccountID, err)
		}
		w.logger.Printf("subscribed to %s vault %s", vault.Kind, shortKey(vault.AccountID))

		go func(account string, ch <-chan solana.AccountUpdate) {
			for update := range ch {
				select {
				case updates <- update:
				case <-ctx.Done():
					return
				}
			}
			select {
			case closed <- account:
			case <-ctx.Done():
			}
		}(vault.AccountID, ch)
	}

	for {
		select {
		case <-ctx.Done():
			w.logger.Println("watcher stopping")
			return nil

		case account := <-closed:
			observability.DefaultMetrics.SubscriptionDrops.Inc()
			return fmt.Errorf("subscription for %s closed", account)

		case update := <-updates:
			w.handleUpdate(ctx, update)
		}
	}
}

// seedSnapshots reads each vault's current balance with bounded retry.
func (w *Watcher) seedSnapshots(ctx context.Context) error {
	for _, vault := range w.vaults {
		var balance *solana.Balance
		var err error
		for attempt := 1; attempt <= w.seedRetries; attempt++ {
			balance, err = w.rpc.GetBalance(ctx, vault.AccountID)
			if err == nil {
				break
			}
			w.logger.Printf("seed %s attempt %d/%d: %v",
				shortKey(vault.AccountID), attempt, w.seedRetries, err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.seedBackoff * time.Duration(attempt)):
			}
		}
		if err != nil {
			return fmt.Errorf("seed snapshot for %s: %w", vault.AccountID, err)
		}

		w.mu.Lock()
		w.snapshots[vault.AccountID] = &domain.VaultSnapshot{
			AccountID:   vault.AccountID,
			Kind:        vault.Kind,
			LastBalance: balance.Lamports,
			LastSlot:    balance.Slot,
		}
		w.mu.Unlock()
		w.logger.Printf("seeded %s vault %s: %d lamports at slot %d",
			vault.Kind, shortKey(vault.AccountID), balance.Lamports, balance.Slot)
	}
	return nil
}

// handleUpdate advances the snapshot and emits a fee event when the balance
// increased. Negative and zero deltas still advance the snapshot.
func (w *Watcher) handleUpdate(ctx context.Context, update solana.AccountUpdate) {
	w.mu.Lock()
	snap, ok := w.snapshots[update.Pubkey]
	if !ok {
		w.mu.Unlock()
		w.logger.Printf("update for unknown account %s", shortKey(update.Pubkey))
		return
	}

	delta := int64(update.Lamports) - int64(snap.LastBalance)
	snap.LastBalance = update.Lamports
	snap.LastSlot = update.Slot
	kind := snap.Kind
	w.mu.Unlock()

	observability.RecordSnapshotUpdate(update.Slot)

	if delta <= 0 {
		if delta < 0 {
			w.logger.Printf("%s vault %s decreased by %d lamports at slot %d",
				kind, shortKey(update.Pubkey), -delta, update.Slot)
		}
		return
	}

	w.mu.Lock()
	w.depositsSeen++
	w.lamportsReceived += uint64(delta)
	w.mu.Unlock()
	observability.RecordDeposit(string(kind), uint64(delta))

	event := domain.FeeEvent{
		VaultKind:  kind,
		AccountID:  update.Pubkey,
		Amount:     delta,
		Slot:       update.Slot,
		ObservedAt: w.nowFn().UnixMilli(),
	}
	w.logger.Printf("fee event: %d lamports on %s vault %s at slot %d",
		delta, kind, shortKey(update.Pubkey), update.Slot)

	if w.resolver == nil {
		return
	}
	if err := w.resolver.Attribute(ctx, event); err != nil {
		w.logger.Printf("attribution failed for event at slot %d: %v", event.Slot, err)
	}
}

// Snapshot returns a copy of the snapshot for one account.
func (w *Watcher) Snapshot(account string) (domain.VaultSnapshot, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	snap, ok := w.snapshots[account]
	if !ok {
		return domain.VaultSnapshot{}, false
	}
	return *snap, true
}

// Counters returns vault-level totals: deposits seen and lamports received.
func (w *Watcher) Counters() (deposits, lamports uint64) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.depositsSeen, w.lamportsReceived
}

func shortKey(s string) string {
	if len(s) <= 12 {
		return s
	}
	return s[:6] + ".." + s[len(s)-4:]
}
