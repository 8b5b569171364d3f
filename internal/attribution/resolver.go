package attribution

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"solana-burn-engine/internal/domain"
	"solana-burn-engine/internal/history"
	"solana-burn-engine/internal/observability"
	"solana-burn-engine/internal/solana"
	"solana-burn-engine/internal/storage"
)

// WSOLMint is the wrapped-SOL mint, the settlement currency. Token balance
// changes in this mint never identify a causing asset.
const WSOLMint = "So11111111111111111111111111111111111111112"

// Defaults for the attribution window.
const (
	DefaultSignatureLimit = 20
	DefaultSlotTolerance  = 5
)

// Resolver maps a fee event to the asset whose activity produced it. It looks
// up recent signatures on the vault account, picks the one landed closest in
// slot terms, and reads the transaction's token balance changes.
type Resolver struct {
	rpc      solana.RPCClient
	registry *Registry
	ledger   *history.Ledger
	events   storage.FeeEventStore
	notify   chan<- domain.AttributedFee

	sigLimit      int
	slotTolerance int64
	logger        *log.Logger
	nowFn         func() time.Time
}

// Options contains configuration for creating a Resolver.
type Options struct {
	RPC      solana.RPCClient
	Registry *Registry
	Ledger   *history.Ledger

	// Events, when set, receives every attributed fee for analytics.
	Events storage.FeeEventStore

	// Notify, when set, receives attributed fees for audit. Sends never
	// block; a full channel drops the notification.
	Notify chan<- domain.AttributedFee

	SignatureLimit int              // Default: 20
	SlotTolerance  int64            // Default: 5
	Logger         *log.Logger      // Default: stdout with [attribution] prefix
	Clock          func() time.Time // Default: time.Now
}

// NewResolver creates a resolver.
func NewResolver(opts Options) *Resolver {
	r := &Resolver{
		rpc:           opts.RPC,
		registry:      opts.Registry,
		ledger:        opts.Ledger,
		events:        opts.Events,
		notify:        opts.Notify,
		sigLimit:      opts.SignatureLimit,
		slotTolerance: opts.SlotTolerance,
		logger:        opts.Logger,
		nowFn:         opts.Clock,
	}
	if r.registry == nil {
		r.registry = NewRegistry(0)
	}
	if r.sigLimit <= 0 {
		r.sigLimit = DefaultSignatureLimit
	}
	if r.slotTolerance <= 0 {
		r.slotTolerance = DefaultSlotTolerance
	}
	if r.logger == nil {
		r.logger = log.New(os.Stdout, "[attribution] ", log.LstdFlags|log.Lmicroseconds)
	}
	if r.nowFn == nil {
		r.nowFn = time.Now
	}
	return r
}

// Registry returns the asset registry backing this resolver.
func (r *Resolver) Registry() *Registry {
	return r.registry
}

// Attribute resolves one fee event to an asset. Failures are absorbed: an
// event that cannot be attributed is counted as orphaned, logged and recorded
// in the history ledger, and never retried. The returned error reports only
// infrastructure failures (RPC errors), which also leave the event orphaned.
func (r *Resolver) Attribute(ctx context.Context, event domain.FeeEvent) error {
	sigs, err := r.rpc.GetSignaturesForAddress(ctx, event.AccountID, &solana.SignaturesOpts{
		Limit: r.sigLimit,
	})
	if err != nil {
		r.orphan(ctx, event, fmt.Sprintf("get signatures: %v", err))
		return fmt.Errorf("get signatures for %s: %w", event.AccountID, err)
	}

	// Signatures arrive most recent first; the first in-window match wins,
	// so ties favor the newest transaction.
	match := ""
	for _, sig := range sigs {
		if sig.Err != nil {
			continue
		}
		if absDiff(sig.Slot, event.Slot) <= r.slotTolerance {
			match = sig.Signature
			break
		}
	}
	if match == "" {
		r.orphan(ctx, event, fmt.Sprintf("no signature within %d slots of %d", r.slotTolerance, event.Slot))
		return nil
	}

	tx, err := r.rpc.GetTransaction(ctx, match)
	if err != nil {
		r.orphan(ctx, event, fmt.Sprintf("get transaction %s: %v", match, err))
		return fmt.Errorf("get transaction %s: %w", match, err)
	}
	if tx == nil || tx.Meta == nil {
		r.orphan(ctx, event, fmt.Sprintf("transaction %s not found", match))
		return nil
	}

	mint := causingMint(tx.Meta)
	if mint == "" {
		r.orphan(ctx, event, fmt.Sprintf("transaction %s has no token balance changes", match))
		return nil
	}

	r.attribute(ctx, event, mint, match)
	return nil
}

// causingMint scans post-transfer token balances, then pre-transfer balances
// as fallback, for the first mint that is not the settlement currency.
func causingMint(meta *solana.TransactionMeta) string {
	for _, tb := range meta.PostTokenBalances {
		if tb.Mint != "" && tb.Mint != WSOLMint {
			return tb.Mint
		}
	}
	for _, tb := range meta.PreTokenBalances {
		if tb.Mint != "" && tb.Mint != WSOLMint {
			return tb.Mint
		}
	}
	return ""
}

func (r *Resolver) attribute(ctx context.Context, event domain.FeeEvent, mint, signature string) {
	if _, known := r.registry.Resolve(mint); !known {
		evicted := r.registry.Register(domain.AssetRecord{
			AssetID:        mint,
			DisplayName:    shortID(mint),
			CausingAccount: event.AccountID,
		})
		if evicted != "" {
			r.logger.Printf("registry full, evicted asset %s", shortID(evicted))
			observability.DefaultMetrics.RegistryEvicted.Inc()
		}
		r.logger.Printf("discovered asset %s via %s vault", shortID(mint), event.VaultKind)
		observability.RecordAssetDiscovered()
	}

	r.registry.RecordAttribution(mint, uint64(event.Amount), event.Slot, r.nowFn())
	observability.RecordAttributed()

	fee := domain.AttributedFee{
		AssetID:     mint,
		AccountID:   event.AccountID,
		VaultKind:   event.VaultKind,
		Amount:      event.Amount,
		Slot:        event.Slot,
		TxSignature: signature,
		ObservedAt:  event.ObservedAt,
	}

	if r.events != nil {
		if err := r.events.InsertBulk(ctx, []*domain.AttributedFee{&fee}); err != nil {
			r.logger.Printf("persist attributed fee for %s: %v", shortID(mint), err)
		}
	}

	if r.notify != nil {
		select {
		case r.notify <- fee:
		default:
			r.logger.Printf("notification channel full, dropped attribution for %s", shortID(mint))
		}
	}

	r.logger.Printf("attributed %d lamports to %s (slot %d, sig %s)",
		event.Amount, shortID(mint), event.Slot, shortID(signature))
}

func (r *Resolver) orphan(ctx context.Context, event domain.FeeEvent, reason string) {
	r.registry.RecordOrphaned(uint64(event.Amount))
	observability.RecordOrphaned(uint64(event.Amount))
	r.logger.Printf("orphaned %d lamports on %s at slot %d: %s",
		event.Amount, shortID(event.AccountID), event.Slot, reason)

	if r.ledger == nil {
		return
	}
	payload := fmt.Sprintf("orphaned fee: account=%s amount=%d slot=%d reason=%s",
		event.AccountID, event.Amount, event.Slot, reason)
	if _, err := r.ledger.Append(ctx, domain.HistoryOrphanedFee, []byte(payload)); err != nil {
		r.logger.Printf("append orphaned-fee history entry: %v", err)
	}
}

func absDiff(a, b int64) int64 {
	if a > b {
		return a - b
	}
	return b - a
}

// shortID truncates an address or signature for log output.
func shortID(s string) string {
	if len(s) <= 12 {
		return s
	}
	return s[:6] + ".." + s[len(s)-4:]
}
