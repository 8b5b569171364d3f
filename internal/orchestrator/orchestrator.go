// Package orchestrator runs the cycle control loop: pre-flight, allocation,
// selection and hand-off to the executor, one asset per pass.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"solana-burn-engine/internal/allocation"
	"solana-burn-engine/internal/dlq"
	"solana-burn-engine/internal/domain"
	"solana-burn-engine/internal/history"
	"solana-burn-engine/internal/observability"
	"solana-burn-engine/internal/selector"
	"solana-burn-engine/internal/solana"
	"solana-burn-engine/internal/validator"
)

// ErrCycleLocked is returned when a pass is requested while another pass
// holds the execution lock. Callers skip the pass; there is no queuing.
var ErrCycleLocked = errors.New("cycle already in progress")

// DefaultInterval is the default ticker period for daemon-mode passes.
const DefaultInterval = 5 * time.Minute

// Executor performs the actual buy-and-burn for one asset. Transaction
// construction and signing happen behind this interface. It returns the
// signatures of the submitted transactions.
type Executor interface {
	Execute(ctx context.Context, assetID string) ([]string, error)
}

// Outcome labels the result of one pass.
type Outcome string

const (
	OutcomeExecuted   Outcome = "executed"
	OutcomeNoEligible Outcome = "no_eligible"
	OutcomeBlocked    Outcome = "blocked"
	OutcomeFailed     Outcome = "failed"
)

// RunResult records what one pass did.
type RunResult struct {
	Outcome       Outcome
	SelectedAsset string
	Slot          int64
	Pool          uint64
	Eligible      int
	Retried       bool // selected asset came back through the dead-letter queue
	Kept          uint64
	Forwarded     uint64
	Signatures    []string
	Validation    *validator.Result
	Err           error
}

// Orchestrator ties the cycle components together. At most one pass executes
// at a time, enforced by a non-blocking lock.
type Orchestrator struct {
	rpc       solana.RPCClient
	allocator *allocation.Allocator
	validator *validator.Validator
	queue     *dlq.Queue
	executor  Executor
	ledger    *history.Ledger

	vaultAccount    string // lamport vault funding the distributable pool
	minFeeThreshold uint64
	keepBps         uint32
	interval        time.Duration
	logger          *log.Logger
	nowFn           func() time.Time

	running sync.Mutex
	trigger chan struct{}
}

// Options contains configuration for creating an Orchestrator.
type Options struct {
	RPC       solana.RPCClient
	Allocator *allocation.Allocator
	Validator *validator.Validator
	Queue     *dlq.Queue
	Executor  Executor
	Ledger    *history.Ledger

	VaultAccount    string
	MinFeeThreshold uint64
	KeepBps         uint32           // basis points of the allocation kept back, 0 forwards everything
	Interval        time.Duration    // Default: 5m
	Logger          *log.Logger      // Default: stdout with [cycle] prefix
	Clock           func() time.Time // Default: time.Now
}

// New creates an orchestrator.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		rpc:             opts.RPC,
		allocator:       opts.Allocator,
		validator:       opts.Validator,
		queue:           opts.Queue,
		executor:        opts.Executor,
		ledger:          opts.Ledger,
		vaultAccount:    opts.VaultAccount,
		minFeeThreshold: opts.MinFeeThreshold,
		keepBps:         opts.KeepBps,
		interval:        opts.Interval,
		logger:          opts.Logger,
		nowFn:           opts.Clock,
		trigger:         make(chan struct{}, 1),
	}
	if o.interval == 0 {
		o.interval = DefaultInterval
	}
	if o.logger == nil {
		o.logger = log.New(os.Stdout, "[cycle] ", log.LstdFlags|log.Lmicroseconds)
	}
	if o.nowFn == nil {
		o.nowFn = time.Now
	}
	return o
}

// Trigger requests an immediate pass from the Run loop. Non-blocking; a pass
// already requested absorbs further triggers.
func (o *Orchestrator) Trigger() {
	select {
	case o.trigger <- struct{}{}:
	default:
	}
}

// Run executes passes on a fixed interval plus external triggers until the
// context is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	o.logger.Printf("orchestrator started, interval %v", o.interval)

	for {
		select {
		case <-ctx.Done():
			o.logger.Println("orchestrator stopping")
			return nil
		case <-ticker.C:
		case <-o.trigger:
		}

		result, err := o.RunCycle(ctx)
		if errors.Is(err, ErrCycleLocked) {
			observability.RecordCycleSkipped("locked")
			continue
		}
		if err != nil {
			o.logger.Printf("cycle pass: %v", err)
			continue
		}
		if result.Outcome == OutcomeExecuted {
			o.logger.Printf("cycle executed for %s at slot %d, pool %d lamports",
				result.SelectedAsset, result.Slot, result.Pool)
		}
	}
}

// RunCycle executes exactly one pass. Returns ErrCycleLocked without doing
// any work when another pass is in flight. The lock is released in a final
// step regardless of outcome.
func (o *Orchestrator) RunCycle(ctx context.Context) (*RunResult, error) {
	if !o.running.TryLock() {
		return nil, ErrCycleLocked
	}
	defer o.running.Unlock()

	start := o.nowFn()
	result, err := o.pass(ctx)
	elapsed := o.nowFn().Sub(start).Seconds()

	if err != nil {
		observability.RecordCycle(string(OutcomeFailed), elapsed)
		return nil, err
	}
	observability.RecordCycle(string(result.Outcome), elapsed)
	if result.Outcome == OutcomeExecuted {
		observability.DefaultMetrics.LastSuccessfulCycle.Set(float64(o.nowFn().Unix()))
	}
	return result, nil
}

func (o *Orchestrator) pass(ctx context.Context) (*RunResult, error) {
	// Retryable prior failures flow back into this pass's candidate set
	// before fresh selection.
	retryable := make(map[string]*domain.DeadLetterEntry)
	if o.queue != nil {
		scan, err := o.queue.Process(ctx)
		if err != nil {
			return nil, fmt.Errorf("process dead letters: %w", err)
		}
		for _, e := range scan.Expired {
			o.logger.Printf("dead letter for %s expired after %d retries", e.AssetID, e.RetryCount)
			observability.DefaultMetrics.DeadLettersExpired.Inc()
		}
		for _, e := range scan.Retryable {
			retryable[e.AssetID] = e
		}
		observability.DefaultMetrics.DeadLetterRetryable.Set(float64(len(retryable)))
	}

	allocations, err := o.allocator.QueryPendingFees(ctx)
	if err != nil {
		return nil, fmt.Errorf("query pending fees: %w", err)
	}
	for _, a := range allocations {
		observability.DefaultMetrics.PendingFees.WithLabelValues(a.AssetID).Set(float64(a.PendingFees))
	}

	check, err := o.validator.Validate(ctx, len(allocations))
	if err != nil {
		return nil, fmt.Errorf("pre-flight: %w", err)
	}
	if !check.OK() {
		o.logger.Printf("pass blocked by pre-flight: %v", check.Failed())
		return &RunResult{Outcome: OutcomeBlocked, Validation: check}, nil
	}

	vaultBalance, err := o.rpc.GetBalance(ctx, o.vaultAccount)
	if err != nil {
		return nil, fmt.Errorf("read vault balance: %w", err)
	}
	pool := allocation.CalculateDynamicAllocation(vaultBalance.Lamports, allocations)

	eligible := selector.Eligible(allocations, o.minFeeThreshold)
	// A retryable dead letter re-qualifies its asset even below the
	// threshold for this pass.
	eligible = o.foldRetryable(eligible, allocations, retryable)
	if len(eligible) == 0 {
		o.logger.Println("no eligible assets, pass complete")
		return &RunResult{Outcome: OutcomeNoEligible, Pool: pool, Validation: check}, nil
	}

	// Selection must use a slot read in this pass so the outcome is
	// auditable against the transaction it precedes.
	slot, err := o.rpc.GetSlot(ctx)
	if err != nil {
		return nil, fmt.Errorf("read current slot: %w", err)
	}
	observability.DefaultMetrics.SelectedSlot.Set(float64(slot))

	selected := selector.SelectForCycle(eligible, slot)
	_, retried := retryable[selected.AssetID]
	kept, forwarded := allocation.KeepForwardSplit(selected.Allocation, uint64(o.keepBps))

	result := &RunResult{
		Outcome:       OutcomeExecuted,
		SelectedAsset: selected.AssetID,
		Slot:          slot,
		Pool:          pool,
		Eligible:      len(eligible),
		Retried:       retried,
		Kept:          kept,
		Forwarded:     forwarded,
		Validation:    check,
	}

	o.logger.Printf("selected %s (slot %d mod %d eligible), allocation %d lamports (keep %d, forward %d)",
		selected.AssetID, slot, len(eligible), selected.Allocation, kept, forwarded)

	sigs, execErr := o.executor.Execute(ctx, selected.AssetID)
	if execErr != nil {
		o.handleFailure(ctx, selected, retryable[selected.AssetID], execErr)
		result.Outcome = OutcomeFailed
		result.Err = execErr
		return result, nil
	}

	result.Signatures = sigs
	o.handleSuccess(ctx, selected, sigs)
	return result, nil
}

// foldRetryable adds assets with due dead letters to the eligible set when
// fresh selection filtered them out.
func (o *Orchestrator) foldRetryable(eligible, all []*domain.TokenAllocation, retryable map[string]*domain.DeadLetterEntry) []*domain.TokenAllocation {
	if len(retryable) == 0 {
		return eligible
	}
	present := make(map[string]struct{}, len(eligible))
	for _, a := range eligible {
		present[a.AssetID] = struct{}{}
	}
	for _, a := range all {
		if a.IsPrimary {
			continue
		}
		if _, due := retryable[a.AssetID]; !due {
			continue
		}
		if _, ok := present[a.AssetID]; ok {
			continue
		}
		o.logger.Printf("folding %s back in from dead-letter queue", a.AssetID)
		eligible = append(eligible, a)
	}
	return eligible
}

func (o *Orchestrator) handleSuccess(ctx context.Context, selected *domain.TokenAllocation, sigs []string) {
	if o.queue != nil {
		resolved, err := o.queue.MarkResolved(ctx, selected.AssetID)
		if err != nil {
			o.logger.Printf("mark %s resolved: %v", selected.AssetID, err)
		} else if resolved {
			observability.DefaultMetrics.DeadLettersResolved.Inc()
		}
	}
	if o.ledger != nil {
		payload := fmt.Sprintf("cycle executed: asset=%s allocation=%d signatures=%v",
			selected.AssetID, selected.Allocation, sigs)
		if _, err := o.ledger.Append(ctx, domain.HistoryCycleExecuted, []byte(payload)); err != nil {
			o.logger.Printf("append cycle entry: %v", err)
		}
	}
}

func (o *Orchestrator) handleFailure(ctx context.Context, selected *domain.TokenAllocation, prior *domain.DeadLetterEntry, cause error) {
	retryCount := 1
	if prior != nil {
		retryCount = prior.RetryCount + 1
	}

	o.logger.Printf("execute %s failed (attempt %d): %v", selected.AssetID, retryCount, cause)

	if o.queue != nil {
		_, err := o.queue.Append(ctx, selected.AssetID, selected.AccountID, cause,
			selected.PendingFees, selected.Allocation, retryCount)
		if err != nil {
			o.logger.Printf("append dead letter for %s: %v", selected.AssetID, err)
		}
	}
	if o.ledger != nil {
		payload := fmt.Sprintf("cycle failed: asset=%s attempt=%d error=%v",
			selected.AssetID, retryCount, cause)
		if _, err := o.ledger.Append(ctx, domain.HistoryCycleFailed, []byte(payload)); err != nil {
			o.logger.Printf("append failure entry: %v", err)
		}
	}
}
