// Package dlq implements the durable dead-letter queue for failed cycle
// attempts. It is the single funnel for cycle-execution failures and the
// single source of retry decisions: nothing outside this package decides when
// a failed cycle runs again.
package dlq

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"solana-burn-engine/internal/domain"
	"solana-burn-engine/internal/observability"
	"solana-burn-engine/internal/storage"
)

// Defaults for queue limits and backoff.
const (
	DefaultMaxEntries  = 100
	DefaultMaxRetries  = 5
	DefaultMaxAge      = 24 * time.Hour
	DefaultBackoffBase = 1 * time.Minute
	DefaultMaxBackoff  = 1 * time.Hour
)

// Queue is the dead-letter queue over a pluggable store. All mutation goes
// through a full load-modify-save cycle under the queue mutex, so concurrent
// passes never lose updates.
type Queue struct {
	store       storage.DeadLetterStore
	maxEntries  int
	maxRetries  int
	maxAge      time.Duration
	backoffBase time.Duration
	maxBackoff  time.Duration
	logger      *log.Logger
	nowFn       func() time.Time

	mu sync.Mutex
}

// Options contains configuration for creating a Queue.
type Options struct {
	Store       storage.DeadLetterStore
	MaxEntries  int           // Default: 100
	MaxRetries  int           // Default: 5
	MaxAge      time.Duration // Default: 24h
	BackoffBase time.Duration // Default: 1m
	MaxBackoff  time.Duration // Default: 1h
	Logger      *log.Logger
	Clock       func() time.Time // Default: time.Now
}

// New creates a dead-letter queue.
func New(opts Options) *Queue {
	q := &Queue{
		store:       opts.Store,
		maxEntries:  opts.MaxEntries,
		maxRetries:  opts.MaxRetries,
		maxAge:      opts.MaxAge,
		backoffBase: opts.BackoffBase,
		maxBackoff:  opts.MaxBackoff,
		logger:      opts.Logger,
		nowFn:       opts.Clock,
	}
	if q.maxEntries == 0 {
		q.maxEntries = DefaultMaxEntries
	}
	if q.maxRetries == 0 {
		q.maxRetries = DefaultMaxRetries
	}
	if q.maxAge == 0 {
		q.maxAge = DefaultMaxAge
	}
	if q.backoffBase == 0 {
		q.backoffBase = DefaultBackoffBase
	}
	if q.maxBackoff == 0 {
		q.maxBackoff = DefaultMaxBackoff
	}
	if q.logger == nil {
		q.logger = log.Default()
	}
	if q.nowFn == nil {
		q.nowFn = time.Now
	}
	return q
}

// Append records a failed cycle attempt. The error is classified as transient
// or permanent; transient failures get a scheduled retry with exponential
// backoff. The queue keeps at most MaxEntries records, dropping the oldest.
func (q *Queue) Append(ctx context.Context, assetID, accountID string, cause error, pendingFees, allocation uint64, retryCount int) (*domain.DeadLetterEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries, err := q.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load dead-letter entries: %w", err)
	}

	now := q.nowFn()
	entry := &domain.DeadLetterEntry{
		Timestamp:            now.UnixMilli(),
		AssetID:              assetID,
		AccountID:            accountID,
		ErrorText:            cause.Error(),
		IsTransient:          IsTransient(cause),
		IsCycleTooSoon:       IsCycleTooSoon(cause),
		PendingFeesAtFailure: pendingFees,
		AllocationAtFailure:  allocation,
		RetryCount:           retryCount,
		Status:               domain.DeadLetterPending,
	}
	if entry.IsTransient {
		entry.NextRetryAt = now.Add(q.backoffFor(retryCount)).UnixMilli()
	}

	if entry.IsCycleTooSoon {
		observability.RecordDeadLetter("cycle_too_soon")
		q.logger.Printf("[dlq] cycle too soon for %s, retry %d scheduled at %d", assetID, retryCount, entry.NextRetryAt)
	} else if entry.IsTransient {
		observability.RecordDeadLetter("transient")
		q.logger.Printf("[dlq] transient failure for %s, retry %d scheduled at %d: %s", assetID, retryCount, entry.NextRetryAt, entry.ErrorText)
	} else {
		observability.RecordDeadLetter("permanent")
		q.logger.Printf("[dlq] permanent failure for %s: %s", assetID, entry.ErrorText)
	}

	entries = append(entries, entry)
	if len(entries) > q.maxEntries {
		entries = entries[len(entries)-q.maxEntries:]
	}

	if err := q.store.Save(ctx, entries); err != nil {
		return nil, fmt.Errorf("save dead-letter entries: %w", err)
	}
	return entry, nil
}

// backoffFor computes the retry delay for the given retry count:
// base * 2^(retryCount-1), capped at the maximum interval.
func (q *Queue) backoffFor(retryCount int) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}
	shift := uint(retryCount - 1)
	if shift > 16 {
		shift = 16
	}
	delay := q.backoffBase * time.Duration(1<<shift)
	if delay > q.maxBackoff || delay <= 0 {
		delay = q.maxBackoff
	}
	return delay
}

// ProcessResult is the outcome of one queue scan.
type ProcessResult struct {
	// Retryable entries are transient, still pending, and due for retry.
	Retryable []*domain.DeadLetterEntry
	// Expired entries crossed the age or retry ceiling on this scan and were
	// moved to their terminal state.
	Expired []*domain.DeadLetterEntry
}

// Process scans all pending entries. Entries over the age ceiling or at the
// retry ceiling are flipped to expired, which is terminal. Transient entries
// whose retry time has arrived are returned as retryable but stay pending
// until resolved or expired.
func (q *Queue) Process(ctx context.Context) (*ProcessResult, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries, err := q.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load dead-letter entries: %w", err)
	}

	now := q.nowFn()
	result := &ProcessResult{}
	changed := false

	for _, e := range entries {
		if e.Status != domain.DeadLetterPending {
			continue
		}

		age := now.Sub(time.UnixMilli(e.Timestamp))
		if e.RetryCount >= q.maxRetries || age > q.maxAge {
			e.Status = domain.DeadLetterExpired
			result.Expired = append(result.Expired, e)
			changed = true
			q.logger.Printf("[dlq] entry for %s expired (retries=%d, age=%v)", e.AssetID, e.RetryCount, age.Truncate(time.Second))
			continue
		}

		if e.IsTransient && e.NextRetryAt > 0 && e.NextRetryAt <= now.UnixMilli() {
			result.Retryable = append(result.Retryable, e)
		}
	}

	if changed {
		if err := q.store.Save(ctx, entries); err != nil {
			return nil, fmt.Errorf("save dead-letter entries: %w", err)
		}
	}

	return result, nil
}

// MarkResolved flips every pending entry for the asset to resolved. Retry
// failures append one entry per attempt, so a success must close all of them
// or the survivors keep re-entering the retry stream. Calling it again for
// the same asset is a no-op; already-resolved entries are never touched.
// Returns true if at least one entry was resolved.
func (q *Queue) MarkResolved(ctx context.Context, assetID string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries, err := q.store.Load(ctx)
	if err != nil {
		return false, fmt.Errorf("load dead-letter entries: %w", err)
	}

	resolved := 0
	for _, e := range entries {
		if e.AssetID != assetID || e.Status != domain.DeadLetterPending {
			continue
		}
		e.Status = domain.DeadLetterResolved
		resolved++
	}
	if resolved == 0 {
		return false, nil
	}

	if err := q.store.Save(ctx, entries); err != nil {
		return false, fmt.Errorf("save dead-letter entries: %w", err)
	}
	q.logger.Printf("[dlq] %d entries for %s resolved", resolved, assetID)
	return true, nil
}

// Pending returns all pending entries in insertion order.
func (q *Queue) Pending(ctx context.Context) ([]*domain.DeadLetterEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries, err := q.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load dead-letter entries: %w", err)
	}

	var pending []*domain.DeadLetterEntry
	for _, e := range entries {
		if e.Status == domain.DeadLetterPending {
			pending = append(pending, e)
		}
	}
	return pending, nil
}

// Snapshot returns all entries regardless of status, for reporting consumers.
func (q *Queue) Snapshot(ctx context.Context) ([]*domain.DeadLetterEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.store.Load(ctx)
}
