package dlq

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"solana-burn-engine/internal/domain"
	"solana-burn-engine/internal/observability"
	"solana-burn-engine/internal/storage/memory"
)

func newTestQueue(now *time.Time) *Queue {
	return New(Options{
		Store: memory.NewDeadLetterStore(),
		Clock: func() time.Time { return *now },
	})
}

func TestAppend_TransientSchedulesRetry(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	q := newTestQueue(&now)
	ctx := context.Background()

	entry, err := q.Append(ctx, "mintA", "acct", errors.New("connection reset by peer"), 500, 300, 1)
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	if !entry.IsTransient {
		t.Error("connection reset must classify as transient")
	}
	wantRetry := now.Add(DefaultBackoffBase).UnixMilli()
	if entry.NextRetryAt != wantRetry {
		t.Errorf("NextRetryAt: got %d, want %d", entry.NextRetryAt, wantRetry)
	}
	if entry.Status != domain.DeadLetterPending {
		t.Errorf("Status: got %s, want PENDING", entry.Status)
	}
}

func TestAppend_CountsByFailureClass(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	q := newTestQueue(&now)
	ctx := context.Background()

	counter := observability.DefaultMetrics.DeadLettersAppended.WithLabelValues("transient")
	before := testutil.ToFloat64(counter)

	if _, err := q.Append(ctx, "mintA", "acct", errors.New("connection reset by peer"), 500, 300, 1); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	if got := testutil.ToFloat64(counter); got != before+1 {
		t.Errorf("transient dead letters: got %v, want %v", got, before+1)
	}
}

func TestAppend_PermanentHasNoRetry(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	q := newTestQueue(&now)

	entry, err := q.Append(context.Background(), "mintA", "", errors.New("invalid mint account"), 0, 0, 1)
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	if entry.IsTransient {
		t.Error("invalid mint must classify as permanent")
	}
	if entry.NextRetryAt != 0 {
		t.Errorf("permanent entry must not schedule a retry, got %d", entry.NextRetryAt)
	}
}

func TestAppend_CycleTooSoonKeepsOwnLabel(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	q := newTestQueue(&now)

	cause := fmt.Errorf("execute: %w", ErrCycleTooSoon)
	entry, err := q.Append(context.Background(), "mintA", "", cause, 100, 50, 2)
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	if !entry.IsCycleTooSoon {
		t.Error("wrapped ErrCycleTooSoon must set IsCycleTooSoon")
	}
	if !entry.IsTransient {
		t.Error("cycle-too-soon gets the transient backoff treatment")
	}
	if entry.NextRetryAt == 0 {
		t.Error("cycle-too-soon must schedule a retry")
	}
}

func TestBackoff_MonotonicAndCapped(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	q := newTestQueue(&now)

	prev := time.Duration(0)
	for retry := 1; retry <= 10; retry++ {
		d := q.backoffFor(retry)
		if d < prev {
			t.Errorf("backoff decreased at retry %d: %v < %v", retry, d, prev)
		}
		if d > DefaultMaxBackoff {
			t.Errorf("backoff at retry %d exceeds cap: %v", retry, d)
		}
		prev = d
	}

	if q.backoffFor(1) != DefaultBackoffBase {
		t.Errorf("first retry: got %v, want %v", q.backoffFor(1), DefaultBackoffBase)
	}
	if q.backoffFor(2) != 2*DefaultBackoffBase {
		t.Errorf("second retry: got %v, want %v", q.backoffFor(2), 2*DefaultBackoffBase)
	}
	if q.backoffFor(100) != DefaultMaxBackoff {
		t.Errorf("deep retry must hit the cap, got %v", q.backoffFor(100))
	}
}

func TestAppend_CapEvictsOldest(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	q := New(Options{
		Store:      memory.NewDeadLetterStore(),
		MaxEntries: 3,
		Clock:      func() time.Time { return now },
	})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		asset := fmt.Sprintf("mint%d", i)
		if _, err := q.Append(ctx, asset, "", errors.New("boom"), 0, 0, 1); err != nil {
			t.Fatalf("Append %d failed: %v", i, err)
		}
	}

	entries, err := q.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected cap of 3, got %d entries", len(entries))
	}
	if entries[0].AssetID != "mint2" {
		t.Errorf("oldest surviving entry: got %s, want mint2", entries[0].AssetID)
	}
}

func TestProcess_ExpiresAtRetryCeiling(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	q := newTestQueue(&now)
	ctx := context.Background()

	// Retry count at the ceiling expires even at one hour of age.
	if _, err := q.Append(ctx, "mintA", "", errors.New("timeout"), 0, 0, DefaultMaxRetries); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	now = now.Add(1 * time.Hour)

	result, err := q.Process(ctx)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if len(result.Expired) != 1 {
		t.Fatalf("expected 1 expired, got %d", len(result.Expired))
	}
	if result.Expired[0].Status != domain.DeadLetterExpired {
		t.Errorf("Status: got %s, want EXPIRED", result.Expired[0].Status)
	}

	// Expiry is terminal: a second scan never resurrects the entry.
	result, err = q.Process(ctx)
	if err != nil {
		t.Fatalf("second Process failed: %v", err)
	}
	if len(result.Expired) != 0 || len(result.Retryable) != 0 {
		t.Error("expired entry must never be scanned again")
	}
}

func TestProcess_ExpiresAtAgeCeiling(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	q := newTestQueue(&now)
	ctx := context.Background()

	if _, err := q.Append(ctx, "mintA", "", errors.New("timeout"), 0, 0, 1); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	now = now.Add(DefaultMaxAge + time.Minute)

	result, err := q.Process(ctx)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if len(result.Expired) != 1 {
		t.Errorf("expected expiry past the age ceiling, got %d expired", len(result.Expired))
	}
}

func TestProcess_RetryableOnlyWhenDue(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	q := newTestQueue(&now)
	ctx := context.Background()

	if _, err := q.Append(ctx, "mintA", "", errors.New("timeout"), 0, 0, 1); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	// Before the backoff elapses nothing is due.
	result, err := q.Process(ctx)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if len(result.Retryable) != 0 {
		t.Error("entry must not be retryable before its backoff elapses")
	}

	now = now.Add(DefaultBackoffBase + time.Second)
	result, err = q.Process(ctx)
	if err != nil {
		t.Fatalf("second Process failed: %v", err)
	}
	if len(result.Retryable) != 1 {
		t.Fatalf("expected 1 retryable, got %d", len(result.Retryable))
	}
	if result.Retryable[0].Status != domain.DeadLetterPending {
		t.Error("retryable entries stay pending until resolved or expired")
	}
}

func TestProcess_PermanentNeverRetryable(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	q := newTestQueue(&now)
	ctx := context.Background()

	if _, err := q.Append(ctx, "mintA", "", errors.New("account does not exist"), 0, 0, 1); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	now = now.Add(2 * time.Hour)

	result, err := q.Process(ctx)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if len(result.Retryable) != 0 {
		t.Error("permanent failures are never retryable")
	}
}

func TestMarkResolved_Idempotent(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	q := newTestQueue(&now)
	ctx := context.Background()

	if _, err := q.Append(ctx, "mintA", "", errors.New("timeout"), 0, 0, 1); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	resolved, err := q.MarkResolved(ctx, "mintA")
	if err != nil {
		t.Fatalf("MarkResolved failed: %v", err)
	}
	if !resolved {
		t.Fatal("first MarkResolved must resolve the entry")
	}

	resolved, err = q.MarkResolved(ctx, "mintA")
	if err != nil {
		t.Fatalf("second MarkResolved failed: %v", err)
	}
	if resolved {
		t.Error("second MarkResolved must be a no-op")
	}

	resolved, err = q.MarkResolved(ctx, "unknown")
	if err != nil {
		t.Fatalf("MarkResolved for unknown asset failed: %v", err)
	}
	if resolved {
		t.Error("unknown asset must not resolve anything")
	}
}

func TestMarkResolved_ClosesAllPendingForAsset(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	q := newTestQueue(&now)
	ctx := context.Background()

	// One entry per failed attempt, as the cycle loop produces them.
	if _, err := q.Append(ctx, "mintA", "", errors.New("timeout"), 1, 0, 1); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	now = now.Add(time.Minute)
	if _, err := q.Append(ctx, "mintA", "", errors.New("timeout"), 2, 0, 2); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if _, err := q.Append(ctx, "mintB", "", errors.New("timeout"), 3, 0, 1); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	if _, err := q.MarkResolved(ctx, "mintA"); err != nil {
		t.Fatalf("MarkResolved failed: %v", err)
	}

	pending, err := q.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending, got %d", len(pending))
	}
	if pending[0].AssetID != "mintB" {
		t.Errorf("only the other asset may stay pending, got %s", pending[0].AssetID)
	}
}

func TestMarkResolved_AssetLeavesRetryStream(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	q := newTestQueue(&now)
	ctx := context.Background()

	if _, err := q.Append(ctx, "mintA", "", errors.New("timeout"), 1, 0, 1); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := q.Append(ctx, "mintA", "", errors.New("timeout"), 2, 0, 2); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	now = now.Add(10 * time.Minute)

	if _, err := q.MarkResolved(ctx, "mintA"); err != nil {
		t.Fatalf("MarkResolved failed: %v", err)
	}

	// Both backoffs have elapsed; a resolved asset must not come back as
	// retryable through an older duplicate.
	result, err := q.Process(ctx)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if len(result.Retryable) != 0 {
		t.Errorf("resolved asset reappeared as retryable: %d entries", len(result.Retryable))
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err       error
		transient bool
		cycleSoon bool
	}{
		{errors.New("request timed out"), true, false},
		{errors.New("429 Too Many Requests"), true, false},
		{errors.New("dial tcp: connection refused"), true, false},
		{errors.New("fetch failed"), true, false},
		{errors.New("unknown instruction"), false, false},
		{ErrCycleTooSoon, true, true},
		{errors.New("too soon since last cycle"), true, true},
	}

	for _, tc := range cases {
		if got := IsTransient(tc.err); got != tc.transient {
			t.Errorf("IsTransient(%q): got %t, want %t", tc.err, got, tc.transient)
		}
		if got := IsCycleTooSoon(tc.err); got != tc.cycleSoon {
			t.Errorf("IsCycleTooSoon(%q): got %t, want %t", tc.err, got, tc.cycleSoon)
		}
	}
}
