// Package validator runs the pre-flight checks gating every cycle pass.
package validator

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"

	"solana-burn-engine/internal/allocation"
	"solana-burn-engine/internal/solana"
)

// CheckResult is the outcome of one pre-flight check.
type CheckResult struct {
	Name      string
	Threshold string
	Actual    string
	Pass      bool
}

// Result bundles all pre-flight checks for one cycle pass.
type Result struct {
	Checks []CheckResult
}

// OK reports whether every check passed.
func (r *Result) OK() bool {
	for _, c := range r.Checks {
		if !c.Pass {
			return false
		}
	}
	return true
}

// Failed returns the names of failed checks.
func (r *Result) Failed() []string {
	var out []string
	for _, c := range r.Checks {
		if !c.Pass {
			out = append(out, c.Name)
		}
	}
	return out
}

// SyncResult is the partial-readiness outcome of WaitForFees.
type SyncResult struct {
	Ready    []string // asset ids at or above the threshold
	NotReady []string // asset ids still below it when the wait ended
	TimedOut bool
}

// Validator runs cycle pre-flight checks against chain state.
type Validator struct {
	rpc       solana.RPCClient
	allocator *allocation.Allocator

	operatorKey        string
	vaultAccounts      []string
	primaryMint        string
	minOperatorBalance uint64
	minFeeThreshold    uint64
	logger             *log.Logger
}

// Options contains configuration for creating a Validator.
type Options struct {
	RPC       solana.RPCClient
	Allocator *allocation.Allocator

	OperatorKey        string
	VaultAccounts      []string
	PrimaryMint        string // mint of the primary asset, may be empty
	MinOperatorBalance uint64 // lamports
	MinFeeThreshold    uint64 // lamports
	Logger             *log.Logger
}

// New creates a validator.
func New(opts Options) *Validator {
	v := &Validator{
		rpc:                opts.RPC,
		allocator:          opts.Allocator,
		operatorKey:        opts.OperatorKey,
		vaultAccounts:      opts.VaultAccounts,
		primaryMint:        opts.PrimaryMint,
		minOperatorBalance: opts.MinOperatorBalance,
		minFeeThreshold:    opts.MinFeeThreshold,
		logger:             opts.Logger,
	}
	if v.logger == nil {
		v.logger = log.New(os.Stdout, "[validator] ", log.LstdFlags)
	}
	return v
}

// Validate runs every pre-flight check. The returned error reports only RPC
// failures; check failures land in the result.
func (v *Validator) Validate(ctx context.Context, assetCount int) (*Result, error) {
	res := &Result{}

	res.Checks = append(res.Checks, CheckResult{
		Name:      "operator key on curve",
		Threshold: "valid ed25519 point",
		Actual:    shortKey(v.operatorKey),
		Pass:      isOnCurve(v.operatorKey),
	})

	vaultsOK := true
	for _, acct := range v.vaultAccounts {
		if !isValidPubkey(acct) {
			vaultsOK = false
			break
		}
	}
	res.Checks = append(res.Checks, CheckResult{
		Name:      "vault addresses decode",
		Threshold: "32-byte base58",
		Actual:    fmt.Sprintf("%d accounts", len(v.vaultAccounts)),
		Pass:      vaultsOK && len(v.vaultAccounts) > 0,
	})

	res.Checks = append(res.Checks, CheckResult{
		Name:      "assets configured",
		Threshold: ">= 1",
		Actual:    fmt.Sprintf("%d", assetCount),
		Pass:      assetCount >= 1,
	})

	balance, err := v.rpc.GetBalance(ctx, v.operatorKey)
	if err != nil {
		return nil, fmt.Errorf("read operator balance: %w", err)
	}
	res.Checks = append(res.Checks, CheckResult{
		Name:      "operator balance",
		Threshold: fmt.Sprintf(">= %d lamports", v.minOperatorBalance),
		Actual:    fmt.Sprintf("%d lamports", balance.Lamports),
		Pass:      balance.Lamports >= v.minOperatorBalance,
	})

	if v.primaryMint != "" {
		info, err := v.rpc.GetAccountInfo(ctx, v.primaryMint)
		if err != nil {
			return nil, fmt.Errorf("read primary mint account: %w", err)
		}
		res.Checks = append(res.Checks, CheckResult{
			Name:      "primary mint exists",
			Threshold: "account present",
			Actual:    fmt.Sprintf("%s present=%t", shortKey(v.primaryMint), info != nil),
			Pass:      info != nil,
		})
	}

	if !res.OK() {
		v.logger.Printf("pre-flight failed: %v", res.Failed())
	}
	return res, nil
}

// WaitForFees polls pending fees until every configured asset reaches the
// minimum threshold or the timeout elapses. Partial readiness is a valid
// outcome, not an error; the error reports only context cancellation or RPC
// failure.
func (v *Validator) WaitForFees(ctx context.Context, interval, timeout time.Duration) (*SyncResult, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		allocs, err := v.allocator.QueryPendingFees(ctx)
		if err != nil {
			return nil, fmt.Errorf("poll pending fees: %w", err)
		}

		res := &SyncResult{}
		for _, a := range allocs {
			if a.PendingFees >= v.minFeeThreshold {
				res.Ready = append(res.Ready, a.AssetID)
			} else {
				res.NotReady = append(res.NotReady, a.AssetID)
			}
		}
		if len(res.NotReady) == 0 {
			return res, nil
		}
		if time.Now().After(deadline) {
			res.TimedOut = true
			v.logger.Printf("fee sync wait timed out, %d/%d assets ready",
				len(res.Ready), len(res.Ready)+len(res.NotReady))
			return res, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// isValidPubkey reports whether s decodes to exactly 32 bytes of base58.
func isValidPubkey(s string) bool {
	raw, err := base58.Decode(s)
	return err == nil && len(raw) == 32
}

// isOnCurve reports whether the key decodes to a valid ed25519 curve point.
// Program-derived addresses are off-curve, so a signing key must pass this.
func isOnCurve(pubkey string) bool {
	raw, err := base58.Decode(pubkey)
	if err != nil || len(raw) != 32 {
		return false
	}
	_, err = new(edwards25519.Point).SetBytes(raw)
	return err == nil
}

func shortKey(s string) string {
	if len(s) <= 12 {
		return s
	}
	return s[:6] + ".." + s[len(s)-4:]
}
