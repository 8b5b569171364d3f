package validator

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/mr-tron/base58"

	"solana-burn-engine/internal/allocation"
	"solana-burn-engine/internal/solana"
	"solana-burn-engine/internal/solana/stub"
)

const (
	testOperator = "11111111111111111111111111111111"
	testVault    = "So11111111111111111111111111111111111111112"
)

// offCurveKey encodes a non-canonical field element, which can never decode
// to a curve point.
func offCurveKey() string {
	return base58.Encode(bytes.Repeat([]byte{0xFF}, 32))
}

func newTestValidator(rpc *stub.RPCClient) *Validator {
	return New(Options{
		RPC:                rpc,
		OperatorKey:        testOperator,
		VaultAccounts:      []string{testVault},
		MinOperatorBalance: 1_000_000_000,
	})
}

func TestValidate_AllChecksPass(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.SetBalance(testOperator, 2_000_000_000, 10)

	res, err := newTestValidator(rpc).Validate(context.Background(), 3)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !res.OK() {
		t.Fatalf("failed checks: %v", res.Failed())
	}
	if len(res.Checks) != 4 {
		t.Errorf("checks: got %d, want 4", len(res.Checks))
	}
}

func TestValidate_OffCurveOperatorKey(t *testing.T) {
	rpc := stub.NewRPCClient()
	key := offCurveKey()
	rpc.SetBalance(key, 2_000_000_000, 10)

	v := New(Options{
		RPC:                rpc,
		OperatorKey:        key,
		VaultAccounts:      []string{testVault},
		MinOperatorBalance: 1_000_000_000,
	})
	res, err := v.Validate(context.Background(), 1)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if res.OK() {
		t.Fatal("off-curve operator key must fail pre-flight")
	}
	if failed := res.Failed(); len(failed) != 1 || failed[0] != "operator key on curve" {
		t.Errorf("failed checks: %v", failed)
	}
}

func TestValidate_BadVaultAddress(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.SetBalance(testOperator, 2_000_000_000, 10)

	v := New(Options{
		RPC:                rpc,
		OperatorKey:        testOperator,
		VaultAccounts:      []string{testVault, "not-base58-0OIl"},
		MinOperatorBalance: 1_000_000_000,
	})
	res, err := v.Validate(context.Background(), 1)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if failed := res.Failed(); len(failed) != 1 || failed[0] != "vault addresses decode" {
		t.Errorf("failed checks: %v", failed)
	}
}

func TestValidate_NoAssetsConfigured(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.SetBalance(testOperator, 2_000_000_000, 10)

	res, err := newTestValidator(rpc).Validate(context.Background(), 0)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if failed := res.Failed(); len(failed) != 1 || failed[0] != "assets configured" {
		t.Errorf("failed checks: %v", failed)
	}
}

func TestValidate_OperatorBalanceBelowMinimum(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.SetBalance(testOperator, 999_999_999, 10)

	res, err := newTestValidator(rpc).Validate(context.Background(), 1)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if failed := res.Failed(); len(failed) != 1 || failed[0] != "operator balance" {
		t.Errorf("failed checks: %v", failed)
	}
}

func TestValidate_RPCFailureIsAnError(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.SetBalance(testOperator, 2_000_000_000, 10)
	rpc.BalanceErrs[testOperator] = context.DeadlineExceeded

	if _, err := newTestValidator(rpc).Validate(context.Background(), 1); err == nil {
		t.Fatal("RPC failure must surface as an error, not a check result")
	}
}

func TestValidate_PrimaryMintCheck(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.SetBalance(testOperator, 2_000_000_000, 10)
	mint := "MintAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

	v := New(Options{
		RPC:                rpc,
		OperatorKey:        testOperator,
		VaultAccounts:      []string{testVault},
		PrimaryMint:        mint,
		MinOperatorBalance: 1_000_000_000,
	})

	res, err := v.Validate(context.Background(), 1)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if failed := res.Failed(); len(failed) != 1 || failed[0] != "primary mint exists" {
		t.Errorf("missing mint account: failed checks %v", failed)
	}

	rpc.Accounts[mint] = &solana.AccountInfo{Lamports: 1}
	res, err = v.Validate(context.Background(), 1)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !res.OK() {
		t.Errorf("present mint account: failed checks %v", res.Failed())
	}
}

func TestWaitForFees_AllReadyImmediately(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.TokenBalances["feeA"] = 5000
	rpc.TokenBalances["feeB"] = 2000

	allocator := allocation.NewAllocator(rpc, []allocation.AssetFeeSource{
		{AssetID: "mintA", FeeAccount: "feeA"},
		{AssetID: "mintB", FeeAccount: "feeB"},
	})
	v := New(Options{RPC: rpc, Allocator: allocator, MinFeeThreshold: 1000})

	res, err := v.WaitForFees(context.Background(), 10*time.Millisecond, time.Second)
	if err != nil {
		t.Fatalf("WaitForFees: %v", err)
	}
	if res.TimedOut {
		t.Error("must not time out when every asset is ready")
	}
	if len(res.Ready) != 2 || len(res.NotReady) != 0 {
		t.Errorf("readiness: ready=%v notReady=%v", res.Ready, res.NotReady)
	}
}

func TestWaitForFees_PartialReadinessOnTimeout(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.TokenBalances["feeA"] = 5000
	rpc.TokenBalances["feeB"] = 100

	allocator := allocation.NewAllocator(rpc, []allocation.AssetFeeSource{
		{AssetID: "mintA", FeeAccount: "feeA"},
		{AssetID: "mintB", FeeAccount: "feeB"},
	})
	v := New(Options{RPC: rpc, Allocator: allocator, MinFeeThreshold: 1000})

	res, err := v.WaitForFees(context.Background(), time.Millisecond, 0)
	if err != nil {
		t.Fatalf("WaitForFees: %v", err)
	}
	if !res.TimedOut {
		t.Error("partial readiness at the deadline must flag TimedOut")
	}
	if len(res.Ready) != 1 || res.Ready[0] != "mintA" {
		t.Errorf("ready: got %v, want [mintA]", res.Ready)
	}
	if len(res.NotReady) != 1 || res.NotReady[0] != "mintB" {
		t.Errorf("not ready: got %v, want [mintB]", res.NotReady)
	}
}
