package stub

import (
	"context"
	"errors"
	"sync"

	"solana-burn-engine/internal/solana"
)

// ErrNotFound is returned when a requested record is not in the stub store.
var ErrNotFound = errors.New("not found")

// RPCClient implements solana.RPCClient for testing.
type RPCClient struct {
	mu            sync.Mutex
	Balances      map[string]*solana.Balance
	BalanceErrs   map[string]error
	Transactions  map[string]*solana.Transaction
	Signatures    map[string][]solana.SignatureInfo
	Accounts      map[string]*solana.AccountInfo
	TokenBalances map[string]uint64
	Slot          int64
}

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Balances:      make(map[string]*solana.Balance),
		BalanceErrs:   make(map[string]error),
		Transactions:  make(map[string]*solana.Transaction),
		Signatures:    make(map[string][]solana.SignatureInfo),
		Accounts:      make(map[string]*solana.AccountInfo),
		TokenBalances: make(map[string]uint64),
	}
}

// Compile-time interface check.
var _ solana.RPCClient = (*RPCClient)(nil)

// GetBalance retrieves a balance from the stub store.
func (c *RPCClient) GetBalance(_ context.Context, pubkey string) (*solana.Balance, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err, ok := c.BalanceErrs[pubkey]; ok && err != nil {
		// One-shot error: the next read succeeds, mirroring a transient failure.
		delete(c.BalanceErrs, pubkey)
		return nil, err
	}
	b, ok := c.Balances[pubkey]
	if !ok {
		return &solana.Balance{}, nil
	}
	balanceCopy := *b
	return &balanceCopy, nil
}

// GetSignaturesForAddress retrieves signatures for an address from the stub store.
func (c *RPCClient) GetSignaturesForAddress(_ context.Context, address string, opts *solana.SignaturesOpts) ([]solana.SignatureInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sigs := c.Signatures[address]

	if opts != nil && opts.Limit > 0 && opts.Limit < len(sigs) {
		return sigs[:opts.Limit], nil
	}
	return sigs, nil
}

// GetTransaction retrieves a transaction by signature from the stub store.
// Returns nil for unknown signatures, matching the HTTP client contract.
func (c *RPCClient) GetTransaction(_ context.Context, signature string) (*solana.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tx, ok := c.Transactions[signature]
	if !ok {
		return nil, nil
	}
	return tx, nil
}

// GetAccountInfo retrieves account info from the stub store.
func (c *RPCClient) GetAccountInfo(_ context.Context, pubkey string) (*solana.AccountInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	info, ok := c.Accounts[pubkey]
	if !ok {
		return nil, nil
	}
	return info, nil
}

// GetTokenAccountBalance retrieves a token balance from the stub store.
func (c *RPCClient) GetTokenAccountBalance(_ context.Context, account string) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	amount, ok := c.TokenBalances[account]
	if !ok {
		return 0, ErrNotFound
	}
	return amount, nil
}

// GetSlot retrieves the configured current slot.
func (c *RPCClient) GetSlot(_ context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Slot, nil
}

// SetBalance sets the balance for a pubkey.
func (c *RPCClient) SetBalance(pubkey string, lamports uint64, slot int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Balances[pubkey] = &solana.Balance{Lamports: lamports, Slot: slot}
}

// AddTransaction adds a transaction to the stub store.
func (c *RPCClient) AddTransaction(tx *solana.Transaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Transactions[tx.Signature] = tx
}

// AddSignatures adds signatures for an address to the stub store.
func (c *RPCClient) AddSignatures(address string, sigs []solana.SignatureInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Signatures[address] = sigs
}
