package solana

import "context"

// RPCClient defines the Solana RPC HTTP interface used by the engine.
type RPCClient interface {
	// GetBalance retrieves the lamport balance of an account and the slot
	// the balance was read at.
	GetBalance(ctx context.Context, pubkey string) (*Balance, error)

	// GetSignaturesForAddress retrieves signatures for an address,
	// most recent first.
	GetSignaturesForAddress(ctx context.Context, address string, opts *SignaturesOpts) ([]SignatureInfo, error)

	// GetTransaction retrieves a transaction by signature.
	// Returns nil if the transaction is not found.
	GetTransaction(ctx context.Context, signature string) (*Transaction, error)

	// GetAccountInfo retrieves account info by public key.
	// Returns nil if the account does not exist.
	GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error)

	// GetTokenAccountBalance retrieves the raw balance of an SPL token account.
	GetTokenAccountBalance(ctx context.Context, account string) (uint64, error)

	// GetSlot retrieves the current slot.
	GetSlot(ctx context.Context) (int64, error)
}

// Balance is a lamport balance read together with its slot context.
type Balance struct {
	Lamports uint64
	Slot     int64
}

// Transaction represents a Solana transaction with the balance metadata
// needed for fee attribution.
type Transaction struct {
	Slot      int64
	Signature string
	BlockTime int64 // Unix timestamp (seconds)
	Meta      *TransactionMeta
	Message   *TransactionMessage
}

// TransactionMeta contains transaction metadata.
type TransactionMeta struct {
	Err               interface{}
	PreBalances       []uint64
	PostBalances      []uint64
	PreTokenBalances  []TokenBalance
	PostTokenBalances []TokenBalance
}

// TokenBalance is one SPL token balance recorded before or after a transaction.
type TokenBalance struct {
	AccountIndex int
	Mint         string
	Owner        string
	Amount       uint64 // raw amount, smallest unit
}

// TransactionMessage contains the parsed transaction message.
type TransactionMessage struct {
	AccountKeys []string
}
