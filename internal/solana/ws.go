package solana

import "context"

// WSClient defines the Solana WebSocket subscription interface.
type WSClient interface {
	// SubscribeAccount subscribes to lamport balance changes of an account.
	SubscribeAccount(ctx context.Context, pubkey string) (<-chan AccountUpdate, error)

	// Close closes the WebSocket connection.
	Close() error
}

// AccountUpdate is one accountNotification message.
type AccountUpdate struct {
	Pubkey   string
	Lamports uint64
	Slot     int64
}
