package domain

// DeadLetterStatus is the lifecycle state of a failed cycle record.
// Transitions: pending -> resolved | expired. Both terminal states are final.
type DeadLetterStatus string

const (
	DeadLetterPending  DeadLetterStatus = "PENDING"
	DeadLetterResolved DeadLetterStatus = "RESOLVED"
	DeadLetterExpired  DeadLetterStatus = "EXPIRED"
)

// DeadLetterEntry records one failed cycle attempt with enough context to
// retry or diagnose it. NextRetryAt is non-zero iff IsTransient is true.
type DeadLetterEntry struct {
	Timestamp            int64            `json:"timestamp"` // unix ms
	AssetID              string           `json:"asset_id"`
	AccountID            string           `json:"account_id"`
	ErrorText            string           `json:"error_text"`
	IsTransient          bool             `json:"is_transient"`
	IsCycleTooSoon       bool             `json:"is_cycle_too_soon"`
	PendingFeesAtFailure uint64           `json:"pending_fees_at_failure"`
	AllocationAtFailure  uint64           `json:"allocation_at_failure"`
	RetryCount           int              `json:"retry_count"`
	NextRetryAt          int64            `json:"next_retry_at,omitempty"` // unix ms, 0 when no retry scheduled
	Status               DeadLetterStatus `json:"status"`
}
