package domain

// HistoryKind classifies a ledger lifecycle or error event.
type HistoryKind string

const (
	HistoryWatcherStarted HistoryKind = "WATCHER_STARTED"
	HistoryWatcherStopped HistoryKind = "WATCHER_STOPPED"
	HistoryCycleExecuted  HistoryKind = "CYCLE_EXECUTED"
	HistoryCycleFailed    HistoryKind = "CYCLE_FAILED"
	HistoryOrphanedFee    HistoryKind = "ORPHANED_FEE"
	HistoryError          HistoryKind = "ERROR"
)

// HistoryEntry is one link of the tamper-evident history chain.
// PrevHash of entry n equals Hash of entry n-1; the chain is anchored at a
// genesis value. Hash covers sequence, prev hash, payload hash, kind and
// timestamp.
type HistoryEntry struct {
	Sequence    uint64      `json:"sequence"`
	PrevHash    string      `json:"prev_hash"`    // hex
	PayloadHash string      `json:"payload_hash"` // hex
	Kind        HistoryKind `json:"kind"`
	Timestamp   int64       `json:"timestamp"` // unix ms
	Hash        string      `json:"hash"`      // hex, hash of this entry
}

// Attestation is the recoverable proof of the latest chain state.
type Attestation struct {
	LatestHash string `json:"latest_hash"`
	Sequence   uint64 `json:"sequence"`
}
